package unfurl

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/issue-unfurl/internal/obs"
	"github.com/rs/zerolog"
)

// Unfurler dispatches a batch of raw URLs to the handlers that recognise them.
type Unfurler struct {
	handlers []Handler
	log      zerolog.Logger
}

func NewUnfurler(log zerolog.Logger, handlers ...Handler) *Unfurler {
	return &Unfurler{handlers: handlers, log: log}
}

// Batch is the set of parsed links one handler will receive.
type Batch struct {
	Handler *Handler
	Links   []UnfurlableURL
}

// Parse de-duplicates urls, matches each against the handler table and coerces
// its captures. Links that do not match or fail coercion are dropped. Batches
// come back in handler declaration order.
func (u *Unfurler) Parse(urls []string) []Batch {
	byType := map[LinkType]*Batch{}
	seen := map[string]bool{}
	for _, raw := range urls {
		if seen[raw] {
			continue
		}
		seen[raw] = true

		h, captured, ok := MatchLink(u.handlers, raw)
		if !ok {
			obs.UnfurlLinksTotal.WithLabelValues("", obs.OutcomeNoMatch).Inc()
			continue
		}
		args, err := h.Schema.Coerce(captured)
		if err != nil {
			var ce *CoercionError
			if errors.As(err, &ce) {
				u.log.Debug().Str("url", raw).Str("field", ce.Field).Err(ce.Err).Msg("unfurl: dropping link")
			}
			obs.UnfurlLinksTotal.WithLabelValues(string(h.Type), obs.OutcomeCoercionError).Inc()
			continue
		}
		b, ok := byType[h.Type]
		if !ok {
			b = &Batch{Handler: h}
			byType[h.Type] = b
		}
		b.Links = append(b.Links, UnfurlableURL{URL: raw, Args: args})
	}

	out := make([]Batch, 0, len(byType))
	for i := range u.handlers {
		if b, ok := byType[u.handlers[i].Type]; ok {
			out = append(out, *b)
			delete(byType, u.handlers[i].Type)
		}
	}
	return out
}

// Unfurl renders every URL it can resolve for the integration. The first
// handler error aborts the call; per-link problems only drop that link.
func (u *Unfurler) Unfurl(ctx context.Context, integrationID int64, urls []string) (UnfurledURLs, error) {
	out := UnfurledURLs{}
	for _, b := range u.Parse(urls) {
		res, err := b.Handler.Fn(ctx, integrationID, b.Links)
		if err != nil {
			return nil, fmt.Errorf("unfurl %s: %w", b.Handler.Type, err)
		}
		for _, link := range b.Links {
			if payload, ok := res[link.URL]; ok {
				out[link.URL] = payload
				obs.UnfurlLinksTotal.WithLabelValues(string(b.Handler.Type), obs.OutcomeUnfurled).Inc()
			} else {
				obs.UnfurlLinksTotal.WithLabelValues(string(b.Handler.Type), obs.OutcomeOmitted).Inc()
			}
		}
	}
	return out, nil
}
