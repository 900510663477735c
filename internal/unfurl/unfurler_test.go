package unfurl

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/example/issue-unfurl/internal/message"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnfurler_Parse(t *testing.T) {
	u := NewUnfurler(zerolog.Nop(), newHandler(newFakeStore(), nil).Handler())
	batches := u.Parse([]string{
		"https://example.io/organizations/acme/issues/42/",
		"https://example.io/organizations/acme/issues/42/",
		"https://example.io/organizations/acme/issues/99999999999999999999/",
		"https://example.io/settings/",
		"https://acme.example.io/issues/43/events/e1/",
	})
	require.Len(t, batches, 1)
	assert.Equal(t, LinkTypeIssues, batches[0].Handler.Type)
	require.Len(t, batches[0].Links, 2)
	assert.Equal(t, "https://example.io/organizations/acme/issues/42/", batches[0].Links[0].URL)
	ev, _ := batches[0].Links[1].Args.String("event_id")
	assert.Equal(t, "e1", ev)
}

func TestUnfurler_Unfurl(t *testing.T) {
	store := newFakeStore()
	u := NewUnfurler(zerolog.Nop(), newHandler(store, nil).Handler())

	const (
		good     = "https://example.io/organizations/acme/issues/42/events/abc123"
		badID    = "https://example.io/organizations/acme/issues/x42/"
		noMatch  = "https://example.io/organizations/acme/discover/results/"
		outScope = "https://example.io/organizations/globex/issues/77/"
	)
	out, err := u.Unfurl(context.Background(), acmeSlack, []string{good, badID, noMatch, outScope, good})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Contains(t, out, good)
	assert.Equal(t, 1, store.issueCalls)
}

func TestUnfurler_NothingMatchesSkipsHandlers(t *testing.T) {
	store := newFakeStore()
	u := NewUnfurler(zerolog.Nop(), newHandler(store, nil).Handler())

	out, err := u.Unfurl(context.Background(), acmeSlack, []string{"https://example.io/", "https://example.io/issues/not-a-number/"})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 0, store.authCalls)
	assert.Equal(t, 0, store.issueCalls)
}

func TestUnfurler_HandlersRunInDeclarationOrder(t *testing.T) {
	var order []LinkType
	mk := func(typ LinkType, pattern string) Handler {
		return Handler{
			Type:     typ,
			Matchers: []*regexp.Regexp{regexp.MustCompile(pattern)},
			Fn: func(_ context.Context, _ int64, links []UnfurlableURL) (UnfurledURLs, error) {
				order = append(order, typ)
				out := UnfurledURLs{}
				for _, l := range links {
					out[l.URL] = message.Attachment{Title: string(typ)}
				}
				return out, nil
			},
		}
	}
	u := NewUnfurler(zerolog.Nop(), mk("alerts", `/alerts/`), mk("discover", `/discover/`))

	out, err := u.Unfurl(context.Background(), 1, []string{"https://x.io/discover/1", "https://x.io/alerts/2"})
	require.NoError(t, err)
	assert.Equal(t, []LinkType{"alerts", "discover"}, order)
	assert.Equal(t, "discover", out["https://x.io/discover/1"].Title)
	assert.Equal(t, "alerts", out["https://x.io/alerts/2"].Title)
}

func TestUnfurler_HandlerErrorAborts(t *testing.T) {
	boom := errors.New("db down")
	h := Handler{
		Type:     LinkTypeIssues,
		Matchers: IssueMatchers(),
		Schema:   issueArgs,
		Fn: func(context.Context, int64, []UnfurlableURL) (UnfurledURLs, error) {
			return nil, boom
		},
	}
	out, err := NewUnfurler(zerolog.Nop(), h).Unfurl(context.Background(), 1, []string{"https://x.io/issues/1/"})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, out)
}
