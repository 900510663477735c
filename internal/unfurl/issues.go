package unfurl

import (
	"context"
	"fmt"
	"regexp"

	"github.com/example/issue-unfurl/internal/domain"
	"github.com/example/issue-unfurl/internal/message"
	"github.com/rs/zerolog"
)

var (
	issueLinkRegex               = regexp.MustCompile(`^https?://[^/]+/organizations/[^/]+/issues/(?P<issue_id>\d+)(?:/events/(?P<event_id>\w+))?`)
	customerDomainIssueLinkRegex = regexp.MustCompile(`^https?://[^/]+/issues/(?P<issue_id>\d+)(?:/events/(?P<event_id>\w+))?`)

	issueArgs = ArgSchema{
		{Name: "issue_id", Kind: KindInt, Required: true},
		{Name: "event_id", Kind: KindString},
	}
)

// IssueMatchers lists the issue link shapes. The organization-scoped form
// must stay ahead of the shorter customer-domain form.
func IssueMatchers() []*regexp.Regexp {
	return []*regexp.Regexp{issueLinkRegex, customerDomainIssueLinkRegex}
}

type IssueStore interface {
	// IssuesInOrganizations returns the issues among ids whose project belongs to one of orgIDs.
	IssuesInOrganizations(ctx context.Context, ids []int64, orgIDs []int64) ([]domain.Issue, error)
}

type EventStore interface {
	// EventByID returns nil, nil when the event does not exist.
	EventByID(ctx context.Context, projectID int64, eventID string, issueID int64) (*domain.Event, error)
}

type Authorizer interface {
	OrganizationIDs(ctx context.Context, integrationID int64) ([]int64, error)
}

// Renderer turns a resolved issue and optional event into an attachment.
type Renderer func(issue domain.Issue, event *domain.Event, opts message.Options) message.Attachment

type IssuesHandler struct {
	issues IssueStore
	events EventStore
	auth   Authorizer
	render Renderer
	opts   message.Options
	log    zerolog.Logger
}

func NewIssuesHandler(issues IssueStore, events EventStore, auth Authorizer, baseURL string, log zerolog.Logger) *IssuesHandler {
	return &IssuesHandler{
		issues: issues,
		events: events,
		auth:   auth,
		render: message.BuildIssue,
		opts:   message.Options{BaseURL: baseURL, LinkToEvent: true, IsUnfurl: true},
		log:    log,
	}
}

// WithRenderer swaps the payload builder.
func (h *IssuesHandler) WithRenderer(r Renderer) *IssuesHandler {
	h.render = r
	return h
}

func (h *IssuesHandler) Handler() Handler {
	return Handler{Type: LinkTypeIssues, Matchers: IssueMatchers(), Schema: issueArgs, Fn: h.Unfurl}
}

// Unfurl resolves every referenced issue with a single scoped lookup and
// renders one attachment per link whose issue is visible to the integration.
// Links to unknown or out-of-scope issues are left out of the result.
func (h *IssuesHandler) Unfurl(ctx context.Context, integrationID int64, links []UnfurlableURL) (UnfurledURLs, error) {
	ids := make([]int64, 0, len(links))
	seen := map[int64]bool{}
	for _, link := range links {
		id, ok := link.Args.Int64("issue_id")
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return UnfurledURLs{}, nil
	}

	orgIDs, err := h.auth.OrganizationIDs(ctx, integrationID)
	if err != nil {
		return nil, fmt.Errorf("organization scope for integration %d: %w", integrationID, err)
	}
	if len(orgIDs) == 0 {
		h.log.Debug().Int64("integration_id", integrationID).Msg("unfurl: integration has no organizations")
		return UnfurledURLs{}, nil
	}

	issues, err := h.issues.IssuesInOrganizations(ctx, ids, orgIDs)
	if err != nil {
		return nil, fmt.Errorf("lookup issues: %w", err)
	}
	byID := make(map[int64]domain.Issue, len(issues))
	for _, is := range issues {
		byID[is.ID] = is
	}
	if len(byID) == 0 {
		return UnfurledURLs{}, nil
	}

	out := UnfurledURLs{}
	for _, link := range links {
		id, _ := link.Args.Int64("issue_id")
		issue, ok := byID[id]
		if !ok {
			continue
		}
		var event *domain.Event
		if eventID, ok := link.Args.String("event_id"); ok {
			event, err = h.events.EventByID(ctx, issue.ProjectID, eventID, issue.ID)
			if err != nil {
				return nil, fmt.Errorf("lookup event %s of issue %d: %w", eventID, issue.ID, err)
			}
			if event == nil {
				h.log.Debug().Int64("issue_id", issue.ID).Str("event_id", eventID).Msg("unfurl: event not found, rendering issue only")
			}
		}
		out[link.URL] = h.render(issue, event, h.opts)
	}
	return out, nil
}
