package unfurl

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueMatchers(t *testing.T) {
	tests := []struct {
		url     string
		ok      bool
		issue   string
		event   string
		matcher int
	}{
		{url: "https://example.io/organizations/acme/issues/42/events/abc123", ok: true, issue: "42", event: "abc123", matcher: 0},
		{url: "https://example.io/organizations/acme/issues/42/", ok: true, issue: "42", matcher: 0},
		{url: "http://example.io/organizations/acme/issues/42?project=1", ok: true, issue: "42", matcher: 0},
		{url: "https://acme.example.io/issues/99/events/deadbeef/", ok: true, issue: "99", event: "deadbeef", matcher: 1},
		{url: "https://acme.example.io/issues/99", ok: true, issue: "99", matcher: 1},
		{url: "https://example.io/organizations/acme/issues/abc/", ok: false},
		{url: "https://example.io/organizations/acme/alerts/42/", ok: false},
		{url: "ftp://example.io/issues/1", ok: false},
		{url: "not a url", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			raw, ok := captures(IssueMatchers(), tt.url)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.issue, raw["issue_id"])
			assert.Equal(t, tt.event, raw["event_id"])
			assert.True(t, IssueMatchers()[tt.matcher].MatchString(tt.url))
		})
	}
}

func TestMatchLink_FirstHandlerWins(t *testing.T) {
	generic := Handler{Type: "generic", Matchers: []*regexp.Regexp{regexp.MustCompile(`^https?://[^/]+/(?P<rest>.*)$`)}}
	handlers := []Handler{{Type: LinkTypeIssues, Matchers: IssueMatchers(), Schema: issueArgs}, generic}

	h, raw, ok := MatchLink(handlers, "https://example.io/organizations/acme/issues/42/")
	require.True(t, ok)
	assert.Equal(t, LinkTypeIssues, h.Type)
	assert.Equal(t, "42", raw["issue_id"])

	h, raw, ok = MatchLink(handlers, "https://example.io/dashboards/1/")
	require.True(t, ok)
	assert.Equal(t, LinkType("generic"), h.Type)
	assert.Equal(t, "dashboards/1/", raw["rest"])

	// Reversed order lets the generic pattern shadow issue links.
	h, _, ok = MatchLink([]Handler{generic, handlers[0]}, "https://example.io/organizations/acme/issues/42/")
	require.True(t, ok)
	assert.Equal(t, LinkType("generic"), h.Type)
}

func TestMatchLink_NoMatch(t *testing.T) {
	h, raw, ok := MatchLink([]Handler{{Type: LinkTypeIssues, Matchers: IssueMatchers()}}, "https://example.io/settings/")
	assert.False(t, ok)
	assert.Nil(t, h)
	assert.Nil(t, raw)
}
