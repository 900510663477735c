package unfurl

import (
	"context"
	"regexp"

	"github.com/example/issue-unfurl/internal/message"
)

type LinkType string

const LinkTypeIssues LinkType = "issues"

// UnfurlableURL is a URL that matched a link shape, with its arguments already coerced.
type UnfurlableURL struct {
	URL  string
	Args Args
}

// UnfurledURLs maps each original URL to the attachment rendered for it.
type UnfurledURLs map[string]message.Attachment

// HandlerFunc resolves one batch of links of a single type on behalf of an integration.
type HandlerFunc func(ctx context.Context, integrationID int64, links []UnfurlableURL) (UnfurledURLs, error)

// Handler ties a link type to the patterns recognising it, the schema its
// captures are coerced with and the function that renders the batch.
// Matchers are tried in order and the first match wins.
type Handler struct {
	Type     LinkType
	Matchers []*regexp.Regexp
	Schema   ArgSchema
	Fn       HandlerFunc
}
