// Package message renders issues into Slack attachments.
package message

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/example/issue-unfurl/internal/domain"
)

const (
	ReferrerUnfurl  = "slack_unfurl"
	ReferrerMessage = "slack"

	colorResolved = "#2eb886"
	colorFatal    = "#d20f2a"
	colorError    = "#e03e2f"
	colorWarning  = "#f5a623"
	colorInfo     = "#2788ce"
	colorDebug    = "#c5c5c5"
)

type Options struct {
	BaseURL     string
	LinkToEvent bool
	IsUnfurl    bool
}

type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type Action struct {
	Name  string `json:"name"`
	Text  string `json:"text"`
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
	Style string `json:"style,omitempty"`
}

// Attachment is a legacy Slack message attachment plus the issue metadata it was built from.
type Attachment struct {
	Fallback   string   `json:"fallback"`
	Title      string   `json:"title"`
	TitleLink  string   `json:"title_link"`
	Text       string   `json:"text,omitempty"`
	Color      string   `json:"color"`
	Fields     []Field  `json:"fields,omitempty"`
	Actions    []Action `json:"actions,omitempty"`
	Footer     string   `json:"footer,omitempty"`
	Ts         int64    `json:"ts,omitempty"`
	MrkdwnIn   []string `json:"mrkdwn_in,omitempty"`
	CallbackID string   `json:"callback_id,omitempty"`

	IssueID    int64  `json:"issue_id"`
	IssueTitle string `json:"issue_title"`
	Subtitle   string `json:"subtitle,omitempty"`
	Culprit    string `json:"culprit,omitempty"`
	Level      string `json:"level,omitempty"`
	EventID    string `json:"event_id,omitempty"`
}

// BuildIssue renders an issue, and the event when one is given, into an
// attachment. It only reads its arguments.
func BuildIssue(issue domain.Issue, event *domain.Event, opts Options) Attachment {
	linked := opts.LinkToEvent && event != nil
	referrer := ReferrerMessage
	if opts.IsUnfurl {
		referrer = ReferrerUnfurl
	}

	a := Attachment{
		Title:      issue.Title,
		TitleLink:  IssueURL(opts.BaseURL, issue, "", referrer),
		Color:      levelColor(issue),
		Footer:     footer(issue),
		MrkdwnIn:   []string{"text"},
		IssueID:    issue.ID,
		IssueTitle: issue.Title,
		Subtitle:   issue.Subtitle,
		Culprit:    issue.Culprit,
		Level:      issue.Level,
	}
	if !issue.LastSeen.IsZero() {
		a.Ts = issue.LastSeen.Unix()
	}

	for _, row := range issue.Evidence {
		if row.Important {
			a.Fields = append(a.Fields, Field{Title: row.Name, Value: row.Value})
		}
	}

	switch {
	case event != nil && event.Message != "":
		a.Text = event.Message
	case issue.Subtitle != "":
		a.Text = issue.Subtitle
	default:
		a.Text = issue.Culprit
	}

	if linked {
		if event.Title != "" {
			a.Title = event.Title
		}
		a.TitleLink = IssueURL(opts.BaseURL, issue, event.EventID, referrer)
		a.EventID = event.EventID
		if !event.Timestamp.IsZero() {
			a.Ts = event.Timestamp.Unix()
		}
		a.Fields = append(a.Fields, tagFields(event.Tags)...)
	}

	a.Fallback = fmt.Sprintf("[%s] %s", issue.ProjectSlug, a.Title)

	if !opts.IsUnfurl {
		a.CallbackID = fmt.Sprintf(`{"issue":%d}`, issue.ID)
		a.Actions = actions(issue)
	}
	return a
}

// IssueURL links to the issue, or to one of its events when eventID is set.
func IssueURL(baseURL string, issue domain.Issue, eventID, referrer string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(baseURL, "/"))
	if issue.OrgSlug != "" {
		b.WriteString("/organizations/")
		b.WriteString(url.PathEscape(issue.OrgSlug))
	}
	b.WriteString("/issues/")
	b.WriteString(strconv.FormatInt(issue.ID, 10))
	b.WriteString("/")
	if eventID != "" {
		b.WriteString("events/")
		b.WriteString(url.PathEscape(eventID))
		b.WriteString("/")
	}
	if referrer != "" {
		b.WriteString("?referrer=")
		b.WriteString(url.QueryEscape(referrer))
	}
	return b.String()
}

func tagFields(tags map[string]string) []Field {
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, Field{Title: k, Value: tags[k], Short: true})
	}
	return out
}

func footer(issue domain.Issue) string {
	switch {
	case issue.ShortID != "" && issue.ProjectSlug != "":
		return issue.ShortID + " | " + issue.ProjectSlug
	case issue.ShortID != "":
		return issue.ShortID
	}
	return issue.ProjectSlug
}

func levelColor(issue domain.Issue) string {
	if issue.Status == domain.IssueStatusResolved {
		return colorResolved
	}
	switch issue.Level {
	case "fatal":
		return colorFatal
	case "error":
		return colorError
	case "warning":
		return colorWarning
	case "info":
		return colorInfo
	case "debug":
		return colorDebug
	}
	return colorError
}

func actions(issue domain.Issue) []Action {
	resolve := Action{Name: "status", Text: "Resolve", Type: "button", Value: domain.IssueStatusResolved}
	if issue.Status == domain.IssueStatusResolved {
		resolve = Action{Name: "status", Text: "Unresolve", Type: "button", Value: domain.IssueStatusUnresolved}
	}
	ignore := Action{Name: "status", Text: "Ignore", Type: "button", Value: domain.IssueStatusIgnored}
	if issue.Status == domain.IssueStatusIgnored {
		ignore = Action{Name: "status", Text: "Stop Ignoring", Type: "button", Value: domain.IssueStatusUnresolved}
	}
	return []Action{resolve, ignore, {Name: "assign", Text: "Select Assignee...", Type: "select"}}
}
