package domain

import "time"

type Organization struct {
	ID   int64
	Slug string
	Name string
}

type Project struct {
	ID             int64
	OrganizationID int64
	Slug           string
	Name           string
	Platform       string
}

// Issue is a group of events. OrgSlug and ProjectSlug are filled on reads that join projects.
type Issue struct {
	ID          int64
	ProjectID   int64
	ProjectSlug string
	OrgID       int64
	OrgSlug     string
	ShortID     string
	Title       string
	Subtitle    string
	Culprit     string
	Level       string
	Status      string
	Type        int
	Fingerprint string
	TimesSeen   int64
	FirstSeen   time.Time
	LastSeen    time.Time
	Evidence    []EvidenceRow
}

type EvidenceRow struct {
	Name      string `json:"name" yaml:"name"`
	Value     string `json:"value" yaml:"value"`
	Important bool   `json:"important" yaml:"important"`
}

type Event struct {
	EventID   string
	ProjectID int64
	IssueID   int64
	Title     string
	Message   string
	Platform  string
	Tags      map[string]string
	Timestamp time.Time
}

type Integration struct {
	ID          int64
	Provider    string
	ExternalID  string
	Name        string
	AccessToken string
}

// OrganizationIntegration links an integration to an organization it may read from.
type OrganizationIntegration struct {
	OrganizationID int64
	IntegrationID  int64
	Status         string
}

const (
	IssueStatusUnresolved = "unresolved"
	IssueStatusResolved   = "resolved"
	IssueStatusIgnored    = "ignored"

	IntegrationStatusActive   = "active"
	IntegrationStatusDisabled = "disabled"

	ProviderSlack = "slack"
)
