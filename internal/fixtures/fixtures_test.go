package fixtures

import (
	"strings"
	"testing"
	"time"

	"github.com/example/issue-unfurl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
organizations:
  - {id: 1, slug: acme, name: Acme}
projects:
  - {id: 5, organization: 1, slug: backend, platform: python}
issues:
  - id: 42
    project: 5
    short_id: BACKEND-42
    title: "ZeroDivisionError: division by zero"
    culprit: /api/checkout
    last_seen: 2024-07-02T20:56:00Z
    evidence:
      - {name: Transaction, value: /api/checkout, important: true}
events:
  - id: abc123
    issue: 42
    message: division by zero
    tags: {environment: prod}
integrations:
  - id: 10
    external_id: T0001
    name: Acme Slack
    organizations: [1]
`

func TestLoad(t *testing.T) {
	d, err := Load(strings.NewReader(sample))
	require.NoError(t, err)

	require.Len(t, d.Issues, 1)
	is := d.Issues[0]
	assert.Equal(t, "error", is.Level)
	assert.Equal(t, domain.IssueStatusUnresolved, is.Status)
	assert.Equal(t, time.Date(2024, 7, 2, 20, 56, 0, 0, time.UTC), is.LastSeen.UTC())
	assert.Equal(t, []domain.EvidenceRow{{Name: "Transaction", Value: "/api/checkout", Important: true}}, is.Evidence)

	require.Len(t, d.Events, 1)
	assert.Equal(t, int64(5), d.Events[0].ProjectID, "event project defaults to the issue's")
	assert.Equal(t, "prod", d.Events[0].Tags["environment"])

	require.Len(t, d.Integrations, 1)
	assert.Equal(t, domain.ProviderSlack, d.Integrations[0].Provider)
	assert.Equal(t, []domain.OrganizationIntegration{{OrganizationID: 1, IntegrationID: 10, Status: domain.IntegrationStatusActive}}, d.Links)
}

func TestLoad_Empty(t *testing.T) {
	d, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, d.Issues)
}

func TestLoad_DanglingReferences(t *testing.T) {
	tests := map[string]string{
		"project org":     "projects: [{id: 1, organization: 9, slug: x}]",
		"issue project":   "issues: [{id: 1, project: 9, title: x}]",
		"event issue":     "events: [{id: e, issue: 9}]",
		"integration org": "integrations: [{id: 1, external_id: T, organizations: [9]}]",
		"unknown field":   "organisations: []",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}
