// Package fixtures loads seed data for local development from YAML.
package fixtures

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/example/issue-unfurl/internal/domain"
	"gopkg.in/yaml.v3"
)

type Data struct {
	Organizations []domain.Organization
	Projects      []domain.Project
	Issues        []domain.Issue
	Events        []domain.Event
	Integrations  []domain.Integration
	Links         []domain.OrganizationIntegration
}

type file struct {
	Organizations []struct {
		ID   int64  `yaml:"id"`
		Slug string `yaml:"slug"`
		Name string `yaml:"name"`
	} `yaml:"organizations"`
	Projects []struct {
		ID           int64  `yaml:"id"`
		Organization int64  `yaml:"organization"`
		Slug         string `yaml:"slug"`
		Name         string `yaml:"name"`
		Platform     string `yaml:"platform"`
	} `yaml:"projects"`
	Issues []struct {
		ID       int64                `yaml:"id"`
		Project  int64                `yaml:"project"`
		ShortID  string               `yaml:"short_id"`
		Title    string               `yaml:"title"`
		Subtitle string               `yaml:"subtitle"`
		Culprit  string               `yaml:"culprit"`
		Level    string               `yaml:"level"`
		Status   string               `yaml:"status"`
		Type     int                  `yaml:"type"`
		Seen     int64                `yaml:"times_seen"`
		First    time.Time            `yaml:"first_seen"`
		Last     time.Time            `yaml:"last_seen"`
		Evidence []domain.EvidenceRow `yaml:"evidence"`
	} `yaml:"issues"`
	Events []struct {
		ID        string            `yaml:"id"`
		Project   int64             `yaml:"project"`
		Issue     int64             `yaml:"issue"`
		Title     string            `yaml:"title"`
		Message   string            `yaml:"message"`
		Platform  string            `yaml:"platform"`
		Tags      map[string]string `yaml:"tags"`
		Timestamp time.Time         `yaml:"timestamp"`
	} `yaml:"events"`
	Integrations []struct {
		ID            int64   `yaml:"id"`
		Provider      string  `yaml:"provider"`
		ExternalID    string  `yaml:"external_id"`
		Name          string  `yaml:"name"`
		AccessToken   string  `yaml:"access_token"`
		Organizations []int64 `yaml:"organizations"`
	} `yaml:"integrations"`
}

// Load parses a fixture document and checks that every reference points at a declared row.
func Load(r io.Reader) (Data, error) {
	var f file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return Data{}, fmt.Errorf("fixtures: decode: %w", err)
	}

	var d Data
	orgs := map[int64]bool{}
	for _, o := range f.Organizations {
		orgs[o.ID] = true
		d.Organizations = append(d.Organizations, domain.Organization{ID: o.ID, Slug: o.Slug, Name: o.Name})
	}
	projects := map[int64]domain.Project{}
	for _, p := range f.Projects {
		if !orgs[p.Organization] {
			return Data{}, fmt.Errorf("fixtures: project %d: unknown organization %d", p.ID, p.Organization)
		}
		dp := domain.Project{ID: p.ID, OrganizationID: p.Organization, Slug: p.Slug, Name: p.Name, Platform: p.Platform}
		projects[p.ID] = dp
		d.Projects = append(d.Projects, dp)
	}
	issues := map[int64]int64{}
	for _, i := range f.Issues {
		if _, ok := projects[i.Project]; !ok {
			return Data{}, fmt.Errorf("fixtures: issue %d: unknown project %d", i.ID, i.Project)
		}
		status := i.Status
		if status == "" {
			status = domain.IssueStatusUnresolved
		}
		level := i.Level
		if level == "" {
			level = "error"
		}
		issues[i.ID] = i.Project
		d.Issues = append(d.Issues, domain.Issue{
			ID: i.ID, ProjectID: i.Project, ShortID: i.ShortID, Title: i.Title, Subtitle: i.Subtitle,
			Culprit: i.Culprit, Level: level, Status: status, Type: i.Type, TimesSeen: i.Seen,
			FirstSeen: i.First, LastSeen: i.Last, Evidence: i.Evidence,
		})
	}
	for _, e := range f.Events {
		project, ok := issues[e.Issue]
		if !ok {
			return Data{}, fmt.Errorf("fixtures: event %s: unknown issue %d", e.ID, e.Issue)
		}
		if e.Project == 0 {
			e.Project = project
		}
		if e.Project != project {
			return Data{}, fmt.Errorf("fixtures: event %s: project %d does not own issue %d", e.ID, e.Project, e.Issue)
		}
		d.Events = append(d.Events, domain.Event{
			EventID: e.ID, ProjectID: e.Project, IssueID: e.Issue, Title: e.Title, Message: e.Message,
			Platform: e.Platform, Tags: e.Tags, Timestamp: e.Timestamp,
		})
	}
	for _, in := range f.Integrations {
		provider := in.Provider
		if provider == "" {
			provider = domain.ProviderSlack
		}
		d.Integrations = append(d.Integrations, domain.Integration{
			ID: in.ID, Provider: provider, ExternalID: in.ExternalID, Name: in.Name, AccessToken: in.AccessToken,
		})
		for _, org := range in.Organizations {
			if !orgs[org] {
				return Data{}, fmt.Errorf("fixtures: integration %d: unknown organization %d", in.ID, org)
			}
			d.Links = append(d.Links, domain.OrganizationIntegration{
				OrganizationID: org, IntegrationID: in.ID, Status: domain.IntegrationStatusActive,
			})
		}
	}
	return d, nil
}
