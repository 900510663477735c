/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/issue-unfurl/internal/config"
	"github.com/example/issue-unfurl/internal/domain"
	"github.com/example/issue-unfurl/internal/obs"
	"github.com/example/issue-unfurl/internal/regression"
	"github.com/example/issue-unfurl/internal/repo"
	"github.com/example/issue-unfurl/internal/unfurl"
	"github.com/rs/zerolog"
)

type IntegrationStore interface {
	IntegrationByExternalID(ctx context.Context, provider, externalID string) (*domain.Integration, error)
}

type Unfurler interface {
	Unfurl(ctx context.Context, integrationID int64, urls []string) (unfurl.UnfurledURLs, error)
}

type Notifier interface {
	Unfurl(ctx context.Context, token, channel, ts string, unfurls any) error
}

// LinkSharedEvent is the part of a Slack link_shared callback the service needs.
type LinkSharedEvent struct {
	TeamID    string
	Channel   string
	MessageTS string
	UserID    string
	URLs      []string
}

type Service struct {
	cfg          config.Config
	log          zerolog.Logger
	integrations IntegrationStore
	unfurler     Unfurler
	slack        Notifier
	producer     regression.Producer
	now          func() time.Time
}

func New(cfg config.Config, log zerolog.Logger, integrations IntegrationStore, u Unfurler, slack Notifier, producer regression.Producer) *Service {
	return &Service{cfg: cfg, log: log, integrations: integrations, unfurler: u, slack: slack, producer: producer, now: time.Now}
}

// HandleLinkShared unfurls the links of one Slack message. Events from teams
// with no installed integration are ignored.
func (s *Service) HandleLinkShared(ctx context.Context, ev LinkSharedEvent) error {
	if ev.TeamID == "" || len(ev.URLs) == 0 {
		return nil
	}
	integration, err := s.integrations.IntegrationByExternalID(ctx, domain.ProviderSlack, ev.TeamID)
	if errors.Is(err, repo.ErrNotFound) {
		s.log.Info().Str("team_id", ev.TeamID).Msg("link_shared from unknown team")
		return nil
	}
	if err != nil {
		return fmt.Errorf("integration for team %s: %w", ev.TeamID, err)
	}

	out, err := s.unfurler.Unfurl(ctx, integration.ID, ev.URLs)
	if err != nil {
		return err
	}
	s.log.Info().Int64("integration_id", integration.ID).Str("channel", ev.Channel).
		Int("links", len(ev.URLs)).Int("unfurled", len(out)).Msg("link_shared")
	if len(out) == 0 {
		return nil
	}

	token := strings.TrimSpace(integration.AccessToken)
	if token == "" {
		token = s.cfg.SlackBotToken
	}
	if err := s.slack.Unfurl(ctx, token, ev.Channel, ev.MessageTS, out); err != nil {
		return fmt.Errorf("chat.unfurl channel=%s ts=%s: %w", ev.Channel, ev.MessageTS, err)
	}
	return nil
}

// Preview renders urls for an integration without posting anything to Slack.
func (s *Service) Preview(ctx context.Context, integrationID int64, urls []string) (unfurl.UnfurledURLs, error) {
	return s.unfurler.Unfurl(ctx, integrationID, urls)
}

func (s *Service) IngestRegression(ctx context.Context, data regression.BreakpointData) (regression.Occurrence, error) {
	occ, err := regression.SendToPlatform(ctx, s.producer, data, s.now())
	if err != nil {
		obs.RegressionsTotal.WithLabelValues("error").Inc()
		return regression.Occurrence{}, err
	}
	obs.RegressionsTotal.WithLabelValues("ok").Inc()
	s.log.Info().Int64("project_id", occ.ProjectID).Str("transaction", occ.Culprit).
		Str("event_id", occ.EventID).Msg("regression ingested")
	return occ, nil
}
