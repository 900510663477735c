package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/issue-unfurl/internal/config"
	"github.com/example/issue-unfurl/internal/domain"
	"github.com/example/issue-unfurl/internal/message"
	"github.com/example/issue-unfurl/internal/regression"
	"github.com/example/issue-unfurl/internal/repo"
	"github.com/example/issue-unfurl/internal/unfurl"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIntegrations map[string]domain.Integration

func (f fakeIntegrations) IntegrationByExternalID(_ context.Context, provider, externalID string) (*domain.Integration, error) {
	in, ok := f[externalID]
	if !ok || provider != domain.ProviderSlack {
		return nil, repo.ErrNotFound
	}
	return &in, nil
}

type fakeUnfurler struct {
	out           unfurl.UnfurledURLs
	err           error
	integrationID int64
	calls         int
}

func (f *fakeUnfurler) Unfurl(_ context.Context, integrationID int64, _ []string) (unfurl.UnfurledURLs, error) {
	f.calls++
	f.integrationID = integrationID
	return f.out, f.err
}

type fakeNotifier struct {
	calls   int
	token   string
	channel string
	ts      string
	unfurls any
	err     error
}

func (f *fakeNotifier) Unfurl(_ context.Context, token, channel, ts string, unfurls any) error {
	f.calls++
	f.token, f.channel, f.ts, f.unfurls = token, channel, ts, unfurls
	return f.err
}

type fakeProducer struct{ calls int }

func (f *fakeProducer) Produce(context.Context, regression.Occurrence, regression.EventData) error {
	f.calls++
	return nil
}

const link = "https://example.io/organizations/acme/issues/42/"

func newTestService(u *fakeUnfurler, n *fakeNotifier) *Service {
	integrations := fakeIntegrations{
		"T1": {ID: 10, Provider: domain.ProviderSlack, ExternalID: "T1", AccessToken: "xoxb-team"},
		"T2": {ID: 20, Provider: domain.ProviderSlack, ExternalID: "T2"},
	}
	return New(config.Config{SlackBotToken: "xoxb-default"}, zerolog.Nop(), integrations, u, n, &fakeProducer{})
}

func TestHandleLinkShared(t *testing.T) {
	u := &fakeUnfurler{out: unfurl.UnfurledURLs{link: message.Attachment{Title: "boom"}}}
	n := &fakeNotifier{}
	err := newTestService(u, n).HandleLinkShared(context.Background(), LinkSharedEvent{
		TeamID: "T1", Channel: "C1", MessageTS: "1.2", URLs: []string{link},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), u.integrationID)
	assert.Equal(t, 1, n.calls)
	assert.Equal(t, "xoxb-team", n.token)
	assert.Equal(t, "C1", n.channel)
	assert.Equal(t, "1.2", n.ts)
	assert.Equal(t, u.out, n.unfurls)
}

func TestHandleLinkShared_FallsBackToBotToken(t *testing.T) {
	u := &fakeUnfurler{out: unfurl.UnfurledURLs{link: {}}}
	n := &fakeNotifier{}
	require.NoError(t, newTestService(u, n).HandleLinkShared(context.Background(), LinkSharedEvent{TeamID: "T2", URLs: []string{link}}))
	assert.Equal(t, "xoxb-default", n.token)
}

func TestHandleLinkShared_NothingToPost(t *testing.T) {
	tests := map[string]struct {
		ev         LinkSharedEvent
		unfurlRuns int
	}{
		"unknown team":  {LinkSharedEvent{TeamID: "T9", URLs: []string{link}}, 0},
		"no urls":       {LinkSharedEvent{TeamID: "T1"}, 0},
		"empty unfurls": {LinkSharedEvent{TeamID: "T1", URLs: []string{link}}, 1},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			u := &fakeUnfurler{out: unfurl.UnfurledURLs{}}
			n := &fakeNotifier{}
			require.NoError(t, newTestService(u, n).HandleLinkShared(context.Background(), tt.ev))
			assert.Equal(t, tt.unfurlRuns, u.calls)
			assert.Zero(t, n.calls)
		})
	}
}

func TestHandleLinkShared_Errors(t *testing.T) {
	boom := errors.New("boom")

	u := &fakeUnfurler{err: boom}
	n := &fakeNotifier{}
	err := newTestService(u, n).HandleLinkShared(context.Background(), LinkSharedEvent{TeamID: "T1", URLs: []string{link}})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, n.calls)

	u = &fakeUnfurler{out: unfurl.UnfurledURLs{link: {}}}
	n = &fakeNotifier{err: boom}
	err = newTestService(u, n).HandleLinkShared(context.Background(), LinkSharedEvent{TeamID: "T1", Channel: "C1", URLs: []string{link}})
	assert.ErrorIs(t, err, boom)
}

func TestIngestRegression(t *testing.T) {
	s := newTestService(&fakeUnfurler{}, &fakeNotifier{})
	p := &fakeProducer{}
	s.producer = p
	s.now = func() time.Time { return time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC) }

	occ, err := s.IngestRegression(context.Background(), regression.BreakpointData{
		Project: "123", Transaction: "foo", AggregateRange1: 14, AggregateRange2: 28,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, int64(123), occ.ProjectID)
	assert.Equal(t, s.now(), occ.DetectionTime)

	_, err = s.IngestRegression(context.Background(), regression.BreakpointData{Project: "x", Transaction: "foo"})
	assert.ErrorIs(t, err, regression.ErrInvalidBreakpoint)
	assert.Equal(t, 1, p.calls)
}
