/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/example/issue-unfurl/internal/adapters/slack"
	"github.com/example/issue-unfurl/internal/config"
	"github.com/example/issue-unfurl/internal/regression"
	"github.com/example/issue-unfurl/internal/services"
	"github.com/example/issue-unfurl/internal/unfurl"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type service interface {
	HandleLinkShared(ctx context.Context, ev services.LinkSharedEvent) error
	Preview(ctx context.Context, integrationID int64, urls []string) (unfurl.UnfurledURLs, error)
	IngestRegression(ctx context.Context, data regression.BreakpointData) (regression.Occurrence, error)
}

const maxEventBody = 1 << 20

type Handlers struct {
	cfg config.Config
	log zerolog.Logger
	svc service
	now func() time.Time

	// async runs link_shared work after the request has been acknowledged.
	async    func(func())
	inflight sync.WaitGroup
}

func NewHandlers(cfg config.Config, log zerolog.Logger, svc service) *Handlers {
	h := &Handlers{cfg: cfg, log: log, svc: svc, now: time.Now}
	h.async = func(f func()) {
		h.inflight.Add(1)
		go func() {
			defer h.inflight.Done()
			f()
		}()
	}
	return h
}

// Wait blocks until every dispatched link_shared job has returned or ctx is done.
func (h *Handlers) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type slackEnvelope struct {
	Type      string `json:"type"`
	Token     string `json:"token"`
	Challenge string `json:"challenge"`
	TeamID    string `json:"team_id"`
	EventID   string `json:"event_id"`
	Event     struct {
		Type      string `json:"type"`
		Channel   string `json:"channel"`
		User      string `json:"user"`
		MessageTS string `json:"message_ts"`
		Links     []struct {
			Domain string `json:"domain"`
			URL    string `json:"url"`
		} `json:"links"`
	} `json:"event"`
}

func (h *Handlers) SlackEvents(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	ts := c.GetHeader("X-Slack-Request-Timestamp")
	sig := c.GetHeader("X-Slack-Signature")
	if err := slack.VerifySignature(h.cfg.SlackSigningSecret, ts, body, sig, h.now()); err != nil {
		h.log.Warn().Err(err).Str("ip", c.ClientIP()).Msg("slack event rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	var env slackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	switch env.Type {
	case "url_verification":
		c.JSON(http.StatusOK, gin.H{"challenge": env.Challenge})
		return
	case "event_callback":
	default:
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	if env.Event.Type != "link_shared" {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	// The first delivery already dispatched the unfurl.
	if retry := c.GetHeader("X-Slack-Retry-Num"); retry != "" {
		h.log.Info().Str("event_id", env.EventID).Str("retry", retry).
			Str("reason", c.GetHeader("X-Slack-Retry-Reason")).Msg("slack retry acked")
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	ev := services.LinkSharedEvent{
		TeamID:    env.TeamID,
		Channel:   env.Event.Channel,
		MessageTS: env.Event.MessageTS,
		UserID:    env.Event.User,
	}
	for _, l := range env.Event.Links {
		if u := strings.TrimSpace(l.URL); u != "" {
			ev.URLs = append(ev.URLs, u)
		}
	}
	// Slack wants the ack within 3s; the unfurl outlives the request.
	h.async(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*h.cfg.HTTPTimeout)
		defer cancel()
		if err := h.svc.HandleLinkShared(ctx, ev); err != nil {
			h.log.Error().Err(err).Str("event_id", env.EventID).Msg("link_shared failed")
		}
	})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) RequireAdmin(c *gin.Context) {
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || h.cfg.AdminToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.AdminToken)) != 1 {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.Next()
}

func (h *Handlers) IngestRegression(c *gin.Context) {
	var data regression.BreakpointData
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	occ, err := h.svc.IngestRegression(c.Request.Context(), data)
	if errors.Is(err, regression.ErrInvalidBreakpoint) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, occ)
}

type previewRequest struct {
	IntegrationID int64    `json:"integration_id" binding:"required"`
	URLs          []string `json:"urls" binding:"required"`
}

func (h *Handlers) UnfurlPreview(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := h.svc.Preview(c.Request.Context(), req.IntegrationID, req.URLs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unfurls": out})
}
