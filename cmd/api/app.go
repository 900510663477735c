package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/example/issue-unfurl/internal/adapters/slack"
	"github.com/example/issue-unfurl/internal/config"
	"github.com/example/issue-unfurl/internal/fixtures"
	"github.com/example/issue-unfurl/internal/logger"
	"github.com/example/issue-unfurl/internal/repo"
	"github.com/example/issue-unfurl/internal/services"
	"github.com/example/issue-unfurl/internal/unfurl"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type app struct {
	cfg  config.Config
	log  zerolog.Logger
	db   *repo.DB
	repo *repo.Repository
	svc  *services.Service
}

func newApp(ctx context.Context) *app {
	cfg := config.Load()
	log := logger.New(cfg)

	db := repo.MustOpen(ctx, cfg, log)
	repository := repo.NewRepository(db, log)

	issues := unfurl.NewIssuesHandler(repository, repository, repository, cfg.PublicBaseURL, log)
	unfurler := unfurl.NewUnfurler(log, issues.Handler())
	sc := slack.NewClient(cfg, log)
	svc := services.New(cfg, log, repository, unfurler, sc, repository)

	return &app{cfg: cfg, log: log, db: db, repo: repository, svc: svc}
}

func (a *app) Close() { a.db.Close() }

func newPreviewCmd() *cobra.Command {
	var integrationID int64
	cmd := &cobra.Command{
		Use:   "preview URL...",
		Short: "Print the unfurls an integration would receive for the given URLs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := newApp(cmd.Context())
			defer a.Close()
			out, err := a.svc.Preview(cmd.Context(), integrationID, args)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().Int64Var(&integrationID, "integration", 0, "integration id to resolve on behalf of")
	_ = cmd.MarkFlagRequired("integration")
	return cmd
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed FILE",
		Short: "Load organizations, projects, issues, events and integrations from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			data, err := fixtures.Load(f)
			if err != nil {
				return err
			}
			a := newApp(cmd.Context())
			defer a.Close()
			if err := a.repo.Seed(cmd.Context(), data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d issues, %d events, %d integrations\n",
				len(data.Issues), len(data.Events), len(data.Integrations))
			return nil
		},
	}
}
