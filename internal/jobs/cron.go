package jobs

import (
	"context"
	"time"

	"github.com/example/issue-unfurl/internal/config"
	"github.com/example/issue-unfurl/internal/obs"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const retentionLockKey int64 = 735001

type store interface {
	PurgeEventsBeforeLocked(ctx context.Context, key int64, cutoff time.Time) (n int64, locked bool, err error)
}

type Cron struct {
	cfg   config.Config
	log   zerolog.Logger
	store store
	c     *cron.Cron
	now   func() time.Time
}

func NewCron(cfg config.Config, log zerolog.Logger, s store) (*Cron, error) {
	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		loc = time.UTC
	}
	c := cron.New(cron.WithLocation(loc), cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)))
	cr := &Cron{cfg: cfg, log: log, store: s, c: c, now: time.Now}
	if _, err := c.AddFunc(cfg.RetentionCron, cr.retention); err != nil {
		return nil, err
	}
	return cr, nil
}

func (cr *Cron) Start() { cr.c.Start() }
func (cr *Cron) Stop()  { <-cr.c.Stop().Done() }

func (cr *Cron) retention() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if _, err := cr.RunRetention(ctx); err != nil {
		cr.log.Error().Err(err).Msg("cron: retention failed")
	}
}

// RunRetention purges expired events unless another instance holds the lock.
func (cr *Cron) RunRetention(ctx context.Context) (int64, error) {
	cutoff := cr.now().Add(-cr.cfg.EventRetention)
	n, locked, err := cr.store.PurgeEventsBeforeLocked(ctx, retentionLockKey, cutoff)
	if err != nil {
		return 0, err
	}
	if !locked {
		cr.log.Info().Msg("cron: retention already running elsewhere")
		return 0, nil
	}
	obs.EventsPurgedTotal.Add(float64(n))
	cr.log.Info().Int64("purged", n).Time("cutoff", cutoff).Msg("cron: retention")
	return n, nil
}
