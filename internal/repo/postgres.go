package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/issue-unfurl/internal/config"
	"github.com/example/issue-unfurl/internal/domain"
	"github.com/example/issue-unfurl/internal/fixtures"
	"github.com/example/issue-unfurl/internal/regression"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

var ErrNotFound = errors.New("not found")

type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

func MustOpen(ctx context.Context, cfg config.Config, log zerolog.Logger) *DB {
	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	ctx2, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(ctx2); err != nil {
		log.Fatal().Err(err).Msg("db ping failed")
	}
	return &DB{Pool: pool, log: log}
}

func (d *DB) Close() { d.Pool.Close() }

type Repository struct {
	db  *DB
	log zerolog.Logger
}

func NewRepository(d *DB, log zerolog.Logger) *Repository { return &Repository{db: d, log: log} }

// IssuesInOrganizations fetches the requested issues in one query, keeping
// only those whose project belongs to one of orgIDs.
func (r *Repository) IssuesInOrganizations(ctx context.Context, ids []int64, orgIDs []int64) ([]domain.Issue, error) {
	if len(ids) == 0 || len(orgIDs) == 0 {
		return nil, nil
	}
	const q = `
        SELECT i.id, i.project_id, p.slug, p.organization_id, o.slug, i.short_id, i.title, i.subtitle,
            i.culprit, i.level, i.status, i.type, COALESCE(i.fingerprint, ''), i.times_seen,
            i.first_seen, i.last_seen, i.evidence
        FROM issues i
        JOIN projects p ON p.id = i.project_id
        JOIN organizations o ON o.id = p.organization_id
        WHERE i.id = ANY($1) AND p.organization_id = ANY($2)`
	rows, err := r.db.Pool.Query(ctx, q, ids, orgIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Issue
	for rows.Next() {
		var i domain.Issue
		if err := rows.Scan(&i.ID, &i.ProjectID, &i.ProjectSlug, &i.OrgID, &i.OrgSlug, &i.ShortID, &i.Title, &i.Subtitle,
			&i.Culprit, &i.Level, &i.Status, &i.Type, &i.Fingerprint, &i.TimesSeen,
			&i.FirstSeen, &i.LastSeen, &i.Evidence); err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// EventByID returns nil, nil when no event matches all three keys.
func (r *Repository) EventByID(ctx context.Context, projectID int64, eventID string, issueID int64) (*domain.Event, error) {
	const q = `
        SELECT event_id, project_id, issue_id, title, message, platform, tags, timestamp
        FROM events WHERE project_id=$1 AND event_id=$2 AND issue_id=$3`
	var e domain.Event
	err := r.db.Pool.QueryRow(ctx, q, projectID, eventID, issueID).Scan(
		&e.EventID, &e.ProjectID, &e.IssueID, &e.Title, &e.Message, &e.Platform, &e.Tags, &e.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// OrganizationIDs lists the organizations the integration is actively linked to.
func (r *Repository) OrganizationIDs(ctx context.Context, integrationID int64) ([]int64, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT organization_id FROM organization_integrations
        WHERE integration_id=$1 AND status=$2 ORDER BY organization_id`, integrationID, domain.IntegrationStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *Repository) IntegrationByExternalID(ctx context.Context, provider, externalID string) (*domain.Integration, error) {
	var in domain.Integration
	err := r.db.Pool.QueryRow(ctx, `SELECT id, provider, external_id, name, access_token
        FROM integrations WHERE provider=$1 AND external_id=$2`, provider, externalID).
		Scan(&in.ID, &in.Provider, &in.ExternalID, &in.Name, &in.AccessToken)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &in, nil
}

// Produce stores a regression occurrence: the issue is upserted by fingerprint
// and the event is attached to it, in one transaction.
func (r *Repository) Produce(ctx context.Context, occ regression.Occurrence, ev regression.EventData) error {
	if len(occ.Fingerprint) == 0 {
		return errors.New("occurrence without fingerprint")
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const upsert = `
        INSERT INTO issues(project_id, title, subtitle, culprit, level, status, type, fingerprint,
            times_seen, first_seen, last_seen, evidence)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,1,$9,$9,$10)
        ON CONFLICT(project_id, fingerprint) DO UPDATE SET
            title=EXCLUDED.title,
            subtitle=EXCLUDED.subtitle,
            culprit=EXCLUDED.culprit,
            level=EXCLUDED.level,
            evidence=EXCLUDED.evidence,
            times_seen=issues.times_seen+1,
            last_seen=GREATEST(issues.last_seen, EXCLUDED.last_seen)
        RETURNING id`
	var issueID int64
	if err := tx.QueryRow(ctx, upsert, occ.ProjectID, occ.IssueTitle, occ.Subtitle, occ.Culprit, occ.Level,
		domain.IssueStatusUnresolved, occ.Type, occ.Fingerprint[0], occ.DetectionTime, occ.EvidenceDisplay).Scan(&issueID); err != nil {
		return fmt.Errorf("upsert issue: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE issues i SET short_id = upper(p.slug) || '-' || i.id
        FROM projects p WHERE i.id=$1 AND p.id=i.project_id AND i.short_id=''`, issueID); err != nil {
		return fmt.Errorf("assign short id: %w", err)
	}
	const insertEvent = `
        INSERT INTO events(event_id, project_id, issue_id, title, message, platform, tags, timestamp)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (project_id, event_id) DO NOTHING`
	if _, err := tx.Exec(ctx, insertEvent, ev.EventID, ev.ProjectID, issueID, occ.IssueTitle, occ.Subtitle,
		ev.Platform, ev.Tags, ev.Timestamp); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return tx.Commit(ctx)
}

// PurgeEventsBeforeLocked deletes events older than cutoff while holding the
// transaction-scoped advisory lock key. locked is false when another session
// holds key; nothing is deleted then. The lock is released on commit or rollback.
func (r *Repository) PurgeEventsBeforeLocked(ctx context.Context, key int64, cutoff time.Time) (n int64, locked bool, err error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return 0, false, err
	}
	defer func() {
		if rerr := tx.Rollback(ctx); rerr != nil && !errors.Is(rerr, pgx.ErrTxClosed) {
			r.log.Warn().Err(rerr).Int64("lock", key).Msg("retention rollback failed")
		}
	}()

	if err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock($1)`, key).Scan(&locked); err != nil {
		return 0, false, fmt.Errorf("advisory lock %d: %w", key, err)
	}
	if !locked {
		return 0, false, nil
	}
	tag, err := tx.Exec(ctx, `DELETE FROM events WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, true, fmt.Errorf("purge events: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, true, err
	}
	return tag.RowsAffected(), true, nil
}

// Seed upserts fixture rows with their explicit ids and moves the id sequences past them.
func (r *Repository) Seed(ctx context.Context, d fixtures.Data) error {
	batch := &pgx.Batch{}
	for _, o := range d.Organizations {
		batch.Queue(`INSERT INTO organizations(id, slug, name) VALUES($1,$2,$3)
            ON CONFLICT(id) DO UPDATE SET slug=EXCLUDED.slug, name=EXCLUDED.name`, o.ID, o.Slug, o.Name)
	}
	for _, p := range d.Projects {
		batch.Queue(`INSERT INTO projects(id, organization_id, slug, name, platform) VALUES($1,$2,$3,$4,$5)
            ON CONFLICT(id) DO UPDATE SET organization_id=EXCLUDED.organization_id, slug=EXCLUDED.slug,
            name=EXCLUDED.name, platform=EXCLUDED.platform`, p.ID, p.OrganizationID, p.Slug, p.Name, p.Platform)
	}
	for _, i := range d.Issues {
		first, last := i.FirstSeen, i.LastSeen
		if first.IsZero() {
			first = time.Now().UTC()
		}
		if last.IsZero() {
			last = first
		}
		var fp any
		if i.Fingerprint != "" {
			fp = i.Fingerprint
		}
		batch.Queue(`INSERT INTO issues(id, project_id, short_id, title, subtitle, culprit, level, status, type,
                fingerprint, times_seen, first_seen, last_seen, evidence)
            VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
            ON CONFLICT(id) DO UPDATE SET project_id=EXCLUDED.project_id, short_id=EXCLUDED.short_id,
                title=EXCLUDED.title, subtitle=EXCLUDED.subtitle, culprit=EXCLUDED.culprit, level=EXCLUDED.level,
                status=EXCLUDED.status, type=EXCLUDED.type, fingerprint=EXCLUDED.fingerprint,
                times_seen=EXCLUDED.times_seen, first_seen=EXCLUDED.first_seen, last_seen=EXCLUDED.last_seen,
                evidence=EXCLUDED.evidence`,
			i.ID, i.ProjectID, i.ShortID, i.Title, i.Subtitle, i.Culprit, i.Level, i.Status, i.Type,
			fp, max(i.TimesSeen, 1), first, last, i.Evidence)
	}
	for _, e := range d.Events {
		ts := e.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		batch.Queue(`INSERT INTO events(event_id, project_id, issue_id, title, message, platform, tags, timestamp)
            VALUES($1,$2,$3,$4,$5,$6,$7,$8)
            ON CONFLICT(project_id, event_id) DO UPDATE SET issue_id=EXCLUDED.issue_id, title=EXCLUDED.title,
                message=EXCLUDED.message, platform=EXCLUDED.platform, tags=EXCLUDED.tags, timestamp=EXCLUDED.timestamp`,
			e.EventID, e.ProjectID, e.IssueID, e.Title, e.Message, e.Platform, e.Tags, ts)
	}
	for _, in := range d.Integrations {
		batch.Queue(`INSERT INTO integrations(id, provider, external_id, name, access_token) VALUES($1,$2,$3,$4,$5)
            ON CONFLICT(id) DO UPDATE SET provider=EXCLUDED.provider, external_id=EXCLUDED.external_id,
                name=EXCLUDED.name, access_token=EXCLUDED.access_token`,
			in.ID, in.Provider, in.ExternalID, in.Name, in.AccessToken)
	}
	for _, l := range d.Links {
		batch.Queue(`INSERT INTO organization_integrations(organization_id, integration_id, status) VALUES($1,$2,$3)
            ON CONFLICT(organization_id, integration_id) DO UPDATE SET status=EXCLUDED.status`,
			l.OrganizationID, l.IntegrationID, l.Status)
	}
	for _, table := range []string{"organizations", "projects", "issues", "integrations"} {
		batch.Queue(fmt.Sprintf(`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'),
            GREATEST((SELECT COALESCE(MAX(id), 0) FROM %[1]s), 1))`, table))
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("seed statement %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
