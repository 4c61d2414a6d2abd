package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/watchdogsentinel/sentinel/internal/model"
)

// PostgresStore implements Store backed by PostgreSQL, following the table
// layout in spec.md §6.6.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL using the supplied connection string.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases database resources.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

func (p *PostgresStore) GetProject(ctx context.Context, id string) (model.Project, error) {
	const query = `SELECT id, token, display_name, maintenance_until, created_at FROM projects WHERE id = $1;`
	row := p.pool.QueryRow(ctx, query, id)
	var proj model.Project
	if err := row.Scan(&proj.ID, &proj.Token, &proj.DisplayName, &proj.MaintenanceUntil, &proj.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Project{}, model.ErrNotFound
		}
		return model.Project{}, err
	}
	return proj, nil
}

func (p *PostgresStore) FindProjectByToken(ctx context.Context, token string) (model.Project, error) {
	const query = `SELECT id, token, display_name, maintenance_until, created_at FROM projects WHERE token = $1;`
	row := p.pool.QueryRow(ctx, query, token)
	var proj model.Project
	if err := row.Scan(&proj.ID, &proj.Token, &proj.DisplayName, &proj.MaintenanceUntil, &proj.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Project{}, model.ErrNotFound
		}
		return model.Project{}, err
	}
	return proj, nil
}

func (p *PostgresStore) ListProjects(ctx context.Context) ([]model.Project, error) {
	const query = `SELECT id, token, display_name, maintenance_until, created_at FROM projects ORDER BY id;`
	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Project
	for rows.Next() {
		var proj model.Project
		if err := rows.Scan(&proj.ID, &proj.Token, &proj.DisplayName, &proj.MaintenanceUntil, &proj.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, proj)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpsertProject(ctx context.Context, proj model.Project) error {
	const upsert = `
INSERT INTO projects (id, token, display_name, maintenance_until, created_at)
VALUES ($1, $2, $3, 0, EXTRACT(EPOCH FROM NOW())::bigint)
ON CONFLICT (id) DO UPDATE SET
    token = EXCLUDED.token,
    display_name = EXCLUDED.display_name;
`
	_, err := p.pool.Exec(ctx, upsert, proj.ID, proj.Token, proj.DisplayName)
	return err
}

func (p *PostgresStore) SetMaintenance(ctx context.Context, projectID string, until int64) error {
	const update = `UPDATE projects SET maintenance_until = $2 WHERE id = $1;`
	tag, err := p.pool.Exec(ctx, update, projectID, until)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (p *PostgresStore) GetCheck(ctx context.Context, checkID string) (model.Check, error) {
	projectID, name, err := model.SplitCheckKey(checkID)
	if err != nil {
		return model.Check{}, err
	}
	const query = `
SELECT project_id, name, display_name, type, interval, grace, threshold, cooldown, monitor,
       status, last_seen, failure_count, last_alert_at, last_message, version
  FROM checks WHERE project_id = $1 AND name = $2;
`
	row := p.pool.QueryRow(ctx, query, projectID, name)
	var c model.Check
	var displayName, lastMessage string
	if err := row.Scan(&c.ProjectID, &c.Name, &displayName, &c.Type, &c.Interval, &c.Grace,
		&c.Threshold, &c.Cooldown, &c.Monitor, &c.Status, &c.LastSeen, &c.FailureCount,
		&c.LastAlertAt, &lastMessage, &c.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Check{}, model.ErrNotFound
		}
		return model.Check{}, err
	}
	c.DisplayName = displayName
	c.LastMessage = lastMessage
	return c, nil
}

func (p *PostgresStore) UpsertCheckRule(ctx context.Context, c model.Check) error {
	const upsert = `
INSERT INTO checks (
    project_id, name, display_name, type, interval, grace, threshold, cooldown, monitor,
    status, last_seen, failure_count, last_alert_at, last_message, version
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,'ok',0,0,0,'',0)
ON CONFLICT (project_id, name) DO UPDATE SET
    display_name = EXCLUDED.display_name,
    type = EXCLUDED.type,
    interval = EXCLUDED.interval,
    grace = EXCLUDED.grace,
    threshold = EXCLUDED.threshold,
    cooldown = EXCLUDED.cooldown,
    monitor = EXCLUDED.monitor;
`
	_, err := p.pool.Exec(ctx, upsert, c.ProjectID, c.Name, c.DisplayName, c.Type, c.Interval,
		c.Grace, c.Threshold, c.Cooldown, c.Monitor)
	return err
}

func (p *PostgresStore) UpdateCheckState(ctx context.Context, c model.Check, expectedVersion int64) error {
	const update = `
UPDATE checks SET
    status = $3, last_seen = $4, failure_count = $5, last_alert_at = $6,
    last_message = $7, version = version + 1
WHERE project_id = $1 AND name = $2 AND version = $8;
`
	tag, err := p.pool.Exec(ctx, update, c.ProjectID, c.Name, c.Status, c.LastSeen,
		c.FailureCount, c.LastAlertAt, c.LastMessage, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either the row doesn't exist, or another writer already advanced
		// its version; the caller (ingest/sweeper) can't tell which from
		// here and treats both as a retryable conflict per spec.md §5/§9.
		return model.ErrConflict
	}
	return nil
}

func (p *PostgresStore) ListChecksByProject(ctx context.Context, projectID string) ([]model.Check, error) {
	const query = `
SELECT project_id, name, display_name, type, interval, grace, threshold, cooldown, monitor,
       status, last_seen, failure_count, last_alert_at, last_message, version
  FROM checks WHERE project_id = $1 ORDER BY name;
`
	rows, err := p.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChecks(rows)
}

func (p *PostgresStore) ListOverdueHeartbeats(ctx context.Context, now int64) ([]model.Check, error) {
	const query = `
SELECT project_id, name, display_name, type, interval, grace, threshold, cooldown, monitor,
       status, last_seen, failure_count, last_alert_at, last_message, version
  FROM checks
 WHERE monitor = true AND type = 'heartbeat' AND status <> 'dead'
   AND NOT (project_id = 'watch-dog' AND name = 'self-health')
   AND last_seen + interval + grace < $1
 ORDER BY project_id, name;
`
	rows, err := p.pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChecks(rows)
}

func scanChecks(rows pgx.Rows) ([]model.Check, error) {
	var out []model.Check
	for rows.Next() {
		var c model.Check
		var displayName, lastMessage string
		if err := rows.Scan(&c.ProjectID, &c.Name, &displayName, &c.Type, &c.Interval, &c.Grace,
			&c.Threshold, &c.Cooldown, &c.Monitor, &c.Status, &c.LastSeen, &c.FailureCount,
			&c.LastAlertAt, &lastMessage, &c.Version); err != nil {
			return nil, err
		}
		c.DisplayName = displayName
		c.LastMessage = lastMessage
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *PostgresStore) AppendLog(ctx context.Context, l model.LogEntry) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	const insert = `INSERT INTO logs (id, check_id, status, latency, message, created_at) VALUES ($1,$2,$3,$4,$5,$6);`
	_, err := p.pool.Exec(ctx, insert, l.ID, l.CheckID, l.Status, l.Latency, l.Message, l.CreatedAt)
	return err
}

func (p *PostgresStore) PruneLogs(ctx context.Context, olderThan int64) (int64, error) {
	const del = `DELETE FROM logs WHERE created_at < $1;`
	tag, err := p.pool.Exec(ctx, del, olderThan)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p *PostgresStore) GetSettings(ctx context.Context) (model.Settings, error) {
	const query = `
SELECT api_token, channel_critical, channel_success, channel_warning, channel_info,
       silence_period_seconds, updated_at
  FROM settings WHERE key = 'default';
`
	row := p.pool.QueryRow(ctx, query)
	var s model.Settings
	if err := row.Scan(&s.APIToken, &s.ChannelCritical, &s.ChannelSuccess, &s.ChannelWarning,
		&s.ChannelInfo, &s.SilencePeriodSeconds, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.DefaultSettings(), nil
		}
		return model.Settings{}, err
	}
	return s, nil
}

func (p *PostgresStore) UpdateSettings(ctx context.Context, s model.Settings) error {
	const upsert = `
INSERT INTO settings (key, api_token, channel_critical, channel_success, channel_warning,
    channel_info, silence_period_seconds, updated_at)
VALUES ('default', $1, $2, $3, $4, $5, $6, EXTRACT(EPOCH FROM NOW())::bigint)
ON CONFLICT (key) DO UPDATE SET
    api_token = EXCLUDED.api_token,
    channel_critical = EXCLUDED.channel_critical,
    channel_success = EXCLUDED.channel_success,
    channel_warning = EXCLUDED.channel_warning,
    channel_info = EXCLUDED.channel_info,
    silence_period_seconds = EXCLUDED.silence_period_seconds,
    updated_at = EXTRACT(EPOCH FROM NOW())::bigint;
`
	_, err := p.pool.Exec(ctx, upsert, s.APIToken, s.ChannelCritical, s.ChannelSuccess,
		s.ChannelWarning, s.ChannelInfo, s.SilencePeriodSeconds)
	return err
}
