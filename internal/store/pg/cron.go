package pg

import (
	"database/sql"
	"encoding/json"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/clawdbot/clawdbot/internal/cron"
)

// CronStore is a Postgres-backed alternative to cron.Store. Nothing in the
// gateway constructs it: the gateway always uses cron.Store.
type CronStore struct {
	db *sqlx.DB
	mu sync.Mutex
}

// NewCronStore wraps an already-migrated Postgres connection.
func NewCronStore(db *sqlx.DB) *CronStore {
	return &CronStore{db: db}
}

func (s *CronStore) Get(id string) (*cron.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var raw []byte
	if err := s.db.Get(&raw, `SELECT data FROM cron_jobs WHERE id = $1`, id); err != nil {
		return nil, false
	}
	var job cron.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, false
	}
	return &job, true
}

func (s *CronStore) List(includeDisabled bool) []cron.Job {
	rows, err := s.db.Queryx(`SELECT data FROM cron_jobs`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []cron.Job
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			continue
		}
		var job cron.Job
		if err := json.Unmarshal(raw, &job); err != nil {
			continue
		}
		if !includeDisabled && !job.Enabled {
			continue
		}
		out = append(out, job)
	}
	return out
}

func (s *CronStore) Put(job cron.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO cron_jobs (id, data, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		job.ID, data)
	return err
}

func (s *CronStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM cron_jobs WHERE id = $1`, id)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	return nil
}
