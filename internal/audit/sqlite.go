package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// SQLiteConfig configures the SQLite audit store.
type SQLiteConfig struct {
	DataDir       string // Directory for sentinel.db
	RetentionDays int    // Days to keep records (0 = forever)
	Now           func() time.Time
}

// SQLiteStore implements Logger on a local SQLite database.
type SQLiteStore struct {
	mu            sync.RWMutex
	db            *sql.DB
	dbPath        string
	retentionDays int
	now           func() time.Time
	stopChan      chan struct{}
	wg            sync.WaitGroup
	closeOnce     sync.Once
}

// NewSQLiteStore opens (creating if needed) the audit database below cfg.DataDir.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "sentinel.db")
	dsn := dbPath + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
			"foreign_keys(ON)",
		},
	}.Encode()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	// SQLite works best with a single writer connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	s := &SQLiteStore{
		db:            db,
		dbPath:        dbPath,
		retentionDays: cfg.RetentionDays,
		now:           now,
		stopChan:      make(chan struct{}),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if s.retentionDays > 0 {
		s.wg.Add(1)
		go s.retentionWorker()
	}

	log.Info().
		Str("dbPath", dbPath).
		Int("retentionDays", s.retentionDays).
		Msg("SQLite audit store initialized")
	return s, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS vulnerabilities (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		artifact TEXT NOT NULL,
		risk TEXT NOT NULL,
		confidence REAL NOT NULL,
		agent_votes TEXT NOT NULL,
		artifact_id TEXT,
		summary TEXT,
		status TEXT,
		overall_score INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_vuln_created ON vulnerabilities(created_at);
	CREATE INDEX IF NOT EXISTS idx_vuln_risk ON vulnerabilities(risk);

	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		vulnerability_id TEXT NOT NULL REFERENCES vulnerabilities(id) ON DELETE CASCADE,
		channel TEXT NOT NULL,
		sent_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_vuln ON alerts(vulnerability_id);

	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	_, err := s.db.Exec(`INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (1, ?)`, s.now().Unix())
	return err
}

// LogVulnerability implements Logger. Artifact and risk are stored upper-case.
func (s *SQLiteStore) LogVulnerability(ctx context.Context, v Vulnerability) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.ID == "" {
		v.ID = ulid.Make().String()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = s.now()
	}
	votes := v.AgentVotes
	if votes == nil {
		votes = map[string]string{}
	}
	encoded, err := json.Marshal(votes)
	if err != nil {
		return "", fmt.Errorf("failed to encode agent votes: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO vulnerabilities (id, created_at, artifact, risk, confidence, agent_votes, artifact_id, summary, status, overall_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID,
		v.CreatedAt.UnixNano(),
		strings.ToUpper(v.Artifact),
		strings.ToUpper(v.Risk),
		v.Confidence,
		string(encoded),
		v.ArtifactID,
		v.Summary,
		v.Status,
		v.OverallScore,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert vulnerability: %w", err)
	}

	log.Info().
		Str("audit_id", v.ID).
		Str("artifact", strings.ToUpper(v.Artifact)).
		Str("risk", strings.ToUpper(v.Risk)).
		Msg("Logged vulnerability")
	return v.ID, nil
}

// LogAlert implements Logger.
func (s *SQLiteStore) LogAlert(ctx context.Context, vulnerabilityID, channel string) (string, error) {
	if vulnerabilityID == "" {
		return "", fmt.Errorf("vulnerability id is required")
	}
	if channel == "" {
		channel = ChannelSlack
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := ulid.Make().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, vulnerability_id, channel, sent_at) VALUES (?, ?, ?, ?)`,
		id, vulnerabilityID, channel, s.now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("failed to insert alert: %w", err)
	}
	log.Info().Str("vulnerability_id", vulnerabilityID).Str("channel", channel).Msg("Logged alert")
	return id, nil
}

// Query implements Logger: newest first, optionally filtered by risk level.
func (s *SQLiteStore) Query(ctx context.Context, f Filter) ([]Vulnerability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, created_at, artifact, risk, confidence, agent_votes, artifact_id, summary, status, overall_score
		FROM vulnerabilities WHERE 1=1`
	args := []interface{}{}

	if f.Risk != "" {
		query += " AND risk = ?"
		args = append(args, strings.ToUpper(f.Risk))
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vulnerabilities: %w", err)
	}
	defer rows.Close()

	out := []Vulnerability{}
	for rows.Next() {
		var v Vulnerability
		var created int64
		var votes string
		var artifactID, summary, status sql.NullString
		var score sql.NullInt64

		if err := rows.Scan(&v.ID, &created, &v.Artifact, &v.Risk, &v.Confidence, &votes, &artifactID, &summary, &status, &score); err != nil {
			return nil, fmt.Errorf("failed to scan vulnerability: %w", err)
		}
		v.CreatedAt = time.Unix(0, created).UTC()
		v.ArtifactID = artifactID.String
		v.Summary = summary.String
		v.Status = status.String
		v.OverallScore = int(score.Int64)
		if err := json.Unmarshal([]byte(votes), &v.AgentVotes); err != nil {
			return nil, fmt.Errorf("failed to decode agent votes for %s: %w", v.ID, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Alerts lists the alerts raised for a vulnerability, oldest first.
func (s *SQLiteStore) Alerts(ctx context.Context, vulnerabilityID string) ([]Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, vulnerability_id, channel, sent_at FROM alerts WHERE vulnerability_id = ? ORDER BY sent_at, id`,
		vulnerabilityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		var a Alert
		var sent int64
		if err := rows.Scan(&a.ID, &a.VulnerabilityID, &a.Channel, &sent); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.SentAt = time.Unix(0, sent).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// Prune deletes vulnerabilities (and their alerts) created before cutoff.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM vulnerabilities WHERE created_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune vulnerabilities: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) retentionWorker() {
	defer s.wg.Done()

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	s.cleanup()
	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *SQLiteStore) cleanup() {
	cutoff := s.now().AddDate(0, 0, -s.retentionDays)
	deleted, err := s.Prune(context.Background(), cutoff)
	if err != nil {
		log.Error().Err(err).Msg("Failed to clean up old audit records")
		return
	}
	if deleted > 0 {
		log.Info().Int64("deleted", deleted).Int("retentionDays", s.retentionDays).Msg("Cleaned up old audit records")
	}
}

// Close stops the retention worker and closes the database.
func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
		if cerr := s.db.Close(); cerr != nil {
			err = fmt.Errorf("failed to close audit database: %w", cerr)
		}
	})
	return err
}
