package brokerstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	_ "modernc.org/sqlite"
)

// SQL is a Store backed by SQLite.
type SQL struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the broker database at path.
func OpenSQLite(path string) (*SQL, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", path)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)
	return NewSQL(db)
}

func NewSQL(db *sql.DB) (*SQL, error) {
	s := &SQL{db: db}
	if err := s.migrate(); err != nil {
		return nil, errors.Wrap(err, "unable to migrate broker store")
	}
	return s, nil
}

func (s *SQL) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS pacts (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		consumer TEXT NOT NULL,
		provider TEXT NOT NULL,
		consumer_version TEXT NOT NULL,
		pact_version TEXT NOT NULL,
		content TEXT NOT NULL,
		published_at TEXT NOT NULL,
		UNIQUE (consumer, provider, consumer_version)
	);
	CREATE TABLE IF NOT EXISTS version_tags (
		pacticipant TEXT NOT NULL,
		version TEXT NOT NULL,
		tag TEXT NOT NULL,
		PRIMARY KEY (pacticipant, version, tag)
	);
	CREATE TABLE IF NOT EXISTS verifications (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		consumer TEXT NOT NULL,
		provider TEXT NOT NULL,
		pact_version TEXT NOT NULL,
		provider_version TEXT NOT NULL,
		success INTEGER NOT NULL,
		result TEXT,
		verified_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS deployments (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		pacticipant TEXT NOT NULL,
		version TEXT NOT NULL,
		environment TEXT NOT NULL,
		deployed_at TEXT NOT NULL
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

const pactColumns = `seq, consumer, provider, consumer_version, pact_version, content, published_at`

func (s *SQL) PublishPact(ctx context.Context, p Pact) (Pact, bool, error) {
	p, err := preparePact(p)
	if err != nil {
		return Pact{}, false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Pact{}, false, err
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := scanPact(tx.QueryRowContext(ctx,
		`SELECT `+pactColumns+` FROM pacts WHERE consumer = ? AND provider = ? AND consumer_version = ?`,
		p.Consumer, p.Provider, p.ConsumerVersion))
	switch {
	case err == nil:
		if existing.PactVersion != p.PactVersion {
			return Pact{}, false, ErrConflict
		}
		if err := tagVersion(ctx, tx, p.Consumer, p.ConsumerVersion, p.Tags); err != nil {
			return Pact{}, false, err
		}
		return existing, false, tx.Commit()
	case err != sql.ErrNoRows:
		return Pact{}, false, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO pacts (consumer, provider, consumer_version, pact_version, content, published_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.Consumer, p.Provider, p.ConsumerVersion, p.PactVersion, string(p.Content), formatTime(p.PublishedAt))
	if err != nil {
		return Pact{}, false, errors.Wrap(err, "failed to insert pact")
	}
	if p.seq, err = res.LastInsertId(); err != nil {
		return Pact{}, false, err
	}
	if err := tagVersion(ctx, tx, p.Consumer, p.ConsumerVersion, p.Tags); err != nil {
		return Pact{}, false, err
	}
	return p, true, tx.Commit()
}

func tagVersion(ctx context.Context, tx *sql.Tx, pacticipant, version string, tags []string) error {
	for _, tag := range tags {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO version_tags (pacticipant, version, tag) VALUES (?, ?, ?)`,
			pacticipant, version, tag)
		if err != nil {
			return errors.Wrap(err, "failed to tag version")
		}
	}
	return nil
}

func (s *SQL) LatestPacts(ctx context.Context, provider, tag string) ([]Pact, error) {
	query := `SELECT ` + pactColumns + ` FROM pacts WHERE provider = ?`
	args := []interface{}{provider}
	if tag != "" {
		query += ` AND EXISTS (SELECT 1 FROM version_tags t
			WHERE t.pacticipant = pacts.consumer AND t.version = pacts.consumer_version AND t.tag = ?)`
		args = append(args, tag)
	}
	pacts, err := s.queryPacts(ctx, query+` ORDER BY seq`, args...)
	if err != nil {
		return nil, err
	}
	return latestPerConsumer(pacts), nil
}

func (s *SQL) PactByVersion(ctx context.Context, provider, consumer, pactVersion string) (Pact, error) {
	p, err := scanPact(s.db.QueryRowContext(ctx,
		`SELECT `+pactColumns+` FROM pacts WHERE provider = ? AND consumer = ? AND pact_version = ? ORDER BY seq DESC LIMIT 1`,
		provider, consumer, pactVersion))
	if err == sql.ErrNoRows {
		return Pact{}, ErrNotFound
	}
	return p, err
}

func (s *SQL) RecordVerification(ctx context.Context, v Verification) (Verification, error) {
	if _, err := s.PactByVersion(ctx, v.Provider, v.Consumer, v.PactVersion); err != nil {
		return Verification{}, err
	}
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.VerifiedAt.IsZero() {
		v.VerifiedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO verifications (id, consumer, provider, pact_version, provider_version, success, result, verified_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.Consumer, v.Provider, v.PactVersion, v.ProviderVersion, v.Success, nullString(v.Result), formatTime(v.VerifiedAt))
	if err != nil {
		return Verification{}, errors.Wrap(err, "failed to insert verification")
	}
	return v, nil
}

func (s *SQL) RecordDeployment(ctx context.Context, d Deployment) error {
	if d.DeployedAt.IsZero() {
		d.DeployedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deployments (pacticipant, version, environment, deployed_at) VALUES (?, ?, ?, ?)`,
		d.Pacticipant, d.Version, d.Environment, formatTime(d.DeployedAt))
	if err != nil {
		return errors.Wrap(err, "failed to insert deployment")
	}
	return nil
}

func (s *SQL) CanIDeploy(ctx context.Context, pacticipant, version, environment string) (*CanIDeployResult, error) {
	return canIDeploy(ctx, s, pacticipant, version, environment)
}

func (s *SQL) Close() error {
	return s.db.Close()
}

func (s *SQL) pactsOfConsumerVersion(ctx context.Context, consumer, version string) ([]Pact, error) {
	return s.queryPacts(ctx,
		`SELECT `+pactColumns+` FROM pacts WHERE consumer = ? AND consumer_version = ? ORDER BY seq`,
		consumer, version)
}

func (s *SQL) pactOf(ctx context.Context, consumer, consumerVersion, provider string) (Pact, bool, error) {
	p, err := scanPact(s.db.QueryRowContext(ctx,
		`SELECT `+pactColumns+` FROM pacts WHERE consumer = ? AND consumer_version = ? AND provider = ?`,
		consumer, consumerVersion, provider))
	if err == sql.ErrNoRows {
		return Pact{}, false, nil
	}
	if err != nil {
		return Pact{}, false, err
	}
	return p, true, nil
}

func (s *SQL) consumersOf(ctx context.Context, provider string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT consumer FROM pacts WHERE provider = ? GROUP BY consumer ORDER BY MIN(seq)`, provider)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var consumers []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		consumers = append(consumers, c)
	}
	return consumers, rows.Err()
}

func (s *SQL) deployedVersion(ctx context.Context, pacticipant, environment string) (string, bool, error) {
	var version string
	err := s.db.QueryRowContext(ctx,
		`SELECT version FROM deployments WHERE pacticipant = ? AND environment = ? ORDER BY seq DESC LIMIT 1`,
		pacticipant, environment).Scan(&version)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return version, true, nil
}

func (s *SQL) verified(ctx context.Context, pactVersion, provider, providerVersion string) (bool, bool, error) {
	var success bool
	err := s.db.QueryRowContext(ctx,
		`SELECT success FROM verifications WHERE pact_version = ? AND provider = ? AND provider_version = ? ORDER BY seq DESC LIMIT 1`,
		pactVersion, provider, providerVersion).Scan(&success)
	if err == sql.ErrNoRows {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return true, success, nil
}

func (s *SQL) knownVersion(ctx context.Context, pacticipant, version string) (bool, error) {
	var known bool
	err := s.db.QueryRowContext(ctx, `SELECT
		EXISTS (SELECT 1 FROM pacts WHERE consumer = ? AND consumer_version = ?)
		OR EXISTS (SELECT 1 FROM verifications WHERE provider = ? AND provider_version = ?)
		OR EXISTS (SELECT 1 FROM deployments WHERE pacticipant = ? AND version = ?)`,
		pacticipant, version, pacticipant, version, pacticipant, version).Scan(&known)
	if err != nil {
		return false, errors.Wrap(err, "failed to look up version")
	}
	return known, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPact(row rowScanner) (Pact, error) {
	var (
		p           Pact
		content     string
		publishedAt string
	)
	if err := row.Scan(&p.seq, &p.Consumer, &p.Provider, &p.ConsumerVersion, &p.PactVersion, &content, &publishedAt); err != nil {
		return Pact{}, err
	}
	p.Content = []byte(content)
	p.PublishedAt = parseTime(publishedAt)
	return p, nil
}

func (s *SQL) queryPacts(ctx context.Context, query string, args ...interface{}) ([]Pact, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var pacts []Pact
	for rows.Next() {
		p, err := scanPact(rows)
		if err != nil {
			return nil, err
		}
		pacts = append(pacts, p)
	}
	return pacts, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: strings.TrimSpace(string(b)), Valid: true}
}
