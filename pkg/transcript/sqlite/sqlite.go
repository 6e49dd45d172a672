// Package sqlite provides a transcript store backed by SQLite via database/sql.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // register the SQLite driver as "sqlite3"

	"github.com/papercomputeco/patchbay/pkg/transcript"
)

const defaultSearchLimit = 20

// Store implements transcript.Store using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a SQLite-backed transcript store.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return s, nil
}

// migrate creates the necessary tables if they don't exist.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transcripts (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		created_at TEXT NOT NULL,
		request TEXT NOT NULL,
		response TEXT NOT NULL,
		usage TEXT NOT NULL,
		search_text TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_transcripts_conversation ON transcripts(conversation_id);
	CREATE INDEX IF NOT EXISTS idx_transcripts_created_at ON transcripts(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Save persists a record, overwriting any existing record with the same id.
func (s *Store) Save(ctx context.Context, rec *transcript.Record) error {
	if rec == nil {
		return errors.New("cannot save nil record")
	}
	if rec.ID == "" {
		return errors.New("cannot save record without id")
	}

	reqJSON, respJSON, usageJSON, err := marshalRecord(rec)
	if err != nil {
		return err
	}

	query := `INSERT OR REPLACE INTO transcripts
		(id, conversation_id, provider, model, created_at, request, response, usage, search_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		rec.ConversationID,
		rec.Provider,
		rec.Model,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		reqJSON,
		respJSON,
		usageJSON,
		rec.SearchText(),
	)
	if err != nil {
		return fmt.Errorf("inserting transcript: %w", err)
	}

	return nil
}

// Get retrieves a record by id.
func (s *Store) Get(ctx context.Context, id string) (*transcript.Record, error) {
	query := `SELECT id, conversation_id, provider, model, created_at, request, response, usage
		FROM transcripts WHERE id = ?`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, transcript.ErrNotFound
		}
		return nil, fmt.Errorf("querying transcript: %w", err)
	}

	return rec, nil
}

// List returns records in saved order, filtered by conversation id when one
// is given.
func (s *Store) List(ctx context.Context, conversationID string) ([]*transcript.Record, error) {
	query := `SELECT id, conversation_id, provider, model, created_at, request, response, usage
		FROM transcripts`
	args := []any{}

	if conversationID != "" {
		query += ` WHERE conversation_id = ?`
		args = append(args, conversationID)
	}

	query += ` ORDER BY rowid ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying transcripts: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// Search returns records whose text matches the query via LIKE, newest first.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]*transcript.Record, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	stmt := `SELECT id, conversation_id, provider, model, created_at, request, response, usage
		FROM transcripts
		WHERE search_text LIKE '%' || ? || '%'
		ORDER BY created_at DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, stmt, query, limit)
	if err != nil {
		return nil, fmt.Errorf("searching transcripts: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// scanner captures the Scan method shared by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func marshalRecord(rec *transcript.Record) (req, resp, usage []byte, err error) {
	req, err = json.Marshal(rec.Request)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling request: %w", err)
	}

	resp, err = json.Marshal(rec.Response)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling response: %w", err)
	}

	usage, err = json.Marshal(rec.Usage)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling usage: %w", err)
	}

	return req, resp, usage, nil
}

func scanRecord(row scanner) (*transcript.Record, error) {
	var (
		rec       transcript.Record
		createdAt string
		reqJSON   []byte
		respJSON  []byte
		usageJSON []byte
	)

	err := row.Scan(
		&rec.ID,
		&rec.ConversationID,
		&rec.Provider,
		&rec.Model,
		&createdAt,
		&reqJSON,
		&respJSON,
		&usageJSON,
	)
	if err != nil {
		return nil, err
	}

	rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	if err := json.Unmarshal(reqJSON, &rec.Request); err != nil {
		return nil, fmt.Errorf("unmarshaling request: %w", err)
	}
	if err := json.Unmarshal(respJSON, &rec.Response); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}
	if err := json.Unmarshal(usageJSON, &rec.Usage); err != nil {
		return nil, fmt.Errorf("unmarshaling usage: %w", err)
	}

	return &rec, nil
}

func collectRecords(rows *sql.Rows) ([]*transcript.Record, error) {
	var records []*transcript.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transcript: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transcripts: %w", err)
	}

	return records, nil
}
