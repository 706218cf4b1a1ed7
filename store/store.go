// Package store persists enriched article records to SQLite, the pipeline's
// durable relational sink.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pevans/newsharvest"
)

// Store manages the articles table. Upserts are keyed on redirect_url;
// a conflict overwrites every non-key column.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed initializes) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the articles table if it doesn't exist.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		redirect_url TEXT PRIMARY KEY,
		url          TEXT NOT NULL,
		title        TEXT NOT NULL,
		date         TEXT,
		source       TEXT,
		source_type  TEXT,
		currencies   TEXT,
		votes        TEXT,
		sentiment    TEXT,
		confidence   INTEGER,
		content      TEXT,
		final_url    TEXT
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert writes a batch of records in one transaction. Records without a
// redirect path have no key and are skipped.
func (s *Store) Upsert(ctx context.Context, records []newsharvest.ArticleRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT OR REPLACE INTO articles (
			redirect_url, url, title, date, source, source_type,
			currencies, votes, sentiment, confidence, content, final_url
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if rec.RedirectURL == "" {
			continue
		}

		currencies, err := json.Marshal(rec.Currencies)
		if err != nil {
			return fmt.Errorf("failed to marshal currencies: %w", err)
		}
		votes, err := json.Marshal(rec.Votes)
		if err != nil {
			return fmt.Errorf("failed to marshal votes: %w", err)
		}

		var content, finalURL any
		if rec.Content != nil {
			content = *rec.Content
		}
		if rec.FinalURL != nil {
			finalURL = *rec.FinalURL
		}

		if _, err := stmt.ExecContext(ctx,
			rec.RedirectURL,
			rec.URL,
			rec.Title,
			rec.Date,
			rec.Source,
			string(rec.SourceType),
			string(currencies),
			string(votes),
			rec.Sentiment,
			rec.Confidence,
			content,
			finalURL,
		); err != nil {
			return fmt.Errorf("failed to upsert record %s: %w", rec.RedirectURL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert batch: %w", err)
	}
	return nil
}

// Get reads one record back by its redirect path. Returns nil when absent.
func (s *Store) Get(ctx context.Context, redirectURL string) (*newsharvest.ArticleRecord, error) {
	query := `
		SELECT redirect_url, url, title, date, source, source_type,
		       currencies, votes, sentiment, confidence, content, final_url
		FROM articles
		WHERE redirect_url = ?
	`

	var rec newsharvest.ArticleRecord
	var sourceType, currencies, votes string
	var content, finalURL sql.NullString

	err := s.db.QueryRowContext(ctx, query, redirectURL).Scan(
		&rec.RedirectURL, &rec.URL, &rec.Title, &rec.Date, &rec.Source,
		&sourceType, &currencies, &votes, &rec.Sentiment, &rec.Confidence,
		&content, &finalURL,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query record: %w", err)
	}

	rec.SourceType = newsharvest.SourceType(sourceType)
	if err := json.Unmarshal([]byte(currencies), &rec.Currencies); err != nil {
		return nil, fmt.Errorf("failed to unmarshal currencies: %w", err)
	}
	if err := json.Unmarshal([]byte(votes), &rec.Votes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal votes: %w", err)
	}
	if content.Valid {
		rec.Content = &content.String
	}
	if finalURL.Valid {
		rec.FinalURL = &finalURL.String
	}

	return &rec, nil
}
