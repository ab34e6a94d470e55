package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var _ SourceRepository = (*SQLSourceRepository)(nil)

type SQLSourceRepository struct {
	db *DB
}

func NewSourceRepository(db *DB) *SQLSourceRepository {
	return &SQLSourceRepository{db: db}
}

func (r *SQLSourceRepository) UpsertSource(ctx context.Context, name, url, kind string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sources (name, url, kind)
		VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			url = excluded.url,
			kind = excluded.kind,
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
	`, name, url, kind)
	if err != nil {
		return fmt.Errorf("failed to upsert source: %w", err)
	}
	return nil
}

func (r *SQLSourceRepository) UpdateSourceMetadata(ctx context.Context, name string, metadata SourceMetadata, nextFetch time.Time) error {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE sources
		SET title = ?, link = ?, description = ?, image_url = ?, language = ?,
			last_fetched_at = ?, next_fetch_at = ?, updated_at = ?
		WHERE name = ?
	`, metadata.Title, metadata.Link, metadata.Description, metadata.ImageURL, metadata.Language,
		formatTime(now), formatTime(nextFetch.UTC()), formatTime(now), name)
	if err != nil {
		return fmt.Errorf("failed to update source metadata: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("source %s: %w", name, ErrNotFound)
	}
	return nil
}

// GetSource returns nil without an error when the source is unknown.
func (r *SQLSourceRepository) GetSource(ctx context.Context, name string) (*Source, error) {
	var (
		source                 Source
		lastFetched, nextFetch sql.NullString
		createdAt, updatedAt   string
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT name, url, kind, title, link, description, image_url, language,
			last_fetched_at, next_fetch_at, created_at, updated_at
		FROM sources
		WHERE name = ?
	`, name).Scan(&source.Name, &source.URL, &source.Kind, &source.Title, &source.Link,
		&source.Description, &source.ImageURL, &source.Language,
		&lastFetched, &nextFetch, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}

	source.LastFetchedAt = parseNullTime(lastFetched)
	source.NextFetchAt = parseNullTime(nextFetch)
	source.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	source.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &source, nil
}

func (r *SQLSourceRepository) GetSourceCount(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count sources: %w", err)
	}
	return count, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseNullTime(value sql.NullString) *time.Time {
	if !value.Valid || value.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value.String)
	if err != nil {
		return nil
	}
	return &t
}
