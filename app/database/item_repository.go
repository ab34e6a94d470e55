package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/lysyi3m/event-feed/app/feed"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	sortLayout = "2006-01-02T15:04:05Z"
)

var _ ItemRepository = (*SQLItemRepository)(nil)

type SQLItemRepository struct {
	db *DB
}

func NewItemRepository(db *DB) *SQLItemRepository {
	return &SQLItemRepository{db: db}
}

const itemColumns = `
	i.id, i.kind, i.sort_timestamp, i.title, i.cover_image, i.location, i.description,
	i.author_id, i.author_name, i.distance, i.starts_at, i.ends_at, i.venue,
	i.media_urls, i.comment_count,
	(SELECT COUNT(*) FROM engagements e WHERE e.item_id = i.id AND e.metric = 'like'),
	EXISTS (SELECT 1 FROM engagements e WHERE e.item_id = i.id AND e.metric = 'like' AND e.user_id = ?),
	EXISTS (SELECT 1 FROM engagements e WHERE e.item_id = i.id AND e.metric = 'save' AND e.user_id = ?)`

// GetPage returns items newest first, keyset paginated on
// (sort_timestamp, id). An empty cursor starts from the top.
func (r *SQLItemRepository) GetPage(ctx context.Context, cursor feed.Cursor, limit int, userID string) (feed.Page, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	query := `SELECT ` + itemColumns + ` FROM items i`
	args := []any{userID, userID}

	if cursor != "" {
		position, err := decodeCursor(cursor)
		if err != nil {
			return feed.Page{}, err
		}
		query += ` WHERE (i.sort_timestamp < ? OR (i.sort_timestamp = ? AND i.id < ?))`
		args = append(args, position.SortTimestamp, position.SortTimestamp, position.ID)
	}

	query += ` ORDER BY i.sort_timestamp DESC, i.id DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return feed.Page{}, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	items := make([]feed.Item, 0, limit+1)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return feed.Page{}, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return feed.Page{}, fmt.Errorf("failed to iterate items: %w", err)
	}

	page := feed.Page{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		page.HasMore = true
		last := page.Items[limit-1]
		next, err := encodeCursor(keyset{SortTimestamp: last.SortTimestamp, ID: last.ID})
		if err != nil {
			return feed.Page{}, err
		}
		page.NextCursor = next
	}

	return page, nil
}

func (r *SQLItemRepository) GetItem(ctx context.Context, id, userID string) (*feed.Item, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items i WHERE i.id = ?`, userID, userID, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *SQLItemRepository) GetItemStats(ctx context.Context) (ItemStats, error) {
	var stats ItemStats
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN kind = 'event' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = 'post' THEN 1 ELSE 0 END), 0)
		FROM items
	`).Scan(&stats.Total, &stats.Events, &stats.Posts)
	if err != nil {
		return stats, fmt.Errorf("failed to get item stats: %w", err)
	}
	return stats, nil
}

// UpsertItem stores an organic item. sourceName may be empty for items that
// were not imported from a syndicated source.
func (r *SQLItemRepository) UpsertItem(ctx context.Context, sourceName string, item feed.Item, contentHash string) error {
	if item.ID == "" {
		return fmt.Errorf("item id is required")
	}
	if item.Kind != feed.KindEvent && item.Kind != feed.KindPost {
		return fmt.Errorf("invalid item kind: %q", item.Kind)
	}

	sortTimestamp, err := normalizeTimestamp(item.SortTimestamp)
	if err != nil {
		return fmt.Errorf("item %s: %w", item.ID, err)
	}

	var startsAt, endsAt, venue string
	if item.Event != nil {
		startsAt, endsAt, venue = item.Event.StartsAt, item.Event.EndsAt, item.Event.Venue
	}

	mediaURLs := []string{}
	commentCount := 0
	if item.Post != nil {
		if item.Post.MediaURLs != nil {
			mediaURLs = item.Post.MediaURLs
		}
		commentCount = item.Post.Metrics.Comments
	}
	media, err := json.Marshal(mediaURLs)
	if err != nil {
		return fmt.Errorf("failed to encode media urls: %w", err)
	}

	var source sql.NullString
	if sourceName != "" {
		source = sql.NullString{String: sourceName, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO items (
			id, source_name, kind, sort_timestamp, title, cover_image, location, description,
			author_id, author_name, distance, starts_at, ends_at, venue, media_urls,
			comment_count, content_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			kind = excluded.kind,
			sort_timestamp = excluded.sort_timestamp,
			title = excluded.title,
			cover_image = excluded.cover_image,
			location = excluded.location,
			description = excluded.description,
			author_id = excluded.author_id,
			author_name = excluded.author_name,
			distance = excluded.distance,
			starts_at = excluded.starts_at,
			ends_at = excluded.ends_at,
			venue = excluded.venue,
			media_urls = excluded.media_urls,
			content_hash = excluded.content_hash
	`, item.ID, source, string(item.Kind), sortTimestamp, item.Title, item.CoverImage, item.Location,
		item.Description, item.Author.ID, item.Author.Name, nullFloat(item.Distance), startsAt, endsAt,
		venue, string(media), commentCount, contentHash)
	if err != nil {
		return fmt.Errorf("failed to upsert item: %w", err)
	}

	return nil
}

func (r *SQLItemRepository) CheckDuplicate(ctx context.Context, sourceName, contentHash string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM items WHERE source_name = ? AND content_hash = ?)
	`, sourceName, contentHash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate: %w", err)
	}
	return exists, nil
}

func (r *SQLItemRepository) SetCommentCount(ctx context.Context, id string, count int) error {
	if count < 0 {
		count = 0
	}
	result, err := r.db.ExecContext(ctx, `UPDATE items SET comment_count = ? WHERE id = ?`, count, id)
	if err != nil {
		return fmt.Errorf("failed to update comment count: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (feed.Item, error) {
	var (
		item                     feed.Item
		kind                     string
		distance                 sql.NullFloat64
		startsAt, endsAt, venue  string
		media                    string
		comments, likes          int
		viewerLiked, viewerSaved bool
	)

	err := row.Scan(&item.ID, &kind, &item.SortTimestamp, &item.Title, &item.CoverImage,
		&item.Location, &item.Description, &item.Author.ID, &item.Author.Name, &distance,
		&startsAt, &endsAt, &venue, &media, &comments, &likes, &viewerLiked, &viewerSaved)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return item, err
		}
		return item, fmt.Errorf("failed to scan item: %w", err)
	}

	item.Kind = feed.Kind(kind)
	if distance.Valid {
		d := distance.Float64
		item.Distance = &d
	}

	switch item.Kind {
	case feed.KindEvent:
		item.Event = &feed.EventFields{StartsAt: startsAt, EndsAt: endsAt, Venue: venue}
	case feed.KindPost:
		var mediaURLs []string
		if err := json.Unmarshal([]byte(media), &mediaURLs); err != nil {
			return item, fmt.Errorf("failed to decode media urls for %s: %w", item.ID, err)
		}
		item.Post = &feed.PostFields{
			MediaURLs: mediaURLs,
			Metrics: feed.Metrics{
				Likes:          likes,
				Comments:       comments,
				ViewerHasLiked: viewerLiked,
				ViewerHasSaved: viewerSaved,
			},
		}
	}

	return item, nil
}

// normalizeTimestamp rewrites a timestamp as second-precision UTC so string
// order matches time order.
func normalizeTimestamp(value string) (string, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC().Format(sortLayout), nil
		}
	}
	return "", fmt.Errorf("invalid sort timestamp %q", value)
}

func nullFloat(value *float64) sql.NullFloat64 {
	if value == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *value, Valid: true}
}
