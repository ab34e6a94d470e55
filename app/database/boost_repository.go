package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/lysyi3m/event-feed/app/feed"
)

const DefaultBoostLimit = 10

var _ BoostRepository = (*SQLBoostRepository)(nil)

type SQLBoostRepository struct {
	db *DB
}

func NewBoostRepository(db *DB) *SQLBoostRepository {
	return &SQLBoostRepository{db: db}
}

// GetBoostRows returns campaigns with budget left for the placement. When
// userID is set, campaigns the viewer has already seen frequency_cap times
// are left out. Rows come back highest priority first.
func (r *SQLBoostRepository) GetBoostRows(ctx context.Context, placement string, limit int, userID string) ([]feed.CampaignBoostRow, error) {
	if limit <= 0 {
		limit = DefaultBoostLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT b.campaign_id, b.creative_id, b.event_id, b.priority, b.rate_model,
			b.remaining_budget, b.frequency_cap, b.objective,
			b.event_title, b.event_description, b.event_cover_image, b.event_location,
			b.event_venue, b.event_starts_at, b.event_ends_at, b.event_distance,
			b.host_id, b.host_name,
			b.creative_caption, b.creative_media_urls, b.creative_author_id, b.creative_author_name
		FROM campaign_boosts b
		WHERE b.placement = ?
			AND b.remaining_budget > 0
			AND (
				? = ''
				OR b.frequency_cap <= 0
				OR (SELECT COUNT(*) FROM boost_impressions bi
					WHERE bi.campaign_id = b.campaign_id AND bi.user_id = ?) < b.frequency_cap
			)
		ORDER BY b.priority DESC, b.created_at ASC
		LIMIT ?
	`, placement, userID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query boosts: %w", err)
	}
	defer rows.Close()

	var result []feed.CampaignBoostRow
	for rows.Next() {
		var (
			row            feed.CampaignBoostRow
			distance       sql.NullFloat64
			caption, media sql.NullString
			authorID, name string
		)

		err := rows.Scan(&row.CampaignID, &row.CreativeID, &row.EventID, &row.Priority, &row.RateModel,
			&row.RemainingBudget, &row.FrequencyCap, &row.Objective,
			&row.Event.Title, &row.Event.Description, &row.Event.CoverImage, &row.Event.Location,
			&row.Event.Venue, &row.Event.StartsAt, &row.Event.EndsAt, &distance,
			&row.Event.Host.ID, &row.Event.Host.Name,
			&caption, &media, &authorID, &name)
		if err != nil {
			return nil, fmt.Errorf("failed to scan boost: %w", err)
		}

		if distance.Valid {
			d := distance.Float64
			row.Event.Distance = &d
		}

		if caption.Valid || media.Valid {
			creative := &feed.BoostCreative{
				Caption: caption.String,
				Author:  feed.Author{ID: authorID, Name: name},
			}
			if media.Valid && media.String != "" {
				if err := json.Unmarshal([]byte(media.String), &creative.MediaURLs); err != nil {
					return nil, fmt.Errorf("failed to decode creative media for %s: %w", row.CampaignID, err)
				}
			}
			row.Creative = creative
		}

		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate boosts: %w", err)
	}

	return result, nil
}

func (r *SQLBoostRepository) UpsertBoost(ctx context.Context, placement string, row feed.CampaignBoostRow) error {
	if row.CampaignID == "" {
		return fmt.Errorf("campaign id is required")
	}
	if placement == "" {
		placement = "home"
	}

	var caption, media sql.NullString
	var authorID, authorName string
	if row.Creative != nil {
		caption = sql.NullString{String: row.Creative.Caption, Valid: true}
		data, err := json.Marshal(row.Creative.MediaURLs)
		if err != nil {
			return fmt.Errorf("failed to encode creative media: %w", err)
		}
		media = sql.NullString{String: string(data), Valid: true}
		authorID, authorName = row.Creative.Author.ID, row.Creative.Author.Name
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_boosts (
			campaign_id, creative_id, event_id, placement, priority, rate_model, remaining_budget,
			frequency_cap, objective, event_title, event_description, event_cover_image,
			event_location, event_venue, event_starts_at, event_ends_at, event_distance,
			host_id, host_name, creative_caption, creative_media_urls, creative_author_id,
			creative_author_name
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (campaign_id, creative_id, event_id) DO UPDATE SET
			placement = excluded.placement,
			priority = excluded.priority,
			rate_model = excluded.rate_model,
			remaining_budget = excluded.remaining_budget,
			frequency_cap = excluded.frequency_cap,
			objective = excluded.objective,
			event_title = excluded.event_title,
			event_description = excluded.event_description,
			event_cover_image = excluded.event_cover_image,
			event_location = excluded.event_location,
			event_venue = excluded.event_venue,
			event_starts_at = excluded.event_starts_at,
			event_ends_at = excluded.event_ends_at,
			event_distance = excluded.event_distance,
			host_id = excluded.host_id,
			host_name = excluded.host_name,
			creative_caption = excluded.creative_caption,
			creative_media_urls = excluded.creative_media_urls,
			creative_author_id = excluded.creative_author_id,
			creative_author_name = excluded.creative_author_name
	`, row.CampaignID, row.CreativeID, row.EventID, placement, row.Priority, row.RateModel,
		row.RemainingBudget, row.FrequencyCap, row.Objective, row.Event.Title, row.Event.Description,
		row.Event.CoverImage, row.Event.Location, row.Event.Venue, row.Event.StartsAt, row.Event.EndsAt,
		nullFloat(row.Event.Distance), row.Event.Host.ID, row.Event.Host.Name, caption, media,
		authorID, authorName)
	if err != nil {
		return fmt.Errorf("failed to upsert boost: %w", err)
	}

	return nil
}

func (r *SQLBoostRepository) RecordImpression(ctx context.Context, campaignID, userID string) error {
	if campaignID == "" || userID == "" {
		return fmt.Errorf("campaign id and user id are required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO boost_impressions (campaign_id, user_id) VALUES (?, ?)
	`, campaignID, userID)
	if err != nil {
		return fmt.Errorf("failed to record impression: %w", err)
	}
	return nil
}
