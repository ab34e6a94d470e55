package tasks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/lysyi3m/event-feed/app/database"
	"github.com/lysyi3m/event-feed/app/ingest"
	"github.com/lysyi3m/event-feed/app/source"
)

// ImportSourceTask downloads a syndicated feed and upserts its entries as
// organic items.
type ImportSourceTask struct {
	Task
	SourceConfig *source.Config
	httpClient   *http.Client
	parser       *ingest.Parser
	sourceRepo   database.SourceRepository
	itemRepo     database.ItemRepository
	userAgent    string
	now          func() time.Time
}

func NewImportSourceTask(sourceConfig *source.Config, httpClient *http.Client, parser *ingest.Parser,
	sourceRepo database.SourceRepository, itemRepo database.ItemRepository, userAgent string) *ImportSourceTask {
	return &ImportSourceTask{
		Task:         NewTask(TaskTypeImportSource, sourceConfig.Name),
		SourceConfig: sourceConfig,
		httpClient:   httpClient,
		parser:       parser,
		sourceRepo:   sourceRepo,
		itemRepo:     itemRepo,
		userAgent:    userAgent,
		now:          time.Now,
	}
}

func (t *ImportSourceTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !t.SourceConfig.Settings.Enabled {
		slog.Debug("Source disabled, skipping", "source", t.SourceName)
		return nil
	}

	data, err := t.fetchSource(ctx, t.SourceConfig.URL)
	if err != nil {
		return fmt.Errorf("failed to fetch source: %w", err)
	}

	metadata, entries, err := t.parser.Run(data, t.SourceConfig)
	if err != nil {
		return fmt.Errorf("failed to parse source: %w", err)
	}

	// Items reference the source row, which may not have been synced yet.
	if err := t.sourceRepo.UpsertSource(ctx, t.SourceConfig.Name, t.SourceConfig.URL, t.SourceConfig.Kind); err != nil {
		return fmt.Errorf("failed to register source: %w", err)
	}

	if maxItems := t.SourceConfig.Settings.MaxItems; maxItems > 0 && len(entries) > maxItems {
		entries = entries[:maxItems]
	}

	duplicateCount := 0
	newCount := 0

	for _, entry := range entries {
		isDuplicate, err := t.itemRepo.CheckDuplicate(ctx, t.SourceName, entry.ContentHash)
		if err != nil {
			return fmt.Errorf("failed to check for duplicates: %w", err)
		}
		if isDuplicate {
			duplicateCount++
			continue
		}

		if err := t.itemRepo.UpsertItem(ctx, t.SourceName, entry.Item, entry.ContentHash); err != nil {
			return fmt.Errorf("failed to store item: %w", err)
		}
		newCount++
	}

	if err := t.storeSourceMetadata(ctx, metadata); err != nil {
		return fmt.Errorf("failed to store source metadata: %w", err)
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"source", t.SourceName,
		"duration", t.GetDuration(),
		"total", len(entries),
		"duplicates", duplicateCount,
		"new", newCount)

	return nil
}

func (t *ImportSourceTask) fetchSource(ctx context.Context, url string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, t.SourceConfig.Settings.TimeoutAfter())
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}

func (t *ImportSourceTask) storeSourceMetadata(ctx context.Context, metadata *ingest.Metadata) error {
	nextFetch := t.now().UTC().Add(t.SourceConfig.Settings.RefreshEvery())

	err := t.sourceRepo.UpdateSourceMetadata(ctx, t.SourceName, database.SourceMetadata{
		Title:       metadata.Title,
		Link:        metadata.Link,
		Description: metadata.Description,
		ImageURL:    metadata.ImageURL,
		Language:    metadata.Language,
	}, nextFetch)
	if err != nil {
		return fmt.Errorf("failed to update source metadata and next fetch time: %w", err)
	}

	return nil
}
