package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/event-feed/app/database"
	"github.com/lysyi3m/event-feed/app/source"
)

// SyncSourceTask registers a source definition in the database so items can
// reference it.
type SyncSourceTask struct {
	Task
	SourceConfig *source.Config
	sourceRepo   database.SourceRepository
}

func NewSyncSourceTask(sourceConfig *source.Config, sourceRepo database.SourceRepository) *SyncSourceTask {
	return &SyncSourceTask{
		Task:         NewTask(TaskTypeSyncSource, sourceConfig.Name),
		SourceConfig: sourceConfig,
		sourceRepo:   sourceRepo,
	}
}

func (t *SyncSourceTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	err := t.sourceRepo.UpsertSource(ctx, t.SourceConfig.Name, t.SourceConfig.URL, t.SourceConfig.Kind)
	if err != nil {
		return fmt.Errorf("failed to sync source config to database: %w", err)
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"source", t.SourceName,
		"duration", t.GetDuration())

	return nil
}
