package tasks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lysyi3m/event-feed/app/database"
	"github.com/lysyi3m/event-feed/app/feed"
	"github.com/lysyi3m/event-feed/app/ingest"
	"github.com/lysyi3m/event-feed/app/source"
)

const testRSS = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Venue Calendar</title>
    <link>https://venue.example.com</link>
    <item>
      <title>Show One</title>
      <link>https://venue.example.com/1</link>
      <guid>show-1</guid>
      <pubDate>Mon, 03 Jul 2023 10:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Show Two</title>
      <link>https://venue.example.com/2</link>
      <guid>show-2</guid>
      <pubDate>Mon, 03 Jul 2023 11:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Show Three</title>
      <link>https://venue.example.com/3</link>
      <guid>show-3</guid>
      <pubDate>Mon, 03 Jul 2023 12:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

type mockSourceRepository struct {
	mu       sync.Mutex
	sources  map[string]*database.Source
	metadata map[string]database.SourceMetadata
	err      error
}

func newMockSourceRepository() *mockSourceRepository {
	return &mockSourceRepository{
		sources:  make(map[string]*database.Source),
		metadata: make(map[string]database.SourceMetadata),
	}
}

func (m *mockSourceRepository) GetSource(ctx context.Context, name string) (*database.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sources[name], nil
}

func (m *mockSourceRepository) GetSourceCount(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sources), nil
}

func (m *mockSourceRepository) UpsertSource(ctx context.Context, name, url, kind string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.sources[name]; !ok {
		m.sources[name] = &database.Source{Name: name}
	}
	m.sources[name].URL = url
	m.sources[name].Kind = kind
	return nil
}

func (m *mockSourceRepository) UpdateSourceMetadata(ctx context.Context, name string, metadata database.SourceMetadata, nextFetch time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.sources[name]
	if !ok {
		return database.ErrNotFound
	}
	src.NextFetchAt = &nextFetch
	m.metadata[name] = metadata
	return nil
}

type mockItemRepository struct {
	mu     sync.Mutex
	items  map[string]feed.Item
	hashes map[string]bool
}

func newMockItemRepository() *mockItemRepository {
	return &mockItemRepository{
		items:  make(map[string]feed.Item),
		hashes: make(map[string]bool),
	}
}

func (m *mockItemRepository) GetPage(ctx context.Context, cursor feed.Cursor, limit int, userID string) (feed.Page, error) {
	return feed.Page{}, nil
}

func (m *mockItemRepository) GetItem(ctx context.Context, id, userID string) (*feed.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (m *mockItemRepository) GetItemStats(ctx context.Context) (database.ItemStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return database.ItemStats{Total: len(m.items)}, nil
}

func (m *mockItemRepository) UpsertItem(ctx context.Context, sourceName string, item feed.Item, contentHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
	m.hashes[sourceName+"|"+contentHash] = true
	return nil
}

func (m *mockItemRepository) CheckDuplicate(ctx context.Context, sourceName, contentHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hashes[sourceName+"|"+contentHash], nil
}

func (m *mockItemRepository) SetCommentCount(ctx context.Context, id string, count int) error {
	return nil
}

func (m *mockItemRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func newFeedServer(t *testing.T, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("User-Agent") != "Test Agent" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func testSourceConfig(url string) *source.Config {
	return &source.Config{
		Name: "venue",
		URL:  url,
		Kind: string(feed.KindEvent),
		Settings: source.Settings{
			Enabled:         true,
			RefreshInterval: 600,
			MaxItems:        100,
			Timeout:         5,
		},
	}
}

func TestImportSourceTask(t *testing.T) {
	server, _ := newFeedServer(t, testRSS)
	sourceRepo := newMockSourceRepository()
	itemRepo := newMockItemRepository()

	config := testSourceConfig(server.URL)
	task := NewImportSourceTask(config, server.Client(), ingest.NewParser(), sourceRepo, itemRepo, "Test Agent")
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	task.now = func() time.Time { return fixed }
	task.Start()

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if itemRepo.count() != 3 {
		t.Errorf("Expected 3 items stored, got %d", itemRepo.count())
	}

	src, _ := sourceRepo.GetSource(context.Background(), "venue")
	if src == nil {
		t.Fatal("Expected source to be registered")
	}
	if src.NextFetchAt == nil || !src.NextFetchAt.Equal(fixed.Add(10*time.Minute)) {
		t.Errorf("Expected next fetch at %v, got %v", fixed.Add(10*time.Minute), src.NextFetchAt)
	}
	if sourceRepo.metadata["venue"].Title != "Venue Calendar" {
		t.Errorf("Expected metadata title 'Venue Calendar', got '%s'", sourceRepo.metadata["venue"].Title)
	}

	// A second import finds every entry unchanged
	second := NewImportSourceTask(config, server.Client(), ingest.NewParser(), sourceRepo, itemRepo, "Test Agent")
	if err := second.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if itemRepo.count() != 3 {
		t.Errorf("Expected duplicates to be skipped, got %d items", itemRepo.count())
	}
}

func TestImportSourceTaskMaxItems(t *testing.T) {
	server, _ := newFeedServer(t, testRSS)
	itemRepo := newMockItemRepository()

	config := testSourceConfig(server.URL)
	config.Settings.MaxItems = 2

	task := NewImportSourceTask(config, server.Client(), ingest.NewParser(), newMockSourceRepository(), itemRepo, "Test Agent")
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if itemRepo.count() != 2 {
		t.Errorf("Expected 2 items stored, got %d", itemRepo.count())
	}
}

func TestImportSourceTaskDisabled(t *testing.T) {
	server, hits := newFeedServer(t, testRSS)

	config := testSourceConfig(server.URL)
	config.Settings.Enabled = false

	task := NewImportSourceTask(config, server.Client(), ingest.NewParser(), newMockSourceRepository(), newMockItemRepository(), "Test Agent")
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if hits.Load() != 0 {
		t.Errorf("Expected no requests for a disabled source, got %d", hits.Load())
	}
}

func TestImportSourceTaskHTTPError(t *testing.T) {
	server, _ := newFeedServer(t, testRSS)

	task := NewImportSourceTask(testSourceConfig(server.URL), server.Client(), ingest.NewParser(), newMockSourceRepository(), newMockItemRepository(), "Wrong Agent")
	if err := task.Execute(context.Background()); err == nil {
		t.Error("Expected error for a non-200 response")
	}
}

func TestSyncSourceTask(t *testing.T) {
	sourceRepo := newMockSourceRepository()
	config := testSourceConfig("https://example.com/feed.xml")

	task := NewSyncSourceTask(config, sourceRepo)
	if task.GetType() != TaskTypeSyncSource {
		t.Errorf("Expected type %s, got %s", TaskTypeSyncSource, task.GetType())
	}
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	count, _ := sourceRepo.GetSourceCount(context.Background())
	if count != 1 {
		t.Errorf("Expected 1 source, got %d", count)
	}

	sourceRepo.err = errors.New("disk full")
	if err := NewSyncSourceTask(config, sourceRepo).Execute(context.Background()); err == nil {
		t.Error("Expected repository error to be returned")
	}
}

func TestNewTask(t *testing.T) {
	a := NewTask(TaskTypeImportSource, "venue")
	b := NewTask(TaskTypeImportSource, "venue")

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("Expected unique task IDs, got %q and %q", a.ID, b.ID)
	}
	if a.MaxRetries != DefaultMaxRetries {
		t.Errorf("Expected max retries %d, got %d", DefaultMaxRetries, a.MaxRetries)
	}
	if a.GetDuration() != 0 {
		t.Error("Expected zero duration before start")
	}

	for i := 0; i < DefaultMaxRetries; i++ {
		if !a.CanRetry() {
			t.Fatalf("Expected retry %d to be allowed", i+1)
		}
		a.IncrementRetryCount()
	}
	if a.CanRetry() {
		t.Error("Expected no retries left")
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		retry    int
		expected time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{6, 30 * time.Second},
		{80, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := RetryDelay(time.Second, tt.retry); got != tt.expected {
			t.Errorf("RetryDelay(%d): expected %v, got %v", tt.retry, tt.expected, got)
		}
	}
}

type flakyTask struct {
	Task
	failures atomic.Int32
	calls    atomic.Int32
	done     chan struct{}
}

func (f *flakyTask) Execute(ctx context.Context) error {
	if f.calls.Add(1) <= f.failures.Load() {
		return errors.New("temporary failure")
	}
	close(f.done)
	return nil
}

func TestSchedulerRetriesFailedTask(t *testing.T) {
	scheduler := NewScheduler(source.NewConfigCache(t.TempDir()), newMockSourceRepository(), newMockItemRepository(),
		http.DefaultClient, ingest.NewParser(), Options{WorkerCount: 1, Interval: time.Hour})
	scheduler.retryBase = time.Millisecond

	task := &flakyTask{Task: NewTask(TaskTypeImportSource, "venue"), done: make(chan struct{})}
	task.failures.Store(2)

	scheduler.Start()
	defer scheduler.Stop()

	if err := scheduler.EnqueueTask(task); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	select {
	case <-task.done:
	case <-time.After(5 * time.Second):
		t.Fatal("Expected task to succeed after retries")
	}

	if task.calls.Load() != 3 {
		t.Errorf("Expected 3 executions, got %d", task.calls.Load())
	}
	if task.GetRetryCount() != 2 {
		t.Errorf("Expected retry count 2, got %d", task.GetRetryCount())
	}
}

func TestSchedulerLifecycle(t *testing.T) {
	server, _ := newFeedServer(t, testRSS)

	sourcesDir := t.TempDir()
	yaml := fmt.Sprintf("url: %q\nkind: event\nsettings:\n  enabled: true\n  refresh_interval: 600\n", server.URL)
	if err := os.WriteFile(filepath.Join(sourcesDir, "venue.yml"), []byte(yaml), 0644); err != nil {
		t.Fatalf("Failed to write source config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sourcesDir, "paused.yml"), []byte("url: \"https://example.com/feed.xml\"\n"), 0644); err != nil {
		t.Fatalf("Failed to write source config: %v", err)
	}

	configCache := source.NewConfigCache(sourcesDir)
	if err := configCache.Run(); err != nil {
		t.Fatalf("Failed to load source configs: %v", err)
	}

	sourceRepo := newMockSourceRepository()
	itemRepo := newMockItemRepository()

	scheduler := NewScheduler(configCache, sourceRepo, itemRepo, server.Client(), ingest.NewParser(),
		Options{UserAgent: "Test Agent", WorkerCount: 2, Interval: 50 * time.Millisecond})
	scheduler.Start()

	deadline := time.Now().Add(5 * time.Second)
	for itemRepo.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	scheduler.Stop()

	if itemRepo.count() != 3 {
		t.Errorf("Expected 3 imported items, got %d", itemRepo.count())
	}

	count, _ := sourceRepo.GetSourceCount(context.Background())
	if count != 2 {
		t.Errorf("Expected both sources registered, got %d", count)
	}

	if err := scheduler.EnqueueTask(NewSyncSourceTask(testSourceConfig(server.URL), sourceRepo)); err == nil {
		t.Error("Expected enqueue after stop to fail")
	}
}
