package source

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lysyi3m/event-feed/app/feed"
)

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfigCacheLoadValidConfig(t *testing.T) {
	tempDir := t.TempDir()

	writeSource(t, tempDir, "brooklyn-events.yml", `
url: "https://example.com/calendar.xml"
kind: event
location: "Brooklyn, NY"
distance: 4.5
author:
  id: "bk-venues"
  name: "Brooklyn Venues"

settings:
  enabled: true
  refresh_interval: 1800
  max_items: 25
  timeout: 15
`)

	configCache := NewConfigCache(tempDir)
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}

	if configCache.GetConfigCount() != 1 {
		t.Errorf("Expected 1 config, got %d", configCache.GetConfigCount())
	}

	config, err := configCache.GetConfig("brooklyn-events")
	if err != nil {
		t.Fatal(err)
	}

	if config.Name != "brooklyn-events" {
		t.Errorf("Expected name 'brooklyn-events', got '%s'", config.Name)
	}
	if config.URL != "https://example.com/calendar.xml" {
		t.Errorf("Expected URL 'https://example.com/calendar.xml', got '%s'", config.URL)
	}
	if config.Kind != "event" {
		t.Errorf("Expected kind 'event', got '%s'", config.Kind)
	}
	if config.Location != "Brooklyn, NY" {
		t.Errorf("Expected location 'Brooklyn, NY', got '%s'", config.Location)
	}
	if config.Distance == nil || *config.Distance != 4.5 {
		t.Errorf("Expected distance 4.5, got %v", config.Distance)
	}
	if config.Author.Name != "Brooklyn Venues" {
		t.Errorf("Expected author 'Brooklyn Venues', got '%s'", config.Author.Name)
	}
	if config.Settings.RefreshEvery().Seconds() != 1800 {
		t.Errorf("Expected refresh interval 1800s, got %v", config.Settings.RefreshEvery())
	}
	if config.Settings.MaxItems != 25 {
		t.Errorf("Expected max items 25, got %d", config.Settings.MaxItems)
	}
}

func TestConfigCacheLoadConfigWithDefaults(t *testing.T) {
	tempDir := t.TempDir()

	writeSource(t, tempDir, "test.yml", `
url: "https://example.com/feed.xml"

settings:
  enabled: true
`)

	configCache := NewConfigCache(tempDir)
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}

	config, err := configCache.GetConfig("test")
	if err != nil {
		t.Fatal(err)
	}

	if config.Kind != KindAuto {
		t.Errorf("Expected default kind 'auto', got '%s'", config.Kind)
	}
	if config.Settings.RefreshInterval != DefaultRefreshInterval {
		t.Errorf("Expected default refresh interval 3600, got %d", config.Settings.RefreshInterval)
	}
	if config.Settings.MaxItems != DefaultMaxItems {
		t.Errorf("Expected default max items 100, got %d", config.Settings.MaxItems)
	}
	if config.Settings.Timeout != DefaultTimeout {
		t.Errorf("Expected default timeout 30, got %d", config.Settings.Timeout)
	}
}

func TestConfigCacheInvalidConfig(t *testing.T) {
	tempDir := t.TempDir()

	writeSource(t, tempDir, "invalid.yml", `
settings:
  enabled: true
`)

	configCache := NewConfigCache(tempDir)
	if err := configCache.Run(); err == nil {
		t.Error("Expected error for config without URL")
	}
}

func TestConfigCacheInvalidKind(t *testing.T) {
	tempDir := t.TempDir()

	writeSource(t, tempDir, "bad-kind.yml", `
url: "https://example.com/feed.xml"
kind: podcast
`)

	configCache := NewConfigCache(tempDir)
	err := configCache.Run()
	if err == nil {
		t.Fatal("Expected error for unknown kind")
	}
	if !strings.Contains(err.Error(), "invalid kind") {
		t.Errorf("Expected error to mention invalid kind, got: %v", err)
	}
}

func TestConfigCacheMissingDirectory(t *testing.T) {
	configCache := NewConfigCache(filepath.Join(t.TempDir(), "missing"))
	if err := configCache.Run(); err != nil {
		t.Fatalf("Missing directory should not be an error, got: %v", err)
	}
	if configCache.GetConfigCount() != 0 {
		t.Errorf("Expected 0 configs, got %d", configCache.GetConfigCount())
	}
}

func TestConfigCacheReloadConfig(t *testing.T) {
	tempDir := t.TempDir()

	configFile := writeSource(t, tempDir, "test.yml", `
url: "https://example.com/feed.xml"

settings:
  enabled: true
`)

	configCache := NewConfigCache(tempDir)
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(configFile, []byte(`
url: "https://example.com/new-feed.xml"

settings:
  enabled: true
  max_items: 50
`), 0644); err != nil {
		t.Fatal(err)
	}

	reloaded, err := configCache.LoadConfig("test")
	if err != nil {
		t.Fatal(err)
	}

	if reloaded.URL != "https://example.com/new-feed.xml" {
		t.Errorf("Expected updated URL 'https://example.com/new-feed.xml', got '%s'", reloaded.URL)
	}
	if reloaded.Settings.MaxItems != 50 {
		t.Errorf("Expected updated max_items 50, got %d", reloaded.Settings.MaxItems)
	}

	if _, err := configCache.LoadConfig("nonexistent"); err == nil {
		t.Error("Expected error for non-existent config")
	}

	if err := os.WriteFile(configFile, []byte(`invalid yaml content`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := configCache.LoadConfig("test"); err == nil {
		t.Error("Expected error for invalid config file")
	}
}

func TestConfigCacheGetConfigsReturnsCopy(t *testing.T) {
	tempDir := t.TempDir()

	writeSource(t, tempDir, "feed1.yml", `
url: "https://example.com/feed1.xml"
settings:
  enabled: true
`)
	writeSource(t, tempDir, "feed2.yml", `
url: "https://example.com/feed2.xml"
settings:
  enabled: false
`)

	configCache := NewConfigCache(tempDir)
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}

	all := configCache.GetConfigs()
	if len(all) != 2 {
		t.Errorf("Expected 2 configs, got %d", len(all))
	}

	delete(all, "feed1")
	if configCache.GetConfigCount() != 2 {
		t.Error("Modifying returned configs map affected the cache")
	}

	enabled := configCache.GetEnabledConfigs()
	if len(enabled) != 1 || enabled["feed1"] == nil {
		t.Errorf("Expected only feed1 enabled, got %v", enabled)
	}
}

func TestConfigCacheValidateConfig(t *testing.T) {
	configCache := NewConfigCache("")

	if err := configCache.validateConfig(nil); err == nil {
		t.Error("Expected error for nil config, got none")
	}

	config := &Config{Name: "", URL: "https://example.com/feed.xml", Kind: KindAuto}
	if err := configCache.validateConfig(config); err == nil {
		t.Error("Expected error for empty name, got none")
	}

	config.Name = "test"
	config.Settings.Timeout = -1
	if err := configCache.validateConfig(config); err == nil {
		t.Error("Expected error for negative timeout, got none")
	}

	config.Settings.Timeout = 30
	negative := -2.0
	config.Distance = &negative
	if err := configCache.validateConfig(config); err == nil {
		t.Error("Expected error for negative distance, got none")
	}

	config.Distance = nil
	if err := configCache.validateConfig(config); err != nil {
		t.Errorf("Expected valid config, got: %v", err)
	}
}

func TestConfigItemKind(t *testing.T) {
	tests := []struct {
		kind     string
		hasVideo bool
		want     feed.Kind
	}{
		{KindAuto, true, feed.KindPost},
		{KindAuto, false, feed.KindEvent},
		{"event", true, feed.KindEvent},
		{"post", false, feed.KindPost},
	}

	for _, tt := range tests {
		config := &Config{Kind: tt.kind}
		if got := config.ItemKind(tt.hasVideo); got != tt.want {
			t.Errorf("ItemKind(%s, %v): expected %s, got %s", tt.kind, tt.hasVideo, tt.want, got)
		}
	}
}
