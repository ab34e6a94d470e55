package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/event-feed/app/database"
	"github.com/lysyi3m/event-feed/app/engine"
	"github.com/lysyi3m/event-feed/app/feed"
	"github.com/lysyi3m/event-feed/app/pagination"
	"github.com/lysyi3m/event-feed/app/source"
	"github.com/lysyi3m/event-feed/app/tasks"
)

func NewHandler(configCache *source.ConfigCache, sourceRepo database.SourceRepository,
	itemRepo database.ItemRepository, engagementRepo database.EngagementRepository,
	boostRepo database.BoostRepository, scheduler tasks.TaskSchedulerInterface,
	render RenderSettings, appVersion string) *Handler {
	if render.PageSize <= 0 {
		render.PageSize = database.DefaultPageSize
	}
	return &Handler{
		sourceRepo:     sourceRepo,
		itemRepo:       itemRepo,
		engagementRepo: engagementRepo,
		boostRepo:      boostRepo,
		configCache:    configCache,
		scheduler:      scheduler,
		generator:      feed.NewGenerator(),
		render:         render,
		appVersion:     appVersion,
	}
}

func (h *Handler) version() string {
	return h.appVersion
}

// GetFeed renders the merged, filtered feed for one viewer by running an
// engine against the repositories.
func (h *Handler) GetFeed(c *gin.Context) {
	snapshot, ok := h.renderSnapshot(c)
	if !ok {
		return
	}

	c.Header("X-Feed-Items", strconv.Itoa(len(snapshot.Items)))
	c.JSON(http.StatusOK, snapshot)
}

// GetFeedRSS publishes the same rendered feed as RSS 2.0.
func (h *Handler) GetFeedRSS(c *gin.Context) {
	snapshot, ok := h.renderSnapshot(c)
	if !ok {
		return
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	base := scheme + "://" + c.Request.Host

	rss, err := h.generator.Run(feed.Channel{
		Title:     "Event Feed",
		Link:      base + "/feed",
		SelfLink:  base + c.Request.URL.RequestURI(),
		Generator: "Event-Feed/" + h.appVersion,
	}, snapshot.Items)
	if err != nil {
		slog.Error("RSS generation error", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(snapshot.Items)))
	c.String(http.StatusOK, rss)
}

// renderSnapshot writes an error response itself when it returns false.
func (h *Handler) engineConfig(userID string) engine.Config {
	return engine.Config{
		Placement:           h.render.Placement,
		BoostLimit:          h.render.BoostLimit,
		BoostInterval:       h.render.BoostInterval,
		UserID:              userID,
		Fetch:               h.render.Fetch,
		VisibilityThreshold: h.render.VisibilityThreshold,
		AutoplayFallback:    h.render.AutoplayFallback,
	}
}

func (h *Handler) renderSnapshot(c *gin.Context) (engine.Snapshot, bool) {
	filter, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return engine.Snapshot{}, false
	}

	pages := defaultRenderPages
	if raw := c.Query("pages"); raw != "" {
		pages, err = strconv.Atoi(raw)
		if err != nil || pages < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "pages must be a positive integer"})
			return engine.Snapshot{}, false
		}
		pages = min(pages, maxRenderPages)
	}

	userID := c.Query("user_id")
	backend := NewBackend(h.itemRepo, h.engagementRepo, h.boostRepo, h.render.PageSize, userID)

	eng := engine.New(engine.Sources{
		Organic:   backend,
		Boosts:    backend,
		Mutations: backend,
	}, engine.Intents{}, h.engineConfig(userID))
	defer eng.Close()

	ctx := c.Request.Context()

	if err := eng.Load(ctx); err != nil {
		slog.Error("Feed render failed", "user_id", userID, "error", err)
		c.JSON(http.StatusBadGateway, eng.Snapshot())
		return engine.Snapshot{}, false
	}

	for i := 1; i < pages; i++ {
		err := eng.FetchNextPage(ctx)
		if errors.Is(err, pagination.ErrNoMorePages) {
			break
		}
		if err != nil {
			slog.Warn("Feed render stopped paginating", "user_id", userID, "page", i+1, "error", err)
			break
		}
	}

	eng.SetFilter(filter)
	return eng.Snapshot(), true
}

func (h *Handler) GetHealth(c *gin.Context) {
	ctx := c.Request.Context()

	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.appVersion,
	}

	if sourceCount, err := h.sourceRepo.GetSourceCount(ctx); err == nil {
		health["sources"] = sourceCount
	}
	if stats, err := h.itemRepo.GetItemStats(ctx); err == nil {
		health["items"] = stats
	}

	health["loaded_configurations"] = h.configCache.GetConfigCount()

	c.JSON(http.StatusOK, health)
}

func (h *Handler) APIGetOrganicPage(c *gin.Context) {
	limit, ok := queryInt(c, "limit", h.render.PageSize)
	if !ok {
		return
	}

	page, err := h.itemRepo.GetPage(c.Request.Context(), feed.Cursor(c.Query("cursor")), limit, c.Query("user_id"))
	if errors.Is(err, database.ErrInvalidCursor) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
		return
	}
	if err != nil {
		slog.Error("Database error", "operation", "get_page", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, page)
}

func (h *Handler) APIGetBoostRows(c *gin.Context) {
	placement := c.Query("placement")
	if placement == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing placement parameter"})
		return
	}

	limit, ok := queryInt(c, "limit", database.DefaultBoostLimit)
	if !ok {
		return
	}

	rows, err := h.boostRepo.GetBoostRows(c.Request.Context(), placement, limit, c.Query("user_id"))
	if err != nil {
		slog.Error("Database error", "operation", "get_boost_rows", "placement", placement, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if rows == nil {
		rows = []feed.CampaignBoostRow{}
	}

	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

func (h *Handler) APIToggleLike(c *gin.Context) {
	itemID, userID, ok := engagementParams(c)
	if !ok {
		return
	}

	liked, count, err := h.engagementRepo.ToggleLike(c.Request.Context(), itemID, userID)
	if !h.handleMutationError(c, "toggle_like", itemID, err) {
		return
	}

	c.JSON(http.StatusOK, likeResponse{OK: true, IsLiked: liked, LikeCount: count})
}

func (h *Handler) APIToggleSave(c *gin.Context) {
	itemID, userID, ok := engagementParams(c)
	if !ok {
		return
	}

	saved, err := h.engagementRepo.ToggleSave(c.Request.Context(), itemID, userID)
	if !h.handleMutationError(c, "toggle_save", itemID, err) {
		return
	}

	c.JSON(http.StatusOK, saveResponse{IsSaved: saved})
}

func (h *Handler) APISetCommentCount(c *gin.Context) {
	itemID := c.Param("id")

	count, err := strconv.Atoi(c.Query("count"))
	if err != nil || count < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count must be a non-negative integer"})
		return
	}

	err = h.itemRepo.SetCommentCount(c.Request.Context(), itemID, count)
	if !h.handleMutationError(c, "set_comment_count", itemID, err) {
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": itemID, "comments": count})
}

func (h *Handler) APIRecordImpression(c *gin.Context) {
	campaignID := c.Param("id")
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing user_id parameter"})
		return
	}

	if err := h.boostRepo.RecordImpression(c.Request.Context(), campaignID, userID); err != nil {
		slog.Error("Database error", "operation", "record_impression", "campaign", campaignID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) APIListSources(c *gin.Context) {
	ctx := c.Request.Context()
	configs := h.configCache.GetConfigs()

	sources := make([]map[string]interface{}, 0, len(configs))

	for _, sourceConfig := range configs {
		sourceInfo := map[string]interface{}{
			"name":             sourceConfig.Name,
			"url":              sourceConfig.URL,
			"kind":             sourceConfig.Kind,
			"title":            "",
			"enabled":          sourceConfig.Settings.Enabled,
			"max_items":        sourceConfig.Settings.MaxItems,
			"refresh_interval": sourceConfig.Settings.RefreshEvery().String(),
		}

		if src, err := h.sourceRepo.GetSource(ctx, sourceConfig.Name); err == nil && src != nil {
			sourceInfo["title"] = src.Title
			sourceInfo["last_fetched_at"] = src.LastFetchedAt
			sourceInfo["next_fetch_at"] = src.NextFetchAt
			sourceInfo["updated_at"] = src.UpdatedAt
		}

		sources = append(sources, sourceInfo)
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"sources": sources,
		"total":   len(sources),
	})
}

func (h *Handler) APIReloadSource(c *gin.Context) {
	name := c.Param("name")

	if _, err := h.configCache.GetConfig(name); err != nil {
		slog.Error("Source configuration not found", "source", name, "error", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "Source configuration not found"})
		return
	}

	sourceConfig, err := h.configCache.LoadConfig(name)
	if err != nil {
		slog.Error("Error reloading configuration", "source", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to reload configuration",
			"details": err.Error(),
		})
		return
	}

	if err := h.scheduler.EnqueueSource(sourceConfig); err != nil {
		slog.Error("Error enqueueing source tasks", "source", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to enqueue source tasks",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Configuration reloaded and tasks enqueued successfully",
		"source": gin.H{
			"name":    name,
			"url":     sourceConfig.URL,
			"kind":    sourceConfig.Kind,
			"enabled": sourceConfig.Settings.Enabled,
		},
	})
}

// handleMutationError writes the error response and reports whether the
// handler may continue.
func (h *Handler) handleMutationError(c *gin.Context, operation, itemID string, err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		return false
	}
	if errors.Is(err, context.Canceled) {
		c.Status(499)
		return false
	}
	slog.Error("Database error", "operation", operation, "item", itemID, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
	return false
}

func engagementParams(c *gin.Context) (string, string, bool) {
	itemID := c.Param("id")
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing user_id parameter"})
		return "", "", false
	}
	return itemID, userID, true
}

func queryInt(c *gin.Context, key string, fallback int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be a positive integer"})
		return 0, false
	}
	return value, true
}

// parseFilter reads repeated or comma separated values for dates, locations
// and categories, plus an optional radius.
func parseFilter(c *gin.Context) (feed.FilterState, error) {
	filter := feed.DefaultFilterState()
	filter.Dates = splitValues(c.QueryArray("dates"))
	filter.Locations = splitValues(c.QueryArray("locations"))
	filter.Categories = splitValues(c.QueryArray("categories"))

	if raw := c.Query("radius"); raw != "" {
		radius, err := strconv.ParseFloat(raw, 64)
		if err != nil || radius < 0 {
			return filter, errors.New("radius must be a non-negative number")
		}
		filter.SearchRadius = radius
	}

	return filter, nil
}

func splitValues(raw []string) []string {
	var values []string
	for _, entry := range raw {
		for _, value := range strings.Split(entry, ",") {
			if value = strings.TrimSpace(value); value != "" {
				values = append(values, value)
			}
		}
	}
	return values
}
