package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/rss-reader/app/feed"
	"github.com/lysyi3m/rss-reader/app/tasks"
)

func NewHandler(repo Repository, generator GeneratorInterface, scheduler tasks.TaskSchedulerInterface, version string) *Handler {
	return &Handler{
		repo:      repo,
		generator: generator,
		scheduler: scheduler,
		version:   version,
	}
}

// detached keeps fetches running when the client goes away: a started add or
// refresh always completes.
func detached(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

func (h *Handler) GetFeed(c *gin.Context) {
	id := c.Param("id")

	f, ok := h.repo.Feed(id)
	if !ok {
		slog.Debug("Feed not found", "feed", id)
		c.Status(http.StatusNotFound)
		return
	}

	items := h.repo.FeedItems(id)

	rss, err := h.generator.Run(f, items)
	if err != nil {
		slog.Error("RSS generation error", "feed", id, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(items)))
	c.Header("X-Feed-ID", id)
	if f.LastFetched != nil {
		c.Header("X-Last-Updated", f.LastFetched.Format(time.RFC3339))
	}

	c.String(http.StatusOK, rss)
}

func (h *Handler) GetHealth(c *gin.Context) {
	stats := h.repo.Stats()

	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"version":      h.version,
		"timestamp":    time.Now().In(time.Local).Format(time.RFC3339),
		"feeds":        stats.Feeds,
		"active_feeds": stats.ActiveFeeds,
		"items":        stats.Items,
		"unread":       stats.Unread,
	})
}

func (h *Handler) APIListFeeds(c *gin.Context) {
	feeds := h.repo.Feeds()

	c.JSON(http.StatusOK, gin.H{
		"feeds": feeds,
		"total": len(feeds),
	})
}

func (h *Handler) APIAddFeed(c *gin.Context) {
	var req addFeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "message": err.Error()})
		return
	}

	added, ok := h.repo.AddFeed(detached(c), req.URL, req.Title)
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "Failed to add feed",
			"message": "The feed could not be fetched. Check the URL and try again.",
		})
		return
	}

	if h.scheduler != nil {
		if err := h.scheduler.EnqueueExtractContent(added.ID); err != nil {
			slog.Warn("Failed to enqueue ExtractContentTask", "feed", added.ID, "error", err)
		}
	}

	c.JSON(http.StatusCreated, added)
}

func (h *Handler) APIUpdateFeed(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.repo.Feed(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
		return
	}

	var req updateFeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "message": err.Error()})
		return
	}

	h.repo.UpdateFeed(id, feed.FeedUpdate{
		Title:       req.Title,
		Description: req.Description,
		IsActive:    req.IsActive,
	})

	updated, _ := h.repo.Feed(id)
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) APIRemoveFeed(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.repo.Feed(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
		return
	}

	h.repo.RemoveFeed(id)
	c.Status(http.StatusNoContent)
}

func (h *Handler) APIRefreshFeed(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.repo.Feed(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
		return
	}

	added := h.repo.RefreshFeed(detached(c), id)
	c.JSON(http.StatusOK, refreshResponse{NewItems: added})
}

func (h *Handler) APIRefreshAllFeeds(c *gin.Context) {
	added := h.repo.RefreshAllFeeds(detached(c))
	c.JSON(http.StatusOK, refreshResponse{NewItems: added})
}

func (h *Handler) APIListItems(c *gin.Context) {
	items := h.repo.View()

	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"total":       len(items),
		"preferences": h.repo.Preferences(),
	})
}

func (h *Handler) APIMarkRead(c *gin.Context) {
	h.setRead(c, true)
}

func (h *Handler) APIMarkUnread(c *gin.Context) {
	h.setRead(c, false)
}

func (h *Handler) setRead(c *gin.Context, read bool) {
	id := c.Param("id")
	if _, ok := h.repo.Item(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		return
	}

	if read {
		h.repo.MarkAsRead(id)
	} else {
		h.repo.MarkAsUnread(id)
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) APIMarkAllRead(c *gin.Context) {
	h.repo.MarkAllAsRead(c.Query("feed"))
	c.Status(http.StatusNoContent)
}

func (h *Handler) APIGetPreferences(c *gin.Context) {
	c.JSON(http.StatusOK, h.repo.Preferences())
}

func (h *Handler) APIUpdatePreferences(c *gin.Context) {
	var req feed.PreferencesUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "message": err.Error()})
		return
	}

	if req.ViewType != nil && *req.ViewType != feed.ViewList && *req.ViewType != feed.ViewGrid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "message": "viewType must be 'list' or 'grid'"})
		return
	}

	h.repo.UpdatePreferences(req)
	c.JSON(http.StatusOK, h.repo.Preferences())
}

// APIStream sends the current projection as a server-sent event on connect
// and again after every change. Slow clients only get the latest snapshot.
func (h *Handler) APIStream(c *gin.Context) {
	updates := make(chan []feed.Item, 1)
	unsubscribe := h.repo.SubscribeView(func(items []feed.Item) {
		select {
		case <-updates:
		default:
		}
		updates <- items
	})
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case items := <-updates:
			c.SSEvent("items", items)
			return true
		}
	})
}
