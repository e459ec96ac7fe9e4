package dashboard

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/atelier/internal/usage"
	"gorm.io/gorm"
)

// NewRouter builds the gin router with all dashboard routes registered.
func NewRouter(db *gorm.DB) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", handleHealth(db))
	router.GET("/api/generations", handleGenerations(db))
	router.GET("/api/stats", handleStats(db))

	return router
}

func handleHealth(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.Ping()
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// handleGenerations returns recent usage rows, newest first.
// Query params: user, model, limit, hours (lookback window).
func handleGenerations(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		filters := usage.ListFilters{
			UserID: c.Query("user"),
			Model:  c.Query("model"),
		}
		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filters.Limit = n
			}
		}
		if v := c.Query("hours"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				filters.Since = time.Now().UTC().Add(-time.Duration(n) * time.Hour)
			}
		}

		rows, err := usage.List(db, filters)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"generations": rows, "count": len(rows)})
	}
}

// handleStats returns aggregate usage metrics. Query param: hours
// (lookback window, default 24).
func handleStats(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		hours := 24
		if v := c.Query("hours"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				hours = n
			}
		}

		now := time.Now().UTC()
		report, err := usage.Stats(db, now.Add(-time.Duration(hours)*time.Hour), now)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}
