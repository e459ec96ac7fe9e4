// Package usage provides append and query operations for the usage log.
package usage

import (
	"fmt"
	"time"

	"github.com/zulandar/atelier/internal/models"
	"gorm.io/gorm"
)

// Record appends one Generation row. The table is append-only; nothing
// updates or deletes rows after this.
func Record(db *gorm.DB, row *models.Generation) error {
	if row.UserID == "" {
		return fmt.Errorf("usage: user id is required")
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if err := db.Create(row).Error; err != nil {
		return fmt.Errorf("usage: record: %w", err)
	}
	return nil
}

// ListFilters holds optional filters for listing usage rows.
type ListFilters struct {
	UserID string
	Model  string
	Since  time.Time
	Limit  int // defaults to 50
}

// List returns usage rows, newest first.
func List(db *gorm.DB, filters ListFilters) ([]models.Generation, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}

	q := db.Model(&models.Generation{})
	if filters.UserID != "" {
		q = q.Where("user_id = ?", filters.UserID)
	}
	if filters.Model != "" {
		q = q.Where("model = ?", filters.Model)
	}
	if !filters.Since.IsZero() {
		q = q.Where("created_at >= ?", filters.Since)
	}

	var rows []models.Generation
	if err := q.Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("usage: list: %w", err)
	}
	return rows, nil
}

// ModelCount holds a model and its generation count.
type ModelCount struct {
	Model string
	Count int
}

// UserCount holds a user and their generation count.
type UserCount struct {
	UserID   string
	Username string
	Count    int
}

// Report holds aggregate usage metrics for a time period.
type Report struct {
	PeriodStart  time.Time
	PeriodEnd    time.Time
	Generations  int
	UniqueUsers  int
	AvgLatencyMs int
	ByModel      []ModelCount
	TopUsers     []UserCount
}

// Stats computes aggregate usage metrics between since and until.
func Stats(db *gorm.DB, since, until time.Time) (*Report, error) {
	report := &Report{
		PeriodStart: since,
		PeriodEnd:   until,
	}

	inRange := func() *gorm.DB {
		return db.Model(&models.Generation{}).
			Where("created_at >= ? AND created_at < ?", since, until)
	}

	var total int64
	if err := inRange().Count(&total).Error; err != nil {
		return nil, fmt.Errorf("usage: stats: count: %w", err)
	}
	report.Generations = int(total)

	var users int64
	if err := inRange().Distinct("user_id").Count(&users).Error; err != nil {
		return nil, fmt.Errorf("usage: stats: users: %w", err)
	}
	report.UniqueUsers = int(users)

	var latency struct{ Avg float64 }
	if err := inRange().
		Select("COALESCE(AVG(latency_ms), 0) as avg").
		Scan(&latency).Error; err != nil {
		return nil, fmt.Errorf("usage: stats: latency: %w", err)
	}
	report.AvgLatencyMs = int(latency.Avg)

	if err := inRange().
		Select("model, count(*) as count").
		Group("model").
		Order("count DESC").
		Find(&report.ByModel).Error; err != nil {
		return nil, fmt.Errorf("usage: stats: models: %w", err)
	}

	if err := inRange().
		Select("user_id, username, count(*) as count").
		Group("user_id, username").
		Order("count DESC").
		Limit(10).
		Find(&report.TopUsers).Error; err != nil {
		return nil, fmt.Errorf("usage: stats: top users: %w", err)
	}

	return report, nil
}
