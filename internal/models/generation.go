// Package models defines the GORM models for Atelier.
package models

import "time"

// Generation is one usage-log row: a single successful image generation.
// The table is append-only — rows are never updated or deleted.
type Generation struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	UserID         string `gorm:"size:32;index"`
	Username       string `gorm:"size:64"`
	GuildID        string `gorm:"size:32"`
	ChannelID      string `gorm:"size:32"`
	Prompt         string `gorm:"type:text"`
	NegativePrompt string `gorm:"type:text"`
	Model          string `gorm:"size:64;index"`
	Seed           int64
	Width          int
	Height         int
	Steps          int
	Samples        int
	CfgScale       float64
	LatencyMs      int
	CreatedAt      time.Time `gorm:"index"`
}
