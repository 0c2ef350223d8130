package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Capture is one recognized frame or uploaded image.
type Capture struct {
	ID        string `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time
	UpdatedAt time.Time
	UserID    *uint  `gorm:"index" json:"user_id,omitempty"`
	Source    string `gorm:"size:512" json:"source"` // file path, upload name or job id
	Profile   string `gorm:"size:64" json:"profile"`
	Backends  string `gorm:"size:255" json:"backends"`

	Text        string `gorm:"type:text" json:"text"`
	Translation string `gorm:"type:text" json:"translation,omitempty"`
	// Lines holds the recognized lines as a JSON array.
	Lines     string `gorm:"type:text" json:"lines"`
	LineCount int    `json:"line_count"`
	Skipped   int    `json:"skipped"`

	DeskewAngle  float64 `json:"deskew_angle"`
	DeskewCapped bool    `json:"deskew_capped"`

	// Failed rows are kept so the history shows unreadable frames too.
	Failed       bool   `gorm:"default:false;index" json:"failed"`
	FailedReason string `gorm:"size:255" json:"failed_reason,omitempty"`
}

func (c *Capture) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
