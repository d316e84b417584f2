package model

import (
	"time"

	"gorm.io/gorm"
)

// RunFailure is one non-fatal error met during a run: a dispatch that
// failed, a client that timed out, or a result log that could not be used.
type RunFailure struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	RunID uint   `gorm:"not null;index" json:"run_id"`
	Host  string `gorm:"type:varchar(100);index" json:"host"`
	// dispatch / client_timeout / client_exit / empty_log / malformed_log
	Kind     string `gorm:"type:varchar(20);index" json:"kind"`
	Workload string `gorm:"type:varchar(20)" json:"workload"`
	Message  string `gorm:"type:text;not null" json:"message"`
}
