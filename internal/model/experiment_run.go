package model

import (
	"time"

	"gorm.io/gorm"
)

// ExperimentRun is one scheduled traffic experiment and its score.
type ExperimentRun struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	TraceFile string `gorm:"type:varchar(500);not null" json:"trace_file"`
	LogDir    string `gorm:"type:varchar(500)" json:"log_dir"`
	Protocol  string `gorm:"type:varchar(10);index" json:"protocol"`
	Port      int    `json:"port"`
	// JSON arrays of host names
	HostsJSON                string `gorm:"type:text" json:"hosts_json"`
	RequestResponseHostsJSON string `gorm:"type:text" json:"request_response_hosts_json"`

	DurationSeconds float64 `json:"duration_seconds"`
	EpochUnix       int64   `gorm:"index" json:"epoch_unix"`
	// running / completed / interrupted
	Status string `gorm:"type:varchar(20);index" json:"status"`

	ThroughputValid   bool    `json:"throughput_valid"`
	ThroughputAvg     float64 `json:"throughput_avg"`
	ThroughputScore   float64 `json:"throughput_score"`
	ThroughputSamples int     `json:"throughput_samples"`
	LatencyValid      bool    `json:"latency_valid"`
	LatencyAvg        float64 `json:"latency_avg"`
	LatencyScore      float64 `json:"latency_score"`
	LatencySamples    int     `json:"latency_samples"`
	WeightA           float64 `json:"weight_a"`
	WeightB           float64 `json:"weight_b"`
	FinalScore        float64 `json:"final_score"`

	ResultPath string `gorm:"type:varchar(500)" json:"result_path"`
	ReportPath string `gorm:"type:varchar(500)" json:"report_path"`

	Failures []RunFailure `gorm:"foreignKey:RunID" json:"failures,omitempty"`
}

const (
	RunStatusRunning     = "running"
	RunStatusCompleted   = "completed"
	RunStatusInterrupted = "interrupted"
)
