package storage

import "time"

// Run statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RunRecord is one RPA execution in the local history.
type RunRecord struct {
	ID          string     `json:"id"`
	Platform    string     `json:"platform"`
	LoginURL    string     `json:"login_url,omitempty"`
	TargetURL   string     `json:"target_url,omitempty"`
	UserID      string     `json:"user_id,omitempty"`
	Status      string     `json:"status"`
	Success     bool       `json:"success"`
	Customers   int        `json:"customers"`
	Orders      int        `json:"orders"`
	Items       int        `json:"items"`
	Message     string     `json:"message,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RunStats aggregates the recent run history.
type RunStats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Running   int `json:"running"`
	SavedRows int `json:"saved_rows"`
}
