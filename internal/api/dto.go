package api

import "github.com/orderbridge/rpa-backend/internal/rpa/persist"

// GenericRunRequest is the body of POST /run-generic-rpa.
type GenericRunRequest struct {
	LoginURL  string `json:"login_url" binding:"required"`
	TargetURL string `json:"target_url" binding:"required"`
	Headless  bool   `json:"headless"`
	Platform  string `json:"platform"`
	UserID    string `json:"user_id"`
}

// PlatformRunRequest is the body of POST /run-rpa.
type PlatformRunRequest struct {
	Platform string `json:"platform" binding:"required"`
	UserID   string `json:"user_id"`
}

// GenericRunResponse answers /run-generic-rpa. Status is "success" or
// "error" when the job finished within the response deadline, and
// "started" when the caller should poll the run history instead.
type GenericRunResponse struct {
	Status       string                `json:"status"`
	JobID        string                `json:"job_id"`
	Message      string                `json:"message"`
	SavedRecords *persist.SavedRecords `json:"saved_records,omitempty"`
}

// PlatformRunResponse answers /run-rpa.
type PlatformRunResponse struct {
	JobID    string `json:"job_id"`
	Platform string `json:"platform"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}

// ErrorResponse carries a human-readable failure reason.
type ErrorResponse struct {
	Error string `json:"error"`
}
