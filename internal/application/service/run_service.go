package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orderbridge/rpa-backend/internal/infrastructure/storage"
	"github.com/orderbridge/rpa-backend/internal/platforms"
	"github.com/orderbridge/rpa-backend/internal/rpa"
)

// RunStatus represents the current state of an RPA job.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// DefaultJobMaxAge is how long finished jobs stay in memory before
// the background cleanup drops them.
const DefaultJobMaxAge = 24 * time.Hour

// RunJob represents a running or completed RPA job.
type RunJob struct {
	ID          string
	Platform    string
	Status      RunStatus
	Request     rpa.Request
	StartedAt   time.Time
	CompletedAt *time.Time
	Result      *rpa.Result
}

// GenericRunner executes one full scrape job.
type GenericRunner interface {
	Run(ctx context.Context, req rpa.Request) rpa.Result
}

// PlatformFlow executes the per-platform list scrape.
type PlatformFlow interface {
	Run(ctx context.Context, platformName, userID, jobID string) bool
}

// RunHistory persists run records across restarts.
type RunHistory interface {
	CreateRun(record *storage.RunRecord) error
	MarkRunning(id string) error
	CompleteRun(id string, success bool, customers, orders, items int, message string) error
	GetRun(id string) (*storage.RunRecord, error)
	ListRuns(limit int) ([]*storage.RunRecord, error)
}

// RunService manages RPA jobs: it assigns ids, runs each job in a
// background goroutine detached from the caller's context, tracks
// in-memory status and mirrors outcomes into the run history.
type RunService struct {
	runner  GenericRunner
	flow    PlatformFlow
	history RunHistory
	logger  *slog.Logger

	jobs      map[string]*RunJob
	jobsMutex sync.RWMutex

	cleanupStop chan struct{}
	cleanupDone chan struct{}
}

func NewRunService(runner GenericRunner, flow PlatformFlow, history RunHistory, logger *slog.Logger) *RunService {
	return &RunService{
		runner:  runner,
		flow:    flow,
		history: history,
		logger:  logger,
		jobs:    make(map[string]*RunJob),
	}
}

// StartGenericRun launches the generic pipeline in the background and
// returns the job id together with a channel that delivers the result
// exactly once. The channel is buffered so the job never blocks on a
// caller that stopped listening.
//
// The passed context is NOT the parent of the background job: the job
// must survive the HTTP request that started it.
func (s *RunService) StartGenericRun(_ context.Context, req rpa.Request) (string, <-chan rpa.Result) {
	jobID := uuid.New().String()
	req.JobID = jobID

	job := &RunJob{
		ID:        jobID,
		Platform:  req.Platform,
		Status:    StatusPending,
		Request:   req,
		StartedAt: time.Now(),
	}
	s.jobsMutex.Lock()
	s.jobs[jobID] = job
	s.jobsMutex.Unlock()

	s.recordCreate(&storage.RunRecord{
		ID:        jobID,
		Platform:  req.Platform,
		LoginURL:  req.LoginURL,
		TargetURL: req.TargetURL,
		UserID:    req.UserID,
	})

	results := make(chan rpa.Result, 1)
	go s.runGenericJob(job, results)

	s.logger.Info("rpa job started",
		"job_id", jobID,
		"platform", req.Platform,
		"target_url", req.TargetURL,
	)
	return jobID, results
}

// StartPlatformRun launches the platform list scrape fire-and-forget.
// It returns an error only for an unknown platform, before any work
// starts.
func (s *RunService) StartPlatformRun(_ context.Context, platformName, userID string) (string, error) {
	if _, ok := platforms.Lookup(platformName); !ok {
		return "", fmt.Errorf("unsupported platform: %s", platformName)
	}

	jobID := uuid.New().String()
	job := &RunJob{
		ID:        jobID,
		Platform:  platformName,
		Status:    StatusPending,
		StartedAt: time.Now(),
	}
	s.jobsMutex.Lock()
	s.jobs[jobID] = job
	s.jobsMutex.Unlock()

	s.recordCreate(&storage.RunRecord{ID: jobID, Platform: platformName, UserID: userID})

	go s.runPlatformJob(job, platformName, userID)

	s.logger.Info("platform job started", "job_id", jobID, "platform", platformName)
	return jobID, nil
}

// GetJob retrieves a snapshot of a job by id. A copy is returned so
// callers never observe the background goroutine's writes; the pointer
// fields (Result, CompletedAt) are set once at completion and never
// mutated afterwards.
func (s *RunService) GetJob(jobID string) (RunJob, error) {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return RunJob{}, fmt.Errorf("job not found: %s", jobID)
	}
	return *job, nil
}

// ListJobs returns snapshots of all in-memory jobs.
func (s *RunService) ListJobs() []RunJob {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()

	jobs := make([]RunJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, *job)
	}
	return jobs
}

// History exposes the persistent run history.
func (s *RunService) History() RunHistory {
	return s.history
}

func (s *RunService) runGenericJob(job *RunJob, results chan<- rpa.Result) {
	s.markRunning(job.ID)

	result := s.runner.Run(context.Background(), job.Request)
	results <- result

	s.finishJob(job.ID, result)
}

func (s *RunService) runPlatformJob(job *RunJob, platformName, userID string) {
	s.markRunning(job.ID)

	ok := s.flow.Run(context.Background(), platformName, userID, job.ID)
	message := "プラットフォームRPAが完了しました"
	if !ok {
		message = "プラットフォームRPAが失敗しました"
	}
	s.finishJob(job.ID, rpa.Result{Success: ok, Message: message})
}

func (s *RunService) markRunning(jobID string) {
	s.jobsMutex.Lock()
	if job, exists := s.jobs[jobID]; exists {
		job.Status = StatusRunning
	}
	s.jobsMutex.Unlock()

	if s.history != nil {
		if err := s.history.MarkRunning(jobID); err != nil {
			s.logger.Warn("could not mark run as running", "job_id", jobID, "error", err)
		}
	}
}

func (s *RunService) finishJob(jobID string, result rpa.Result) {
	s.jobsMutex.Lock()
	if job, exists := s.jobs[jobID]; exists {
		now := time.Now()
		job.CompletedAt = &now
		job.Result = &result
		if result.Success {
			job.Status = StatusCompleted
		} else {
			job.Status = StatusFailed
		}
	}
	s.jobsMutex.Unlock()

	if s.history != nil {
		err := s.history.CompleteRun(jobID, result.Success,
			result.SavedRecords.Customers, result.SavedRecords.Orders, result.SavedRecords.Items,
			result.Message)
		if err != nil {
			s.logger.Warn("could not persist run outcome", "job_id", jobID, "error", err)
		}
	}

	if result.Success {
		s.logger.Info("rpa job completed", "job_id", jobID,
			"customers", result.SavedRecords.Customers,
			"orders", result.SavedRecords.Orders,
			"items", result.SavedRecords.Items)
	} else {
		s.logger.Error("rpa job failed", "job_id", jobID, "message", result.Message)
	}
}

func (s *RunService) recordCreate(record *storage.RunRecord) {
	if s.history == nil {
		return
	}
	if err := s.history.CreateRun(record); err != nil {
		s.logger.Warn("could not persist run record", "job_id", record.ID, "error", err)
	}
}

// CleanupOldJobs removes finished jobs older than maxAge from memory.
// The persistent history is unaffected.
func (s *RunService) CleanupOldJobs(maxAge time.Duration) int {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, job := range s.jobs {
		if job.Status != StatusCompleted && job.Status != StatusFailed {
			continue
		}
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debug("cleaned up old rpa jobs", "removed", removed)
	}
	return removed
}

// StartBackgroundCleanup launches a goroutine that periodically drops
// old finished jobs. Call StopBackgroundCleanup on shutdown.
func (s *RunService) StartBackgroundCleanup(checkInterval time.Duration) {
	if s.cleanupStop != nil {
		return
	}
	s.cleanupStop = make(chan struct{})
	s.cleanupDone = make(chan struct{})

	go func() {
		defer close(s.cleanupDone)
		ticker := time.NewTicker(checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.cleanupStop:
				return
			case <-ticker.C:
				s.CleanupOldJobs(DefaultJobMaxAge)
			}
		}
	}()
}

// StopBackgroundCleanup stops the cleanup goroutine and waits for it.
func (s *RunService) StopBackgroundCleanup() {
	if s.cleanupStop == nil {
		return
	}
	close(s.cleanupStop)
	<-s.cleanupDone
	s.cleanupStop = nil
	s.cleanupDone = nil
}
