package api

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orderbridge/rpa-backend/internal/rpa"
)

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "RPA実行APIサーバー"})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// runGeneric handles POST /run-generic-rpa. The job runs in the
// background; the handler races its completion against the response
// deadline and answers with either the finished result or a
// "started" acknowledgment the client can poll on.
func (s *Server) runGeneric(c *gin.Context) {
	var req GenericRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "login_url and target_url are required"})
		return
	}

	jobID, results := s.service.StartGenericRun(c.Request.Context(), rpa.Request{
		LoginURL:  req.LoginURL,
		TargetURL: req.TargetURL,
		Headless:  req.Headless,
		Platform:  req.Platform,
		UserID:    req.UserID,
	})

	deadline := time.NewTimer(s.cfg.ResponseDeadline())
	defer deadline.Stop()

	select {
	case result := <-results:
		status := "success"
		if !result.Success {
			status = "error"
		}
		saved := result.SavedRecords
		c.JSON(http.StatusOK, GenericRunResponse{
			Status:       status,
			JobID:        jobID,
			Message:      result.Message,
			SavedRecords: &saved,
		})
	case <-deadline.C:
		c.JSON(http.StatusOK, GenericRunResponse{
			Status:  "started",
			JobID:   jobID,
			Message: fmt.Sprintf("汎用RPAが起動しました。ターゲットURL (%s) からデータを取得します。", req.TargetURL),
		})
	}
}

// runPlatform handles POST /run-rpa, fire-and-forget.
func (s *Server) runPlatform(c *gin.Context) {
	var req PlatformRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "platform is required"})
		return
	}

	jobID, err := s.service.StartPlatformRun(c.Request.Context(), req.Platform, req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("サポートされていないプラットフォーム: %s", req.Platform),
		})
		return
	}

	c.JSON(http.StatusOK, PlatformRunResponse{
		JobID:    jobID,
		Platform: req.Platform,
		Status:   "started",
		Message:  "RPAが起動しました。ブラウザが開きますので、ログイン後、注文を取得します。",
	})
}

// runPlatformSimple handles POST /run-rpa-simple, a parameterless
// shortcut that always runs the BASE flow.
func (s *Server) runPlatformSimple(c *gin.Context) {
	jobID, err := s.service.StartPlatformRun(c.Request.Context(), "base", "")
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, PlatformRunResponse{
		JobID:    jobID,
		Platform: "base",
		Status:   "started",
		Message:  "RPAが起動しました。ブラウザが開きますので、ログイン後、注文を取得します。",
	})
}

func (s *Server) listRuns(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "run history is not available"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := s.history.ListRuns(limit)
	if err != nil {
		s.logger.Error("listing runs failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "could not list runs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

func (s *Server) getRun(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "run history is not available"})
		return
	}

	run, err := s.history.GetRun(c.Param("id"))
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "run not found"})
		return
	}
	if err != nil {
		s.logger.Error("fetching run failed", "id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "could not fetch run"})
		return
	}

	c.JSON(http.StatusOK, run)
}

func (s *Server) getStats(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "run history is not available"})
		return
	}

	stats, err := s.history.GetStats()
	if err != nil {
		s.logger.Error("computing stats failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "could not compute stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}
