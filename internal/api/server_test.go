package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderbridge/rpa-backend/internal/infrastructure/config"
	"github.com/orderbridge/rpa-backend/internal/infrastructure/storage"
	"github.com/orderbridge/rpa-backend/internal/rpa"
	"github.com/orderbridge/rpa-backend/internal/rpa/persist"
)

type fakeService struct {
	result      *rpa.Result // when nil, the channel never delivers
	gotReq      rpa.Request
	flowErr     error
	gotPlatform string
	gotUser     string
}

func (f *fakeService) StartGenericRun(ctx context.Context, req rpa.Request) (string, <-chan rpa.Result) {
	f.gotReq = req
	results := make(chan rpa.Result, 1)
	if f.result != nil {
		results <- *f.result
	}
	return "job-123", results
}

func (f *fakeService) StartPlatformRun(ctx context.Context, platformName, userID string) (string, error) {
	f.gotPlatform = platformName
	f.gotUser = userID
	if f.flowErr != nil {
		return "", f.flowErr
	}
	return "job-456", nil
}

type fakeHistory struct {
	runs map[string]*storage.RunRecord
}

func (f *fakeHistory) GetRun(id string) (*storage.RunRecord, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return run, nil
}

func (f *fakeHistory) ListRuns(limit int) ([]*storage.RunRecord, error) {
	var runs []*storage.RunRecord
	for _, run := range f.runs {
		runs = append(runs, run)
	}
	return runs, nil
}

func (f *fakeHistory) GetStats() (*storage.RunStats, error) {
	return &storage.RunStats{Total: len(f.runs)}, nil
}

func newTestServer(svc RunService, history RunHistory, deadlineSeconds int) *Server {
	cfg := config.ServerConfig{Port: 8000, ResponseDeadlineSeconds: deadlineSeconds}
	return NewServer(cfg, svc, history, nil)
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeService{}, &fakeHistory{}, 1)

	rec := doJSON(t, s, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestRunGenericCompletedWithinDeadline(t *testing.T) {
	svc := &fakeService{result: &rpa.Result{
		Success:      true,
		SavedRecords: persist.SavedRecords{Customers: 1, Orders: 1, Items: 2},
		Message:      "RPA実行が完了しました",
	}}
	s := newTestServer(svc, &fakeHistory{}, 60)

	rec := doJSON(t, s, http.MethodPost, "/run-generic-rpa",
		`{"login_url": "https://example.com/login", "target_url": "https://example.com/orders/1", "platform": "base"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var body GenericRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, "job-123", body.JobID)
	require.NotNil(t, body.SavedRecords)
	assert.Equal(t, 2, body.SavedRecords.Items)

	assert.Equal(t, "base", svc.gotReq.Platform)
	assert.Equal(t, "https://example.com/orders/1", svc.gotReq.TargetURL)
}

func TestRunGenericFailureWithinDeadline(t *testing.T) {
	svc := &fakeService{result: &rpa.Result{Success: false, Message: "データが保存されませんでした"}}
	s := newTestServer(svc, &fakeHistory{}, 60)

	rec := doJSON(t, s, http.MethodPost, "/run-generic-rpa",
		`{"login_url": "https://a.example", "target_url": "https://b.example"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var body GenericRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body.Status)
	assert.Equal(t, "データが保存されませんでした", body.Message)
}

func TestRunGenericDeadlineAnswersStarted(t *testing.T) {
	// The fake never delivers, so the deadline fires.
	svc := &fakeService{result: nil}
	s := newTestServer(svc, &fakeHistory{}, 1)
	s.cfg.ResponseDeadlineSeconds = 1

	start := time.Now()
	rec := doJSON(t, s, http.MethodPost, "/run-generic-rpa",
		`{"login_url": "https://a.example", "target_url": "https://b.example"}`)
	elapsed := time.Since(start)

	require.Equal(t, http.StatusOK, rec.Code)
	var body GenericRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "started", body.Status)
	assert.Equal(t, "job-123", body.JobID)
	assert.Contains(t, body.Message, "https://b.example")
	assert.Nil(t, body.SavedRecords)
	assert.GreaterOrEqual(t, elapsed, time.Second)
}

func TestRunGenericValidation(t *testing.T) {
	s := newTestServer(&fakeService{}, &fakeHistory{}, 60)

	rec := doJSON(t, s, http.MethodPost, "/run-generic-rpa", `{"login_url": "https://a.example"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunPlatform(t *testing.T) {
	s := newTestServer(&fakeService{}, &fakeHistory{}, 60)

	rec := doJSON(t, s, http.MethodPost, "/run-rpa", `{"platform": "base", "user_id": "U1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var body PlatformRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "started", body.Status)
	assert.Equal(t, "job-456", body.JobID)
	assert.Equal(t, "base", body.Platform)
}

func TestRunPlatformSimple(t *testing.T) {
	svc := &fakeService{}
	s := newTestServer(svc, &fakeHistory{}, 60)

	rec := doJSON(t, s, http.MethodPost, "/run-rpa-simple", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body PlatformRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "started", body.Status)
	assert.Equal(t, "base", body.Platform)
	assert.Equal(t, "base", svc.gotPlatform)
	assert.Empty(t, svc.gotUser)
}

func TestRunPlatformUnsupported(t *testing.T) {
	svc := &fakeService{flowErr: fmt.Errorf("unsupported platform: shopify")}
	s := newTestServer(svc, &fakeHistory{}, 60)

	rec := doJSON(t, s, http.MethodPost, "/run-rpa", `{"platform": "shopify"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "サポートされていないプラットフォーム")
}

func TestRunsEndpoints(t *testing.T) {
	history := &fakeHistory{runs: map[string]*storage.RunRecord{
		"job-1": {ID: "job-1", Platform: "base", Status: storage.StatusCompleted},
	}}
	s := newTestServer(&fakeService{}, history, 60)

	rec := doJSON(t, s, http.MethodGet, "/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = doJSON(t, s, http.MethodGet, "/runs/job-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"platform":"base"`)

	rec = doJSON(t, s, http.MethodGet, "/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStats(t *testing.T) {
	history := &fakeHistory{runs: map[string]*storage.RunRecord{"a": {ID: "a"}}}
	s := newTestServer(&fakeService{}, history, 60)

	rec := doJSON(t, s, http.MethodGet, "/stats", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)
}

func TestHistoryUnavailable(t *testing.T) {
	s := newTestServer(&fakeService{}, nil, 60)

	for _, path := range []string{"/runs", "/runs/x", "/stats"} {
		rec := doJSON(t, s, http.MethodGet, path, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}
