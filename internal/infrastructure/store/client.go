// Package store talks to the remote Supabase project over PostgREST.
//
// Writes are upserts keyed by the row's id column: repeated calls with
// the same id overwrite rather than duplicate. Conflicts between
// concurrent jobs resolve last-writer-wins inside the store.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/orderbridge/rpa-backend/internal/infrastructure/config"
)

// Client is a thin PostgREST client bound to one project.
type Client struct {
	baseURL string
	key     string
	http    *retryablehttp.Client
	logger  *slog.Logger
}

// NewClient validates credentials and builds a client. Missing
// credentials are a configuration failure and must abort before any
// browser work starts.
func NewClient(cfg config.SupabaseConfig, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" || cfg.Key == "" {
		return nil, fmt.Errorf("store: supabase url and key are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.Logger = nil

	return &Client{
		baseURL: cfg.URL,
		key:     cfg.Key,
		http:    rc,
		logger:  logger,
	}, nil
}

// Upsert writes rows into table, merging on the id column, and returns
// the rows the store acknowledges. The returned slice length is the
// authoritative persisted count.
func (c *Client) Upsert(ctx context.Context, table string, rows []map[string]any) ([]map[string]any, error) {
	body, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("store: encoding %s rows: %w", table, err)
	}

	url := fmt.Sprintf("%s/rest/v1/%s?on_conflict=id", c.baseURL, table)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("store: building request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=representation")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("store: upsert %s: %w", table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("store: upsert %s: status %d: %s", table, resp.StatusCode, detail)
	}

	var saved []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&saved); err != nil {
		return nil, fmt.Errorf("store: decoding %s response: %w", table, err)
	}

	c.logger.Debug("upsert acknowledged", "table", table, "sent", len(rows), "saved", len(saved))
	return saved, nil
}

// Insert appends a single row without conflict handling.
func (c *Client) Insert(ctx context.Context, table string, row map[string]any) error {
	body, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("store: encoding %s row: %w", table, err)
	}

	url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, table)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("store: building request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Prefer", "return=minimal")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("store: insert %s: %w", table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("store: insert %s: status %d: %s", table, resp.StatusCode, detail)
	}
	return nil
}

func (c *Client) setHeaders(req *retryablehttp.Request) {
	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Content-Type", "application/json")
}
