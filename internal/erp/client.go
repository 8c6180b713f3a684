package erp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"zerosync/internal/domain"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// SubmitResult is the outcome of one batch submission. Submit never returns a
// Go error for remote failures; the caller branches on Success and leaves
// records pending for the next pass.
type SubmitResult struct {
	Success        bool
	BatchID        string
	SyncVersion    string
	CurrentVersion string
	ItemsProcessed int
	Error          string
}

// progressMessage is one newline-delimited progress object from the inventory
// endpoint. The stream ends with a terminal "completed" message.
type progressMessage struct {
	Status         string `json:"status"`
	Message        string `json:"message"`
	Version        string `json:"version"`
	CurrentVersion string `json:"current_version"`
	ProcessedCount int    `json:"processed_count"`
	ErrorCount     int    `json:"error_count"`
	Error          string `json:"error"`
}

// Client talks to the remote inventory ERP. Authentication is a bearer token
// obtained via login and refreshed lazily when a protected call comes back
// unauthorized.
type Client struct {
	http     *resty.Client
	username string
	password string
	source   string
	logger   *zap.Logger

	mu    sync.RWMutex
	token string

	// Retry policy. Kept as fields so tests do not sleep for real.
	maxAttempts   int
	initialDelay  time.Duration
	abortCooldown time.Duration
}

// NewClient creates the ERP client. The generous client timeout covers the
// streamed inventory submission; short status calls bound themselves with
// request contexts.
func NewClient(baseURL, username, password, source string, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5*time.Minute).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		http:          httpClient,
		username:      username,
		password:      password,
		source:        source,
		logger:        logger,
		maxAttempts:   3,
		initialDelay:  10 * time.Second,
		abortCooldown: 10 * time.Second,
	}
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Login authenticates and stores the bearer token.
func (c *Client) Login(ctx context.Context) error {
	var body struct {
		Token string `json:"token"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"username": c.username, "password": c.password}).
		SetResult(&body).
		Post("/api/users/login")
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("login failed with status %d", resp.StatusCode())
	}
	if body.Token == "" {
		return fmt.Errorf("login response carried no token")
	}
	c.setToken(body.Token)
	c.logger.Info("ERP login successful")
	return nil
}

func (c *Client) ensureToken(ctx context.Context) error {
	if c.bearer() != "" {
		return nil
	}
	return c.Login(ctx)
}

// Health checks the ERP health endpoint.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/api/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("server unhealthy, status %d", resp.StatusCode())
	}
	return nil
}

// Submit sends one batch, consuming the streamed progress response until the
// terminal completed message. Transport errors are retried with exponential
// backoff; a remote transaction-abort gets an extra cooldown before the next
// attempt. After the retries are exhausted the failure comes back in the
// result, never as a panic or unhandled error.
func (c *Client) Submit(ctx context.Context, batch *Batch) *SubmitResult {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			// 10s before the first retry, doubling after.
			delay := c.initialDelay * (1 << (attempt - 1))
			c.logger.Info("Retrying ERP submission",
				zap.String("batch_id", batch.BatchID),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return &SubmitResult{BatchID: batch.BatchID, Error: ctx.Err().Error()}
			case <-time.After(delay):
			}
		}

		result, err := c.submitOnce(ctx, batch)
		if err == nil {
			return result
		}
		lastErr = err
		c.logger.Warn("ERP submission attempt failed",
			zap.String("batch_id", batch.BatchID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if strings.Contains(err.Error(), "transaction is aborted") {
			// The remote side needs time to roll its transaction back before
			// it will accept the batch again.
			select {
			case <-ctx.Done():
				return &SubmitResult{BatchID: batch.BatchID, Error: ctx.Err().Error()}
			case <-time.After(c.abortCooldown):
			}
		}
	}
	return &SubmitResult{BatchID: batch.BatchID, Error: lastErr.Error()}
}

func (c *Client) submitOnce(ctx context.Context, batch *Batch) (*SubmitResult, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	if err := c.Health(ctx); err != nil {
		return nil, err
	}

	resp, err := c.postInventory(ctx, batch)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() == 401 {
		// Token expired; refresh once and replay.
		resp.RawBody().Close()
		if err := c.Login(ctx); err != nil {
			return nil, fmt.Errorf("token refresh failed: %w", err)
		}
		resp, err = c.postInventory(ctx, batch)
		if err != nil {
			return nil, err
		}
	}
	defer resp.RawBody().Close()

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("inventory submission failed with status %d", resp.StatusCode())
	}

	// The endpoint streams newline-delimited progress objects; only the
	// terminal completed message counts as success.
	scanner := bufio.NewScanner(resp.RawBody())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var msg progressMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			c.logger.Warn("Invalid JSON in progress stream", zap.String("line", line))
			continue
		}
		if msg.Error != "" {
			return nil, fmt.Errorf("server error: %s", msg.Error)
		}
		if msg.Status == "completed" {
			version := msg.Version
			if version == "" {
				version = SchemaVersion
			}
			return &SubmitResult{
				Success:        true,
				BatchID:        batch.BatchID,
				SyncVersion:    version,
				CurrentVersion: msg.CurrentVersion,
				ItemsProcessed: msg.ProcessedCount,
			}, nil
		}
		c.logger.Debug("Processing progress",
			zap.String("batch_id", batch.BatchID),
			zap.String("status", msg.Status),
			zap.Int("processed", msg.ProcessedCount))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("progress stream read failed: %w", err)
	}
	return nil, fmt.Errorf("processing incomplete")
}

func (c *Client) postInventory(ctx context.Context, batch *Batch) (*resty.Response, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.bearer()).
		SetHeader("X-Sync-Version", SchemaVersion).
		SetHeader("X-Batch-ID", batch.BatchID).
		SetBody(batch).
		SetDoNotParseResponse(true).
		Post("/api/data-process/inventory")
	if err != nil {
		return nil, fmt.Errorf("inventory request failed: %w", err)
	}
	return resp, nil
}

// SubmitRecords builds a batch from snapshots and submits it.
func (c *Client) SubmitRecords(ctx context.Context, records []*domain.SystemRecord) *SubmitResult {
	return c.Submit(ctx, NewBatch(c.source, records, time.Now()))
}

// ServerVersion asks the ERP for its current sync version by submitting an
// empty status batch.
func (c *Client) ServerVersion(ctx context.Context) (string, error) {
	batch := NewBatch(c.source, nil, time.Now())
	batch.BatchID = NewBatchID("STATUS", time.Now())
	result := c.Submit(ctx, batch)
	if !result.Success {
		return "", fmt.Errorf("status batch failed: %s", result.Error)
	}
	if result.CurrentVersion != "" {
		return result.CurrentVersion, nil
	}
	return result.SyncVersion, nil
}

// GetLogs fetches the remote processing logs.
func (c *Client) GetLogs(ctx context.Context) (json.RawMessage, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.bearer()).
		Get("/api/data-process/logs")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch processing logs: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("failed to fetch processing logs, status %d", resp.StatusCode())
	}
	return json.RawMessage(resp.Body()), nil
}

// CleanLogs deletes the remote processing logs. A 500 means the server is
// busy; wait once and retry before giving up.
func (c *Client) CleanLogs(ctx context.Context) error {
	if err := c.ensureToken(ctx); err != nil {
		return err
	}
	del := func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetHeader("Authorization", "Bearer "+c.bearer()).
			Delete("/api/data-process/logs")
	}

	resp, err := del()
	if err != nil {
		return fmt.Errorf("failed to clean processing logs: %w", err)
	}
	if resp.StatusCode() == 500 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.abortCooldown):
		}
		resp, err = del()
		if err != nil {
			return fmt.Errorf("failed to clean processing logs on retry: %w", err)
		}
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("failed to clean processing logs, status %d", resp.StatusCode())
	}
	return nil
}
