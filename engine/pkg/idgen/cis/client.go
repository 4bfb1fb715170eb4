// Package cis is an idgen.Client for the component identifier service REST
// API.
package cis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/ihtsdo/rf2release/engine/pkg/idgen"
)

const (
	software = "srs"

	DefaultBatchSize         = 1000
	DefaultRequestsPerSecond = 10
	DefaultJobPollInterval   = 2 * time.Second
	DefaultJobTimeout        = 10 * time.Minute
	DefaultRequestTimeout    = 60 * time.Second
)

// Bulk job states reported by the service.
const (
	jobPending = iota
	jobRunning
	jobCompletedWithSuccess
	jobCompletedWithError
)

type Config struct {
	Logger   *slog.Logger
	BaseURL  string
	Username string
	Password string

	HTTPClient *http.Client
	// BatchSize bounds the UUIDs sent in one bulk job.
	BatchSize int
	// RequestsPerSecond throttles every call to the service.
	RequestsPerSecond float64
	JobPollInterval   time.Duration
	JobTimeout        time.Duration
	Clock             clockwork.Clock
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.BaseURL == "" {
		return errors.New("base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.JobPollInterval <= 0 {
		cfg.JobPollInterval = DefaultJobPollInterval
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// StatusError is a non-2xx response from the service.
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("identifier service returned status %d for %s: %s", e.Code, e.URL, e.Body)
}

func (e *StatusError) StatusCode() int { return e.Code }

// Client logs in lazily and re-authenticates after the session token is
// rejected.
type Client struct {
	log     *slog.Logger
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter

	mu    sync.Mutex
	token string
}

var _ idgen.Client = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		log:     cfg.Logger,
		cfg:     cfg,
		http:    cfg.HTTPClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}, nil
}

type sctidRequest struct {
	Namespace         int      `json:"namespace"`
	PartitionID       string   `json:"partitionId"`
	SystemID          string   `json:"systemId,omitempty"`
	SystemIDs         []string `json:"systemIds,omitempty"`
	Quantity          int      `json:"quantity,omitempty"`
	Software          string   `json:"software"`
	GenerateLegacyIDs string   `json:"generateLegacyIds"`
	Comment           string   `json:"comment"`
}

type schemeRequest struct {
	SystemIDs []string `json:"systemIds"`
	Quantity  int      `json:"quantity"`
	Software  string   `json:"software"`
	Comment   string   `json:"comment"`
}

type sctidResponse struct {
	SCTID json.Number `json:"sctid"`
}

type jobResponse struct {
	ID json.Number `json:"id"`
}

type jobStatusResponse struct {
	Status int    `json:"status"`
	Log    string `json:"log"`
}

type jobRecord struct {
	SystemID string      `json:"systemId"`
	SCTID    json.Number `json:"sctid"`
	SchemeID string      `json:"schemeId"`
}

func (c *Client) CreateSCTID(ctx context.Context, req idgen.Request, id uuid.UUID) (int64, error) {
	body := sctidRequest{
		Namespace:         req.Namespace,
		PartitionID:       req.PartitionID,
		SystemID:          id.String(),
		Software:          software,
		GenerateLegacyIDs: "false",
		Comment:           req.Comment(),
	}
	var resp sctidResponse
	if err := c.call(ctx, http.MethodPost, "/sct/generate", body, &resp); err != nil {
		return 0, fmt.Errorf("failed to create SCTID for %s: %w", id, err)
	}
	sctid, err := resp.SCTID.Int64()
	if err != nil {
		return 0, fmt.Errorf("identifier service returned invalid SCTID %q: %w", resp.SCTID, err)
	}
	return sctid, nil
}

func (c *Client) CreateSCTIDs(ctx context.Context, req idgen.Request, ids []uuid.UUID) (map[uuid.UUID]int64, error) {
	out := make(map[uuid.UUID]int64, len(ids))
	for batch := range chunk(ids, c.cfg.BatchSize) {
		systemIDs := systemIDs(batch)
		body := sctidRequest{
			Namespace:         req.Namespace,
			PartitionID:       req.PartitionID,
			SystemIDs:         systemIDs,
			Quantity:          len(systemIDs),
			Software:          software,
			GenerateLegacyIDs: "false",
			Comment:           req.Comment(),
		}
		records, err := c.runJob(ctx, "/sct/bulk/generate", body)
		if err != nil {
			return nil, fmt.Errorf("bulk SCTID job failed: %w", err)
		}
		for _, r := range records {
			id, err := uuid.Parse(r.SystemID)
			if err != nil {
				return nil, fmt.Errorf("bulk job returned invalid system id %q: %w", r.SystemID, err)
			}
			sctid, err := r.SCTID.Int64()
			if err != nil {
				return nil, fmt.Errorf("bulk job returned invalid SCTID %q: %w", r.SCTID, err)
			}
			out[id] = sctid
		}
	}
	return out, nil
}

func (c *Client) CreateSchemeIDs(ctx context.Context, scheme idgen.Scheme, ids []uuid.UUID, comment string) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string, len(ids))
	for batch := range chunk(ids, c.cfg.BatchSize) {
		systemIDs := systemIDs(batch)
		body := schemeRequest{
			SystemIDs: systemIDs,
			Quantity:  len(systemIDs),
			Software:  software,
			Comment:   comment,
		}
		records, err := c.runJob(ctx, "/scheme/"+url.PathEscape(string(scheme))+"/bulk/generate", body)
		if err != nil {
			return nil, fmt.Errorf("bulk %s job failed: %w", scheme, err)
		}
		for _, r := range records {
			id, err := uuid.Parse(r.SystemID)
			if err != nil {
				return nil, fmt.Errorf("bulk job returned invalid system id %q: %w", r.SystemID, err)
			}
			out[id] = r.SchemeID
		}
	}
	return out, nil
}

// runJob starts a bulk job, waits for it to finish and returns its records.
func (c *Client) runJob(ctx context.Context, path string, body any) ([]jobRecord, error) {
	var job jobResponse
	if err := c.call(ctx, http.MethodPost, path, body, &job); err != nil {
		return nil, err
	}
	jobID := job.ID.String()
	if jobID == "" {
		return nil, errors.New("bulk job response has no id")
	}
	c.log.Info("cis: bulk job started", "job", jobID, "path", path)

	deadline := c.cfg.Clock.Now().Add(c.cfg.JobTimeout)
	for {
		var status jobStatusResponse
		if err := c.call(ctx, http.MethodGet, "/bulk/jobs/"+url.PathEscape(jobID), nil, &status); err != nil {
			return nil, err
		}
		if status.Status != jobPending && status.Status != jobRunning {
			if status.Status != jobCompletedWithSuccess {
				return nil, fmt.Errorf("bulk job %s finished with status %d: %s", jobID, status.Status, status.Log)
			}
			break
		}
		if c.cfg.Clock.Now().After(deadline) {
			return nil, fmt.Errorf("%w: bulk job %s did not complete within %s", idgen.ErrTransient, jobID, c.cfg.JobTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.cfg.Clock.After(c.cfg.JobPollInterval):
		}
	}

	var records []jobRecord
	if err := c.call(ctx, http.MethodGet, "/bulk/jobs/"+url.PathEscape(jobID)+"/records", nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// call performs one authenticated request and decodes the JSON response.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	token, err := c.login(ctx)
	if err != nil {
		return err
	}
	err = c.do(ctx, method, path+"?token="+url.QueryEscape(token), body, out)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusUnauthorized {
		c.mu.Lock()
		if c.token == token {
			c.token = ""
		}
		c.mu.Unlock()
		return fmt.Errorf("%w: session token rejected: %w", idgen.ErrTransient, err)
	}
	return err
}

func (c *Client) login(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}
	c.log.Info("cis: logging in", "url", c.cfg.BaseURL, "user", c.cfg.Username)
	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]string{"username": c.cfg.Username, "password": c.cfg.Password}
	if err := c.do(ctx, http.MethodPost, "/login", body, &resp); err != nil {
		return "", fmt.Errorf("failed to log in: %w", err)
	}
	if resp.Token == "" {
		return "", errors.New("login response did not contain a token")
	}
	c.token = resp.Token
	return c.token, nil
}

func (c *Client) do(ctx context.Context, method, pathAndQuery string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+pathAndQuery, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Code: resp.StatusCode, URL: req.URL.Path, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func systemIDs(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func chunk(ids []uuid.UUID, size int) func(yield func([]uuid.UUID) bool) {
	return func(yield func([]uuid.UUID) bool) {
		for start := 0; start < len(ids); start += size {
			end := min(start+size, len(ids))
			if !yield(ids[start:end]) {
				return
			}
		}
	}
}
