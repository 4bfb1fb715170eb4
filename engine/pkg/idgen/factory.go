package idgen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/ihtsdo/rf2release/engine/pkg/metrics"
	"github.com/ihtsdo/rf2release/utils/pkg/retry"
)

const DefaultMaxTries = 3

type Config struct {
	Logger      *slog.Logger
	Client      Client
	Namespace   int
	ReleaseID   string
	ExecutionID string
	// MaxTries bounds the attempts per remote call, the first included.
	MaxTries int
	// RetryDelay is waited between attempts. Zero re-issues immediately.
	RetryDelay time.Duration
	// Retryable classifies failures; defaults to IsTransient.
	Retryable func(error) bool
	Clock     clockwork.Clock
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("client is required")
	}
	if cfg.Namespace < 0 {
		return fmt.Errorf("invalid namespace %d", cfg.Namespace)
	}
	if cfg.MaxTries <= 0 {
		cfg.MaxTries = DefaultMaxTries
	}
	if cfg.RetryDelay < 0 {
		return errors.New("retry delay must not be negative")
	}
	if cfg.Retryable == nil {
		cfg.Retryable = IsTransient
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// IsTransient reports whether an identifier service failure may succeed when
// re-issued.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || retry.IsRetryable(err)
}

// CachedFactory hands out SCTIDs for content UUIDs, asking the identifier
// service only for UUIDs it has not resolved during this build. Namespace,
// release id and execution id are fixed for its lifetime.
type CachedFactory struct {
	log    *slog.Logger
	cfg    Config
	client Client

	mu    sync.RWMutex
	cache map[string]int64
}

func NewCachedFactory(cfg Config) (*CachedFactory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &CachedFactory{
		log:    cfg.Logger,
		cfg:    cfg,
		client: cfg.Client,
		cache:  make(map[string]int64),
	}, nil
}

func (f *CachedFactory) Namespace() int { return f.cfg.Namespace }

func (f *CachedFactory) request(partitionID, moduleID string) Request {
	return Request{
		Namespace:   f.cfg.Namespace,
		PartitionID: partitionID,
		ReleaseID:   f.cfg.ReleaseID,
		ExecutionID: f.cfg.ExecutionID,
		ModuleID:    moduleID,
	}
}

// GetSCTID returns the SCTID for a content UUID, creating it on first use.
func (f *CachedFactory) GetSCTID(ctx context.Context, componentUUID, partitionID, moduleID string) (int64, error) {
	if sctid, ok := f.GetSCTIDFromCache(componentUUID); ok {
		metrics.IdentifierCacheHitsTotal.Inc()
		return sctid, nil
	}
	id, err := uuid.Parse(componentUUID)
	if err != nil {
		return 0, fmt.Errorf("invalid component uuid %q: %w", componentUUID, err)
	}
	req := f.request(partitionID, moduleID)
	sctid, err := call(ctx, f, "create_sctid", func() (int64, error) {
		return f.client.CreateSCTID(ctx, req, id)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get SCTID for %s: %w", componentUUID, err)
	}
	f.store(id.String(), sctid)
	return sctid, nil
}

// GetSCTIDs resolves a batch of content UUIDs with one remote call for the
// ones not cached yet.
func (f *CachedFactory) GetSCTIDs(ctx context.Context, componentUUIDs []string, partitionID, moduleID string) (map[string]int64, error) {
	out := make(map[string]int64, len(componentUUIDs))
	var missing []uuid.UUID
	seen := make(map[uuid.UUID]struct{})
	for _, s := range componentUUIDs {
		if sctid, ok := f.GetSCTIDFromCache(s); ok {
			metrics.IdentifierCacheHitsTotal.Inc()
			out[s] = sctid
			continue
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid component uuid %q: %w", s, err)
		}
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	f.log.Info("idgen: batch identifier request", "size", len(missing), "partition", partitionID)
	req := f.request(partitionID, moduleID)
	created, err := call(ctx, f, "create_sctids", func() (map[uuid.UUID]int64, error) {
		return f.client.CreateSCTIDs(ctx, req, missing)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %d SCTIDs: %w", len(missing), err)
	}
	for _, id := range missing {
		sctid, ok := created[id]
		if !ok {
			return nil, fmt.Errorf("identifier service returned no SCTID for %s", id)
		}
		f.store(id.String(), sctid)
	}
	for _, s := range componentUUIDs {
		if _, ok := out[s]; !ok {
			out[s], _ = f.GetSCTIDFromCache(s)
		}
	}
	return out, nil
}

// GetSchemeIDs creates legacy scheme ids for component UUIDs. Scheme ids are
// not cached.
func (f *CachedFactory) GetSchemeIDs(ctx context.Context, componentUUIDs []uuid.UUID, scheme Scheme) (map[uuid.UUID]string, error) {
	if len(componentUUIDs) == 0 {
		return map[uuid.UUID]string{}, nil
	}
	comment := f.request("", "").Comment()
	ids, err := call(ctx, f, "create_scheme_ids", func() (map[uuid.UUID]string, error) {
		return f.client.CreateSchemeIDs(ctx, scheme, componentUUIDs, comment)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s ids: %w", scheme, err)
	}
	return ids, nil
}

// GetSCTIDFromCache returns an SCTID assigned earlier in this build.
func (f *CachedFactory) GetSCTIDFromCache(componentUUID string) (int64, bool) {
	key := componentUUID
	if id, err := uuid.Parse(componentUUID); err == nil {
		key = id.String()
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	sctid, ok := f.cache[key]
	return sctid, ok
}

// CacheSize is the number of UUIDs resolved so far.
func (f *CachedFactory) CacheSize() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.cache)
}

// Snapshot copies the UUID to SCTID assignments made so far.
func (f *CachedFactory) Snapshot() map[string]int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return maps.Clone(f.cache)
}

func (f *CachedFactory) store(key string, sctid int64) {
	f.mu.Lock()
	f.cache[key] = sctid
	f.mu.Unlock()
}

// call runs fn under the retry policy, recording attempts and latency.
func call[T any](ctx context.Context, f *CachedFactory, operation string, fn func() (T, error)) (T, error) {
	cfg := retry.Immediate(f.cfg.MaxTries)
	cfg.Retryable = f.cfg.Retryable
	cfg.OnRetry = func(attempt int, err error) {
		f.log.Warn("idgen: identifier service call failed, retrying",
			"operation", operation, "attempt", attempt, "max_tries", f.cfg.MaxTries, "delay", f.cfg.RetryDelay, "error", err)
		if f.cfg.RetryDelay > 0 {
			select {
			case <-ctx.Done():
			case <-f.cfg.Clock.After(f.cfg.RetryDelay):
			}
		}
	}
	return retry.DoValue(ctx, cfg, func() (T, error) {
		start := f.cfg.Clock.Now()
		v, err := fn()
		metrics.IdentifierRequestDuration.WithLabelValues(operation).Observe(f.cfg.Clock.Since(start).Seconds())
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.IdentifierRequestsTotal.WithLabelValues(operation, status).Inc()
		return v, err
	})
}
