package cache

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/perchrun/perch/internal/log"
)

// maxBodyBytes caps a cached response body. Plugin payloads are small JSON
// documents; anything bigger is a misconfigured URL.
const maxBodyBytes = 4 << 20

// HTTPCache fetches URLs at most once per TTL window. Concurrent requests
// for the same URL share a single in-flight fetch, and successful bodies are
// persisted so they survive restarts.
type HTTPCache struct {
	client  *http.Client
	db      *sql.DB
	ttl     time.Duration
	group   singleflight.Group
	limiter *rate.Limiter
	mem     *Cache[string, []byte]
}

// NewHTTPCache creates an HTTP cache backed by db. db may be nil, in which
// case bodies are only cached in memory.
func NewHTTPCache(db *sql.DB, ttl time.Duration) *HTTPCache {
	return &HTTPCache{
		client:  &http.Client{Timeout: 10 * time.Second},
		db:      db,
		ttl:     ttl,
		limiter: rate.NewLimiter(rate.Every(time.Second), 4),
		mem:     New[string, []byte](ttl),
	}
}

// Get returns the body for url, fetching it if no fresh copy is cached.
func (h *HTTPCache) Get(ctx context.Context, url string) ([]byte, error) {
	if body, ok := h.mem.Get(url); ok {
		return body, nil
	}
	if body, ok := h.loadPersisted(ctx, url); ok {
		h.mem.Set(url, body)
		return body, nil
	}

	v, err, _ := h.group.Do(url, func() (any, error) {
		return h.fetch(ctx, url)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (h *HTTPCache) fetch(ctx context.Context, url string) ([]byte, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %q: %w", url, err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %q: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %q: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body of %q: %w", url, err)
	}

	h.mem.Set(url, body)
	h.persist(ctx, url, body)
	return body, nil
}

func (h *HTTPCache) loadPersisted(ctx context.Context, url string) ([]byte, bool) {
	if h.db == nil {
		return nil, false
	}
	var body []byte
	var expiresAt string
	err := h.db.QueryRowContext(ctx,
		`SELECT body, expires_at FROM http_cache WHERE url = ?`, url).
		Scan(&body, &expiresAt)
	if err != nil {
		return nil, false
	}
	expires, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil || time.Now().After(expires) {
		return nil, false
	}
	return body, true
}

func (h *HTTPCache) persist(ctx context.Context, url string, body []byte) {
	if h.db == nil {
		return
	}
	now := time.Now().UTC()
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO http_cache (url, body, fetched_at, expires_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET
		   body = excluded.body,
		   fetched_at = excluded.fetched_at,
		   expires_at = excluded.expires_at`,
		url, body, now.Format(time.RFC3339), now.Add(h.ttl).Format(time.RFC3339))
	if err != nil {
		log.WithComponent("cache").Warn("failed to persist http body",
			"url", url, "error", err)
	}
}

// SweepExpired drops expired rows and in-memory entries.
func (h *HTTPCache) SweepExpired(ctx context.Context) {
	h.mem.SweepExpired()
	if h.db == nil {
		return
	}
	_, err := h.db.ExecContext(ctx,
		`DELETE FROM http_cache WHERE expires_at < ?`,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		log.WithComponent("cache").Warn("http cache sweep failed", "error", err)
	}
}
