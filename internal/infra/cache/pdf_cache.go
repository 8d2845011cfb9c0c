package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"quotepdf/internal/domain"
	"quotepdf/internal/infra/logging"
)

const opTimeout = 1 * time.Second

// PDFCache stores rendered PDFs in Redis. A nil *PDFCache is a disabled cache.
type PDFCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New returns a cache backed by rdb, or nil if rdb is nil.
func New(rdb *redis.Client, ttl time.Duration) *PDFCache {
	if rdb == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 1 * time.Minute
	}
	return &PDFCache{rdb: rdb, ttl: ttl}
}

// Key creates a SHA256-based cache key from the HTML and print options.
func Key(html string, opts domain.PrintOptions) string {
	h := sha256.New()
	h.Write([]byte(html))
	for _, v := range []float64{opts.PaperWidth, opts.PaperHeight, opts.MarginTop, opts.MarginRight, opts.MarginBottom, opts.MarginLeft} {
		h.Write([]byte(strconv.FormatFloat(v, 'f', 4, 64)))
	}
	h.Write([]byte(strconv.FormatBool(opts.PrintBackground)))
	return "pdfcache:" + hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached PDF, or nil on a miss. Redis errors count as misses.
func (c *PDFCache) Get(ctx context.Context, key string) []byte {
	if c == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cached, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		logging.Warn("Redis read failed", "error", err)
		return nil
	}
	logging.Info("PDF cache hit", "key", key)
	return cached
}

// Set stores pdf under key. Failures are logged and otherwise ignored.
func (c *PDFCache) Set(ctx context.Context, key string, pdf []byte) {
	if c == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.rdb.Set(ctx, key, pdf, c.ttl).Err(); err != nil {
		logging.Warn("Redis write failed", "error", err)
	}
}
