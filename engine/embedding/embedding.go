// Package embedding defines the text-to-vector contract shared by ingestion
// and search, plus decorators that validate, cache and throttle an Embedder.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
)

// Dimension is the vector size of all-minilm:l6-v2.
const Dimension = 384

// ErrDimensionMismatch is returned when a vector has the wrong length.
var ErrDimensionMismatch = errors.New("embedding: dimension mismatch")

// Embedder turns text into a fixed-size vector. Implementations must be
// deterministic for a fixed model and safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Func adapts a function to Embedder.
type Func func(ctx context.Context, text string) ([]float32, error)

func (f Func) Embed(ctx context.Context, text string) ([]float32, error) { return f(ctx, text) }

// WithDimension rejects vectors whose length is not n.
func WithDimension(e Embedder, n int) Embedder {
	return Func(func(ctx context.Context, text string) ([]float32, error) {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		if len(vec) != n {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), n)
		}
		return vec, nil
	})
}

// Cache stores vectors by key.
type Cache interface {
	GetEmbedding(ctx context.Context, key string) ([]float32, bool, error)
	PutEmbedding(ctx context.Context, key string, vec []float32) error
}

// CacheKey identifies the vector of text under model.
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// WithCache serves repeated texts from cache. Cache failures fall through to
// e and are logged to log, or slog.Default when log is nil.
func WithCache(e Embedder, cache Cache, model string, log *slog.Logger) Embedder {
	if log == nil {
		log = slog.Default()
	}
	return Func(func(ctx context.Context, text string) ([]float32, error) {
		key := CacheKey(model, text)
		vec, ok, err := cache.GetEmbedding(ctx, key)
		if err != nil {
			log.Warn("embedding cache read failed", "error", err)
		}
		if ok {
			return vec, nil
		}
		vec, err = e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		if err := cache.PutEmbedding(ctx, key, vec); err != nil {
			log.Warn("embedding cache write failed", "error", err)
		}
		return vec, nil
	})
}

// Waiter blocks until the caller may proceed. *rate.Limiter satisfies it.
type Waiter interface {
	Wait(ctx context.Context) error
}

// WithRateLimit waits on w before each call to e.
func WithRateLimit(e Embedder, w Waiter) Embedder {
	return Func(func(ctx context.Context, text string) ([]float32, error) {
		if err := w.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embedding: rate limit: %w", err)
		}
		return e.Embed(ctx, text)
	})
}
