package embedding

import (
	"context"

	"sumbench/internal/logging"
	"sumbench/internal/store"
)

// cacheBatchSize caps how many cache misses go to the backend per call.
const cacheBatchSize = 32

// CachedEngine wraps an Engine with the store's embedding cache. Texts
// already embedded under the same engine name are served from SQLite,
// so resumed runs never re-embed unchanged summaries or queries.
type CachedEngine struct {
	inner Engine
	store *store.Store
}

// NewCachedEngine wraps inner with the embedding cache in st.
func NewCachedEngine(inner Engine, st *store.Store) *CachedEngine {
	return &CachedEngine{inner: inner, store: st}
}

// Embed returns the cached vector for text, embedding on a miss.
func (e *CachedEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	cached, err := e.store.GetCachedEmbeddings(e.inner.Name(), []string{text})
	if err != nil {
		return nil, err
	}
	if vec, ok := cached[text]; ok {
		return vec, nil
	}

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := e.store.PutCachedEmbeddings(e.inner.Name(), []string{text}, [][]float32{vec}); err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedBatch embeds texts, serving cache hits from the store.
func (e *CachedEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return e.EmbedBatchWithProgress(ctx, texts, nil)
}

// EmbedBatchWithProgress embeds texts and reports completion counts
// after the cache lookup and after each backend batch. Results come
// back in input order. progress may be nil.
func (e *CachedEngine) EmbedBatchWithProgress(ctx context.Context, texts []string, progress func(done, total int)) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	cached, err := e.store.GetCachedEmbeddings(e.inner.Name(), texts)
	if err != nil {
		return nil, err
	}

	// Repeated texts embed once; done counts positions in texts, not
	// unique strings, so progress lands exactly on len(texts).
	counts := make(map[string]int, len(texts))
	for _, text := range texts {
		counts[text]++
	}

	var misses []string
	seen := make(map[string]bool, len(counts))
	done := 0
	for _, text := range texts {
		if seen[text] {
			continue
		}
		seen[text] = true
		if _, hit := cached[text]; hit {
			done += counts[text]
		} else {
			misses = append(misses, text)
		}
	}

	if progress != nil {
		progress(done, len(texts))
	}
	if len(misses) > 0 {
		logging.Embedding("Cache: %d unique hits, %d misses for %s",
			len(counts)-len(misses), len(misses), e.inner.Name())
	}

	for start := 0; start < len(misses); start += cacheBatchSize {
		end := start + cacheBatchSize
		if end > len(misses) {
			end = len(misses)
		}
		chunk := misses[start:end]

		vecs, err := e.inner.EmbedBatch(ctx, chunk)
		if err != nil {
			return nil, err
		}
		if err := e.store.PutCachedEmbeddings(e.inner.Name(), chunk, vecs); err != nil {
			return nil, err
		}
		for i, text := range chunk {
			cached[text] = vecs[i]
			done += counts[text]
		}

		if progress != nil {
			progress(done, len(texts))
		}
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = cached[text]
	}
	return out, nil
}

// Dimensions delegates to the wrapped engine.
func (e *CachedEngine) Dimensions() int {
	return e.inner.Dimensions()
}

// Name returns the wrapped engine's name so cache keys stay stable
// whether or not the wrapper is in place.
func (e *CachedEngine) Name() string {
	return e.inner.Name()
}

// Local delegates to the wrapped engine.
func (e *CachedEngine) Local() bool {
	return e.inner.Local()
}
