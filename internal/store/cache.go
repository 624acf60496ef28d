package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"sumbench/internal/errs"
)

// ContentHash is the embedding-cache key: the hash covers the model so
// the same text embedded by two models never collides.
func ContentHash(model, text string) string {
	sum := sha256.Sum256([]byte(model + "::" + text))
	return hex.EncodeToString(sum[:])
}

// encodeVector packs an embedding as little-endian float32 bytes, the
// layout sqlite-vec expects.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d not a multiple of 4", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}

// hashChunk keeps IN (...) lists under SQLite's default variable limit.
const hashChunk = 500

// GetCachedEmbeddings looks up cached vectors for texts under model and
// returns a map keyed by the original text. Misses are simply absent.
func (s *Store) GetCachedEmbeddings(model string, texts []string) (map[string][]float32, error) {
	const op = "store.GetCachedEmbeddings"
	s.mu.RLock()
	defer s.mu.RUnlock()

	byHash := make(map[string]string, len(texts))
	hashes := make([]string, 0, len(texts))
	for _, text := range texts {
		h := ContentHash(model, text)
		if _, seen := byHash[h]; !seen {
			hashes = append(hashes, h)
		}
		byHash[h] = text
	}

	found := make(map[string][]float32, len(texts))
	for start := 0; start < len(hashes); start += hashChunk {
		end := start + hashChunk
		if end > len(hashes) {
			end = len(hashes)
		}
		chunk := hashes[start:end]

		placeholders := strings.Repeat("?,", len(chunk)-1) + "?"
		query := fmt.Sprintf(
			"SELECT content_hash, vector FROM embedding_cache WHERE content_hash IN (%s)",
			placeholders)
		args := make([]any, len(chunk))
		for i, h := range chunk {
			args[i] = h
		}

		rows, err := s.db.Query(query, args...)
		if err != nil {
			return nil, errs.E(errs.KindStorage, op, err)
		}
		for rows.Next() {
			var (
				hash string
				blob []byte
			)
			if err := rows.Scan(&hash, &blob); err != nil {
				rows.Close()
				return nil, errs.E(errs.KindStorage, op, err)
			}
			vec, err := decodeVector(blob)
			if err != nil {
				rows.Close()
				return nil, errs.CorruptedRow(op, hash, err)
			}
			found[byHash[hash]] = vec
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, errs.E(errs.KindStorage, op, err)
		}
		rows.Close()
	}
	return found, nil
}

// PutCachedEmbeddings stores vectors for texts under model in one
// transaction. Re-embedding the same text replaces the entry.
func (s *Store) PutCachedEmbeddings(model string, texts []string, vectors [][]float32) error {
	const op = "store.PutCachedEmbeddings"
	if len(texts) != len(vectors) {
		return errs.New(errs.KindStorage, op, "texts/vectors length mismatch: %d vs %d", len(texts), len(vectors))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := fmtTime(time.Now())
	return s.transact(op, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT OR REPLACE INTO embedding_cache (content_hash, model_id, dims, vector, created_at)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return errs.E(errs.KindStorage, op, err)
		}
		defer stmt.Close()

		for i, text := range texts {
			if _, err := stmt.Exec(ContentHash(model, text), model, len(vectors[i]),
				encodeVector(vectors[i]), now); err != nil {
				return errs.E(errs.KindStorage, op, err)
			}
		}
		return nil
	})
}

// CacheHit is one nearest-neighbor match from the embedding cache.
type CacheHit struct {
	ContentHash string
	ModelID     string
	Dims        int
	Distance    float64
}

// SearchCachedEmbeddings returns the k cached entries nearest to vector
// by cosine distance, optionally restricted to one model. Both builds
// evaluate the same SQL: sqlite-vec provides vector_distance_cos in the
// cgo build and the registered scalar provides it otherwise.
func (s *Store) SearchCachedEmbeddings(model string, vector []float32, k int) ([]CacheHit, error) {
	const op = "store.SearchCachedEmbeddings"
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT content_hash, model_id, dims, vector_distance_cos(vector, ?) AS dist
		FROM embedding_cache`
	args := []any{encodeVector(vector)}
	if model != "" {
		query += " WHERE model_id = ? AND dims = ?"
		args = append(args, model, len(vector))
	} else {
		query += " WHERE dims = ?"
		args = append(args, len(vector))
	}
	query += " ORDER BY dist LIMIT ?"
	args = append(args, k)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errs.E(errs.KindStorage, op, err)
	}
	defer rows.Close()

	var hits []CacheHit
	for rows.Next() {
		var h CacheHit
		if err := rows.Scan(&h.ContentHash, &h.ModelID, &h.Dims, &h.Distance); err != nil {
			return nil, errs.E(errs.KindStorage, op, err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.E(errs.KindStorage, op, err)
	}
	return hits, nil
}

// CacheStats summarizes the embedding cache.
type CacheStats struct {
	Entries  int            `json:"entries"`
	Bytes    int64          `json:"bytes"`
	PerModel map[string]int `json:"per_model"`
}

// GetCacheStats reports entry counts and stored bytes per model.
func (s *Store) GetCacheStats() (*CacheStats, error) {
	const op = "store.GetCacheStats"
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &CacheStats{PerModel: make(map[string]int)}
	err := s.db.QueryRow(
		"SELECT COUNT(*), COALESCE(SUM(LENGTH(vector)), 0) FROM embedding_cache").
		Scan(&stats.Entries, &stats.Bytes)
	if err != nil {
		return nil, errs.E(errs.KindStorage, op, err)
	}

	rows, err := s.db.Query("SELECT model_id, COUNT(*) FROM embedding_cache GROUP BY model_id")
	if err != nil {
		return nil, errs.E(errs.KindStorage, op, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			model string
			count int
		)
		if err := rows.Scan(&model, &count); err != nil {
			return nil, errs.E(errs.KindStorage, op, err)
		}
		stats.PerModel[model] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errs.E(errs.KindStorage, op, err)
	}
	return stats, nil
}

// ClearCache removes cached embeddings, all of them or one model's.
// Returns how many entries were dropped.
func (s *Store) ClearCache(model string) (int64, error) {
	const op = "store.ClearCache"
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		res sql.Result
		err error
	)
	if model == "" {
		res, err = s.db.Exec("DELETE FROM embedding_cache")
	} else {
		res, err = s.db.Exec("DELETE FROM embedding_cache WHERE model_id = ?", model)
	}
	if err != nil {
		return 0, errs.E(errs.KindStorage, op, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
