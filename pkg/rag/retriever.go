// Package rag retrieves grounding passages for documentation questions.
// Chunks live in Redis under a RediSearch vector index; retrieval is a
// KNN query over the question embedding.
package rag

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Chunk is one retrieved passage.
type Chunk struct {
	ID      string
	Content string
	Source  string
	Score   float64
}

// Retriever returns the k chunks nearest to an embedding.
type Retriever interface {
	Retrieve(ctx context.Context, embedding []float32, k int) ([]Chunk, error)
}

// RedisRetriever implements Retriever over a RediSearch HNSW index.
// Indexed documents carry `content`, `source` and `embedding` fields.
type RedisRetriever struct {
	client *redis.Client
	index  string
}

// NewRedisRetriever connects to Redis at addr and queries index.
func NewRedisRetriever(addr, index string) *RedisRetriever {
	return &RedisRetriever{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		index:  index,
	}
}

// Health verifies the Redis connection.
func (r *RedisRetriever) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (r *RedisRetriever) Close() error {
	return r.client.Close()
}

// Retrieve runs a KNN query and returns chunks ordered best first.
func (r *RedisRetriever) Retrieve(ctx context.Context, embedding []float32, k int) ([]Chunk, error) {
	if k < 1 {
		return nil, fmt.Errorf("retrieve: k must be at least 1, got %d", k)
	}

	query := fmt.Sprintf("*=>[KNN %d @embedding $vec AS score]", k)
	res, err := r.client.FTSearchWithArgs(ctx, r.index, query, &redis.FTSearchOptions{
		Return: []redis.FTSearchReturn{
			{FieldName: "content"},
			{FieldName: "source"},
			{FieldName: "score"},
		},
		SortBy:         []redis.FTSearchSortBy{{FieldName: "score", Asc: true}},
		Params:         map[string]any{"vec": encodeVector(embedding)},
		DialectVersion: 2,
		LimitOffset:    0,
		Limit:          k,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("vector search on %s: %w", r.index, err)
	}

	chunks := make([]Chunk, 0, len(res.Docs))
	for _, doc := range res.Docs {
		chunks = append(chunks, docToChunk(doc))
	}
	return chunks, nil
}

// docToChunk maps a RediSearch document to a Chunk. Missing fields
// stay zero; a malformed score parses to 0.
func docToChunk(doc redis.Document) Chunk {
	chunk := Chunk{
		ID:      doc.ID,
		Content: doc.Fields["content"],
		Source:  doc.Fields["source"],
	}
	if raw, ok := doc.Fields["score"]; ok {
		if score, err := strconv.ParseFloat(raw, 64); err == nil {
			chunk.Score = score
		}
	}
	return chunk
}

// encodeVector packs float32s little-endian, the byte layout RediSearch
// expects for FLOAT32 vector fields.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
