package vector

import (
	"context"
	"errors"
)

// ErrPartitionNotFound reports that the requested scope partition does
// not exist in the index. Terminal for the query that raised it.
var ErrPartitionNotFound = errors.New("vector index partition not found")

// AllBatchesPartition holds documents addressed to every cohort. It is
// created with the collection and searched alongside each concrete
// batch partition, so its absence never means an unknown scope.
const AllBatchesPartition = "all_batches"

// Metadata is the per-chunk metadata stored alongside each embedding.
// Values are written verbatim at indexing time; filter predicates must
// match them exactly (semester is the formatted "Semester N" string).
type Metadata struct {
	ChunkID      string
	Filename     string
	Title        string
	FileHash     string
	Batch        string
	Branch       string
	Semester     string
	DocumentType string
}

// Result is one nearest-neighbor hit: the chunk text, its metadata and
// the cosine distance (lower is closer).
type Result struct {
	Text     string
	Metadata Metadata
	Distance float32
}

// Index is the read/write surface of the vector store. The query
// pipeline only calls Search; Upsert belongs to the indexing path.
type Index interface {
	Search(ctx context.Context, partitions []string, filterExpr string, embedding []float32, topK int) ([]Result, error)
	Upsert(ctx context.Context, partition string, chunks []Chunk) error
}

// Chunk is one embedded passage to be written to the index.
type Chunk struct {
	Embedding []float32
	Text      string
	Metadata  Metadata
}
