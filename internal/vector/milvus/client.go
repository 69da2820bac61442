package milvus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/campus-rag/backend/internal/vector"
	"github.com/campus-rag/backend/pkg/logger"
)

// Client stores campus document chunks in a single Milvus collection,
// one partition per batch plus a shared all_batches partition for
// documents addressed to every cohort.
type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int

	mu         sync.Mutex
	partitions map[string]bool
}

func NewClient(endpoint, apiKey, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewClient(context.Background(), client.Config{
		Address: endpoint,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
		partitions:     make(map[string]bool),
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

func (m *Client) CreateCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return m.ensurePartition(ctx, vector.AllBatchesPartition)
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Campus document chunk embeddings",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "96",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", m.vectorDim),
				},
			},
			{
				Name:     "text",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "4096",
				},
			},
			{
				Name:     "filename",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "512",
				},
			},
			{
				Name:     "title",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "512",
				},
			},
			{
				Name:     "file_hash",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "batch",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "32",
				},
			},
			{
				Name:     "branch",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "128",
				},
			},
			{
				Name:     "semester",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "32",
				},
			},
			{
				Name:     "document_type",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "uploaded_at",
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	err = m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.COSINE, 1024)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	err = m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	// The shared partition exists from day one so searching it never
	// fails on a fresh deployment.
	if err := m.ensurePartition(ctx, vector.AllBatchesPartition); err != nil {
		return err
	}

	err = m.client.LoadCollection(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))

	return nil
}

func (m *Client) ensurePartition(ctx context.Context, partition string) error {
	m.mu.Lock()
	known := m.partitions[partition]
	m.mu.Unlock()
	if known {
		return nil
	}

	has, err := m.client.HasPartition(ctx, m.collectionName, partition)
	if err != nil {
		return fmt.Errorf("failed to check partition: %w", err)
	}
	if !has {
		if err := m.client.CreatePartition(ctx, m.collectionName, partition); err != nil {
			return fmt.Errorf("failed to create partition: %w", err)
		}
		logger.Info("Partition created", zap.String("partition", partition))
	}

	m.mu.Lock()
	m.partitions[partition] = true
	m.mu.Unlock()
	return nil
}

// Upsert writes embedded chunks into the given partition, creating it
// on first use.
func (m *Client) Upsert(ctx context.Context, partition string, chunks []vector.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	if err := m.ensurePartition(ctx, partition); err != nil {
		return err
	}

	chunkIDs := make([]string, len(chunks))
	embeddings := make([][]float32, len(chunks))
	texts := make([]string, len(chunks))
	filenames := make([]string, len(chunks))
	titles := make([]string, len(chunks))
	fileHashes := make([]string, len(chunks))
	batches := make([]string, len(chunks))
	branches := make([]string, len(chunks))
	semesters := make([]string, len(chunks))
	docTypes := make([]string, len(chunks))
	uploadedAt := make([]int64, len(chunks))

	now := time.Now().Unix()
	for i, chunk := range chunks {
		chunkIDs[i] = chunk.Metadata.ChunkID
		embeddings[i] = chunk.Embedding
		texts[i] = chunk.Text
		filenames[i] = chunk.Metadata.Filename
		titles[i] = chunk.Metadata.Title
		fileHashes[i] = chunk.Metadata.FileHash
		batches[i] = chunk.Metadata.Batch
		branches[i] = chunk.Metadata.Branch
		semesters[i] = chunk.Metadata.Semester
		docTypes[i] = chunk.Metadata.DocumentType
		uploadedAt[i] = now
	}

	_, err := m.client.Insert(
		ctx,
		m.collectionName,
		partition,
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnFloatVector("embedding", m.vectorDim, embeddings),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnVarChar("filename", filenames),
		entity.NewColumnVarChar("title", titles),
		entity.NewColumnVarChar("file_hash", fileHashes),
		entity.NewColumnVarChar("batch", batches),
		entity.NewColumnVarChar("branch", branches),
		entity.NewColumnVarChar("semester", semesters),
		entity.NewColumnVarChar("document_type", docTypes),
		entity.NewColumnInt64("uploaded_at", uploadedAt),
	)

	if err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	err = m.client.Flush(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Chunks inserted into vector DB",
		zap.String("partition", partition),
		zap.Int("count", len(chunks)),
	)

	return nil
}

// Search runs a filtered nearest-neighbor query over the given
// partitions. An empty partition list searches the whole collection.
// A missing scope partition yields ErrPartitionNotFound; the shared
// all_batches partition is dropped from the list instead when absent,
// since it defines no scope of its own.
func (m *Client) Search(ctx context.Context, partitions []string, filterExpr string, embedding []float32, topK int) ([]vector.Result, error) {
	present := make([]string, 0, len(partitions))
	for _, p := range partitions {
		has, err := m.client.HasPartition(ctx, m.collectionName, p)
		if err != nil {
			return nil, fmt.Errorf("failed to check partition: %w", err)
		}
		if !has {
			if p == vector.AllBatchesPartition {
				continue
			}
			return nil, fmt.Errorf("%w: %s", vector.ErrPartitionNotFound, p)
		}
		present = append(present, p)
	}
	if len(partitions) > 0 {
		partitions = present
	}

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		partitions,
		filterExpr,
		[]string{"chunk_id", "text", "filename", "title", "file_hash", "batch", "branch", "semester", "document_type"},
		[]entity.Vector{entity.FloatVector(embedding)},
		"embedding",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]vector.Result, 0)
	for _, sr := range searchResult {
		for i := 0; i < sr.ResultCount; i++ {
			results = append(results, vector.Result{
				Text: columnString(sr.Fields, "text", i),
				Metadata: vector.Metadata{
					ChunkID:      columnString(sr.Fields, "chunk_id", i),
					Filename:     columnString(sr.Fields, "filename", i),
					Title:        columnString(sr.Fields, "title", i),
					FileHash:     columnString(sr.Fields, "file_hash", i),
					Batch:        columnString(sr.Fields, "batch", i),
					Branch:       columnString(sr.Fields, "branch", i),
					Semester:     columnString(sr.Fields, "semester", i),
					DocumentType: columnString(sr.Fields, "document_type", i),
				},
				Distance: sr.Scores[i],
			})
		}
	}

	logger.Info("Vector search completed",
		zap.Int("topK", topK),
		zap.Int("results", len(results)),
		zap.Strings("partitions", partitions),
		zap.String("filter", filterExpr),
	)

	return results, nil
}

func columnString(fields client.ResultSet, name string, idx int) string {
	col := fields.GetColumn(name)
	if col == nil {
		return ""
	}
	val, err := col.Get(idx)
	if err != nil {
		return ""
	}
	s, _ := val.(string)
	return s
}
