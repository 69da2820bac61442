package ingestion

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campus-rag/backend/internal/metrics"
	"github.com/campus-rag/backend/internal/rag"
	"github.com/campus-rag/backend/internal/storage/models"
	"github.com/campus-rag/backend/internal/storage/sqlite"
	"github.com/campus-rag/backend/internal/vector"
	"github.com/campus-rag/backend/pkg/logger"
	"github.com/campus-rag/backend/pkg/utils"
)

// Embedder is the batch-embedding surface the indexing path needs.
type Embedder interface {
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// AnswerInvalidator drops cached answers after the index changes.
type AnswerInvalidator interface {
	InvalidateAnswers(ctx context.Context) error
}

// IndexRequest carries one already-extracted document into the index.
// Either Text or HTML must be set; HTML is normalized to plain text
// before chunking. Scope fields accept the "ALL" wildcard, which fans
// the document out across every concrete value.
type IndexRequest struct {
	Text         string
	HTML         string
	Filename     string
	Title        string
	Batch        string
	Branch       string
	Semester     string
	DocumentType string
}

// IndexResult summarizes what an indexing call committed.
type IndexResult struct {
	DocumentID string
	Chunks     int
	Copies     int
	Skipped    int
}

// Processor is the indexing collaborator: it owns the only write path
// into the vector index and the registry. The query pipeline never
// writes.
type Processor struct {
	db       *sqlite.Client
	index    vector.Index
	embedder Embedder
	cache    AnswerInvalidator
	chunker  *rag.Chunker

	branches  []string
	semesters []string
}

func NewProcessor(db *sqlite.Client, index vector.Index, embedder Embedder, cache AnswerInvalidator, chunker *rag.Chunker, branches, semesters []string) *Processor {
	return &Processor{
		db:        db,
		index:     index,
		embedder:  embedder,
		cache:     cache,
		chunker:   chunker,
		branches:  branches,
		semesters: semesters,
	}
}

// IndexDocument normalizes, chunks and embeds the document once, then
// writes one tagged copy per concrete (branch, semester) combination
// the request's scope expands to. Combinations already present (same
// content hash, same scope) are skipped.
func (p *Processor) IndexDocument(ctx context.Context, req IndexRequest) (*IndexResult, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" && req.HTML != "" {
		text = normalizeHTML(req.HTML)
	}
	if text == "" {
		return nil, fmt.Errorf("no text content to index")
	}

	if req.Filename == "" {
		return nil, fmt.Errorf("filename is required")
	}

	fileHash := utils.HashString(text)
	docID := uuid.New().String()
	partition := rag.BatchPartition(req.Batch)
	batchValue := req.Batch
	if rag.IsAll(req.Batch) {
		batchValue = rag.Wildcard
	}

	logger.Info("Indexing document",
		zap.String("filename", req.Filename),
		zap.String("partition", partition),
		zap.String("doc_id", docID),
	)

	chunks := p.chunker.Chunk(text)
	embeddings, err := p.embedder.GenerateBatchEmbeddings(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(embeddings), len(chunks))
	}

	result := &IndexResult{DocumentID: docID, Chunks: len(chunks)}

	for _, branch := range p.expandBranches(req.Branch) {
		for _, semester := range p.expandSemesters(req.Semester) {
			exists, err := p.db.DocumentExists(fileHash, batchValue, branch, semester, req.DocumentType)
			if err != nil {
				return nil, fmt.Errorf("failed to check for duplicate: %w", err)
			}
			if exists {
				logger.Warn("Skipping duplicate",
					zap.String("filename", req.Filename),
					zap.String("branch", branch),
					zap.String("semester", semester),
				)
				metrics.DuplicatesSkipped.Inc()
				result.Skipped++
				continue
			}

			copyID := uuid.New().String()
			vectorChunks := make([]vector.Chunk, len(chunks))
			for i, chunkText := range chunks {
				vectorChunks[i] = vector.Chunk{
					Embedding: embeddings[i],
					Text:      chunkText,
					Metadata: vector.Metadata{
						ChunkID:      fmt.Sprintf("%s_chunk_%d", copyID, i),
						Filename:     req.Filename,
						Title:        req.Title,
						FileHash:     fileHash,
						Batch:        batchValue,
						Branch:       branch,
						Semester:     semester,
						DocumentType: req.DocumentType,
					},
				}
			}

			if err := p.index.Upsert(ctx, partition, vectorChunks); err != nil {
				return nil, fmt.Errorf("failed to insert into vector DB: %w", err)
			}

			err = p.db.InsertDocument(&models.Document{
				ID:           copyID,
				Filename:     req.Filename,
				Title:        req.Title,
				FileHash:     fileHash,
				Batch:        batchValue,
				Branch:       branch,
				Semester:     semester,
				DocumentType: req.DocumentType,
				ChunkCount:   len(chunks),
				CreatedAt:    time.Now(),
			})
			if err != nil {
				return nil, fmt.Errorf("failed to record document: %w", err)
			}

			metrics.ChunksIndexed.Add(float64(len(chunks)))
			result.Copies++
		}
	}

	if result.Copies > 0 {
		metrics.DocumentsIndexed.Inc()
		if p.cache != nil {
			if err := p.cache.InvalidateAnswers(ctx); err != nil {
				logger.Warn("Failed to invalidate answer cache", zap.Error(err))
			}
		}
	}

	logger.Info("Document indexed",
		zap.String("doc_id", docID),
		zap.Int("chunks", result.Chunks),
		zap.Int("copies", result.Copies),
		zap.Int("skipped", result.Skipped),
	)

	return result, nil
}

func (p *Processor) expandBranches(branch string) []string {
	if rag.IsAll(branch) {
		return p.branches
	}
	return []string{branch}
}

func (p *Processor) expandSemesters(semester string) []string {
	if rag.IsAll(semester) {
		formatted := make([]string, len(p.semesters))
		for i, s := range p.semesters {
			formatted[i] = rag.FormatSemester(s)
		}
		return formatted
	}
	return []string{rag.FormatSemester(semester)}
}

var whitespacePattern = regexp.MustCompile(`[ \t]+`)

// normalizeHTML strips markup from ingested HTML, keeping block
// boundaries as paragraph breaks and table rows as single lines so the
// chunker can preserve table-like structure.
func normalizeHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	var blocks []string
	doc.Find("p, h1, h2, h3, h4, h5, h6, li, tr, pre").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(whitespacePattern.ReplaceAllString(s.Text(), " "))
		if text != "" {
			blocks = append(blocks, text)
		}
	})

	if len(blocks) == 0 {
		text := strings.TrimSpace(whitespacePattern.ReplaceAllString(doc.Find("body").Text(), " "))
		return text
	}

	return strings.Join(blocks, "\n\n")
}
