package ingestion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-rag/backend/internal/rag"
	"github.com/campus-rag/backend/internal/storage/sqlite"
	"github.com/campus-rag/backend/internal/vector"
)

type fakeBatchEmbedder struct{}

func (fakeBatchEmbedder) GenerateBatchEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = []float32{1, 0, 0}
	}
	return embeddings, nil
}

type upsertCall struct {
	partition string
	chunks    []vector.Chunk
}

type fakeIndex struct {
	calls []upsertCall
}

func (f *fakeIndex) Upsert(_ context.Context, partition string, chunks []vector.Chunk) error {
	f.calls = append(f.calls, upsertCall{partition: partition, chunks: chunks})
	return nil
}

func (f *fakeIndex) Search(context.Context, []string, string, []float32, int) ([]vector.Result, error) {
	return nil, nil
}

type countingInvalidator struct {
	count int
}

func (c *countingInvalidator) InvalidateAnswers(context.Context) error {
	c.count++
	return nil
}

func newTestProcessor(t *testing.T, index *fakeIndex, cache *countingInvalidator) *Processor {
	t.Helper()

	db, err := sqlite.NewClient(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema())

	var invalidator AnswerInvalidator
	if cache != nil {
		invalidator = cache
	}

	return NewProcessor(db, index, fakeBatchEmbedder{}, invalidator,
		rag.NewChunker(1000, 1500),
		[]string{"Computer Engineering", "Information Technology"},
		[]string{"1", "2"},
	)
}

func TestIndexDocumentWritesTaggedCopy(t *testing.T) {
	index := &fakeIndex{}
	cache := &countingInvalidator{}
	p := newTestProcessor(t, index, cache)

	result, err := p.IndexDocument(context.Background(), IndexRequest{
		Text:         "Semester 1 fees: 45000 due by August.",
		Filename:     "fees_notice_2023.pdf",
		Title:        "Fees Notice",
		Batch:        "2023-2027",
		Branch:       "Computer Engineering",
		Semester:     "1",
		DocumentType: "FeesNotice",
	})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Chunks)
	assert.Equal(t, 1, result.Copies)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, 1, cache.count)

	require.Len(t, index.calls, 1)
	assert.Equal(t, "batch_2023_2027", index.calls[0].partition)
	require.Len(t, index.calls[0].chunks, 1)

	meta := index.calls[0].chunks[0].Metadata
	assert.Equal(t, "2023-2027", meta.Batch)
	assert.Equal(t, "Computer Engineering", meta.Branch)
	assert.Equal(t, "Semester 1", meta.Semester)
	assert.Equal(t, "FeesNotice", meta.DocumentType)
	assert.NotEmpty(t, meta.FileHash)
}

func TestIndexDocumentFansOutWildcardScope(t *testing.T) {
	index := &fakeIndex{}
	p := newTestProcessor(t, index, nil)

	result, err := p.IndexDocument(context.Background(), IndexRequest{
		Text:         "Holiday notice for all students.",
		Filename:     "holiday.pdf",
		Batch:        "ALL",
		Branch:       "ALL",
		Semester:     "ALL",
		DocumentType: "Circular",
	})

	require.NoError(t, err)
	// 2 branches x 2 semesters.
	assert.Equal(t, 4, result.Copies)
	require.Len(t, index.calls, 4)
	for _, call := range index.calls {
		assert.Equal(t, "all_batches", call.partition)
	}

	seen := make(map[string]bool)
	for _, call := range index.calls {
		meta := call.chunks[0].Metadata
		assert.Equal(t, "ALL", meta.Batch)
		seen[meta.Branch+"/"+meta.Semester] = true
	}
	assert.Len(t, seen, 4)
}

func TestIndexDocumentSkipsDuplicates(t *testing.T) {
	index := &fakeIndex{}
	p := newTestProcessor(t, index, nil)

	req := IndexRequest{
		Text:         "Exam timetable for winter session.",
		Filename:     "exams.pdf",
		Batch:        "2023-2027",
		Branch:       "Computer Engineering",
		Semester:     "1",
		DocumentType: "ExamTimetable",
	}

	first, err := p.IndexDocument(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Copies)

	second, err := p.IndexDocument(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Copies)
	assert.Equal(t, 1, second.Skipped)
	assert.Len(t, index.calls, 1)
}

func TestIndexDocumentRejectsEmptyContent(t *testing.T) {
	p := newTestProcessor(t, &fakeIndex{}, nil)

	_, err := p.IndexDocument(context.Background(), IndexRequest{
		Text:     "   ",
		Filename: "empty.pdf",
	})

	assert.Error(t, err)
}

func TestIndexDocumentRequiresFilename(t *testing.T) {
	p := newTestProcessor(t, &fakeIndex{}, nil)

	_, err := p.IndexDocument(context.Background(), IndexRequest{
		Text: "Some content.",
	})

	assert.Error(t, err)
}

func TestNormalizeHTMLExtractsBlocks(t *testing.T) {
	html := `<html><head><style>p { color: red }</style></head><body>
		<nav>Home | About</nav>
		<h1>Fees Notice</h1>
		<p>Semester   1 fees: 45000.</p>
		<table><tr><td>Due date</td><td>August 15</td></tr></table>
		<script>alert(1)</script>
		<footer>Contact us</footer>
	</body></html>`

	text := normalizeHTML(html)

	assert.Contains(t, text, "Fees Notice")
	assert.Contains(t, text, "Semester 1 fees: 45000.")
	assert.Contains(t, text, "Due date")
	assert.NotContains(t, text, "alert(1)")
	assert.NotContains(t, text, "Home | About")
	assert.NotContains(t, text, "Contact us")
	assert.NotContains(t, text, "color: red")
}

func TestNormalizeHTMLFallsBackToBodyText(t *testing.T) {
	text := normalizeHTML("<html><body>plain   text only</body></html>")

	assert.Equal(t, "plain text only", text)
}
