package milvus

import (
	"context"
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-rag/backend/internal/vector"
)

// fakeBackend satisfies client.Client for the partition paths; the
// embedded interface panics on anything else, which is what we want.
type fakeBackend struct {
	client.Client

	hasCollection bool
	partitions    map[string]bool

	created  []string
	searched [][]string
}

func (f *fakeBackend) HasCollection(_ context.Context, _ string) (bool, error) {
	return f.hasCollection, nil
}

func (f *fakeBackend) HasPartition(_ context.Context, _ string, name string) (bool, error) {
	return f.partitions[name], nil
}

func (f *fakeBackend) CreatePartition(_ context.Context, _ string, name string, _ ...client.CreatePartitionOption) error {
	f.created = append(f.created, name)
	f.partitions[name] = true
	return nil
}

func (f *fakeBackend) Search(_ context.Context, _ string, partitions []string, _ string, _ []string, _ []entity.Vector, _ string, _ entity.MetricType, _ int, _ entity.SearchParam, _ ...client.SearchQueryOptionFunc) ([]client.SearchResult, error) {
	f.searched = append(f.searched, partitions)
	return nil, nil
}

func newFakeClient(backend *fakeBackend) *Client {
	return &Client{
		client:         backend,
		collectionName: "campus_documents",
		vectorDim:      2,
		partitions:     make(map[string]bool),
	}
}

func TestSearchDropsMissingSharedPartition(t *testing.T) {
	backend := &fakeBackend{partitions: map[string]bool{"batch_2023_2027": true}}
	c := newFakeClient(backend)

	_, err := c.Search(context.Background(),
		[]string{"batch_2023_2027", vector.AllBatchesPartition},
		"", []float32{1, 0}, 5)

	require.NoError(t, err)
	require.Len(t, backend.searched, 1)
	assert.Equal(t, []string{"batch_2023_2027"}, backend.searched[0])
}

func TestSearchMissingBatchPartitionIsScopeError(t *testing.T) {
	backend := &fakeBackend{partitions: map[string]bool{
		vector.AllBatchesPartition: true,
	}}
	c := newFakeClient(backend)

	_, err := c.Search(context.Background(),
		[]string{"batch_2030_2034", vector.AllBatchesPartition},
		"", []float32{1, 0}, 5)

	assert.ErrorIs(t, err, vector.ErrPartitionNotFound)
	assert.Empty(t, backend.searched)
}

func TestSearchWholeCollectionSkipsPartitionChecks(t *testing.T) {
	backend := &fakeBackend{partitions: map[string]bool{}}
	c := newFakeClient(backend)

	_, err := c.Search(context.Background(), nil, "", []float32{1, 0}, 5)

	require.NoError(t, err)
	require.Len(t, backend.searched, 1)
	assert.Empty(t, backend.searched[0])
}

func TestCreateCollectionEnsuresSharedPartition(t *testing.T) {
	backend := &fakeBackend{
		hasCollection: true,
		partitions:    map[string]bool{},
	}
	c := newFakeClient(backend)

	require.NoError(t, c.CreateCollection(context.Background()))

	assert.Equal(t, []string{vector.AllBatchesPartition}, backend.created)
}
