package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campus_rag_query_duration_seconds",
			Help:    "Query pipeline duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"depth"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campus_rag_query_total",
			Help: "Total queries processed, by terminal outcome",
		},
		[]string{"outcome"},
	)

	RerankScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "campus_rag_rerank_score",
			Help:    "Relevance scores assigned by the reranker",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		},
	)

	RetrievedDocuments = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "campus_rag_retrieved_documents",
			Help:    "Documents returned per vector search",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campus_rag_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campus_rag_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	DocumentsIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "campus_rag_documents_indexed_total",
			Help: "Total documents written to the index",
		},
	)

	ChunksIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "campus_rag_chunks_indexed_total",
			Help: "Total chunks written to the index",
		},
	)

	DuplicatesSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "campus_rag_duplicates_skipped_total",
			Help: "Indexing requests skipped as duplicates",
		},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campus_rag_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)
)

func Init() {
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryTotal)
	prometheus.MustRegister(RerankScore)
	prometheus.MustRegister(RetrievedDocuments)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(DocumentsIndexed)
	prometheus.MustRegister(ChunksIndexed)
	prometheus.MustRegister(DuplicatesSkipped)
	prometheus.MustRegister(LLMTokensUsed)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
