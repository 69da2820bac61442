package rag

import (
	"fmt"
	"strings"

	"github.com/campus-rag/backend/internal/vector"
)

// Wildcard matches every value of a scope field.
const Wildcard = "ALL"

// AllBatchesPartition holds documents addressed to every cohort.
const AllBatchesPartition = vector.AllBatchesPartition

// Scope narrows a query to a batch partition and a metadata subset.
// Each field is either a concrete value or the wildcard "ALL". Concrete
// values must match what was written at indexing time verbatim.
type Scope struct {
	Batch        string
	Branch       string
	Semester     string
	DocumentType string
}

// IsAll reports whether a scope field value is the wildcard (or empty,
// which is treated the same).
func IsAll(value string) bool {
	return value == "" || strings.EqualFold(value, Wildcard)
}

// FormatSemester renders a bare semester number the way the indexer
// stores it ("1" -> "Semester 1"). Already-formatted values pass through.
func FormatSemester(semester string) string {
	s := strings.TrimSpace(semester)
	if IsAll(s) {
		return Wildcard
	}
	if strings.HasPrefix(s, "Semester ") {
		return s
	}
	return "Semester " + s
}

// BatchPartition maps a batch value to its index partition name.
func BatchPartition(batch string) string {
	if IsAll(batch) {
		return AllBatchesPartition
	}
	sanitized := strings.NewReplacer("-", "_", " ", "_").Replace(batch)
	return "batch_" + sanitized
}

// Partitions returns the partition list for a search. A concrete batch
// searches its own partition plus the shared all_batches one, so that
// documents addressed to every cohort remain visible. The wildcard
// returns nil, meaning the whole collection.
func (s Scope) Partitions() []string {
	if IsAll(s.Batch) {
		return nil
	}
	return []string{BatchPartition(s.Batch), AllBatchesPartition}
}

// FilterExpr builds the boolean metadata filter as a conjunction of
// equality predicates, skipping wildcard fields.
func (s Scope) FilterExpr() string {
	return s.filterExpr(false)
}

// BroadenedFilterExpr is FilterExpr without the document-type
// constraint, used for the retrieval retry when the full filter
// matched nothing.
func (s Scope) BroadenedFilterExpr() string {
	return s.filterExpr(true)
}

func (s Scope) filterExpr(dropDocType bool) string {
	var predicates []string

	if !IsAll(s.Branch) {
		predicates = append(predicates, fmt.Sprintf(`branch == "%s"`, escape(s.Branch)))
	}
	if !IsAll(s.Semester) {
		predicates = append(predicates, fmt.Sprintf(`semester == "%s"`, escape(FormatSemester(s.Semester))))
	}
	if !dropDocType && !IsAll(s.DocumentType) {
		predicates = append(predicates, fmt.Sprintf(`document_type == "%s"`, escape(s.DocumentType)))
	}

	return strings.Join(predicates, " && ")
}

func escape(value string) string {
	return strings.ReplaceAll(value, `"`, `\"`)
}

func (s Scope) String() string {
	return fmt.Sprintf("batch=%s branch=%s semester=%s type=%s",
		orAll(s.Batch), orAll(s.Branch), orAll(s.Semester), orAll(s.DocumentType))
}

func orAll(value string) string {
	if IsAll(value) {
		return Wildcard
	}
	return value
}
