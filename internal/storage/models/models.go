package models

import "time"

// Document is one registry row: a text document committed to the
// vector index under a concrete scope. The (FileHash, Batch, Branch,
// Semester, DocumentType) tuple identifies a duplicate upload.
type Document struct {
	ID           string
	Filename     string
	Title        string
	FileHash     string
	Batch        string
	Branch       string
	Semester     string
	DocumentType string
	ChunkCount   int
	CreatedAt    time.Time
}
