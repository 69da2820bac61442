package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/campus-rag/backend/internal/storage/models"
	"github.com/campus-rag/backend/pkg/logger"
)

// Client is the document registry: the record of what was committed to
// the vector index, used for duplicate detection and listings. The
// index itself remains the source of truth for retrieval.
type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		title TEXT NOT NULL,
		file_hash TEXT NOT NULL,
		batch TEXT NOT NULL,
		branch TEXT NOT NULL,
		semester TEXT NOT NULL,
		document_type TEXT NOT NULL,
		chunk_count INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(file_hash);
	CREATE INDEX IF NOT EXISTS idx_documents_batch ON documents(batch);
	CREATE INDEX IF NOT EXISTS idx_documents_type ON documents(document_type);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_scope_hash
		ON documents(file_hash, batch, branch, semester, document_type);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("Registry schema initialized")
	return nil
}

func (c *Client) InsertDocument(doc *models.Document) error {
	_, err := c.db.Exec(`
		INSERT INTO documents (id, filename, title, file_hash, batch, branch, semester, document_type, chunk_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.Title, doc.FileHash,
		doc.Batch, doc.Branch, doc.Semester, doc.DocumentType,
		doc.ChunkCount, doc.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

// DocumentExists reports whether a document with identical content was
// already indexed under the same scope.
func (c *Client) DocumentExists(fileHash, batch, branch, semester, documentType string) (bool, error) {
	var count int
	err := c.db.QueryRow(`
		SELECT COUNT(1) FROM documents
		WHERE file_hash = ? AND batch = ? AND branch = ? AND semester = ? AND document_type = ?`,
		fileHash, batch, branch, semester, documentType,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check document: %w", err)
	}
	return count > 0, nil
}

// ListDocuments returns registry rows, optionally narrowed by batch
// and/or document type (empty or "ALL" means no constraint).
func (c *Client) ListDocuments(batch, documentType string, limit int) ([]models.Document, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, filename, title, file_hash, batch, branch, semester, document_type, chunk_count, created_at
		FROM documents WHERE 1=1`
	args := []interface{}{}

	if batch != "" && batch != "ALL" {
		query += " AND batch = ?"
		args = append(args, batch)
	}
	if documentType != "" && documentType != "ALL" {
		query += " AND document_type = ?"
		args = append(args, documentType)
	}

	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var doc models.Document
		var createdAt int64
		err := rows.Scan(&doc.ID, &doc.Filename, &doc.Title, &doc.FileHash,
			&doc.Batch, &doc.Branch, &doc.Semester, &doc.DocumentType,
			&doc.ChunkCount, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc.CreatedAt = time.Unix(createdAt, 0)
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}
