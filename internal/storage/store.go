package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Register the pure Go SQLite driver
)

var (
	// ErrNotFound is returned for unknown documents and folders.
	ErrNotFound = errors.New("not found")

	// ErrInvalidDocument is returned when a NewDocument is incomplete.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidPath is returned for blob paths that would leave the root.
	ErrInvalidPath = errors.New("invalid blob path")
)

const schema = `
CREATE TABLE IF NOT EXISTS folders (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	folder_id TEXT REFERENCES folders(id) ON DELETE SET NULL,
	name TEXT NOT NULL,
	file_path TEXT NOT NULL,
	content_type TEXT NOT NULL,
	size INTEGER NOT NULL,
	tags TEXT,
	ocr_text TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(user_id, folder_id);
CREATE INDEX IF NOT EXISTS idx_folders_owner ON folders(user_id);
`

// Folder groups documents of one owner.
type Folder struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Document is a stored file and its metadata.
type Document struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	FolderID    string    `json:"folder_id,omitempty"`
	Name        string    `json:"name"`
	FilePath    string    `json:"file_path"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Tags        []string  `json:"tags,omitempty"`
	OCRText     string    `json:"ocr_text,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewDocument is the input to Save.
type NewDocument struct {
	OwnerID     string
	FolderID    string // optional
	Name        string
	ContentType string
	Data        []byte
	Tags        []string // optional
	OCRText     string   // optional, stored verbatim
}

// Store persists documents in SQLite with their bytes in a BlobStore.
type Store struct {
	db     *sql.DB
	blobs  *BlobStore
	logger *zap.Logger
	now    func() time.Time
}

// Open opens (creating if necessary) the database at dbPath.
func Open(ctx context.Context, dbPath string, blobs *BlobStore, logger *zap.Logger) (*Store, error) {
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps the
	// foreign_keys pragma in effect for every statement.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.Debug("document store opened", zap.String("path", dbPath), zap.String("blobs", blobs.Root()))
	return &Store{db: db, blobs: blobs, logger: logger, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateFolder adds a folder for owner.
func (s *Store) CreateFolder(ctx context.Context, owner, name string) (*Folder, error) {
	owner = strings.TrimSpace(owner)
	name = strings.TrimSpace(name)
	if owner == "" || name == "" {
		return nil, fmt.Errorf("%w: folder needs an owner and a name", ErrInvalidDocument)
	}

	now := s.now().UTC()
	f := &Folder{ID: uuid.NewString(), OwnerID: owner, Name: name, CreatedAt: now, UpdatedAt: now}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO folders (id, user_id, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		f.ID, f.OwnerID, f.Name, formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}
	return f, nil
}

// ListFolders returns the owner's folders ordered by name.
func (s *Store) ListFolders(ctx context.Context, owner string) ([]Folder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, created_at, updated_at FROM folders WHERE user_id = ? ORDER BY name, id`, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	defer rows.Close()

	folders := make([]Folder, 0)
	for rows.Next() {
		var f Folder
		var created, updated string
		if err := rows.Scan(&f.ID, &f.OwnerID, &f.Name, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		f.CreatedAt = parseTime(created)
		f.UpdatedAt = parseTime(updated)
		folders = append(folders, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	return folders, nil
}

// Save stores a document and returns its ID.
//
// OwnerID, Name, ContentType and a non-empty Data are required. A FolderID
// must name a folder of the same owner, otherwise ErrNotFound is returned.
func (s *Store) Save(ctx context.Context, doc NewDocument) (string, error) {
	doc.OwnerID = strings.TrimSpace(doc.OwnerID)
	doc.Name = strings.TrimSpace(doc.Name)
	switch {
	case doc.OwnerID == "":
		return "", fmt.Errorf("%w: owner is required", ErrInvalidDocument)
	case doc.Name == "":
		return "", fmt.Errorf("%w: name is required", ErrInvalidDocument)
	case doc.ContentType == "":
		return "", fmt.Errorf("%w: content type is required", ErrInvalidDocument)
	case len(doc.Data) == 0:
		return "", fmt.Errorf("%w: document is empty", ErrInvalidDocument)
	}

	if doc.FolderID != "" {
		var exists int
		err := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM folders WHERE id = ? AND user_id = ?`, doc.FolderID, doc.OwnerID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: folder %s", ErrNotFound, doc.FolderID)
		}
		if err != nil {
			return "", fmt.Errorf("failed to look up folder: %w", err)
		}
	}

	id := uuid.NewString()
	rel, err := s.blobs.Put(doc.OwnerID, id, extensionFor(doc.ContentType), doc.Data)
	if err != nil {
		return "", err
	}

	var tags any
	if len(doc.Tags) > 0 {
		encoded, err := json.Marshal(doc.Tags)
		if err != nil {
			s.blobs.Delete(rel)
			return "", fmt.Errorf("failed to encode tags: %w", err)
		}
		tags = string(encoded)
	}
	var folder, ocr any
	if doc.FolderID != "" {
		folder = doc.FolderID
	}
	if doc.OCRText != "" {
		ocr = doc.OCRText
	}

	now := formatTime(s.now().UTC())
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, user_id, folder_id, name, file_path, content_type, size, tags, ocr_text, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, doc.OwnerID, folder, doc.Name, rel, doc.ContentType, len(doc.Data), tags, ocr, now, now)
	if err != nil {
		if derr := s.blobs.Delete(rel); derr != nil {
			s.logger.Warn("failed to remove orphaned blob", zap.String("path", rel), zap.Error(derr))
		}
		return "", fmt.Errorf("failed to insert document: %w", err)
	}

	s.logger.Info("document saved",
		zap.String("id", id),
		zap.String("owner", doc.OwnerID),
		zap.String("content_type", doc.ContentType),
		zap.Int("size", len(doc.Data)))
	return id, nil
}

const documentColumns = `id, user_id, folder_id, name, file_path, content_type, size, tags, ocr_text, created_at, updated_at`

// GetDocument returns the owner's document with the given ID.
func (s *Store) GetDocument(ctx context.Context, owner, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ? AND user_id = ?`, id, owner)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ReadDocument returns the stored bytes of a document.
func (s *Store) ReadDocument(ctx context.Context, owner, id string) ([]byte, *Document, error) {
	doc, err := s.GetDocument(ctx, owner, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.blobs.Get(doc.FilePath)
	if err != nil {
		return nil, nil, err
	}
	return data, doc, nil
}

// ListDocuments returns the owner's documents, newest first. A non-empty
// folderID restricts the listing to that folder.
func (s *Store) ListDocuments(ctx context.Context, owner, folderID string) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE user_id = ?`
	args := []any{owner}
	if folderID != "" {
		query += ` AND folder_id = ?`
		args = append(args, folderID)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(r rowScanner) (*Document, error) {
	var (
		doc              Document
		folder, tags     sql.NullString
		ocr              sql.NullString
		created, updated string
	)
	err := r.Scan(&doc.ID, &doc.OwnerID, &folder, &doc.Name, &doc.FilePath, &doc.ContentType,
		&doc.Size, &tags, &ocr, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	doc.FolderID = folder.String
	doc.OCRText = ocr.String
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &doc.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags of %s: %w", doc.ID, err)
		}
	}
	doc.CreatedAt = parseTime(created)
	doc.UpdatedAt = parseTime(updated)
	return &doc, nil
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// extensionFor maps a content type to a file extension.
func extensionFor(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "application/pdf":
		return ".pdf"
	case "text/plain":
		return ".txt"
	default:
		return ".bin"
	}
}
