package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/SimoKiihamaki/cognicore/pkg/types"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Item operations

const itemColumns = `id, folder_id, filename, filepath, file_extension, last_modified,
       size_bytes, text_content, vector, vector_dim, is_deleted, revision,
       created_at, updated_at`

// AddItem inserts a new item record with revision 1.
func (s *SQLiteStore) AddItem(ctx context.Context, item *types.IndexedItem) error {
	query := `
		INSERT INTO items (id, folder_id, filename, filepath, file_extension, last_modified,
		                   size_bytes, text_content, vector, vector_dim, is_deleted, revision,
		                   created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`
	now := time.Now()
	_, err := s.db.ExecContext(ctx, query,
		item.ID, item.FolderID, item.Filename, item.Filepath, item.FileExtension,
		item.LastModified, item.SizeBytes, item.TextContent,
		serializeVector(item.EmbeddingVector), len(item.EmbeddingVector),
		item.IsDeleted, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("%w: item %s", ErrAlreadyExists, item.ID)
		}
		return fmt.Errorf("failed to add item: %w", err)
	}
	item.Revision = 1
	item.CreatedAt = now
	item.UpdatedAt = now
	return nil
}

// GetItem fetches an item by ID, including soft-deleted records.
func (s *SQLiteStore) GetItem(ctx context.Context, id string) (*types.IndexedItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

// UpdateItem applies a partial update only if the stored revision still
// matches expectedRevision. On success it returns the updated record; a
// lost race returns ErrConflict so the caller can re-read and retry.
func (s *SQLiteStore) UpdateItem(ctx context.Context, id string, expectedRevision int64, upd ItemUpdate) (*types.IndexedItem, error) {
	sets := []string{"revision = revision + 1", "updated_at = ?"}
	args := []interface{}{time.Now()}

	if upd.TextContent != nil {
		sets = append(sets, "text_content = ?")
		args = append(args, *upd.TextContent)
	}
	if upd.ClearVector {
		sets = append(sets, "vector = NULL", "vector_dim = 0")
	} else if upd.SetVector != nil {
		sets = append(sets, "vector = ?", "vector_dim = ?")
		args = append(args, serializeVector(upd.SetVector), len(upd.SetVector))
	}
	if upd.LastModified != nil {
		sets = append(sets, "last_modified = ?")
		args = append(args, *upd.LastModified)
	}
	if upd.SizeBytes != nil {
		sets = append(sets, "size_bytes = ?")
		args = append(args, *upd.SizeBytes)
	}
	if upd.IsDeleted != nil {
		sets = append(sets, "is_deleted = ?")
		args = append(args, *upd.IsDeleted)
	}

	query := "UPDATE items SET " + strings.Join(sets, ", ") + " WHERE id = ? AND revision = ?"
	args = append(args, id, expectedRevision)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Distinguish a missing record from a lost revision race.
		if _, err := s.GetItem(ctx, id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: item %s revision %d", ErrConflict, id, expectedRevision)
	}

	return s.GetItem(ctx, id)
}

// DeleteItem physically removes a record. The pipeline itself never calls
// this; deletion during monitoring is a soft-delete via UpdateItem.
func (s *SQLiteStore) DeleteItem(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetAllItems returns every item record, including soft-deleted ones.
func (s *SQLiteStore) GetAllItems(ctx context.Context) ([]*types.IndexedItem, error) {
	return s.queryItems(ctx, `SELECT `+itemColumns+` FROM items ORDER BY filepath`)
}

// ActiveItems returns all non-deleted items.
func (s *SQLiteStore) ActiveItems(ctx context.Context) ([]*types.IndexedItem, error) {
	return s.queryItems(ctx, `SELECT `+itemColumns+` FROM items WHERE is_deleted = 0 ORDER BY filepath`)
}

// QueryItemsByIndex looks up non-deleted items by a named secondary index.
func (s *SQLiteStore) QueryItemsByIndex(ctx context.Context, name, value string) ([]*types.IndexedItem, error) {
	var column string
	switch name {
	case IndexFilepath:
		column = "filepath"
	case IndexFolderID:
		column = "folder_id"
	case IndexExtension:
		column = "file_extension"
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownIndex, name)
	}
	query := `SELECT ` + itemColumns + ` FROM items WHERE ` + column + ` = ? AND is_deleted = 0 ORDER BY filepath`
	return s.queryItems(ctx, query, value)
}

func (s *SQLiteStore) queryItems(ctx context.Context, query string, args ...interface{}) ([]*types.IndexedItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []*types.IndexedItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*types.IndexedItem, error) {
	var item types.IndexedItem
	var lastModified sql.NullTime
	var ext sql.NullString
	var vectorBlob []byte
	var vectorDim int

	err := row.Scan(
		&item.ID, &item.FolderID, &item.Filename, &item.Filepath, &ext,
		&lastModified, &item.SizeBytes, &item.TextContent, &vectorBlob, &vectorDim,
		&item.IsDeleted, &item.Revision, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if ext.Valid {
		item.FileExtension = ext.String
	}
	if lastModified.Valid {
		item.LastModified = lastModified.Time
	}
	item.EmbeddingVector = deserializeVector(vectorBlob)
	return &item, nil
}

// Folder operations

// AddFolder inserts a new monitored folder record.
func (s *SQLiteStore) AddFolder(ctx context.Context, folder *types.MonitoredFolder) error {
	query := `
		INSERT INTO folders (id, display_path, is_active, poll_interval_ms, max_file_size_bytes,
		                     max_depth, text_files_only, skip_excluded_dirs, include_all_file_types,
		                     consecutive_errors, last_error, last_scan_time, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	_, err := s.db.ExecContext(ctx, query,
		folder.ID, folder.DisplayPath, folder.IsActive,
		folder.Options.PollIntervalMs, folder.Options.MaxFileSizeBytes, folder.Options.MaxDepth,
		folder.Options.TextFilesOnly, folder.Options.SkipExcludedDirs, folder.Options.IncludeAllFileTypes,
		folder.ConsecutiveErrors, folder.LastError, nullableTime(folder.LastScanTime), now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("%w: folder %s", ErrAlreadyExists, folder.ID)
		}
		return fmt.Errorf("failed to add folder: %w", err)
	}
	folder.CreatedAt = now
	folder.UpdatedAt = now
	return nil
}

// GetFolder fetches a folder by ID.
func (s *SQLiteStore) GetFolder(ctx context.Context, id string) (*types.MonitoredFolder, error) {
	row := s.db.QueryRowContext(ctx, folderSelect+` WHERE id = ?`, id)
	folder, err := scanFolder(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get folder: %w", err)
	}
	return folder, nil
}

// UpdateFolder persists the folder record as-is.
func (s *SQLiteStore) UpdateFolder(ctx context.Context, folder *types.MonitoredFolder) error {
	query := `
		UPDATE folders
		SET display_path = ?, is_active = ?, poll_interval_ms = ?, max_file_size_bytes = ?,
		    max_depth = ?, text_files_only = ?, skip_excluded_dirs = ?, include_all_file_types = ?,
		    consecutive_errors = ?, last_error = ?, last_scan_time = ?, updated_at = ?
		WHERE id = ?
	`
	now := time.Now()
	result, err := s.db.ExecContext(ctx, query,
		folder.DisplayPath, folder.IsActive,
		folder.Options.PollIntervalMs, folder.Options.MaxFileSizeBytes, folder.Options.MaxDepth,
		folder.Options.TextFilesOnly, folder.Options.SkipExcludedDirs, folder.Options.IncludeAllFileTypes,
		folder.ConsecutiveErrors, folder.LastError, nullableTime(folder.LastScanTime), now, folder.ID)
	if err != nil {
		return fmt.Errorf("failed to update folder: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	folder.UpdatedAt = now
	return nil
}

// DeleteFolder removes a folder record. Items under it are not touched;
// the registry soft-deletes them before destroying the folder.
func (s *SQLiteStore) DeleteFolder(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete folder: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListFolders returns all monitored folder records.
func (s *SQLiteStore) ListFolders(ctx context.Context) ([]*types.MonitoredFolder, error) {
	rows, err := s.db.QueryContext(ctx, folderSelect+` ORDER BY display_path`)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var folders []*types.MonitoredFolder
	for rows.Next() {
		folder, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		folders = append(folders, folder)
	}
	return folders, rows.Err()
}

const folderSelect = `
	SELECT id, display_path, is_active, poll_interval_ms, max_file_size_bytes, max_depth,
	       text_files_only, skip_excluded_dirs, include_all_file_types,
	       consecutive_errors, last_error, last_scan_time, created_at, updated_at
	FROM folders`

func scanFolder(row rowScanner) (*types.MonitoredFolder, error) {
	var folder types.MonitoredFolder
	var lastError sql.NullString
	var lastScan sql.NullTime

	err := row.Scan(
		&folder.ID, &folder.DisplayPath, &folder.IsActive,
		&folder.Options.PollIntervalMs, &folder.Options.MaxFileSizeBytes, &folder.Options.MaxDepth,
		&folder.Options.TextFilesOnly, &folder.Options.SkipExcludedDirs, &folder.Options.IncludeAllFileTypes,
		&folder.ConsecutiveErrors, &lastError, &lastScan, &folder.CreatedAt, &folder.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastError.Valid {
		folder.LastError = lastError.String
	}
	if lastScan.Valid {
		folder.LastScanTime = lastScan.Time
	}
	return &folder, nil
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
