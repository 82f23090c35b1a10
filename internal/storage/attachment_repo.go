package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AttachmentStore defines the interface for attachment storage operations.
type AttachmentStore interface {
	// Upsert inserts a new attachment or refreshes its remote metadata.
	// local_path, content_hash, file_size and downloaded_at survive the
	// refresh so a metadata pass never forgets a completed download.
	Upsert(ctx context.Context, att *Attachment) error
	// MarkDownloaded records a completed download for an attachment.
	MarkDownloaded(ctx context.Context, key, localPath, contentHash string, fileSize int64, at time.Time) error
	// Get gets an attachment by key. Returns ErrNotFound if not found.
	Get(ctx context.Context, key string) (*Attachment, error)
	// ListByItem returns all attachments of an item.
	ListByItem(ctx context.Context, itemKey string) ([]*Attachment, error)
}

// AttachmentRepo provides methods for attachment operations.
// It implements the AttachmentStore interface.
type AttachmentRepo struct {
	db *sql.DB
}

// NewAttachmentRepo creates a new AttachmentRepo.
func NewAttachmentRepo(db *sql.DB) *AttachmentRepo {
	return &AttachmentRepo{db: db}
}

// Upsert inserts a new attachment or refreshes filename, content type,
// version and last_synced. Download bookkeeping columns are preserved.
func (r *AttachmentRepo) Upsert(ctx context.Context, att *Attachment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO attachments (attachment_key, parent_item_key, filename, content_type, local_path, content_hash, file_size, downloaded_at, version, last_synced)
		 VALUES (?, ?, ?, ?, NULL, NULL, NULL, NULL, ?, ?)
		 ON CONFLICT (attachment_key) DO UPDATE SET
		 filename = excluded.filename, content_type = excluded.content_type,
		 version = excluded.version, last_synced = excluded.last_synced`,
		att.Key, att.ParentItemKey, att.Filename, att.ContentType, att.Version, att.LastSynced,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert attachment: %w", err)
	}
	return nil
}

// MarkDownloaded records a completed download for an attachment.
func (r *AttachmentRepo) MarkDownloaded(ctx context.Context, key, localPath, contentHash string, fileSize int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE attachments SET local_path = ?, content_hash = ?, file_size = ?, downloaded_at = ? WHERE attachment_key = ?",
		localPath, contentHash, fileSize, at, key,
	)
	if err != nil {
		return fmt.Errorf("failed to mark attachment downloaded: %w", err)
	}
	return nil
}

// Get gets an attachment by key. Returns ErrNotFound if not found.
func (r *AttachmentRepo) Get(ctx context.Context, key string) (*Attachment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT attachment_key, parent_item_key, filename, content_type, local_path, content_hash, file_size, downloaded_at, version, last_synced
		 FROM attachments WHERE attachment_key = ?`,
		key,
	)
	att, err := scanAttachment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query attachment: %w", err)
	}
	return att, nil
}

// ListByItem returns all attachments of an item, ordered by key.
func (r *AttachmentRepo) ListByItem(ctx context.Context, itemKey string) ([]*Attachment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT attachment_key, parent_item_key, filename, content_type, local_path, content_hash, file_size, downloaded_at, version, last_synced
		 FROM attachments WHERE parent_item_key = ? ORDER BY attachment_key`,
		itemKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query attachments: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []*Attachment
	for rows.Next() {
		att, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		out = append(out, att)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttachment(row rowScanner) (*Attachment, error) {
	var att Attachment
	var contentType, localPath, contentHash sql.NullString
	var fileSize sql.NullInt64
	var downloadedAt, lastSynced sql.NullTime

	err := row.Scan(&att.Key, &att.ParentItemKey, &att.Filename, &contentType,
		&localPath, &contentHash, &fileSize, &downloadedAt, &att.Version, &lastSynced)
	if err != nil {
		return nil, err
	}

	att.ContentType = contentType.String
	if localPath.Valid {
		att.LocalPath = &localPath.String
	}
	if contentHash.Valid {
		att.ContentHash = &contentHash.String
	}
	if fileSize.Valid {
		att.FileSize = &fileSize.Int64
	}
	if downloadedAt.Valid {
		att.DownloadedAt = &downloadedAt.Time
	}
	if lastSynced.Valid {
		att.LastSynced = lastSynced.Time
	}
	return &att, nil
}
