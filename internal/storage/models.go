package storage

import "time"

// Collection represents a named, possibly-nested grouping of items in the
// remote library.
type Collection struct {
	Key        string
	Name       string
	ParentKey  *string // nil for top-level collections
	Version    int64
	LastSynced time.Time
}

// Item represents a document record that may own child attachments and notes.
// Metadata carries the opaque remote metadata blob as JSON.
type Item struct {
	Key        string
	ItemType   string
	Title      string
	Date       string
	URL        string
	Metadata   string
	Version    int64
	LastSynced time.Time
}

// Attachment represents a binary file associated with an item.
// LocalPath is nil until the file has been downloaded.
type Attachment struct {
	Key           string
	ParentItemKey string
	Filename      string
	ContentType   string
	LocalPath     *string
	ContentHash   *string // SHA-256 hex of the raw file bytes
	FileSize      *int64
	DownloadedAt  *time.Time
	Version       int64
	LastSynced    time.Time
}

// Note represents a note record. ParentItemKey is nil for standalone notes,
// which instead carry the collection they belong to.
type Note struct {
	Key           string
	ParentItemKey *string
	CollectionKey *string
	Title         string
	Content       string
	Version       int64
	LastSynced    time.Time
}

// SyncState tracks sync progress for one collection (1:1 with Collection).
type SyncState struct {
	CollectionKey     string
	LastSyncVersion   int64
	LastSyncTime      *time.Time
	FullSyncCompleted bool
}

// ExtractedContent caches the text extraction result for an item (1:1).
// ContentHash records the attachment bytes the text was extracted from, so
// sync can skip re-extraction while the hash is unchanged.
type ExtractedContent struct {
	ItemKey          string
	ExtractionMethod string
	ExtractedText    string
	ContentHash      string
	ExtractionDate   time.Time
}

// ChunkRecord is a stored chunk of an item's extracted text together with its
// embedding bytes and citation provenance.
type ChunkRecord struct {
	ID          int64
	ItemKey     string
	ChunkIndex  int
	Text        string
	Embedding   []byte
	PageNumber  *int
	SectionID   *string
	CharStart   int
	CharEnd     int
	ItemType    string
	DocType     *string
	ContentHash string
}

// IndexState records whether and how an item has been vectorized (1:1 with
// Item). It is the sole truth for "is indexed".
type IndexState struct {
	ItemKey        string
	ChunkCount     int
	ContentHash    string
	EmbeddingModel string
	IndexedAt      time.Time
}

// CacheInfo summarizes the cached state of one collection.
type CacheInfo struct {
	CollectionKey     string    `json:"collection_key"`
	CollectionName    string    `json:"collection_name"`
	LastSyncVersion   int64     `json:"last_sync_version"`
	LastSyncTime      *string   `json:"last_sync_time,omitempty"`
	FullSyncCompleted bool      `json:"full_sync_completed"`
	ItemCount         int       `json:"item_count"`
	AttachmentCount   int       `json:"attachment_count"`
	ExtractedCount    int       `json:"extracted_count"`
	NoteCount         int       `json:"note_count"`
	IndexedItemCount  int       `json:"indexed_item_count"`
	ChunkCount        int       `json:"chunk_count"`
}
