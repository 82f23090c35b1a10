package sync

import "context"

//go:generate mockgen -source=types.go -destination=mocks/mock_collaborators.go -package=mocks

// Mode selects how much remote state a sync pass re-pulls.
type Mode string

const (
	// ModeFull ignores prior sync versions and re-downloads everything.
	ModeFull Mode = "full"
	// ModeIncremental re-fetches metadata but skips re-downloading
	// attachment bytes whose remote version is unchanged and whose local
	// file is still present.
	ModeIncremental Mode = "incremental"
)

// ChildKind discriminates the child records an item can own.
type ChildKind string

const (
	ChildAttachment ChildKind = "attachment"
	ChildNote       ChildKind = "note"
)

// RemoteCollection is a collection node as reported by the source API.
type RemoteCollection struct {
	Key       string
	Name      string
	ParentKey *string
	Version   int64
}

// RemoteItem is an item record as reported by the source API.
// Metadata carries the source's opaque metadata blob as JSON.
type RemoteItem struct {
	Key      string
	ItemType string
	Title    string
	Date     string
	URL      string
	Metadata string
	Version  int64
}

// RemoteChild is an attachment or note owned by an item. Filename and
// ContentType are set for attachments; Title and Content for notes.
type RemoteChild struct {
	Key         string
	Kind        ChildKind
	Filename    string
	ContentType string
	Title       string
	Content     string
	Version     int64
}

// SourceClient is the remote collection API the engine mirrors from.
type SourceClient interface {
	// Collection fetches a single collection node by key.
	Collection(ctx context.Context, key string) (*RemoteCollection, error)
	// Subcollections fetches every descendant collection of a collection.
	Subcollections(ctx context.Context, key string) ([]*RemoteCollection, error)
	// Items fetches the items that are members of a collection.
	Items(ctx context.Context, collectionKey string) ([]*RemoteItem, error)
	// Children fetches the attachments and notes owned by an item.
	Children(ctx context.Context, itemKey string) ([]*RemoteChild, error)
	// DownloadAttachment fetches the raw bytes of an attachment.
	DownloadAttachment(ctx context.Context, key string) ([]byte, error)
}

// Extractor converts attachment bytes into plain text. It returns the text
// and the extraction method used, or an empty text for unsupported types.
type Extractor interface {
	Extract(ctx context.Context, data []byte, contentType string) (text string, method string, err error)
}

// Stats summarizes one sync pass. A pass that hits per-item failures still
// completes; Errors counts them.
type Stats struct {
	Collections int `json:"collections"`
	Items       int `json:"items"`
	Attachments int `json:"attachments"`
	Notes       int `json:"notes"`
	Extracted   int `json:"extracted"`
	Skipped     int `json:"skipped"`
	Errors      int `json:"errors"`
}
