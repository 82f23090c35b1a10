package sync_test

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"go.uber.org/mock/gomock"

	"refdex/internal/storage"
	"refdex/internal/sync"
	"refdex/internal/sync/mocks"
)

type testEnv struct {
	engine  *sync.Engine
	db      *sql.DB
	source  *mocks.MockSourceClient
	extract *mocks.MockExtractor
	blobs   *storage.BlobStore
	cache   *storage.SessionCache
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	db, err := storage.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	blobs, err := storage.NewBlobStore(filepath.Join(dir, "files"))
	if err != nil {
		t.Fatalf("failed to create blob store: %v", err)
	}

	ctrl := gomock.NewController(t)
	source := mocks.NewMockSourceClient(ctrl)
	extract := mocks.NewMockExtractor(ctrl)

	cache := storage.NewSessionCache(0)
	engine := sync.NewEngine(
		source,
		extract,
		storage.NewCollectionRepo(db),
		storage.NewItemRepo(db),
		storage.NewAttachmentRepo(db),
		storage.NewNoteRepo(db),
		storage.NewContentRepo(db),
		storage.NewSyncStateRepo(db),
		blobs,
		cache,
	)
	return &testEnv{engine: engine, db: db, source: source, extract: extract, blobs: blobs, cache: cache}
}

// expectTree wires the source mock for a root collection with one
// subcollection, one item with a PDF attachment and a note, and one item
// without children. times controls how many passes the expectations cover.
func (env *testEnv) expectTree(times int) {
	parent := "COL1"
	root := &sync.RemoteCollection{Key: "COL1", Name: "Research", Version: 10}
	sub := &sync.RemoteCollection{Key: "COL2", Name: "Methods Papers", ParentKey: &parent, Version: 11}

	env.source.EXPECT().Collection(gomock.Any(), "COL1").Return(root, nil).Times(times)
	env.source.EXPECT().Subcollections(gomock.Any(), "COL1").Return([]*sync.RemoteCollection{sub}, nil).Times(times)
	env.source.EXPECT().Items(gomock.Any(), "COL1").Return([]*sync.RemoteItem{
		{Key: "ITEM1", ItemType: "journalArticle", Title: "Attention Is All You Need", Version: 42},
	}, nil).Times(times)
	env.source.EXPECT().Items(gomock.Any(), "COL2").Return([]*sync.RemoteItem{
		{Key: "ITEM2", ItemType: "book", Title: "Deep Learning", Version: 40},
	}, nil).Times(times)
	env.source.EXPECT().Children(gomock.Any(), "ITEM1").Return([]*sync.RemoteChild{
		{Key: "ATT1", Kind: sync.ChildAttachment, Filename: "paper.pdf", ContentType: "application/pdf", Version: 42},
		{Key: "NOTE1", Kind: sync.ChildNote, Title: "Summary", Content: "<p>notes</p>", Version: 42},
	}, nil).Times(times)
	env.source.EXPECT().Children(gomock.Any(), "ITEM2").Return(nil, nil).Times(times)
}

func count(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	return n
}

func TestSyncCollectionFreshStore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// The very first pass runs against an empty database: no collection row
	// and no sync state exist yet.
	env.source.EXPECT().Collection(gomock.Any(), "COL1").
		Return(&sync.RemoteCollection{Key: "COL1", Name: "Research", Version: 1}, nil)
	env.source.EXPECT().Subcollections(gomock.Any(), "COL1").Return(nil, nil)
	env.source.EXPECT().Items(gomock.Any(), "COL1").Return(nil, nil)

	if _, err := env.engine.SyncCollection(ctx, "COL1", sync.ModeFull); err != nil {
		t.Fatalf("first pass on a fresh store failed: %v", err)
	}
	if got := count(t, env.db, "SELECT COUNT(*) FROM sync_state WHERE collection_key = 'COL1'"); got != 1 {
		t.Errorf("sync_state rows = %d, want 1", got)
	}
}

func TestSyncCollectionFull(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pdf := []byte("%PDF-1.4 fake body")

	env.expectTree(1)
	env.source.EXPECT().DownloadAttachment(gomock.Any(), "ATT1").Return(pdf, nil)
	env.extract.EXPECT().Extract(gomock.Any(), pdf, "application/pdf").
		Return("Attention is all you need.", "pdftotext", nil)

	stats, err := env.engine.SyncCollection(ctx, "COL1", sync.ModeFull)
	if err != nil {
		t.Fatalf("SyncCollection failed: %v", err)
	}

	want := sync.Stats{Collections: 2, Items: 2, Attachments: 1, Notes: 1, Extracted: 1}
	if *stats != want {
		t.Errorf("stats = %+v, want %+v", *stats, want)
	}

	// Parent pointer patched in phase 2.
	var parent sql.NullString
	if err := env.db.QueryRow("SELECT parent_key FROM collections WHERE collection_key = 'COL2'").Scan(&parent); err != nil {
		t.Fatalf("failed to query subcollection: %v", err)
	}
	if !parent.Valid || parent.String != "COL1" {
		t.Errorf("subcollection parent = %v, want COL1", parent)
	}

	// Attachment downloaded and hashed.
	var localPath, contentHash sql.NullString
	err = env.db.QueryRow("SELECT local_path, content_hash FROM attachments WHERE attachment_key = 'ATT1'").
		Scan(&localPath, &contentHash)
	if err != nil {
		t.Fatalf("failed to query attachment: %v", err)
	}
	sum := sha256.Sum256(pdf)
	if !contentHash.Valid || contentHash.String != hex.EncodeToString(sum[:]) {
		t.Errorf("content hash = %v, want sha256 of the downloaded bytes", contentHash)
	}
	if !localPath.Valid || !env.blobs.Exists(localPath.String) {
		t.Errorf("attachment file missing at %v", localPath)
	}

	// Extraction cached against the content hash.
	var extractedHash string
	if err := env.db.QueryRow("SELECT content_hash FROM extracted_content WHERE item_key = 'ITEM1'").Scan(&extractedHash); err != nil {
		t.Fatalf("failed to query extracted content: %v", err)
	}
	if extractedHash != contentHash.String {
		t.Errorf("extraction cache hash = %s, want %s", extractedHash, contentHash.String)
	}

	// Sync state advanced to the highest item version seen.
	var version int64
	var completed bool
	err = env.db.QueryRow("SELECT last_sync_version, full_sync_completed FROM sync_state WHERE collection_key = 'COL1'").
		Scan(&version, &completed)
	if err != nil {
		t.Fatalf("failed to query sync state: %v", err)
	}
	if version != 42 || !completed {
		t.Errorf("sync state = (version %d, completed %v), want (42, true)", version, completed)
	}

	// The pass warms the session cache for the items it touched.
	if item, ok := env.cache.GetItem("ITEM1"); !ok || item.Title != "Attention Is All You Need" {
		t.Errorf("session cache item = (%v, %v), want cached ITEM1", item, ok)
	}
	if atts, ok := env.cache.GetChildren("ITEM1"); !ok || len(atts) != 1 {
		t.Errorf("session cache children = (%d, %v), want 1 cached attachment", len(atts), ok)
	}
}

func TestSyncCollectionStandaloneNote(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.source.EXPECT().Collection(gomock.Any(), "COL1").
		Return(&sync.RemoteCollection{Key: "COL1", Name: "Research", Version: 1}, nil)
	env.source.EXPECT().Subcollections(gomock.Any(), "COL1").Return(nil, nil)
	env.source.EXPECT().Items(gomock.Any(), "COL1").Return([]*sync.RemoteItem{
		{Key: "SNOTE1", ItemType: "note", Title: "Reading list", Version: 7,
			Metadata: `{"note":"compare against the 2019 baseline"}`},
	}, nil)

	stats, err := env.engine.SyncCollection(ctx, "COL1", sync.ModeFull)
	if err != nil {
		t.Fatalf("SyncCollection failed: %v", err)
	}
	if stats.Notes != 1 || stats.Items != 0 {
		t.Errorf("stats = %+v, want 1 note and 0 items", *stats)
	}

	var collection sql.NullString
	var content string
	err = env.db.QueryRow("SELECT collection_key, content FROM notes WHERE note_key = 'SNOTE1'").
		Scan(&collection, &content)
	if err != nil {
		t.Fatalf("failed to query note: %v", err)
	}
	if !collection.Valid || collection.String != "COL1" {
		t.Errorf("note collection = %v, want COL1", collection)
	}
	if content != "compare against the 2019 baseline" {
		t.Errorf("note content = %q", content)
	}
	if got := count(t, env.db, "SELECT COUNT(*) FROM items WHERE item_key = 'SNOTE1'"); got != 0 {
		t.Errorf("standalone note landed in the items table")
	}
}

func TestSyncCollectionIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pdf := []byte("%PDF-1.4 fake body")

	env.expectTree(2)
	// Full mode re-downloads both times, but extraction is recomputed only
	// once: the second pass sees an unchanged content hash.
	env.source.EXPECT().DownloadAttachment(gomock.Any(), "ATT1").Return(pdf, nil).Times(2)
	env.extract.EXPECT().Extract(gomock.Any(), pdf, "application/pdf").
		Return("Attention is all you need.", "pdftotext", nil).Times(1)

	if _, err := env.engine.SyncCollection(ctx, "COL1", sync.ModeFull); err != nil {
		t.Fatalf("first pass failed: %v", err)
	}
	itemsBefore := count(t, env.db, "SELECT COUNT(*) FROM items")

	stats, err := env.engine.SyncCollection(ctx, "COL1", sync.ModeFull)
	if err != nil {
		t.Fatalf("second pass failed: %v", err)
	}
	if got := count(t, env.db, "SELECT COUNT(*) FROM items"); got != itemsBefore {
		t.Errorf("item count changed across identical passes: %d != %d", got, itemsBefore)
	}
	if stats.Extracted != 0 || stats.Skipped != 1 {
		t.Errorf("second pass stats = %+v, want extraction skipped", *stats)
	}
}

func TestSyncCollectionIncrementalSkipsDownload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pdf := []byte("%PDF-1.4 fake body")

	env.expectTree(2)
	env.source.EXPECT().DownloadAttachment(gomock.Any(), "ATT1").Return(pdf, nil).Times(1)
	env.extract.EXPECT().Extract(gomock.Any(), pdf, "application/pdf").
		Return("Attention is all you need.", "pdftotext", nil).Times(1)

	if _, err := env.engine.SyncCollection(ctx, "COL1", sync.ModeFull); err != nil {
		t.Fatalf("full pass failed: %v", err)
	}

	stats, err := env.engine.SyncCollection(ctx, "COL1", sync.ModeIncremental)
	if err != nil {
		t.Fatalf("incremental pass failed: %v", err)
	}
	// One skip for the unchanged download, one for the cached extraction.
	if stats.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", stats.Skipped)
	}
}

func TestSyncCollectionRemovesOrphans(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root := &sync.RemoteCollection{Key: "COL1", Name: "Research", Version: 1}
	env.source.EXPECT().Collection(gomock.Any(), "COL1").Return(root, nil).Times(2)
	env.source.EXPECT().Subcollections(gomock.Any(), "COL1").Return(nil, nil).Times(2)

	gone := &sync.RemoteItem{Key: "GONE", ItemType: "report", Title: "Withdrawn", Version: 1}
	kept := &sync.RemoteItem{Key: "KEPT", ItemType: "report", Title: "Kept", Version: 1}

	first := env.source.EXPECT().Items(gomock.Any(), "COL1").
		Return([]*sync.RemoteItem{gone, kept}, nil)
	env.source.EXPECT().Items(gomock.Any(), "COL1").
		Return([]*sync.RemoteItem{kept}, nil).After(first)
	env.source.EXPECT().Children(gomock.Any(), "GONE").Return([]*sync.RemoteChild{
		{Key: "GONE-ATT", Kind: sync.ChildAttachment, Filename: "w.txt", ContentType: "text/plain", Version: 1},
	}, nil)
	env.source.EXPECT().Children(gomock.Any(), "KEPT").Return(nil, nil).Times(2)
	env.source.EXPECT().DownloadAttachment(gomock.Any(), "GONE-ATT").Return([]byte("w"), nil)
	env.extract.EXPECT().Extract(gomock.Any(), []byte("w"), "text/plain").Return("w", "plain", nil)

	if _, err := env.engine.SyncCollection(ctx, "COL1", sync.ModeFull); err != nil {
		t.Fatalf("first pass failed: %v", err)
	}
	if got := count(t, env.db, "SELECT COUNT(*) FROM items"); got != 2 {
		t.Fatalf("items after first pass = %d, want 2", got)
	}

	if _, err := env.engine.SyncCollection(ctx, "COL1", sync.ModeFull); err != nil {
		t.Fatalf("second pass failed: %v", err)
	}
	if got := count(t, env.db, "SELECT COUNT(*) FROM items WHERE item_key = 'GONE'"); got != 0 {
		t.Errorf("orphaned item survived the pass")
	}
	if got := count(t, env.db, "SELECT COUNT(*) FROM attachments WHERE attachment_key = 'GONE-ATT'"); got != 0 {
		t.Errorf("orphaned item's attachment survived the pass")
	}
	if got := count(t, env.db, "SELECT COUNT(*) FROM items WHERE item_key = 'KEPT'"); got != 1 {
		t.Errorf("surviving item was removed")
	}
	if _, ok := env.cache.GetItem("GONE"); ok {
		t.Errorf("removed item still served from the session cache")
	}
}

func TestSyncCollectionConnectionErrorAborts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.source.EXPECT().Collection(gomock.Any(), "COL1").
		Return(nil, fmt.Errorf("dial tcp: %w", sync.ErrConnection))

	stats, err := env.engine.SyncCollection(ctx, "COL1", sync.ModeFull)
	if !errors.Is(err, sync.ErrConnection) {
		t.Fatalf("err = %v, want ErrConnection", err)
	}
	if stats == nil {
		t.Fatal("partial stats not returned")
	}
}

func TestSyncCollectionItemErrorCountedNotFatal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root := &sync.RemoteCollection{Key: "COL1", Name: "Research", Version: 1}
	env.source.EXPECT().Collection(gomock.Any(), "COL1").Return(root, nil)
	env.source.EXPECT().Subcollections(gomock.Any(), "COL1").Return(nil, nil)
	env.source.EXPECT().Items(gomock.Any(), "COL1").Return([]*sync.RemoteItem{
		{Key: "BAD", ItemType: "report", Title: "Bad", Version: 1},
		{Key: "GOOD", ItemType: "report", Title: "Good", Version: 2},
	}, nil)
	env.source.EXPECT().Children(gomock.Any(), "BAD").
		Return(nil, errors.New("malformed child payload"))
	env.source.EXPECT().Children(gomock.Any(), "GOOD").Return(nil, nil)

	stats, err := env.engine.SyncCollection(ctx, "COL1", sync.ModeFull)
	if err != nil {
		t.Fatalf("SyncCollection failed: %v", err)
	}
	if stats.Errors != 1 {
		t.Errorf("Errors = %d, want 1", stats.Errors)
	}
	if got := count(t, env.db, "SELECT COUNT(*) FROM items WHERE item_key = 'GOOD'"); got != 1 {
		t.Errorf("healthy item not synced after sibling failure")
	}
}
