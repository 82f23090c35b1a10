package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"refdex/internal/contextutil"
	"refdex/internal/storage"
)

// Engine mirrors a remote collection tree into the local store: collections,
// items, attachments (downloaded and hashed), notes, and the extraction
// cache. All store writes are idempotent upserts, so a pass interrupted at
// any point can simply be re-run.
type Engine struct {
	source      SourceClient
	extractor   Extractor
	collections storage.CollectionStore
	items       storage.ItemStore
	attachments storage.AttachmentStore
	notes       storage.NoteStore
	content     storage.ContentStore
	syncState   storage.SyncStateStore
	blobs       *storage.BlobStore
	cache       *storage.SessionCache
}

// NewEngine creates a sync engine over the given collaborators.
func NewEngine(
	source SourceClient,
	extractor Extractor,
	collections storage.CollectionStore,
	items storage.ItemStore,
	attachments storage.AttachmentStore,
	notes storage.NoteStore,
	content storage.ContentStore,
	syncState storage.SyncStateStore,
	blobs *storage.BlobStore,
	cache *storage.SessionCache,
) *Engine {
	return &Engine{
		source:      source,
		extractor:   extractor,
		collections: collections,
		items:       items,
		attachments: attachments,
		notes:       notes,
		content:     content,
		syncState:   syncState,
		blobs:       blobs,
		cache:       cache,
	}
}

// SyncCollection mirrors one collection tree. Collections are upserted in two
// phases (nodes first, parent pointers second), then items, then each item's
// children. Per-item failures are counted and logged but never abort the
// pass; a connection failure aborts it and returns the stats gathered so far.
func (e *Engine) SyncCollection(ctx context.Context, collectionKey string, mode Mode) (*Stats, error) {
	logger := contextutil.LoggerFromContext(ctx)
	stats := &Stats{}

	tree, err := e.syncCollectionTree(ctx, collectionKey, stats)
	if err != nil {
		return stats, err
	}

	// sync_state rows reference collections, so the state can only be
	// initialized once the tree upsert has written the collection row.
	if err := e.syncState.Init(ctx, collectionKey); err != nil {
		return stats, fmt.Errorf("failed to init sync state: %w", err)
	}
	state, err := e.syncState.Get(ctx, collectionKey)
	if err != nil {
		return stats, fmt.Errorf("failed to load sync state: %w", err)
	}

	maxVersion := state.LastSyncVersion
	for _, rc := range tree {
		valid := make(map[string]struct{})

		items, err := e.source.Items(ctx, rc.Key)
		if err != nil {
			if errors.Is(err, ErrConnection) {
				return stats, fmt.Errorf("failed to list items of %s: %w", rc.Key, err)
			}
			logger.WarnContext(ctx, "failed to list items", "collection_key", rc.Key, "error", err)
			stats.Errors++
			continue
		}

		for _, it := range items {
			if it.Version > maxVersion {
				maxVersion = it.Version
			}
			// Standalone notes arrive as items of type "note"; they live in
			// the notes table keyed by collection, not as items.
			if it.ItemType == "note" {
				if err := e.syncStandaloneNote(ctx, rc.Key, it); err != nil {
					logger.WarnContext(ctx, "failed to sync standalone note", "note_key", it.Key, "error", err)
					stats.Errors++
				} else {
					stats.Notes++
				}
				continue
			}
			valid[it.Key] = struct{}{}
			if err := e.syncItem(ctx, rc.Key, it, mode, stats); err != nil {
				if errors.Is(err, ErrConnection) {
					return stats, fmt.Errorf("failed to sync item %s: %w", it.Key, err)
				}
				logger.WarnContext(ctx, "failed to sync item", "item_key", it.Key, "error", err)
				stats.Errors++
			}
		}

		// Orphans are reconciled only after a full pass: an item present in
		// the cache but absent from the remote listing was deleted remotely.
		if mode == ModeFull {
			key := rc.Key
			removed, err := e.items.RemoveOrphaned(ctx, valid, &key)
			if err != nil {
				return stats, fmt.Errorf("failed to remove orphaned items: %w", err)
			}
			if removed > 0 {
				logger.InfoContext(ctx, "removed orphaned items", "collection_key", rc.Key, "count", removed)
				// The removed keys are not reported back, so drop every
				// cached entry rather than serve deleted items.
				e.cache.Flush()
			}
		}
		e.cache.InvalidateCollection(rc.Key)
	}

	now := time.Now().UTC()
	state.LastSyncVersion = maxVersion
	state.LastSyncTime = &now
	if mode == ModeFull {
		state.FullSyncCompleted = true
	}
	if err := e.syncState.Put(ctx, state); err != nil {
		return stats, fmt.Errorf("failed to save sync state: %w", err)
	}

	logger.InfoContext(ctx, "sync pass complete",
		"collection_key", collectionKey,
		"mode", string(mode),
		"collections", stats.Collections,
		"items", stats.Items,
		"attachments", stats.Attachments,
		"notes", stats.Notes,
		"extracted", stats.Extracted,
		"skipped", stats.Skipped,
		"errors", stats.Errors,
	)
	return stats, nil
}

// syncCollectionTree upserts the collection and every subcollection in two
// phases. Phase 1 writes every node with its parent pointer untouched, so
// children discovered before their parents never trip the self-referential
// foreign key. Phase 2 patches parent pointers once all nodes exist.
func (e *Engine) syncCollectionTree(ctx context.Context, collectionKey string, stats *Stats) ([]*RemoteCollection, error) {
	root, err := e.source.Collection(ctx, collectionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch collection %s: %w", collectionKey, err)
	}
	subs, err := e.source.Subcollections(ctx, collectionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch subcollections of %s: %w", collectionKey, err)
	}
	tree := append([]*RemoteCollection{root}, subs...)

	now := time.Now().UTC()
	for _, rc := range tree {
		err := e.collections.Upsert(ctx, &storage.Collection{
			Key:        rc.Key,
			Name:       rc.Name,
			Version:    rc.Version,
			LastSynced: now,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to upsert collection %s: %w", rc.Key, err)
		}
		stats.Collections++
	}
	for _, rc := range tree {
		if rc.ParentKey == nil {
			continue
		}
		if err := e.collections.SetParent(ctx, rc.Key, rc.ParentKey); err != nil {
			return nil, fmt.Errorf("failed to set parent of %s: %w", rc.Key, err)
		}
	}
	return tree, nil
}

// syncItem upserts one item, records its collection membership, syncs its
// children, and refreshes the extraction cache.
func (e *Engine) syncItem(ctx context.Context, collectionKey string, it *RemoteItem, mode Mode, stats *Stats) error {
	now := time.Now().UTC()
	rec := &storage.Item{
		Key:        it.Key,
		ItemType:   it.ItemType,
		Title:      it.Title,
		Date:       it.Date,
		URL:        it.URL,
		Metadata:   it.Metadata,
		Version:    it.Version,
		LastSynced: now,
	}
	if err := e.items.Upsert(ctx, rec); err != nil {
		return err
	}
	if err := e.items.AddToCollection(ctx, collectionKey, it.Key); err != nil {
		return err
	}
	// Drop the stale child listing, then cache the fresh item record.
	e.cache.InvalidateItem(it.Key)
	e.cache.PutItem(rec)
	stats.Items++

	if err := e.syncChildren(ctx, it, mode, stats); err != nil {
		return err
	}
	return e.refreshExtraction(ctx, it, stats)
}

// syncChildren mirrors an item's attachments and notes and reconciles the
// cached children against the remote listing.
func (e *Engine) syncChildren(ctx context.Context, it *RemoteItem, mode Mode, stats *Stats) error {
	logger := contextutil.LoggerFromContext(ctx)

	children, err := e.source.Children(ctx, it.Key)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	valid := make(map[string]struct{}, len(children))
	for _, ch := range children {
		valid[ch.Key] = struct{}{}

		switch ch.Kind {
		case ChildAttachment:
			if err := e.syncAttachment(ctx, it.Key, ch, mode, stats); err != nil {
				if errors.Is(err, ErrConnection) {
					return err
				}
				logger.WarnContext(ctx, "failed to sync attachment", "attachment_key", ch.Key, "error", err)
				stats.Errors++
			}
		case ChildNote:
			parent := it.Key
			err := e.notes.Upsert(ctx, &storage.Note{
				Key:           ch.Key,
				ParentItemKey: &parent,
				Title:         ch.Title,
				Content:       ch.Content,
				Version:       ch.Version,
				LastSynced:    now,
			})
			if err != nil {
				return err
			}
			stats.Notes++
		default:
			logger.WarnContext(ctx, "unknown child kind", "item_key", it.Key, "kind", string(ch.Kind))
		}
	}

	if _, err := e.items.RemoveOrphanedChildren(ctx, it.Key, valid); err != nil {
		return err
	}
	return nil
}

// syncStandaloneNote upserts a collection-level note. Its content travels in
// the item metadata under the "note" field.
func (e *Engine) syncStandaloneNote(ctx context.Context, collectionKey string, it *RemoteItem) error {
	var meta struct {
		Note string `json:"note"`
	}
	if it.Metadata != "" {
		if err := json.Unmarshal([]byte(it.Metadata), &meta); err != nil {
			return fmt.Errorf("failed to parse metadata of note %s: %w", it.Key, err)
		}
	}
	col := collectionKey
	return e.notes.Upsert(ctx, &storage.Note{
		Key:           it.Key,
		CollectionKey: &col,
		Title:         it.Title,
		Content:       meta.Note,
		Version:       it.Version,
		LastSynced:    time.Now().UTC(),
	})
}

// syncAttachment upserts attachment metadata and downloads the bytes when
// needed. Incremental mode skips the download while the remote version is
// unchanged and the local file is still on disk.
func (e *Engine) syncAttachment(ctx context.Context, itemKey string, ch *RemoteChild, mode Mode, stats *Stats) error {
	prior, err := e.attachments.Get(ctx, ch.Key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	now := time.Now().UTC()
	err = e.attachments.Upsert(ctx, &storage.Attachment{
		Key:           ch.Key,
		ParentItemKey: itemKey,
		Filename:      ch.Filename,
		ContentType:   ch.ContentType,
		Version:       ch.Version,
		LastSynced:    now,
	})
	if err != nil {
		return err
	}
	stats.Attachments++

	if mode == ModeIncremental && prior != nil && prior.Version == ch.Version &&
		prior.LocalPath != nil && e.blobs.Exists(*prior.LocalPath) {
		stats.Skipped++
		return nil
	}

	data, err := e.source.DownloadAttachment(ctx, ch.Key)
	if err != nil {
		return err
	}
	path, hash, size, err := e.blobs.Write(itemKey, ch.Key, ch.Filename, ch.ContentType, data)
	if err != nil {
		return err
	}
	return e.attachments.MarkDownloaded(ctx, ch.Key, path, hash, size, now)
}

// refreshExtraction runs the extractor over the item's primary attachment and
// caches the text. The cache is keyed by content hash: while the downloaded
// bytes are unchanged, extraction is never recomputed.
func (e *Engine) refreshExtraction(ctx context.Context, it *RemoteItem, stats *Stats) error {
	logger := contextutil.LoggerFromContext(ctx)

	atts, ok := e.cache.GetChildren(it.Key)
	if !ok {
		var err error
		atts, err = e.attachments.ListByItem(ctx, it.Key)
		if err != nil {
			return err
		}
		e.cache.PutChildren(it.Key, atts)
	}
	var primary *storage.Attachment
	for _, att := range atts {
		if att.LocalPath != nil && att.ContentHash != nil {
			primary = att
			break
		}
	}
	if primary == nil {
		return nil
	}

	cached, err := e.content.Get(ctx, it.Key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if cached != nil && cached.ContentHash == *primary.ContentHash {
		stats.Skipped++
		return nil
	}

	data, err := e.blobs.Read(*primary.LocalPath)
	if err != nil {
		return err
	}
	text, method, err := e.extractor.Extract(ctx, data, primary.ContentType)
	if err != nil {
		return fmt.Errorf("failed to extract %s: %w", primary.Key, err)
	}
	if text == "" {
		logger.DebugContext(ctx, "extractor produced no text",
			"item_key", it.Key, "content_type", primary.ContentType)
		return nil
	}

	err = e.content.Put(ctx, &storage.ExtractedContent{
		ItemKey:          it.Key,
		ExtractionMethod: method,
		ExtractedText:    text,
		ContentHash:      *primary.ContentHash,
		ExtractionDate:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	stats.Extracted++
	return nil
}
