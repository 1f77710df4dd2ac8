package record

import "time"

// Embedding is the semantic representation of a record at its last successful sync.
type Embedding struct {
	recordID    string
	listID      string
	fingerprint string
	revision    int
	syncedAt    time.Time
}

// NextEmbedding builds the embedding revision that follows prev for the record's current content.
// prev is nil when the record has never been synced.
func NextEmbedding(r Record, prev *Embedding, now time.Time) Embedding {
	revision := 1
	if prev != nil {
		revision = prev.revision + 1
	}
	return Embedding{
		recordID:    r.id,
		listID:      r.listID,
		fingerprint: r.fingerprint,
		revision:    revision,
		syncedAt:    now.UTC(),
	}
}

// ReconstructEmbedding creates an Embedding without validation (storage hydration).
func ReconstructEmbedding(recordID, listID, fingerprint string, revision int, syncedAt time.Time) Embedding {
	return Embedding{
		recordID:    recordID,
		listID:      listID,
		fingerprint: fingerprint,
		revision:    revision,
		syncedAt:    syncedAt,
	}
}

// RecordID returns the record the embedding belongs to.
func (e Embedding) RecordID() string { return e.recordID }

// ListID returns the list of the record.
func (e Embedding) ListID() string { return e.listID }

// Fingerprint returns the record content version that was embedded.
func (e Embedding) Fingerprint() string { return e.fingerprint }

// Revision counts successful content changes; unchanged re-syncs do not bump it.
func (e Embedding) Revision() int { return e.revision }

// SyncedAt returns the time of the last successful sync.
func (e Embedding) SyncedAt() time.Time { return e.syncedAt }

// FreshFor reports whether the embedding reflects the given record fingerprint.
func (e Embedding) FreshFor(fingerprint string) bool {
	return e.fingerprint != "" && e.fingerprint == fingerprint
}
