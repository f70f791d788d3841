package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/reputenet/trustmarket/internal/domain"
)

// EventArchiveStore is the narrow slice of the ledger the archiver needs: a
// time-ranged read of the event log and the matching prune.
type EventArchiveStore interface {
	ListEventsBefore(ctx context.Context, before time.Time) ([]domain.MarketEvent, error)
	DeleteEventsBefore(ctx context.Context, before time.Time) (int64, error)
}

// archivedEvent is the JSONL row shape written to cold storage.
type archivedEvent struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	ProfileID uint64          `json:"profile_id"`
	Actor     string          `json:"actor"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ArchiveImpl implements domain.Archiver by querying the ledger for aged
// market events, serializing them to JSONL, uploading the batch to S3, and
// pruning the archived rows from the database. The upload happens before the
// prune, so a failed upload leaves the database untouched. Every batch gets
// its own key derived from the cutoff, so a later cycle never overwrites an
// earlier batch; a failed prune only means the next run re-uploads the same
// events under a new key, duplicating them in cold storage but never losing
// them.
type ArchiveImpl struct {
	writer domain.BlobWriter
	store  EventArchiveStore
	logger *slog.Logger
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, store EventArchiveStore, logger *slog.Logger) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		store:  store,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// ArchiveEvents uploads all market events created strictly before the cutoff
// as a JSONL batch keyed by the cutoff timestamp and prunes them from the
// database. It returns the number of events archived.
func (a *ArchiveImpl) ArchiveEvents(ctx context.Context, before time.Time) (int64, error) {
	events, err := a.store.ListEventsBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	rows := make([]archivedEvent, 0, len(events))
	for _, ev := range events {
		rows = append(rows, archivedEvent{
			ID:        ev.ID,
			Type:      string(ev.Type),
			ProfileID: ev.ProfileID,
			Actor:     ev.Actor.Hex(),
			Payload:   json.RawMessage(ev.Payload),
			CreatedAt: ev.CreatedAt,
		})
	}

	buf, err := marshalJSONL(rows)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events marshal: %w", err)
	}

	path := archivePath("events", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive events upload: %w", err)
	}

	pruned, err := a.store.DeleteEventsBefore(ctx, before)
	if err != nil {
		return int64(len(events)), fmt.Errorf("s3blob: archive events prune: %w", err)
	}

	a.logger.InfoContext(ctx, "events archived",
		slog.String("path", path),
		slog.Int("archived", len(events)),
		slog.Int64("pruned", pruned),
		slog.Time("before", before),
	)
	return int64(len(events)), nil
}

// archivePath builds the S3 key for an archive batch, partitioned by the
// year-month of the cutoff and keyed by the full cutoff timestamp so
// successive batches in the same month never collide.
//
//	archive/events/2025-01/20250115T060000Z.jsonl
func archivePath(kind string, before time.Time) string {
	t := before.UTC()
	return fmt.Sprintf("archive/%s/%s/%s.jsonl", kind, t.Format("2006-01"), t.Format("20060102T150405Z"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
