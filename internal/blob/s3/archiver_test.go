package s3blob

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reputenet/trustmarket/internal/domain"
)

// capturingWriter records every Put so tests can inspect keys and payloads.
type capturingWriter struct {
	paths  []string
	bodies []string
	err    error
}

func (w *capturingWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	if w.err != nil {
		return w.err
	}
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.paths = append(w.paths, path)
	w.bodies = append(w.bodies, string(body))
	return nil
}

func (w *capturingWriter) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	return w.Put(ctx, path, data, "")
}

type fakeEventStore struct {
	events  []domain.MarketEvent
	pruned  []time.Time
	listErr error
}

func (s *fakeEventStore) ListEventsBefore(ctx context.Context, before time.Time) ([]domain.MarketEvent, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []domain.MarketEvent
	for _, ev := range s.events {
		if ev.CreatedAt.Before(before) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *fakeEventStore) DeleteEventsBefore(ctx context.Context, before time.Time) (int64, error) {
	s.pruned = append(s.pruned, before)
	var kept []domain.MarketEvent
	var n int64
	for _, ev := range s.events {
		if ev.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, ev)
	}
	s.events = kept
	return n, nil
}

func archiveFixture(events []domain.MarketEvent) (*ArchiveImpl, *capturingWriter, *fakeEventStore) {
	writer := &capturingWriter{}
	store := &fakeEventStore{events: events}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewArchiver(writer, store, logger), writer, store
}

func testEvent(id string, createdAt time.Time) domain.MarketEvent {
	return domain.MarketEvent{
		ID:        id,
		Type:      domain.EventVotesBought,
		ProfileID: 7,
		Actor:     common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Payload:   []byte(`{"votes":1}`),
		CreatedAt: createdAt,
	}
}

func TestArchiveEvents(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	arch, writer, store := archiveFixture([]domain.MarketEvent{
		testEvent("ev-1", base.Add(-48*time.Hour)),
		testEvent("ev-2", base.Add(-24*time.Hour)),
		testEvent("ev-3", base.Add(24*time.Hour)), // newer than the cutoff, stays
	})

	n, err := arch.ArchiveEvents(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.Len(t, writer.paths, 1)
	assert.Equal(t, "archive/events/2025-01/20250110T000000Z.jsonl", writer.paths[0])
	assert.Equal(t, 2, strings.Count(writer.bodies[0], "\n"), "one JSONL line per event")
	assert.Contains(t, writer.bodies[0], `"ev-1"`)
	assert.Contains(t, writer.bodies[0], `"ev-2"`)
	assert.NotContains(t, writer.bodies[0], `"ev-3"`)

	require.Len(t, store.pruned, 1)
	require.Len(t, store.events, 1)
	assert.Equal(t, "ev-3", store.events[0].ID)
}

func TestArchiveEventsKeysNeverCollide(t *testing.T) {
	// Two cycles inside the same calendar month must land on different keys,
	// otherwise the second batch would overwrite the first after its events
	// were already pruned.
	ctx := context.Background()
	arch, writer, _ := archiveFixture([]domain.MarketEvent{
		testEvent("ev-1", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
		testEvent("ev-2", time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC)),
	})

	_, err := arch.ArchiveEvents(ctx, time.Date(2025, 1, 10, 6, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	_, err = arch.ArchiveEvents(ctx, time.Date(2025, 1, 20, 6, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Len(t, writer.paths, 2)
	assert.NotEqual(t, writer.paths[0], writer.paths[1])
	assert.Contains(t, writer.bodies[0], `"ev-1"`)
	assert.Contains(t, writer.bodies[1], `"ev-2"`)
}

func TestArchiveEventsUploadFailureLeavesDatabase(t *testing.T) {
	ctx := context.Background()
	arch, writer, store := archiveFixture([]domain.MarketEvent{
		testEvent("ev-1", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
	})
	writer.err = errors.New("bucket unavailable")

	_, err := arch.ArchiveEvents(ctx, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Empty(t, store.pruned, "a failed upload must not prune")
	assert.Len(t, store.events, 1)
}

func TestArchiveEventsNothingToDo(t *testing.T) {
	ctx := context.Background()
	arch, writer, store := archiveFixture(nil)

	n, err := arch.ArchiveEvents(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, writer.paths)
	assert.Empty(t, store.pruned)
}
