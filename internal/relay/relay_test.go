package relay

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/githubbar/refwatch/internal/models"
	"github.com/githubbar/refwatch/internal/syncer"
)

type fakeRecordStore struct {
	mu       sync.Mutex
	upserted []models.Match
	failNext int
}

func (f *fakeRecordStore) UpsertCompleted(ctx context.Context, m models.Match) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return fmt.Errorf("record store unavailable")
	}
	f.upserted = append(f.upserted, m)
	return nil
}

func (f *fakeRecordStore) completed() []models.Match {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Match, len(f.upserted))
	copy(out, f.upserted)
	return out
}

func encode(t *testing.T, m models.Match) []byte {
	t.Helper()
	data, err := syncer.EncodeMatch(m)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return data
}

func TestHandleForwardsCompletedMatches(t *testing.T) {
	store := &fakeRecordStore{}
	r := New(nil, store)

	m := models.NewDefaultMatch(uuid.New())
	m.Status = models.MatchStatusCompleted
	m.Phase = models.PhaseGameEnded
	m.Score = models.Score{Home: 3, Away: 1}
	m.LastUpdated = time.Now()

	if err := r.handle(syncer.SubjectMatchSnapshot, encode(t, m)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got := store.completed()
	if len(got) != 1 {
		t.Fatalf("upserted %d matches, want 1", len(got))
	}
	if got[0].ID != m.ID || got[0].Score != m.Score {
		t.Errorf("forwarded %+v, want %+v", got[0], m)
	}
}

func TestHandleKeepsLiveMatchesOutOfRecordStore(t *testing.T) {
	store := &fakeRecordStore{}
	r := New(nil, store)

	m := models.NewDefaultMatch(uuid.New())
	m.Status = models.MatchStatusInProgress
	m.Phase = models.PhaseFirstHalf
	m.LastUpdated = time.Now()

	if err := r.handle(syncer.SubjectMatchSnapshot, encode(t, m)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if got := store.completed(); len(got) != 0 {
		t.Errorf("live snapshot reached the record store: %+v", got)
	}
	matches := r.Matches()
	if len(matches) != 1 || matches[0].ID != m.ID {
		t.Errorf("live view = %+v, want the inbound match", matches)
	}
}

func TestHandleDiscardsMalformedPayload(t *testing.T) {
	store := &fakeRecordStore{}
	r := New(nil, store)

	if err := r.handle(syncer.SubjectMatchSnapshot, []byte(`{{not json`)); err != nil {
		t.Errorf("malformed payload should ack, got %v", err)
	}
	if err := r.handle(syncer.SubjectMatchSnapshot, []byte(`{"phase":"FIRST_HALF"}`)); err != nil {
		t.Errorf("payload without id should ack, got %v", err)
	}
	if len(r.Matches()) != 0 {
		t.Error("malformed payloads changed relay state")
	}
}

func TestHandleIgnoresStaleSnapshot(t *testing.T) {
	store := &fakeRecordStore{}
	r := New(nil, store)
	base := time.Date(2026, 6, 1, 14, 0, 0, 0, time.UTC)

	current := models.NewDefaultMatch(uuid.New())
	current.Status = models.MatchStatusInProgress
	current.Score = models.Score{Home: 2, Away: 0}
	current.LastUpdated = base.Add(time.Minute)
	if err := r.handle(syncer.SubjectMatchSnapshot, encode(t, current)); err != nil {
		t.Fatalf("handle current: %v", err)
	}

	stale := current.Clone()
	stale.Score = models.Score{Home: 1, Away: 0}
	stale.LastUpdated = base
	if err := r.handle(syncer.SubjectMatchSnapshot, encode(t, stale)); err != nil {
		t.Fatalf("handle stale: %v", err)
	}

	matches := r.Matches()
	if len(matches) != 1 {
		t.Fatalf("have %d matches, want 1", len(matches))
	}
	if matches[0].Score != current.Score {
		t.Errorf("stale snapshot overwrote newer state: %+v", matches[0].Score)
	}
}

func TestHandleNaksOnRecordStoreFailure(t *testing.T) {
	store := &fakeRecordStore{failNext: 1}
	r := New(nil, store)

	m := models.NewDefaultMatch(uuid.New())
	m.Status = models.MatchStatusCompleted
	m.Phase = models.PhaseGameEnded
	m.LastUpdated = time.Now()

	payload := encode(t, m)
	if err := r.handle(syncer.SubjectMatchSnapshot, payload); err == nil {
		t.Fatal("expected an error so the message gets redelivered")
	}

	// Redelivery of the same payload after the store recovers lands
	// the match.
	if err := r.handle(syncer.SubjectMatchSnapshot, payload); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if got := store.completed(); len(got) != 1 {
		t.Errorf("upserted %d matches after recovery, want 1", len(got))
	}
}

func TestMatchesSortsNewestFirst(t *testing.T) {
	store := &fakeRecordStore{}
	r := New(nil, store)
	base := time.Date(2026, 6, 1, 14, 0, 0, 0, time.UTC)

	older := models.NewDefaultMatch(uuid.New())
	older.LastUpdated = base
	newer := models.NewDefaultMatch(uuid.New())
	newer.LastUpdated = base.Add(time.Hour)

	if err := r.handle(syncer.SubjectMatchSnapshot, encode(t, older)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := r.handle(syncer.SubjectMatchSnapshot, encode(t, newer)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	matches := r.Matches()
	if len(matches) != 2 || matches[0].ID != newer.ID {
		t.Errorf("order = %v, want newest first", matches)
	}
}
