package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/githubbar/refwatch/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "refwatch.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestActiveSlotRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	m := models.NewDefaultMatch(uuid.New())
	m.Status = models.MatchStatusInProgress
	m.Phase = models.PhaseFirstHalf
	m.Score = models.Score{Home: 1, Away: 0}
	m.ElapsedInPhaseMillis = 754_000
	m.Running = true
	m.LastUpdated = time.Date(2026, 4, 18, 9, 30, 0, 0, time.UTC)
	m.Events = append(m.Events, models.Event{
		ID:               uuid.New(),
		Type:             models.EventGoal,
		Team:             models.TeamHome,
		HomeScoreAfter:   1,
		MatchClockMillis: 750_000,
	})

	if err := s.SaveActive(ctx, m); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.LoadActive(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil {
		t.Fatal("load returned nil for a saved slot")
	}
	if got.ID != m.ID || got.Phase != m.Phase || got.Score != m.Score {
		t.Errorf("loaded %+v, want %+v", got, m)
	}
	if got.ElapsedInPhaseMillis != m.ElapsedInPhaseMillis || !got.Running {
		t.Errorf("clock state lost: elapsed=%d running=%v", got.ElapsedInPhaseMillis, got.Running)
	}
	if len(got.Events) != 1 || got.Events[0].Type != models.EventGoal {
		t.Errorf("event log lost: %+v", got.Events)
	}
}

func TestSaveActiveOverwritesSlot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := models.NewDefaultMatch(uuid.New())
	second := models.NewDefaultMatch(uuid.New())
	second.Score = models.Score{Home: 2, Away: 2}

	if err := s.SaveActive(ctx, first); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if err := s.SaveActive(ctx, second); err != nil {
		t.Fatalf("save second: %v", err)
	}

	got, err := s.LoadActive(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ID != second.ID || got.Score != second.Score {
		t.Errorf("slot holds %+v, want the second save", got)
	}
}

func TestLoadActiveEmptySlot(t *testing.T) {
	s := openTestStore(t)

	got, err := s.LoadActive(context.Background())
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if got != nil {
		t.Errorf("empty slot returned %+v", got)
	}
}

func TestReplaceKnownIsWholesale(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := models.NewDefaultMatch(uuid.New())
	if err := s.ReplaceKnown(ctx, []models.Match{old}); err != nil {
		t.Fatalf("seed known: %v", err)
	}

	a := models.NewDefaultMatch(uuid.New())
	b := models.NewDefaultMatch(uuid.New())
	if err := s.ReplaceKnown(ctx, []models.Match{a, b}); err != nil {
		t.Fatalf("replace known: %v", err)
	}

	got, err := s.ListKnown(ctx)
	if err != nil {
		t.Fatalf("list known: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("have %d known matches, want 2", len(got))
	}
	ids := map[uuid.UUID]bool{got[0].ID: true, got[1].ID: true}
	if ids[old.ID] {
		t.Error("replaced entry survived the wholesale replace")
	}
	if !ids[a.ID] || !ids[b.ID] {
		t.Errorf("missing entries: %v", ids)
	}
}

func TestUpsertKnownReplacesExisting(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	m := models.NewDefaultMatch(uuid.New())
	if err := s.UpsertKnown(ctx, m); err != nil {
		t.Fatalf("insert: %v", err)
	}

	m.Status = models.MatchStatusCompleted
	m.Score = models.Score{Home: 4, Away: 0}
	if err := s.UpsertKnown(ctx, m); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.ListKnown(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("have %d entries, want 1", len(got))
	}
	if got[0].Status != models.MatchStatusCompleted || got[0].Score.Home != 4 {
		t.Errorf("upsert did not replace: %+v", got[0])
	}
}

func TestStateSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "refwatch.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	m := models.NewDefaultMatch(uuid.New())
	m.ElapsedInPhaseMillis = 31_000
	if err := s.SaveActive(ctx, m); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.LoadActive(ctx)
	if err != nil {
		t.Fatalf("load after reopen: %v", err)
	}
	if got == nil || got.ID != m.ID || got.ElapsedInPhaseMillis != 31_000 {
		t.Errorf("state lost across reopen: %+v", got)
	}
}
