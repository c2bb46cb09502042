package syncer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/githubbar/refwatch/internal/models"
)

type fakeTransport struct {
	mu        sync.Mutex
	published []models.Match
	subjects  []string
	failures  int
	attempts  int
}

func (f *fakeTransport) Publish(ctx context.Context, subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failures > 0 {
		f.failures--
		return fmt.Errorf("transport down")
	}
	m, err := DecodeMatch(data)
	if err != nil {
		return err
	}
	f.published = append(f.published, m)
	f.subjects = append(f.subjects, subject)
	return nil
}

func (f *fakeTransport) snapshot() ([]models.Match, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Match, len(f.published))
	copy(out, f.published)
	return out, f.attempts
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func testOutboxConfig() OutboxConfig {
	return OutboxConfig{RetryDelay: 5 * time.Millisecond, MaxAttempts: 3}
}

func TestOutboxNewerSnapshotSupersedesPending(t *testing.T) {
	transport := &fakeTransport{}
	ob := NewOutbox(transport, clockwork.NewRealClock(), testOutboxConfig())

	m := models.NewDefaultMatch(uuid.New())
	m.Score = models.Score{Home: 1, Away: 0}
	ob.PublishSnapshot(m)
	m.Score = models.Score{Home: 2, Away: 0}
	ob.PublishSnapshot(m)

	if err := ob.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer ob.Stop()

	waitFor(t, func() bool {
		published, _ := transport.snapshot()
		return len(published) > 0
	})

	published, _ := transport.snapshot()
	if len(published) != 1 {
		t.Fatalf("published %d snapshots, want 1", len(published))
	}
	if published[0].Score != (models.Score{Home: 2, Away: 0}) {
		t.Errorf("published stale snapshot: %+v", published[0].Score)
	}
}

func TestOutboxRetriesAfterTransientFailure(t *testing.T) {
	transport := &fakeTransport{failures: 2}
	ob := NewOutbox(transport, clockwork.NewRealClock(), testOutboxConfig())
	if err := ob.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer ob.Stop()

	m := models.NewDefaultMatch(uuid.New())
	ob.PublishSnapshot(m)

	waitFor(t, func() bool {
		published, _ := transport.snapshot()
		return len(published) == 1
	})

	published, attempts := transport.snapshot()
	if published[0].ID != m.ID {
		t.Errorf("published id = %s, want %s", published[0].ID, m.ID)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestOutboxFinalReportsSuccess(t *testing.T) {
	transport := &fakeTransport{}
	ob := NewOutbox(transport, clockwork.NewRealClock(), testOutboxConfig())
	if err := ob.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer ob.Stop()

	result := make(chan error, 1)
	ob.PublishFinal(models.NewDefaultMatch(uuid.New()), func(err error) {
		result <- err
	})

	select {
	case err := <-result:
		if err != nil {
			t.Errorf("final delivery reported error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("completion callback never fired")
	}
}

func TestOutboxGivesUpAfterMaxAttempts(t *testing.T) {
	transport := &fakeTransport{failures: 100}
	ob := NewOutbox(transport, clockwork.NewRealClock(), testOutboxConfig())
	if err := ob.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer ob.Stop()

	result := make(chan error, 1)
	ob.PublishFinal(models.NewDefaultMatch(uuid.New()), func(err error) {
		result <- err
	})

	select {
	case err := <-result:
		if err == nil {
			t.Error("expected a failure after exhausting attempts")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("completion callback never fired")
	}

	_, attempts := transport.snapshot()
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestOutboxSupersedeCarriesCallbackForward(t *testing.T) {
	transport := &fakeTransport{}
	ob := NewOutbox(transport, clockwork.NewRealClock(), testOutboxConfig())

	m := models.NewDefaultMatch(uuid.New())
	result := make(chan error, 1)
	ob.PublishFinal(m, func(err error) {
		result <- err
	})
	m.Config.Home.Name = "Updated"
	ob.PublishSnapshot(m)

	if err := ob.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer ob.Stop()

	select {
	case err := <-result:
		if err != nil {
			t.Errorf("carried callback reported error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("superseded callback was dropped")
	}

	published, _ := transport.snapshot()
	if len(published) != 1 || published[0].Config.Home.Name != "Updated" {
		t.Errorf("published = %+v, want single updated snapshot", published)
	}
}
