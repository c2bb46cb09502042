package engine

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/githubbar/refwatch/internal/models"
)

// Store defines what the engine needs from the device-local store.
// Writes happen off the tick path and failures are tolerated; the next
// successful write supersedes them.
type Store interface {
	SaveActive(ctx context.Context, m models.Match) error
	LoadActive(ctx context.Context) (*models.Match, error)
	ReplaceKnown(ctx context.Context, matches []models.Match) error
	UpsertKnown(ctx context.Context, m models.Match) error
	ListKnown(ctx context.Context) ([]models.Match, error)
}

// SnapshotPublisher defines what the engine needs from the sync
// engine. All three calls are fire-and-forget: a slow or failing
// channel must never block a referee action.
type SnapshotPublisher interface {
	// PublishSnapshot enqueues a live snapshot; a later snapshot for
	// the same match id supersedes an unsent earlier one.
	PublishSnapshot(m models.Match)
	// PublishFinal enqueues the hand-off snapshot of a finished match
	// and reports the outcome of the first delivery attempt chain.
	PublishFinal(m models.Match, done func(error))
	// AnnounceAdHoc tells the companion about a newly created ad hoc
	// match.
	AnnounceAdHoc(m models.Match)
}

// Feedback is the haptic/notification collaborator. Calls are
// best-effort: failures must not affect phase or timer correctness.
type Feedback interface {
	// EndOfRegulation fires once when a timed phase reaches its
	// regulation duration.
	EndOfRegulation(p models.Phase)
}

type nopStore struct{}

func (nopStore) SaveActive(context.Context, models.Match) error { return nil }
func (nopStore) LoadActive(context.Context) (*models.Match, error) {
	return nil, nil
}
func (nopStore) ReplaceKnown(context.Context, []models.Match) error { return nil }
func (nopStore) UpsertKnown(context.Context, models.Match) error    { return nil }
func (nopStore) ListKnown(context.Context) ([]models.Match, error) {
	return nil, nil
}

type nopPublisher struct{}

func (nopPublisher) PublishSnapshot(models.Match) {}
func (nopPublisher) PublishFinal(_ models.Match, done func(error)) {
	if done != nil {
		done(nil)
	}
}
func (nopPublisher) AnnounceAdHoc(models.Match) {}

// LogFeedback is the default Feedback: it only logs. Platforms with
// haptics wire their own implementation.
type LogFeedback struct{}

func (LogFeedback) EndOfRegulation(p models.Phase) {
	log.Info().Str("phase", string(p)).Msg("regulation time reached")
}
