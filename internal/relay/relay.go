// Package relay is the companion-side service: it consumes match
// snapshots from the wearable, fans completed matches out to the
// remote record store and fans schedule updates back down. It never
// mutates a live match's fields; the wearable is the sole writer of
// live-game truth.
package relay

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/githubbar/refwatch/internal/models"
	"github.com/githubbar/refwatch/internal/syncer"
)

const consumerName = "companion-relay"

// RecordStore defines what the relay needs from the remote store: it
// persists COMPLETED matches keyed by match id, never intermediate
// live snapshots.
type RecordStore interface {
	UpsertCompleted(ctx context.Context, m models.Match) error
}

// Relay bridges the messaging channel and the record store.
type Relay struct {
	channel *syncer.Channel
	store   RecordStore

	mu   sync.RWMutex
	live map[uuid.UUID]models.Match
}

func New(channel *syncer.Channel, store RecordStore) *Relay {
	return &Relay{
		channel: channel,
		store:   store,
		live:    make(map[uuid.UUID]models.Match),
	}
}

// Run consumes both wearable-originated subjects until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	cc, err := r.channel.Consume(ctx, consumerName,
		[]string{syncer.SubjectMatchSnapshot, syncer.SubjectMatchAdHoc},
		jetstream.DeliverAllPolicy, r.handle)
	if err != nil {
		return fmt.Errorf("start relay consumer: %w", err)
	}
	defer cc.Stop()

	log.Info().Str("consumer", consumerName).Msg("companion relay running")
	<-ctx.Done()
	return nil
}

// handle processes one inbound message. A nil return acks; errors nak
// for redelivery (used only for transient record-store failures).
func (r *Relay) handle(subject string, data []byte) error {
	m, err := syncer.DecodeMatch(data)
	if err != nil {
		// Malformed payloads are discarded with previous state kept.
		log.Warn().Err(err).Str("subject", subject).Msg("discarding malformed snapshot")
		return nil
	}

	r.mu.Lock()
	if existing, ok := r.live[m.ID]; ok {
		m = syncer.Reconcile(&existing, m)
	}
	r.live[m.ID] = m
	r.mu.Unlock()

	log.Debug().
		Str("match_id", m.ID.String()).
		Str("subject", subject).
		Str("status", string(m.Status)).
		Msg("reconciled inbound snapshot")

	if m.Status != models.MatchStatusCompleted {
		return nil
	}
	// The record store upsert is last-writer-wins on LastUpdated, so
	// redelivered completed snapshots are safe to forward again.
	if err := r.store.UpsertCompleted(context.Background(), m); err != nil {
		return fmt.Errorf("forward completed match %s: %w", m.ID, err)
	}
	log.Info().Str("match_id", m.ID.String()).Msg("forwarded completed match to record store")
	return nil
}

// PublishSchedule pushes the full scheduled-match list down to the
// wearable, which replaces its cache wholesale.
func (r *Relay) PublishSchedule(ctx context.Context, matches []models.Match) error {
	data, err := syncer.EncodeMatchList(matches)
	if err != nil {
		return fmt.Errorf("encode schedule list: %w", err)
	}
	if err := r.channel.Publish(ctx, syncer.SubjectScheduleList, data); err != nil {
		return err
	}
	log.Info().Int("count", len(matches)).Msg("published schedule list")
	return nil
}

// Matches returns the relay's current view of known matches, most
// recently updated first.
func (r *Relay) Matches() []models.Match {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Match, 0, len(r.live))
	for _, m := range r.live {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastUpdated.After(out[j].LastUpdated)
	})
	return out
}
