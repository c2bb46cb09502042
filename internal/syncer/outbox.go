package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/githubbar/refwatch/internal/models"
)

// Transport is the narrow slice of the messaging channel the outbox
// needs; the NATS Channel implements it, tests use an in-memory fake.
type Transport interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// OutboxConfig tunes retry behavior.
type OutboxConfig struct {
	RetryDelay  time.Duration
	MaxAttempts int
}

func DefaultOutboxConfig() OutboxConfig {
	return OutboxConfig{
		RetryDelay:  2 * time.Second,
		MaxAttempts: 10,
	}
}

type pendingSnapshot struct {
	match    models.Match
	subject  string
	done     func(error)
	attempts int
}

// Outbox holds at most one unsent snapshot per match id: a newer
// snapshot supersedes an in-flight older one, and sends never block
// the caller. Failed sends are retried opportunistically with backoff.
type Outbox struct {
	transport Transport
	clock     clockwork.Clock
	cfg       OutboxConfig

	mu      sync.Mutex
	pending map[uuid.UUID]*pendingSnapshot

	notify  chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
	lifeMu  sync.Mutex
	running bool
}

func NewOutbox(transport Transport, clock clockwork.Clock, cfg OutboxConfig) *Outbox {
	return &Outbox{
		transport: transport,
		clock:     clock,
		cfg:       cfg,
		pending:   make(map[uuid.UUID]*pendingSnapshot),
		notify:    make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

func (o *Outbox) Start(ctx context.Context) error {
	o.lifeMu.Lock()
	defer o.lifeMu.Unlock()
	if o.running {
		return fmt.Errorf("outbox already running")
	}
	o.running = true
	o.wg.Add(1)
	go o.run(ctx)
	log.Info().
		Dur("retry_delay", o.cfg.RetryDelay).
		Int("max_attempts", o.cfg.MaxAttempts).
		Msg("sync outbox started")
	return nil
}

func (o *Outbox) Stop() {
	o.lifeMu.Lock()
	defer o.lifeMu.Unlock()
	if !o.running {
		return
	}
	o.running = false
	close(o.stopCh)
	o.wg.Wait()
	log.Info().Msg("sync outbox stopped")
}

// PublishSnapshot enqueues a live snapshot for the companion.
func (o *Outbox) PublishSnapshot(m models.Match) {
	o.enqueue(SubjectMatchSnapshot, m, nil)
}

// PublishFinal enqueues a hand-off snapshot; done reports the first
// terminal outcome (success, or giving up after MaxAttempts).
func (o *Outbox) PublishFinal(m models.Match, done func(error)) {
	o.enqueue(SubjectMatchSnapshot, m, done)
}

// AnnounceAdHoc enqueues an ad hoc match announcement.
func (o *Outbox) AnnounceAdHoc(m models.Match) {
	o.enqueue(SubjectMatchAdHoc, m, nil)
}

func (o *Outbox) enqueue(subject string, m models.Match, done func(error)) {
	o.mu.Lock()
	prev := o.pending[m.ID]
	p := &pendingSnapshot{match: m, subject: subject, done: done}
	if done == nil && prev != nil && prev.subject == subject {
		// Superseding an unsent snapshot: carry its completion
		// callback forward, the newer snapshot subsumes the older.
		p.done = prev.done
	}
	o.pending[m.ID] = p
	o.mu.Unlock()

	select {
	case o.notify <- struct{}{}:
	default:
	}
}

// take drains the pending set for one delivery round.
func (o *Outbox) take() []*pendingSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.pending) == 0 {
		return nil
	}
	out := make([]*pendingSnapshot, 0, len(o.pending))
	for _, p := range o.pending {
		out = append(out, p)
	}
	o.pending = make(map[uuid.UUID]*pendingSnapshot)
	return out
}

// requeue puts a failed snapshot back unless a newer one arrived for
// the same match while it was in flight.
func (o *Outbox) requeue(p *pendingSnapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if newer, ok := o.pending[p.match.ID]; ok {
		if newer.done == nil {
			newer.done = p.done
		}
		return
	}
	o.pending[p.match.ID] = p
}

func (o *Outbox) run(ctx context.Context) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-o.notify:
		}
		o.deliver(ctx)
	}
}

func (o *Outbox) deliver(ctx context.Context) {
	for {
		batch := o.take()
		if len(batch) == 0 {
			return
		}
		failed := 0
		for _, p := range batch {
			if err := o.publishOne(ctx, p); err != nil {
				failed++
			}
		}
		if failed == 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-o.clock.After(o.cfg.RetryDelay):
		}
	}
}

func (o *Outbox) publishOne(ctx context.Context, p *pendingSnapshot) error {
	data, err := EncodeMatch(p.match)
	if err != nil {
		// Unencodable snapshots cannot be retried into success.
		log.Error().Err(err).Str("match_id", p.match.ID.String()).Msg("failed to encode snapshot")
		if p.done != nil {
			p.done(err)
		}
		return nil
	}

	if err := o.transport.Publish(ctx, p.subject, data); err != nil {
		p.attempts++
		if p.attempts >= o.cfg.MaxAttempts {
			log.Error().
				Err(err).
				Str("match_id", p.match.ID.String()).
				Int("attempts", p.attempts).
				Msg("giving up on snapshot, awaiting a newer one")
			if p.done != nil {
				p.done(fmt.Errorf("publish failed after %d attempts: %w", p.attempts, err))
			}
			return nil
		}
		log.Warn().
			Err(err).
			Str("match_id", p.match.ID.String()).
			Str("subject", p.subject).
			Int("attempt", p.attempts).
			Msg("snapshot publish failed, will retry")
		o.requeue(p)
		return err
	}

	log.Debug().
		Str("match_id", p.match.ID.String()).
		Str("subject", p.subject).
		Msg("published snapshot")
	if p.done != nil {
		p.done(nil)
	}
	return nil
}
