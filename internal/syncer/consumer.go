package syncer

import (
	"context"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/githubbar/refwatch/internal/models"
)

// ScheduleSink receives inbound schedule lists; the engine implements
// it with a wholesale replace of the known-matches cache.
type ScheduleSink interface {
	SetSchedule(matches []models.Match) models.Match
}

// RunScheduleConsumer subscribes the wearable to the companion's
// schedule-list subject. Only the latest list matters, so the consumer
// starts from the newest retained message. Malformed payloads are
// discarded with local state retained.
func RunScheduleConsumer(ctx context.Context, ch *Channel, durable string, sink ScheduleSink) (jetstream.ConsumeContext, error) {
	return ch.Consume(ctx, durable, []string{SubjectScheduleList}, jetstream.DeliverLastPolicy,
		func(subject string, data []byte) error {
			matches, err := DecodeMatchList(data)
			if err != nil {
				// Ack and drop: redelivering garbage cannot help.
				log.Warn().Err(err).Msg("discarding malformed schedule list")
				return nil
			}
			sink.SetSchedule(matches)
			return nil
		})
}
