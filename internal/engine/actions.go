package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/githubbar/refwatch/internal/models"
	"github.com/githubbar/refwatch/internal/phase"
)

// The referee action API. Every call is serialized through the run
// loop and returns the resulting snapshot. Actions invoked in a phase
// that does not support them are deliberate no-ops, not errors: they
// model mis-timed physical button presses.

// StartClock resumes the clock of the current timed phase.
func (e *Engine) StartClock() models.Match {
	return e.do(func() bool {
		if e.match.Running || !phase.HasDuration(e.match.Phase) {
			return false
		}
		if e.match.Elapsed() > 0 {
			e.appendEvent(models.Event{
				Type:             models.EventNote,
				MatchClockMillis: e.matchClockMillis(),
				Message:          fmt.Sprintf("Clock resumed (%s)", models.FormatClock(e.match.Elapsed())),
			})
		}
		e.startClock()
		return true
	})
}

// PauseClock freezes the clock and logs the pause. The ticker is
// cancelled inside the same loop step, so no tick can land after the
// pause is recorded.
func (e *Engine) PauseClock() models.Match {
	return e.do(func() bool {
		if !e.match.Running {
			return false
		}
		e.stopClock()
		e.appendEvent(models.Event{
			Type:             models.EventNote,
			MatchClockMillis: e.match.ElapsedInPhaseMillis,
			Message:          fmt.Sprintf("Clock paused (%s)", models.FormatClock(e.match.Elapsed())),
		})
		return true
	})
}

// KickOff starts a playable phase: from a kick-off selection phase it
// advances into the half first, then logs the kick-off note and starts
// the clock.
func (e *Engine) KickOff() models.Match {
	return e.do(func() bool {
		if phase.IsKickOffSelect(e.match.Phase) {
			e.transitionTo(phase.Next(e.match.Phase, e.match.Config))
		}
		if !phase.IsPlayable(e.match.Phase) || e.match.Running || e.match.Elapsed() > 0 {
			return false
		}
		e.appendEvent(models.Event{
			Type:             models.EventNote,
			MatchClockMillis: 0,
			Message:          fmt.Sprintf("Kick-off %s", e.teamName(e.match.KickOffTeam)),
		})
		if phase.HasDuration(e.match.Phase) {
			e.startClock()
		}
		return true
	})
}

// EndCurrentPhase advances the lattice. Clock expiry alone never ends
// a playable phase; this explicit confirmation does.
func (e *Engine) EndCurrentPhase() models.Match {
	return e.do(func() bool {
		if phase.IsTerminal(e.match.Phase) {
			return false
		}
		e.transitionTo(phase.Next(e.match.Phase, e.match.Config))
		return true
	})
}

// RecordGoal increments the score for team and appends the Goal event.
// During the penalty shoot-out it counts into the shoot-out score
// instead. No-op outside playable phases.
func (e *Engine) RecordGoal(team models.TeamSide) models.Match {
	return e.do(func() bool {
		if !phase.IsPlayable(e.match.Phase) {
			return false
		}
		shootout := e.match.Phase == models.PhasePenalties
		if shootout {
			if team == models.TeamHome {
				e.match.Shootout.Home++
			} else {
				e.match.Shootout.Away++
			}
		} else {
			if team == models.TeamHome {
				e.match.Score.Home++
			} else {
				e.match.Score.Away++
			}
		}
		after := e.match.Score
		if shootout {
			after = e.match.Shootout
		}
		e.appendEvent(models.Event{
			Type:             models.EventGoal,
			MatchClockMillis: e.matchClockMillis(),
			Team:             team,
			HomeScoreAfter:   after.Home,
			AwayScoreAfter:   after.Away,
			Shootout:         shootout,
		})
		return true
	})
}

// RecordCard appends a disciplinary card event. No-op outside playable
// phases.
func (e *Engine) RecordCard(team models.TeamSide, playerNumber int, kind models.CardKind) models.Match {
	return e.do(func() bool {
		if !phase.IsPlayable(e.match.Phase) {
			return false
		}
		e.appendEvent(models.Event{
			Type:             models.EventCard,
			MatchClockMillis: e.matchClockMillis(),
			Team:             team,
			PlayerNumber:     playerNumber,
			Card:             kind,
		})
		return true
	})
}

// SelectKickOffTeam records which side kicks off. In the opening
// selection it also fixes the configured kick-off team; in later
// selections (extra time, penalties) it overrides the automatic flip.
func (e *Engine) SelectKickOffTeam(team models.TeamSide) models.Match {
	return e.do(func() bool {
		switch {
		case e.match.Phase == models.PhasePreGame || e.match.Phase == models.PhaseKickOffSelect1:
			e.match.Config.KickOffTeam = team
			e.match.KickOffTeam = team
			e.kickOffSelected = true
		case phase.IsKickOffSelect(e.match.Phase):
			e.match.KickOffTeam = team
			e.kickOffSelected = true
		default:
			return false
		}
		return true
	})
}

// AddNote appends a free-text note at the current match clock.
func (e *Engine) AddNote(message string) models.Match {
	return e.do(func() bool {
		if message == "" {
			return false
		}
		e.appendEvent(models.Event{
			Type:             models.EventNote,
			MatchClockMillis: e.matchClockMillis(),
			Message:          message,
		})
		return true
	})
}

// Abandon terminates the match from any non-terminal phase.
func (e *Engine) Abandon() models.Match {
	return e.do(func() bool {
		if phase.IsTerminal(e.match.Phase) {
			return false
		}
		elapsed := e.currentElapsed()
		e.stopClock()
		e.appendEvent(models.Event{
			Type:             models.EventNote,
			MatchClockMillis: int64(elapsed / time.Millisecond),
			Message:          fmt.Sprintf("Match abandoned during %s (%s)", e.match.Phase.Label(), models.FormatClock(elapsed)),
		})
		e.appendEvent(models.Event{
			Type:     models.EventPhaseChange,
			NewPhase: models.PhaseAbandoned,
		})
		e.match.Phase = models.PhaseAbandoned
		e.match.ElapsedInPhaseMillis = 0
		e.baseElapsed = 0
		e.expiryFired = false
		e.match.Status = models.MatchStatusCancelled
		return true
	})
}

// CreateAdHocMatch replaces the active slot with a fresh default match
// and announces it to the companion. No-op while a match is live.
func (e *Engine) CreateAdHocMatch() models.Match {
	return e.do(func() bool {
		if e.match.Status == models.MatchStatusInProgress {
			return false
		}
		e.match = models.NewDefaultMatch(uuid.New())
		e.publisher.AnnounceAdHoc(e.match.Clone())
		log.Info().Str("match_id", e.match.ID.String()).Msg("created ad hoc match")
		return true
	})
}

// SelectScheduledMatch loads a scheduled match from the known list
// into the active slot. No-op while a match is live or when the id is
// unknown or not scheduled.
func (e *Engine) SelectScheduledMatch(id uuid.UUID) models.Match {
	return e.do(func() bool {
		if e.match.Status == models.MatchStatusInProgress {
			return false
		}
		m, ok := e.known[id]
		if !ok || m.Status != models.MatchStatusScheduled {
			return false
		}
		e.match = m.Clone()
		e.match.KickOffTeam = e.match.Config.KickOffTeam
		log.Info().Str("match_id", id.String()).Msg("selected scheduled match")
		return true
	})
}

// FinishAndSync completes a finished match, hands it off to the
// companion and resets the active slot to a fresh default so leftover
// live state cannot bleed into the next match. done reports the
// outcome of the hand-off publish and may be nil.
func (e *Engine) FinishAndSync(done func(error)) models.Match {
	return e.do(func() bool {
		if !phase.IsTerminal(e.match.Phase) {
			if done != nil {
				done(ErrMatchNotFinished)
			}
			return false
		}
		if e.match.Phase == models.PhaseGameEnded {
			e.match.Status = models.MatchStatusCompleted
		}
		e.match.ElapsedInPhaseMillis = 0
		e.match.LastUpdated = e.clock.Now().UTC()

		final := e.match.Clone()
		e.known[final.ID] = final
		e.enqueuePersist(persistOp{upsert: clonePtr(final)})
		e.publisher.PublishFinal(final, done)
		log.Info().
			Str("match_id", final.ID.String()).
			Str("status", string(final.Status)).
			Msg("match handed off, resetting active slot")

		e.match = models.NewDefaultMatch(uuid.New())
		return true
	})
}

// SetSchedule replaces the known-matches cache wholesale with an
// inbound schedule list from the companion.
func (e *Engine) SetSchedule(matches []models.Match) models.Match {
	return e.do(func() bool {
		e.known = make(map[uuid.UUID]models.Match, len(matches))
		for _, m := range matches {
			e.known[m.ID] = m.Clone()
		}
		e.enqueuePersist(persistOp{replace: matches})
		e.refreshReadCopies()
		log.Info().Int("count", len(matches)).Msg("replaced known matches from schedule sync")
		// The active match itself is untouched; only the cache changed.
		return false
	})
}
