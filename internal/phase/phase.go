// Package phase holds the pure transition logic of the match phase
// lattice. It answers structural questions (successor, durations,
// playability, kick-off flips); the side-effect ordering of an actual
// transition lives in the engine.
package phase

import (
	"time"

	"github.com/githubbar/refwatch/internal/models"
)

// Next returns the successor of p in the lattice, honoring the
// configured extra-time and penalties options. Terminal phases return
// themselves.
func Next(p models.Phase, cfg models.MatchConfig) models.Phase {
	switch p {
	case models.PhasePreGame:
		return models.PhaseKickOffSelect1
	case models.PhaseKickOffSelect1:
		return models.PhaseFirstHalf
	case models.PhaseFirstHalf:
		return models.PhaseHalfTime
	case models.PhaseHalfTime:
		return models.PhaseSecondHalf
	case models.PhaseSecondHalf:
		if cfg.HasExtraTime() {
			return models.PhaseKickOffSelectET
		}
		if cfg.PenaltiesEnabled {
			return models.PhaseKickOffSelectPK
		}
		return models.PhaseGameEnded
	case models.PhaseKickOffSelectET:
		return models.PhaseETFirstHalf
	case models.PhaseETFirstHalf:
		return models.PhaseETHalfTime
	case models.PhaseETHalfTime:
		return models.PhaseETSecondHalf
	case models.PhaseETSecondHalf:
		if cfg.PenaltiesEnabled {
			return models.PhaseKickOffSelectPK
		}
		return models.PhaseGameEnded
	case models.PhaseKickOffSelectPK:
		return models.PhasePenalties
	case models.PhasePenalties:
		return models.PhaseGameEnded
	}
	return p
}

// HasDuration reports whether p is a timed phase with a regulation
// duration. Penalties and the kick-off selection phases have no
// running clock.
func HasDuration(p models.Phase) bool {
	switch p {
	case models.PhaseFirstHalf, models.PhaseSecondHalf, models.PhaseHalfTime,
		models.PhaseETFirstHalf, models.PhaseETSecondHalf, models.PhaseETHalfTime:
		return true
	}
	return false
}

// IsPlayable reports whether goals and cards may be recorded in p.
func IsPlayable(p models.Phase) bool {
	switch p {
	case models.PhaseFirstHalf, models.PhaseSecondHalf,
		models.PhaseETFirstHalf, models.PhaseETSecondHalf,
		models.PhasePenalties:
		return true
	}
	return false
}

// IsKickOffSelect reports whether p is a kick-off selection phase.
func IsKickOffSelect(p models.Phase) bool {
	switch p {
	case models.PhaseKickOffSelect1, models.PhaseKickOffSelectET, models.PhaseKickOffSelectPK:
		return true
	}
	return false
}

// IsBreak reports whether p is a between-halves break.
func IsBreak(p models.Phase) bool {
	return p == models.PhaseHalfTime || p == models.PhaseETHalfTime
}

// IsTerminal reports whether p ends the lattice.
func IsTerminal(p models.Phase) bool {
	return p == models.PhaseGameEnded || p == models.PhaseAbandoned
}

// AutoStartsClock reports whether entering p starts its clock without
// a referee action. Breaks auto-start; playable phases wait for an
// explicit kick-off.
func AutoStartsClock(p models.Phase) bool {
	return IsBreak(p)
}

// FlipsKickOff reports whether entering p flips the kick-off team
// relative to the half immediately preceding it.
func FlipsKickOff(p models.Phase) bool {
	switch p {
	case models.PhaseSecondHalf, models.PhaseETFirstHalf, models.PhaseETSecondHalf:
		return true
	}
	return false
}

// RegulationFor returns the regulation duration of p under cfg, or 0
// for phases with no running clock.
func RegulationFor(p models.Phase, cfg models.MatchConfig) time.Duration {
	sec := 0
	switch p {
	case models.PhaseFirstHalf, models.PhaseSecondHalf:
		sec = cfg.PeriodLengthSec
	case models.PhaseHalfTime:
		sec = cfg.BreakLengthSec
	case models.PhaseETFirstHalf, models.PhaseETSecondHalf:
		sec = cfg.ExtraTimeHalfSec
	case models.PhaseETHalfTime:
		sec = cfg.ExtraTimeBreakSec
		if sec == 0 {
			// ET breaks default to five minutes when not configured.
			sec = 5 * 60
		}
	}
	return time.Duration(sec) * time.Second
}
