package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TeamSide identifies one of the two sides in a match.
type TeamSide string

const (
	TeamHome TeamSide = "HOME"
	TeamAway TeamSide = "AWAY"
)

// Opponent returns the other side.
func (s TeamSide) Opponent() TeamSide {
	if s == TeamHome {
		return TeamAway
	}
	return TeamHome
}

// MatchStatus defines the coarse lifecycle of a match, used by
// listing and filtering. Phase carries the fine-grained position.
type MatchStatus string

const (
	MatchStatusScheduled  MatchStatus = "SCHEDULED"
	MatchStatusInProgress MatchStatus = "IN_PROGRESS"
	MatchStatusCompleted  MatchStatus = "COMPLETED"
	MatchStatusCancelled  MatchStatus = "CANCELLED"
)

// Phase defines the current segment of a match's lifecycle.
type Phase string

const (
	PhasePreGame         Phase = "PRE_GAME"
	PhaseKickOffSelect1  Phase = "KICK_OFF_SELECT_1"
	PhaseFirstHalf       Phase = "FIRST_HALF"
	PhaseHalfTime        Phase = "HALF_TIME"
	PhaseSecondHalf      Phase = "SECOND_HALF"
	PhaseKickOffSelectET Phase = "KICK_OFF_SELECT_ET"
	PhaseETFirstHalf     Phase = "EXTRA_TIME_FIRST"
	PhaseETHalfTime      Phase = "ET_HALF_TIME"
	PhaseETSecondHalf    Phase = "EXTRA_TIME_SECOND"
	PhaseKickOffSelectPK Phase = "KICK_OFF_SELECT_PK"
	PhasePenalties       Phase = "PENALTIES"
	PhaseGameEnded       Phase = "GAME_ENDED"
	PhaseAbandoned       Phase = "ABANDONED"
)

// Label returns the human-readable name used in notes and displays.
func (p Phase) Label() string {
	switch p {
	case PhasePreGame:
		return "Pre-game"
	case PhaseKickOffSelect1, PhaseKickOffSelectET, PhaseKickOffSelectPK:
		return "Kick-off selection"
	case PhaseFirstHalf:
		return "First half"
	case PhaseHalfTime:
		return "Half-time"
	case PhaseSecondHalf:
		return "Second half"
	case PhaseETFirstHalf:
		return "Extra time first half"
	case PhaseETHalfTime:
		return "Extra time half-time"
	case PhaseETSecondHalf:
		return "Extra time second half"
	case PhasePenalties:
		return "Penalty shoot-out"
	case PhaseGameEnded:
		return "Full time"
	case PhaseAbandoned:
		return "Abandoned"
	}
	return string(p)
}

// TeamConfig holds a side's display configuration.
type TeamConfig struct {
	Name           string `json:"name"`
	PrimaryColor   string `json:"primary_color,omitempty"`
	SecondaryColor string `json:"secondary_color,omitempty"`
}

// MatchConfig holds the referee-editable setup of a match. Durations
// are configured in seconds; zero ExtraTimeHalfSec means no extra time.
type MatchConfig struct {
	Home              TeamConfig `json:"home"`
	Away              TeamConfig `json:"away"`
	PeriodLengthSec   int        `json:"period_length_sec"`
	BreakLengthSec    int        `json:"break_length_sec"`
	ExtraTimeHalfSec  int        `json:"extra_time_half_sec,omitempty"`
	ExtraTimeBreakSec int        `json:"extra_time_break_sec,omitempty"`
	PenaltiesEnabled  bool       `json:"penalties_enabled,omitempty"`
	KickOffTeam       TeamSide   `json:"kick_off_team"`
}

// HasExtraTime reports whether the match is configured with extra time.
func (c MatchConfig) HasExtraTime() bool { return c.ExtraTimeHalfSec > 0 }

// Score is a pair of non-negative goal counts.
type Score struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// Match is the aggregate root exchanged between devices. It is a plain
// value: all mutation goes through the engine so that every change is
// paired with its event-log entry.
type Match struct {
	ID     uuid.UUID   `json:"id"`
	Config MatchConfig `json:"config"`
	Status MatchStatus `json:"status"`
	Phase  Phase       `json:"phase"`
	Score  Score       `json:"score"`
	// Shootout counts penalty shoot-out conversions separately from
	// the regulation score.
	Shootout             Score `json:"shootout,omitempty"`
	ElapsedInPhaseMillis int64 `json:"elapsed_in_phase_ms"`
	Running              bool  `json:"running"`
	// KickOffTeam is the side that restarts play in the current timed
	// phase; it flips between halves.
	KickOffTeam TeamSide  `json:"current_kick_off_team"`
	LastUpdated time.Time `json:"last_updated"`
	Events      []Event   `json:"events"`
}

// Clone returns a deep copy safe to hand out to subscribers and codecs.
func (m Match) Clone() Match {
	out := m
	out.Events = make([]Event, len(m.Events))
	copy(out.Events, m.Events)
	return out
}

// Elapsed returns the elapsed time in the current phase as a Duration.
func (m Match) Elapsed() time.Duration {
	return time.Duration(m.ElapsedInPhaseMillis) * time.Millisecond
}

// DefaultConfig returns the setup used for ad hoc matches created on
// the wearable: two standard halves, no extra time, no penalties.
func DefaultConfig() MatchConfig {
	return MatchConfig{
		Home:            TeamConfig{Name: "Home", PrimaryColor: "#D50000", SecondaryColor: "#FFFFFF"},
		Away:            TeamConfig{Name: "Away", PrimaryColor: "#2962FF", SecondaryColor: "#FFFFFF"},
		PeriodLengthSec: 45 * 60,
		BreakLengthSec:  15 * 60,
		KickOffTeam:     TeamHome,
	}
}

// NewDefaultMatch returns a fresh SCHEDULED match for the active slot.
func NewDefaultMatch(id uuid.UUID) Match {
	cfg := DefaultConfig()
	return Match{
		ID:          id,
		Config:      cfg,
		Status:      MatchStatusScheduled,
		Phase:       PhasePreGame,
		KickOffTeam: cfg.KickOffTeam,
		Events:      []Event{},
	}
}

// FormatClock renders a match-clock duration as mm:ss, with minutes
// running past 60 for long phases.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
