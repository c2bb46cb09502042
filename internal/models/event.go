package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType defines the kind of an event-log entry.
type EventType string

const (
	EventGoal        EventType = "GOAL"
	EventCard        EventType = "CARD"
	EventPhaseChange EventType = "PHASE_CHANGE"
	EventNote        EventType = "NOTE"
)

// CardKind defines the disciplinary card colors.
type CardKind string

const (
	CardYellow CardKind = "YELLOW"
	CardRed    CardKind = "RED"
)

// Event is one entry of a match's append-only log. It is a tagged
// union flattened into a single struct: only the fields relevant to
// Type are set, the rest stay at their zero value and are omitted on
// the wire so older peers can decode newer payloads.
type Event struct {
	ID               uuid.UUID `json:"id"`
	Type             EventType `json:"type"`
	WallClock        time.Time `json:"wall_clock"`
	MatchClockMillis int64     `json:"match_clock_ms"`

	// GOAL / CARD
	Team TeamSide `json:"team,omitempty"`

	// GOAL; shoot-out conversions carry Shootout=true and the
	// shoot-out totals instead of the regulation score.
	HomeScoreAfter int  `json:"home_score_after,omitempty"`
	AwayScoreAfter int  `json:"away_score_after,omitempty"`
	Shootout       bool `json:"shootout,omitempty"`

	// CARD
	PlayerNumber int      `json:"player_number,omitempty"`
	Card         CardKind `json:"card,omitempty"`

	// PHASE_CHANGE
	NewPhase Phase `json:"new_phase,omitempty"`

	// NOTE
	Message string `json:"message,omitempty"`
}

// FoldScore replays Goal events in order and returns the regulation
// score they imply. The cached Match.Score must always equal this fold;
// the log is the source of truth for audit.
func FoldScore(events []Event) Score {
	var s Score
	for _, ev := range events {
		if ev.Type != EventGoal || ev.Shootout {
			continue
		}
		if ev.Team == TeamHome {
			s.Home++
		} else {
			s.Away++
		}
	}
	return s
}

// FoldShootout is FoldScore for penalty shoot-out conversions.
func FoldShootout(events []Event) Score {
	var s Score
	for _, ev := range events {
		if ev.Type != EventGoal || !ev.Shootout {
			continue
		}
		if ev.Team == TeamHome {
			s.Home++
		} else {
			s.Away++
		}
	}
	return s
}
