// Package syncer keeps the wearable's live match and the companion's
// copy convergent over a store-and-forward messaging channel, and
// forwards finished matches toward the remote record store. Delivery
// is at-least-once and unordered across subjects; convergence is
// last-writer-wins on the snapshot's LastUpdated stamp.
package syncer

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/githubbar/refwatch/internal/models"
)

// The three logical channels between wearable and companion.
const (
	// SubjectScheduleList carries the companion's full scheduled-match
	// list; the wearable replaces its cache wholesale on receipt.
	SubjectScheduleList = "refwatch.schedule.list"
	// SubjectMatchAdHoc announces a match created on the wearable.
	SubjectMatchAdHoc = "refwatch.match.adhoc"
	// SubjectMatchSnapshot carries live and finished match snapshots,
	// keyed by match id.
	SubjectMatchSnapshot = "refwatch.match.snapshot"

	StreamName     = "REFWATCH"
	StreamSubjects = "refwatch.>"
)

// ErrMissingID rejects payloads that decode but carry no match id.
var ErrMissingID = fmt.Errorf("snapshot payload has no match id")

type scheduleList struct {
	Matches []models.Match `json:"matches"`
}

// EncodeMatch serializes a snapshot for the wire.
func EncodeMatch(m models.Match) ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMatch parses an inbound snapshot. Decoding is schema-tolerant:
// unknown fields are ignored and missing optionals take defaults, so a
// device running older logic than its peer keeps working. A payload
// that cannot be decoded at all is rejected and must be discarded by
// the caller with local state retained.
func DecodeMatch(data []byte) (models.Match, error) {
	var m models.Match
	if err := json.Unmarshal(data, &m); err != nil {
		return models.Match{}, fmt.Errorf("decode match snapshot: %w", err)
	}
	if m.ID == uuid.Nil {
		return models.Match{}, ErrMissingID
	}
	applyDefaults(&m)
	return m, nil
}

// EncodeMatchList serializes a schedule list.
func EncodeMatchList(matches []models.Match) ([]byte, error) {
	return json.Marshal(scheduleList{Matches: matches})
}

// DecodeMatchList parses an inbound schedule list, dropping entries
// without an id rather than failing the whole list.
func DecodeMatchList(data []byte) ([]models.Match, error) {
	var list scheduleList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode schedule list: %w", err)
	}
	out := make([]models.Match, 0, len(list.Matches))
	for _, m := range list.Matches {
		if m.ID == uuid.Nil {
			continue
		}
		applyDefaults(&m)
		out = append(out, m)
	}
	return out, nil
}

// applyDefaults fills the documented defaults for optional fields a
// peer may not have sent.
func applyDefaults(m *models.Match) {
	def := models.DefaultConfig()
	if m.Status == "" {
		m.Status = models.MatchStatusScheduled
	}
	if m.Phase == "" {
		m.Phase = models.PhasePreGame
	}
	if m.Config.Home.Name == "" {
		m.Config.Home.Name = def.Home.Name
	}
	if m.Config.Away.Name == "" {
		m.Config.Away.Name = def.Away.Name
	}
	if m.Config.Home.PrimaryColor == "" {
		m.Config.Home.PrimaryColor = def.Home.PrimaryColor
	}
	if m.Config.Away.PrimaryColor == "" {
		m.Config.Away.PrimaryColor = def.Away.PrimaryColor
	}
	if m.Config.PeriodLengthSec == 0 {
		m.Config.PeriodLengthSec = def.PeriodLengthSec
	}
	if m.Config.BreakLengthSec == 0 {
		m.Config.BreakLengthSec = def.BreakLengthSec
	}
	if m.Config.KickOffTeam == "" {
		m.Config.KickOffTeam = models.TeamHome
	}
	if m.KickOffTeam == "" {
		m.KickOffTeam = m.Config.KickOffTeam
	}
	if m.Events == nil {
		m.Events = []models.Event{}
	}
}
