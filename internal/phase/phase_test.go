package phase

import (
	"testing"
	"time"

	"github.com/githubbar/refwatch/internal/models"
)

func baseConfig() models.MatchConfig {
	cfg := models.DefaultConfig()
	cfg.PeriodLengthSec = 45 * 60
	cfg.BreakLengthSec = 15 * 60
	return cfg
}

func TestNextWalksRegulationOnlyLattice(t *testing.T) {
	cfg := baseConfig()
	want := []models.Phase{
		models.PhasePreGame,
		models.PhaseKickOffSelect1,
		models.PhaseFirstHalf,
		models.PhaseHalfTime,
		models.PhaseSecondHalf,
		models.PhaseGameEnded,
	}
	p := models.PhasePreGame
	for i := 1; i < len(want); i++ {
		p = Next(p, cfg)
		if p != want[i] {
			t.Fatalf("step %d: got %s, want %s", i, p, want[i])
		}
	}
	if got := Next(models.PhaseGameEnded, cfg); got != models.PhaseGameEnded {
		t.Errorf("terminal phase must be a fixed point, got %s", got)
	}
}

func TestNextWalksFullLattice(t *testing.T) {
	cfg := baseConfig()
	cfg.ExtraTimeHalfSec = 15 * 60
	cfg.PenaltiesEnabled = true

	want := []models.Phase{
		models.PhasePreGame,
		models.PhaseKickOffSelect1,
		models.PhaseFirstHalf,
		models.PhaseHalfTime,
		models.PhaseSecondHalf,
		models.PhaseKickOffSelectET,
		models.PhaseETFirstHalf,
		models.PhaseETHalfTime,
		models.PhaseETSecondHalf,
		models.PhaseKickOffSelectPK,
		models.PhasePenalties,
		models.PhaseGameEnded,
	}
	p := models.PhasePreGame
	for i := 1; i < len(want); i++ {
		p = Next(p, cfg)
		if p != want[i] {
			t.Fatalf("step %d: got %s, want %s", i, p, want[i])
		}
	}
}

func TestNextPenaltiesWithoutExtraTime(t *testing.T) {
	cfg := baseConfig()
	cfg.PenaltiesEnabled = true
	if got := Next(models.PhaseSecondHalf, cfg); got != models.PhaseKickOffSelectPK {
		t.Errorf("second half should lead to penalty kick-off selection, got %s", got)
	}
}

func TestPhasePredicates(t *testing.T) {
	tests := []struct {
		p             models.Phase
		hasDuration   bool
		playable      bool
		kickOffSelect bool
		terminal      bool
		autoStarts    bool
	}{
		{models.PhasePreGame, false, false, false, false, false},
		{models.PhaseKickOffSelect1, false, false, true, false, false},
		{models.PhaseFirstHalf, true, true, false, false, false},
		{models.PhaseHalfTime, true, false, false, false, true},
		{models.PhaseSecondHalf, true, true, false, false, false},
		{models.PhaseKickOffSelectET, false, false, true, false, false},
		{models.PhaseETFirstHalf, true, true, false, false, false},
		{models.PhaseETHalfTime, true, false, false, false, true},
		{models.PhaseETSecondHalf, true, true, false, false, false},
		{models.PhaseKickOffSelectPK, false, false, true, false, false},
		{models.PhasePenalties, false, true, false, false, false},
		{models.PhaseGameEnded, false, false, false, true, false},
		{models.PhaseAbandoned, false, false, false, true, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.p), func(t *testing.T) {
			if got := HasDuration(tt.p); got != tt.hasDuration {
				t.Errorf("HasDuration = %v, want %v", got, tt.hasDuration)
			}
			if got := IsPlayable(tt.p); got != tt.playable {
				t.Errorf("IsPlayable = %v, want %v", got, tt.playable)
			}
			if got := IsKickOffSelect(tt.p); got != tt.kickOffSelect {
				t.Errorf("IsKickOffSelect = %v, want %v", got, tt.kickOffSelect)
			}
			if got := IsTerminal(tt.p); got != tt.terminal {
				t.Errorf("IsTerminal = %v, want %v", got, tt.terminal)
			}
			if got := AutoStartsClock(tt.p); got != tt.autoStarts {
				t.Errorf("AutoStartsClock = %v, want %v", got, tt.autoStarts)
			}
		})
	}
}

func TestRegulationFor(t *testing.T) {
	cfg := baseConfig()
	cfg.ExtraTimeHalfSec = 15 * 60

	tests := []struct {
		p    models.Phase
		want time.Duration
	}{
		{models.PhaseFirstHalf, 45 * time.Minute},
		{models.PhaseSecondHalf, 45 * time.Minute},
		{models.PhaseHalfTime, 15 * time.Minute},
		{models.PhaseETFirstHalf, 15 * time.Minute},
		{models.PhaseETHalfTime, 5 * time.Minute}, // default when unconfigured
		{models.PhasePenalties, 0},
		{models.PhaseKickOffSelect1, 0},
		{models.PhaseGameEnded, 0},
	}
	for _, tt := range tests {
		if got := RegulationFor(tt.p, cfg); got != tt.want {
			t.Errorf("RegulationFor(%s) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestFlipsKickOff(t *testing.T) {
	flipping := map[models.Phase]bool{
		models.PhaseSecondHalf:   true,
		models.PhaseETFirstHalf:  true,
		models.PhaseETSecondHalf: true,
	}
	all := []models.Phase{
		models.PhasePreGame, models.PhaseKickOffSelect1, models.PhaseFirstHalf,
		models.PhaseHalfTime, models.PhaseSecondHalf, models.PhaseKickOffSelectET,
		models.PhaseETFirstHalf, models.PhaseETHalfTime, models.PhaseETSecondHalf,
		models.PhaseKickOffSelectPK, models.PhasePenalties, models.PhaseGameEnded,
	}
	for _, p := range all {
		if got := FlipsKickOff(p); got != flipping[p] {
			t.Errorf("FlipsKickOff(%s) = %v, want %v", p, got, flipping[p])
		}
	}
}
