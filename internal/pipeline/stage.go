package pipeline

import (
	"slices"
	"strings"

	"github.com/rotisserie/eris"
)

// Stage names one step of a year's run.
type Stage string

const (
	StageMatrix     Stage = "matrix"
	StageFeed       Stage = "feed"
	StageProvenance Stage = "provenance"
)

// AllStages lists the stages in execution order.
var AllStages = []Stage{StageMatrix, StageFeed, StageProvenance}

// ErrUnknownStage is returned by ParseStages for a name not in AllStages.
var ErrUnknownStage = eris.New("pipeline: unknown stage")

// ParseStages resolves stage names, case-insensitively, into execution
// order without duplicates. An empty list selects every stage.
func ParseStages(names []string) ([]Stage, error) {
	if len(names) == 0 {
		return slices.Clone(AllStages), nil
	}
	want := make(map[Stage]bool, len(names))
	for _, n := range names {
		s := Stage(strings.ToLower(strings.TrimSpace(n)))
		if !slices.Contains(AllStages, s) {
			return nil, eris.Wrapf(ErrUnknownStage, "pipeline: %q", n)
		}
		want[s] = true
	}
	var out []Stage
	for _, s := range AllStages {
		if want[s] {
			out = append(out, s)
		}
	}
	return out, nil
}
