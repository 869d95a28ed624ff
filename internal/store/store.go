// Package store persists the run log and, optionally, the matrices a run
// produced.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mrio-cli/internal/model"
)

// ErrNotFound is returned when a run or stage id does not exist.
var ErrNotFound = eris.New("store: not found")

// Matrix names which matrix a persisted flow belongs to.
type Matrix string

const (
	MatrixTrade Matrix = "trade"
	MatrixFeed  Matrix = "feed"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Year   int             `json:"year,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store is the run log backend.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, year int, opts model.Options) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Stages
	StartStage(ctx context.Context, runID, name string) (*model.StageRun, error)
	FinishStage(ctx context.Context, stageID string, status model.StageStatus, rows int64, errMsg string) error

	// Matrices
	SaveFlows(ctx context.Context, runID string, matrix Matrix, rows []model.MatrixRow) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

var flowColumns = []string{"run_id", "matrix", "consumer", "producer", "item", "year", "animal_product", "value", "error"}

var flowKeys = []string{"run_id", "matrix", "consumer", "producer", "item", "year", "animal_product"}

// flowValues orders a row for flowColumns. A nil animal product is stored
// as 0 so it can take part in the primary key.
func flowValues(runID string, matrix Matrix, r model.MatrixRow) []any {
	ap := 0
	if r.AnimalProduct != nil {
		ap = *r.AnimalProduct
	}
	return []any{runID, string(matrix), r.Consumer, r.Producer, r.Item, r.Year, ap, r.Value, r.Error}
}

func limitOrDefault(n int) int {
	if n <= 0 {
		return 100
	}
	return n
}
