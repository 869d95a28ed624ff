package provenance

import (
	"context"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/mrio-cli/internal/flowfile"
)

// Output file names inside <results>/<year>/<country>/.
const (
	HumanFile = "human_consumed.csv"
	FeedFile  = "feed.csv"
)

var (
	humanHeader = []string{"Producer_Country_Code", "Item_Code", "Animal_Product", "Ratio", "Provenance", "Provenance_Err", "Pasture_m2"}
	feedHeader  = []string{"Producer_Country_Code", "Item_Code", "Animal_Product_Code", "Animal_Producer_Country_Code", "Ratio", "Provenance", "Provenance_Err"}
)

// Task computes and persists one country.
type Task func(ctx context.Context, c *Context, country int) (Result, error)

// Stats summarizes a pool run.
type Stats struct {
	Countries int
	Failed    int
	HumanRows int
	FeedRows  int
}

// Pool fans countries out over a fixed number of workers. Every task reads
// the same Context.
type Pool struct {
	c       *Context
	workers int
	task    Task
	log     *zap.Logger
}

// NewPool creates a pool that writes each country's files under results.
func NewPool(c *Context, results string, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		c:       c,
		workers: workers,
		task:    writeTask(results),
		log:     zap.L().With(zap.String("component", "provenance")),
	}
}

// WithTask replaces the per-country task.
func (p *Pool) WithTask(t Task) *Pool {
	p.task = t
	return p
}

// Run processes countries and returns their results in input order. A
// failed country is logged and returned as an empty, failed result; only
// cancellation of ctx aborts the run.
func (p *Pool) Run(ctx context.Context, countries []int) ([]Result, Stats, error) {
	results := make([]Result, len(countries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, country := range countries {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			res, err := p.task(gctx, p.c, country)
			if err != nil {
				p.log.Warn("country provenance failed",
					zap.Int("country", country),
					zap.Int("year", p.c.year),
					zap.Error(err),
				)
				results[i] = Result{Country: country, Year: p.c.year, Failed: true}
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, eris.Wrap(err, "provenance: run")
	}

	stats := Stats{Countries: len(countries)}
	for _, r := range results {
		if r.Failed {
			stats.Failed++
		}
		stats.HumanRows += len(r.Human)
		stats.FeedRows += len(r.Feed)
	}
	p.log.Info("provenance complete",
		zap.Int("year", p.c.year),
		zap.Int("countries", stats.Countries),
		zap.Int("failed", stats.Failed),
		zap.Int("human_rows", stats.HumanRows),
		zap.Int("feed_rows", stats.FeedRows),
	)
	return results, stats, nil
}

func writeTask(results string) Task {
	return func(_ context.Context, c *Context, country int) (Result, error) {
		res, err := Compute(c, country)
		if err != nil {
			return Result{}, err
		}
		if err := WriteResult(results, res); err != nil {
			return Result{}, err
		}
		return res, nil
	}
}

// CountryDir returns <results>/<year>/<country>.
func CountryDir(results string, year, country int) string {
	return filepath.Join(results, strconv.Itoa(year), strconv.Itoa(country))
}

// WriteResult writes human_consumed.csv and feed.csv for one country.
func WriteResult(results string, r Result) error {
	dir := CountryDir(results, r.Year, r.Country)
	err := flowfile.WriteCSV(filepath.Join(dir, HumanFile), humanHeader, len(r.Human), func(i int) []string {
		h := r.Human[i]
		group := ""
		if h.Primary {
			group = "Primary"
		}
		return []string{itoa(h.Producer), itoa(h.Item), group, ftoa(h.Ratio), ftoa(h.Provenance), ftoa(h.Error), ftoa(h.PastureM2)}
	})
	if err != nil {
		return eris.Wrapf(err, "provenance: write country %d", r.Country)
	}
	err = flowfile.WriteCSV(filepath.Join(dir, FeedFile), feedHeader, len(r.Feed), func(i int) []string {
		f := r.Feed[i]
		return []string{itoa(f.Producer), itoa(f.Item), itoa(f.AnimalProduct), itoa(f.AnimalProducer), ftoa(f.Ratio), ftoa(f.Provenance), ftoa(f.Error)}
	})
	if err != nil {
		return eris.Wrapf(err, "provenance: write country %d", r.Country)
	}
	return nil
}

func itoa(v int) string { return strconv.Itoa(v) }

func ftoa(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
