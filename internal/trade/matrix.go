package trade

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/mrio-cli/internal/faostat"
	"github.com/sells-group/mrio-cli/internal/model"
)

// Inputs are the tables one year's trade matrix is built from.
type Inputs struct {
	Reports    []model.TradeReport
	Windows    []model.ReportingWindow
	Production []model.ProductionRecord
	Processing []faostat.Record // food balance processing element for sugar
	Items      []faostat.ItemMapping
	Content    *faostat.ContentTable
}

// MatrixOptions selects the conversion basis, preferred reporting side and
// solver parallelism.
type MatrixOptions struct {
	Basis     string
	Direction model.Direction
	Workers   int
}

// MatrixStats collects the per-step counters of BuildMatrix.
type MatrixStats struct {
	Normalize NormalizeStats
	Solve     SolveStats
	Sugar     SugarStats
	SelfFlows int
	Rows      int
}

// BuildMatrix produces the attributed trade matrix for one year: normalize
// trade, add sugar aggregate production, solve every commodity, add
// domestic self-flows for produced but untraded primary items and split
// sugar back into cane and beet. Error is value × relative error.
func BuildMatrix(ctx context.Context, year int, in Inputs, opts MatrixOptions) ([]model.CommodityFlow, MatrixStats, error) {
	log := zap.L().With(zap.String("component", "matrix"), zap.Int("year", year))
	var stats MatrixStats

	items := AggregateItemMap(in.Items)
	conv, err := BuildConversion(opts.Basis, in.Content, items)
	if err != nil {
		return nil, stats, err
	}

	reports := make([]model.TradeReport, 0, len(in.Reports))
	for _, r := range in.Reports {
		if r.Year == year {
			reports = append(reports, r)
		}
	}
	flows, nstats, err := Normalize(reports, in.Windows, opts.Direction, conv)
	if err != nil {
		return nil, stats, err
	}
	stats.Normalize = nstats

	production := make([]model.ProductionRecord, 0, len(in.Production))
	for _, r := range in.Production {
		if r.Year == year && model.IsCountry(r.Country) {
			production = append(production, r)
		}
	}
	withSugar := AggregateProduction(production, conv)

	results, sstats, err := SolveAll(ctx, flows, withSugar, opts.Workers)
	if err != nil {
		return nil, stats, err
	}
	stats.Solve = sstats

	self := selfFlows(withSugar, items, flows)
	stats.SelfFlows = len(self)
	results = append(results, self...)

	shares := SugarShares(production, in.Processing, conv)
	sugar, sugarStats := Disaggregate(results, shares, production, conv)
	stats.Sugar = sugarStats

	out := make([]model.CommodityFlow, 0, len(results)+len(sugar))
	for _, r := range results {
		if r.Item == model.ItemSugarAggregate {
			continue
		}
		out = append(out, r.Flow())
	}
	for _, r := range sugar {
		out = append(out, r.Flow())
	}
	SortFlows(out)
	stats.Rows = len(out)

	log.Info("trade matrix built",
		zap.Int("reports", nstats.Reports),
		zap.Int("flows", nstats.Flows),
		zap.Int("pairs", sstats.Pairs),
		zap.Int("failed_pairs", sstats.Failed),
		zap.Int("clamped", sstats.Clamped),
		zap.Int("self_flows", stats.SelfFlows),
		zap.Int("sugar_dropped", sugarStats.Dropped),
		zap.Int("rows", stats.Rows),
	)
	return out, stats, nil
}

// selfFlows keeps production of primary items that never appear in trade as
// purely domestic consumption.
func selfFlows(production []model.ProductionRecord, items []faostat.ItemMapping, flows []model.CommodityFlow) []model.AttributionResult {
	primaries := make(map[int]bool, len(items))
	for _, m := range items {
		primaries[m.Primary] = true
	}
	traded := make(map[int]bool)
	for _, f := range flows {
		traded[f.Item] = true
	}

	var out []model.AttributionResult
	for _, r := range production {
		if !primaries[r.Item] || traded[r.Item] || r.Value == 0 {
			continue
		}
		out = append(out, model.AttributionResult{
			Consumer: r.Country,
			Producer: r.Country,
			Item:     r.Item,
			Year:     r.Year,
			Value:    r.Value,
		})
	}
	return out
}
