package pipeline

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/mrio-cli/internal/faostat"
	"github.com/sells-group/mrio-cli/internal/feed"
	"github.com/sells-group/mrio-cli/internal/fetcher"
	"github.com/sells-group/mrio-cli/internal/flowfile"
	"github.com/sells-group/mrio-cli/internal/model"
	"github.com/sells-group/mrio-cli/internal/provenance"
	"github.com/sells-group/mrio-cli/internal/resilience"
	"github.com/sells-group/mrio-cli/internal/store"
	"github.com/sells-group/mrio-cli/internal/trade"
)

// stageOutput is what a stage reports back to the run log.
type stageOutput struct {
	rows int64
	file string
}

// runMatrix builds and writes the attributed trade matrix.
func (e *Engine) runMatrix(ctx context.Context, y *yearRun) (stageOutput, error) {
	l := e.loader
	reports, err := l.Trade(ctx, y.year)
	if err != nil {
		return stageOutput{}, err
	}
	windows, err := l.ReportingWindows(ctx)
	if err != nil {
		return stageOutput{}, err
	}
	production, err := l.Production(ctx, y.year)
	if err != nil {
		return stageOutput{}, err
	}
	balance := faostat.FoodBalanceFile
	if y.opts.Historic {
		balance = faostat.FoodBalanceHistoricFile
	}
	processing, err := l.Normalized(ctx, balance, y.year, model.ElementProcessing)
	if err != nil {
		return stageOutput{}, err
	}
	items, err := l.ItemMap(ctx)
	if err != nil {
		return stageOutput{}, err
	}
	content, err := l.ContentFactors(ctx)
	if err != nil {
		return stageOutput{}, err
	}

	flows, _, err := trade.BuildMatrix(ctx, y.year, trade.Inputs{
		Reports:    reports,
		Windows:    windows,
		Production: production,
		Processing: processing,
		Items:      items,
		Content:    content,
	}, trade.MatrixOptions{
		Basis:     y.opts.ConversionOption,
		Direction: y.opts.Direction,
		Workers:   e.cfg.Workers,
	})
	if err != nil {
		return stageOutput{}, err
	}

	path := flowfile.TradeMatrixPath(e.cfg.ResultsDir, y.year, y.opts)
	if err := flowfile.WriteTradeMatrix(path, flows); err != nil {
		return stageOutput{}, err
	}
	if e.persist {
		rows := make([]model.MatrixRow, len(flows))
		for i, f := range flows {
			rows[i] = model.RowFromFlow(f)
		}
		if err := e.saveFlows(ctx, y, store.MatrixTrade, rows); err != nil {
			return stageOutput{}, err
		}
	}
	return stageOutput{rows: int64(len(flows)), file: path}, nil
}

// runFeed derives feed requirements and routes them through the trade
// matrix written by the matrix stage.
func (e *Engine) runFeed(ctx context.Context, y *yearRun) (stageOutput, error) {
	l := e.loader
	matrix, err := flowfile.ReadTradeMatrix(ctx, flowfile.TradeMatrixPath(e.cfg.ResultsDir, y.year, y.opts))
	if err != nil {
		return stageOutput{}, err
	}

	b := feed.Balances{Historic: y.opts.Historic}
	if y.opts.Historic {
		b.FoodBalance, err = l.Normalized(ctx, faostat.FoodBalanceHistoricFile, y.year, model.ElementFeed)
		if err != nil {
			return stageOutput{}, err
		}
		b.NonFood, err = l.Normalized(ctx, faostat.NonFoodBalanceHistoricFile, y.year, model.ElementFeedTonnes)
	} else {
		b.FoodBalance, err = l.Normalized(ctx, faostat.FoodBalanceFile, y.year, model.ElementFeed)
		if err != nil {
			return stageOutput{}, err
		}
		b.NonFood, err = l.Normalized(ctx, faostat.SUAFile, y.year, model.ElementFeedTonnes)
	}
	if err != nil {
		return stageOutput{}, err
	}
	if b.CBCodes, err = l.CBConversion(ctx); err != nil {
		return stageOutput{}, err
	}
	cbMap, err := l.CBMap(ctx)
	if err != nil {
		return stageOutput{}, err
	}
	content, err := l.ContentFactors(ctx)
	if err != nil {
		return stageOutput{}, err
	}
	conv, err := trade.BuildCBConversion(y.opts.ConversionOption, content, b.CBCodes, cbMap)
	if err != nil {
		return stageOutput{}, err
	}
	weights, err := l.WeighingFactors(ctx)
	if err != nil {
		return stageOutput{}, err
	}
	production, err := l.Production(ctx, y.year)
	if err != nil {
		return stageOutput{}, err
	}
	splits, err := l.CBSplits(ctx)
	if err != nil {
		return stageOutput{}, err
	}

	totals := feed.Totals(feed.FeedUse(b), conv)
	reqs := feed.Requirements(producers(matrix), y.year, production, totals, weights)
	rows, _ := feed.Propagate(matrix, reqs, splits)

	path := flowfile.FeedMatrixPath(e.cfg.ResultsDir, y.year, y.opts)
	if err := flowfile.WriteFeedMatrix(path, rows); err != nil {
		return stageOutput{}, err
	}
	if e.persist {
		if err := e.saveFlows(ctx, y, store.MatrixFeed, rows); err != nil {
			return stageOutput{}, err
		}
	}
	return stageOutput{rows: int64(len(rows)), file: path}, nil
}

// runProvenance fans the year's countries out over the provenance pool.
func (e *Engine) runProvenance(ctx context.Context, y *yearRun) (stageOutput, error) {
	l := e.loader
	tradeRows, err := flowfile.ReadTradeMatrix(ctx, flowfile.TradeMatrixPath(e.cfg.ResultsDir, y.year, y.opts))
	if err != nil {
		return stageOutput{}, err
	}
	feedRows, err := flowfile.ReadFeedMatrix(ctx, flowfile.FeedMatrixPath(e.cfg.ResultsDir, y.year, y.opts))
	if err != nil {
		return stageOutput{}, err
	}

	var supply []provenance.Supply
	if y.opts.Historic {
		fbs, err := l.Normalized(ctx, faostat.FoodBalanceHistoricFile, y.year, model.ElementFoodPerCapita, model.ElementPopulation)
		if err != nil {
			return stageOutput{}, err
		}
		codes, err := l.CBConversion(ctx)
		if err != nil {
			return stageOutput{}, err
		}
		supply = provenance.HistoricSupply(fbs, codes)
	} else {
		sua, err := l.Normalized(ctx, faostat.SUAFile, y.year,
			model.ElementFoodSupply, model.ElementProduction, model.ElementImportQuantity, model.ElementExportQuantity, model.ElementLoss)
		if err != nil {
			return stageOutput{}, err
		}
		supply = provenance.CurrentSupply(sua)
	}

	items, err := l.ItemMap(ctx)
	if err != nil {
		return stageOutput{}, err
	}
	content, err := l.ContentFactors(ctx)
	if err != nil {
		return stageOutput{}, err
	}
	conv, err := trade.BuildConversion(y.opts.ConversionOption, content, items)
	if err != nil {
		return stageOutput{}, err
	}
	weights, err := l.WeighingFactors(ctx)
	if err != nil {
		return stageOutput{}, err
	}
	pasture, err := flowfile.ReadPasture(ctx, l.Path(flowfile.PastureFile))
	if errors.Is(err, fetcher.ErrNotFound) {
		e.log.Warn("pasture factors missing, pasture area not reported", zap.Int("year", y.year))
		pasture, err = flowfile.Pasture{}, nil
	}
	if err != nil {
		return stageOutput{}, err
	}

	pctx := provenance.NewContext(provenance.Inputs{
		Year:       y.year,
		Trade:      tradeRows,
		Feed:       feedRows,
		Supply:     supply,
		Conversion: conv,
		Weights:    weights,
		Pasture:    pasture,
	})
	countries := e.cfg.Countries
	if len(countries) == 0 {
		countries = pctx.Countries()
	}
	_, stats, err := provenance.NewPool(pctx, e.cfg.ResultsDir, e.cfg.Workers).Run(ctx, countries)
	if err != nil {
		return stageOutput{}, err
	}
	return stageOutput{rows: int64(stats.HumanRows + stats.FeedRows)}, nil
}

func (e *Engine) saveFlows(ctx context.Context, y *yearRun, m store.Matrix, rows []model.MatrixRow) error {
	if e.store == nil {
		return nil
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("pipeline", "save_flows")
	n, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (int64, error) {
		return e.store.SaveFlows(ctx, y.runID, m, rows)
	})
	if err != nil {
		return err
	}
	e.log.Debug("flows persisted", zap.Int("year", y.year), zap.String("matrix", string(m)), zap.Int64("rows", n))
	return nil
}

// producers lists the distinct producing countries of a matrix.
func producers(flows []model.CommodityFlow) []int {
	seen := make(map[int]bool)
	var out []int
	for _, f := range flows {
		if !seen[f.Producer] {
			seen[f.Producer] = true
			out = append(out, f.Producer)
		}
	}
	sort.Ints(out)
	return out
}
