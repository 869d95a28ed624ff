package faostat

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"github.com/sells-group/mrio-cli/internal/fetcher"
	"github.com/sells-group/mrio-cli/internal/model"
)

// Record is one row of a FAOSTAT normalized export.
type Record struct {
	Area    int
	Item    int
	Element int
	Year    int
	Value   float64
}

var normalizedColumns = []string{"Area Code", "Item Code", "Element Code", "Year", "Value"}

// Normalized loads the rows of a normalized export for one year and the
// given element codes. Rows with a blank or non-numeric value are skipped.
func (l *Loader) Normalized(ctx context.Context, name string, year int, elements ...int) ([]Record, error) {
	return cached(l.years, tableKey(name, year, elements), func() ([]Record, error) {
		var out []Record
		err := l.eachCSV(ctx, name, func(h fetcher.Header, rec []string) error {
			if err := h.Require(normalizedColumns...); err != nil {
				return err
			}
			if parseIntOr(h.Get(rec, "Year"), 0) != year {
				return nil
			}
			el := parseIntOr(h.Get(rec, "Element Code"), 0)
			if len(elements) > 0 && !slices.Contains(elements, el) {
				return nil
			}
			v, ok := parseFloat(h.Get(rec, "Value"))
			if !ok {
				return nil
			}
			out = append(out, Record{
				Area:    parseIntOr(h.Get(rec, "Area Code"), 0),
				Item:    parseIntOr(h.Get(rec, "Item Code"), 0),
				Element: el,
				Year:    year,
				Value:   v,
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
		l.log.Debug("loaded table", zap.String("file", name), zap.Int("year", year), zap.Int("rows", len(out)))
		return out, nil
	})
}

// Production returns national production (element 5510) for countries.
func (l *Loader) Production(ctx context.Context, year int) ([]model.ProductionRecord, error) {
	recs, err := l.Normalized(ctx, ProductionFile, year, model.ElementProduction)
	if err != nil {
		return nil, err
	}
	out := make([]model.ProductionRecord, 0, len(recs))
	for _, r := range recs {
		if !model.IsCountry(r.Area) {
			continue
		}
		out = append(out, model.ProductionRecord{Country: r.Area, Item: r.Item, Year: r.Year, Value: r.Value})
	}
	return out, nil
}

// Trade returns the bilateral import and export reports for one year.
func (l *Loader) Trade(ctx context.Context, year int) ([]model.TradeReport, error) {
	return cached(l.years, tableKey(TradeFile, year), func() ([]model.TradeReport, error) {
		var out []model.TradeReport
		err := l.eachCSV(ctx, TradeFile, func(h fetcher.Header, rec []string) error {
			if err := h.Require("Reporter Country Code", "Partner Country Code", "Item Code", "Element Code", "Year", "Value"); err != nil {
				return err
			}
			if parseIntOr(h.Get(rec, "Year"), 0) != year {
				return nil
			}
			var el model.TradeElement
			switch parseIntOr(h.Get(rec, "Element Code"), 0) {
			case model.ElementImportQuantity:
				el = model.ImportReport
			case model.ElementExportQuantity:
				el = model.ExportReport
			default:
				return nil
			}
			v, ok := parseFloat(h.Get(rec, "Value"))
			if !ok {
				return nil
			}
			out = append(out, model.TradeReport{
				Reporter: parseIntOr(h.Get(rec, "Reporter Country Code"), 0),
				Partner:  parseIntOr(h.Get(rec, "Partner Country Code"), 0),
				Item:     parseIntOr(h.Get(rec, "Item Code"), 0),
				Year:     year,
				Element:  el,
				Value:    v,
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	})
}
