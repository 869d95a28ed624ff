package faostat

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mrio-cli/internal/fetcher"
	"github.com/sells-group/mrio-cli/internal/model"
)

// ItemMapping links a traded item to the primary item it is expressed in.
type ItemMapping struct {
	Item        int
	Name        string
	Primary     int
	PrimaryName string
}

// ItemMap loads primary_item_map_feed.csv.
func (l *Loader) ItemMap(ctx context.Context) ([]ItemMapping, error) {
	return cached(l.cache, ItemMapFile, func() ([]ItemMapping, error) {
		var out []ItemMapping
		err := l.eachCSV(ctx, ItemMapFile, func(h fetcher.Header, rec []string) error {
			if err := h.Require("FAO_code", "primary_item"); err != nil {
				return err
			}
			item := parseIntOr(h.Get(rec, "FAO_code"), 0)
			primary := parseIntOr(h.Get(rec, "primary_item"), 0)
			if item == 0 || primary == 0 {
				return nil
			}
			out = append(out, ItemMapping{
				Item:        item,
				Name:        h.Get(rec, "FAO_name"),
				Primary:     primary,
				PrimaryName: h.Get(rec, "FAO_name_primary"),
			})
			return nil
		})
		return out, err
	})
}

// ContentTable holds nutrient or mass content per 100 g, keyed by item and
// basis column (dry_matter, energy, protein, ...).
type ContentTable struct {
	Bases  []string
	values map[int]map[string]float64
}

// NewContentTable builds a table from explicit values; used by tests and
// callers that do not read the workbook.
func NewContentTable(values map[int]map[string]float64) *ContentTable {
	t := &ContentTable{values: make(map[int]map[string]float64, len(values))}
	seen := map[string]bool{}
	for item, row := range values {
		norm := make(map[string]float64, len(row))
		for basis, v := range row {
			b := fetcher.NormalizeColumn(basis)
			norm[b] = v
			if !seen[b] {
				seen[b] = true
				t.Bases = append(t.Bases, b)
			}
		}
		t.values[item] = norm
	}
	return t
}

// HasBasis reports whether the table has a column for basis.
func (t *ContentTable) HasBasis(basis string) bool {
	b := fetcher.NormalizeColumn(basis)
	for _, have := range t.Bases {
		if have == b {
			return true
		}
	}
	return false
}

// Content returns the content of item on basis.
func (t *ContentTable) Content(item int, basis string) (float64, bool) {
	row, ok := t.values[item]
	if !ok {
		return 0, false
	}
	v, ok := row[fetcher.NormalizeColumn(basis)]
	return v, ok
}

// ContentFactors loads content_factors_per_100g.xlsx. The first sheet row
// carries units; the header is on the second row.
func (l *Loader) ContentFactors(_ context.Context) (*ContentTable, error) {
	return cached(l.cache, ContentFactorsFile, func() (*ContentTable, error) {
		t := &ContentTable{values: map[int]map[string]float64{}}
		err := fetcher.EachXLSXRow(l.Path(ContentFactorsFile), fetcher.XLSXOptions{SkipRows: 1}, func(h fetcher.Header, rec []string) error {
			if t.Bases == nil {
				if err := h.Require("Item Code"); err != nil {
					return err
				}
				t.Bases = contentBases(h)
			}
			item := parseIntOr(h.Get(rec, "Item Code"), 0)
			if item == 0 {
				return nil
			}
			row := make(map[string]float64, len(t.Bases))
			for _, b := range t.Bases {
				if v, ok := parseFloat(h.Get(rec, b)); ok {
					row[b] = v
				}
			}
			t.values[item] = row
			return nil
		})
		if err != nil {
			return nil, missing(err, ContentFactorsFile)
		}
		return t, nil
	})
}

func contentBases(h fetcher.Header) []string {
	idx := make([]string, len(h))
	for name, i := range h {
		if i < len(idx) {
			idx[i] = name
		}
	}
	var out []string
	for _, name := range idx {
		switch name {
		case "", "item_code", "item", "item_name", "unit", "note":
			continue
		}
		out = append(out, name)
	}
	return out
}

// ReportingWindows loads the valid reporting period per country. The
// workbook is preferred; a CSV export with the same columns is accepted.
func (l *Loader) ReportingWindows(ctx context.Context) ([]model.ReportingWindow, error) {
	return cached(l.cache, ReportingDatesFile, func() ([]model.ReportingWindow, error) {
		var out []model.ReportingWindow
		row := func(h fetcher.Header, rec []string) error {
			if err := h.Require("Country Code"); err != nil {
				return err
			}
			c := parseIntOr(h.Get(rec, "Country Code"), 0)
			if c == 0 {
				return nil
			}
			w := model.ReportingWindow{
				Country:   c,
				StartYear: parseYearOr(h.Get(rec, "Start Year"), 0),
				EndYear:   parseYearOr(h.Get(rec, "End Year"), 0),
			}
			if w.StartYear == 0 && w.EndYear == 0 {
				return nil
			}
			out = append(out, w)
			return nil
		}
		err := fetcher.EachXLSXRow(l.Path(ReportingDatesFile), fetcher.XLSXOptions{}, row)
		if errors.Is(err, fetcher.ErrNotFound) {
			out = nil
			err = l.eachCSV(ctx, ReportingDatesCSVFile, row)
			if errors.Is(err, ErrMissingInput) {
				return nil, eris.Wrapf(ErrMissingInput, "faostat: %s or %s", ReportingDatesFile, ReportingDatesCSVFile)
			}
			return out, err
		}
		if err != nil {
			return nil, missing(err, ReportingDatesFile)
		}
		return out, nil
	})
}

// WeighingFactors loads the per-product productivity weights.
func (l *Loader) WeighingFactors(ctx context.Context) (map[int]float64, error) {
	return cached(l.cache, WeighingFactorsFile, func() (map[int]float64, error) {
		out := map[int]float64{}
		err := l.eachCSV(ctx, WeighingFactorsFile, func(h fetcher.Header, rec []string) error {
			if err := h.Require("Item Code", "Weighing factors"); err != nil {
				return err
			}
			item := parseIntOr(h.Get(rec, "Item Code"), 0)
			if v, ok := parseFloat(h.Get(rec, "Weighing factors")); ok && item != 0 {
				out[item] = v
			}
			return nil
		})
		return out, err
	})
}

// CBPrimary maps a commodity-balance item to its primary feed item.
type CBPrimary struct {
	CBItem      int
	PrimaryItem int
}

// CBMap loads CB_to_primary_items_map.csv.
func (l *Loader) CBMap(ctx context.Context) ([]CBPrimary, error) {
	return cached(l.cache, CBMapFile, func() ([]CBPrimary, error) {
		var out []CBPrimary
		err := l.eachCSV(ctx, CBMapFile, func(h fetcher.Header, rec []string) error {
			if err := h.Require("Item Code", "Primary Item Code"); err != nil {
				return err
			}
			cb := parseIntOr(h.Get(rec, "Item Code"), 0)
			primary := parseIntOr(h.Get(rec, "Primary Item Code"), 0)
			if cb != 0 && primary != 0 {
				out = append(out, CBPrimary{CBItem: cb, PrimaryItem: primary})
			}
			return nil
		})
		return out, err
	})
}

// CBSplit assigns a traded primary crop to the commodity-balance item it
// is a constituent of.
type CBSplit struct {
	PrimaryItem int
	CBItem      int
}

// CBSplits loads CB_items_split.csv.
func (l *Loader) CBSplits(ctx context.Context) ([]CBSplit, error) {
	return cached(l.cache, CBSplitFile, func() ([]CBSplit, error) {
		var out []CBSplit
		err := l.eachCSV(ctx, CBSplitFile, func(h fetcher.Header, rec []string) error {
			if err := h.Require("Primary Item Code", "CB Item Code"); err != nil {
				return err
			}
			primary := parseIntOr(h.Get(rec, "Primary Item Code"), 0)
			cb := parseIntOr(h.Get(rec, "CB Item Code"), 0)
			if cb != 0 && primary != 0 {
				out = append(out, CBSplit{PrimaryItem: primary, CBItem: cb})
			}
			return nil
		})
		return out, err
	})
}

// CBCode links a commodity-balance code to the FAO item whose content
// factors represent it.
type CBCode struct {
	CBItem  int
	FAOItem int
	Name    string
}

// CBConversion loads CB_code_FAO_code_for_conversion_factors.csv.
func (l *Loader) CBConversion(ctx context.Context) ([]CBCode, error) {
	return cached(l.cache, CBConversionFile, func() ([]CBCode, error) {
		var out []CBCode
		err := l.eachCSV(ctx, CBConversionFile, func(h fetcher.Header, rec []string) error {
			if err := h.Require("CB_code", "FAO_code"); err != nil {
				return err
			}
			cb := parseIntOr(h.Get(rec, "CB_code"), 0)
			fao := parseIntOr(h.Get(rec, "FAO_code"), 0)
			if cb == 0 {
				return nil
			}
			out = append(out, CBCode{CBItem: cb, FAOItem: fao, Name: h.Get(rec, "CB_name")})
			return nil
		})
		return out, err
	})
}
