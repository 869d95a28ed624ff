// Package trade turns bilateral trade reports and national production into
// per-commodity producer to consumer attribution matrices.
package trade

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mrio-cli/internal/faostat"
	"github.com/sells-group/mrio-cli/internal/model"
	"github.com/sells-group/mrio-cli/internal/numeric"
)

// ErrUnknownBasis is returned when the content table has no column for the
// requested conversion option.
var ErrUnknownBasis = eris.New("trade: conversion option not available")

// ConversionTable maps source items to primary items with a mass ratio.
// Only finite, positive ratios are kept.
type ConversionTable struct {
	Basis   string
	factors map[int]model.ConversionFactor
}

// NewConversionTable builds a table from explicit factors, dropping
// non-finite and non-positive ratios.
func NewConversionTable(basis string, factors []model.ConversionFactor) *ConversionTable {
	t := &ConversionTable{Basis: basis, factors: make(map[int]model.ConversionFactor, len(factors))}
	for _, f := range factors {
		if !numeric.Finite(f.Ratio) || f.Ratio <= 0 || f.PrimaryItem == 0 {
			continue
		}
		t.factors[f.SourceItem] = f
	}
	return t
}

// BuildConversion derives ratio = content[item] / content[primary] for every
// item of the item map on the given basis.
func BuildConversion(basis string, content *faostat.ContentTable, items []faostat.ItemMapping) (*ConversionTable, error) {
	if !content.HasBasis(basis) {
		return nil, eris.Wrapf(ErrUnknownBasis, "trade: basis %q", basis)
	}
	factors := make([]model.ConversionFactor, 0, len(items))
	for _, m := range items {
		processed, ok1 := content.Content(m.Item, basis)
		primary, ok2 := content.Content(m.Primary, basis)
		if !ok1 || !ok2 {
			continue
		}
		factors = append(factors, model.ConversionFactor{
			SourceItem:  m.Item,
			PrimaryItem: m.Primary,
			Ratio:       numeric.SafeDiv(processed, primary),
		})
	}
	return NewConversionTable(basis, factors), nil
}

// BuildCBConversion derives factors from commodity-balance items to primary
// feed items. Content for a CB item is taken from the FAO item it maps to;
// primary items are looked up as CB codes first and then as FAO codes.
func BuildCBConversion(basis string, content *faostat.ContentTable, codes []faostat.CBCode, cbMap []faostat.CBPrimary) (*ConversionTable, error) {
	if !content.HasBasis(basis) {
		return nil, eris.Wrapf(ErrUnknownBasis, "trade: basis %q", basis)
	}
	fao := make(map[int]int, len(codes))
	for _, c := range codes {
		fao[c.CBItem] = c.FAOItem
	}
	lookup := func(item int, fallback bool) (float64, bool) {
		if f, ok := fao[item]; ok {
			return content.Content(f, basis)
		}
		if fallback {
			return content.Content(item, basis)
		}
		return 0, false
	}

	factors := make([]model.ConversionFactor, 0, len(cbMap))
	for _, m := range cbMap {
		processed, ok1 := lookup(m.CBItem, false)
		primary, ok2 := lookup(m.PrimaryItem, true)
		if !ok1 || !ok2 {
			continue
		}
		factors = append(factors, model.ConversionFactor{
			SourceItem:  m.CBItem,
			PrimaryItem: m.PrimaryItem,
			Ratio:       numeric.SafeDiv(processed, primary),
		})
	}
	return NewConversionTable(basis, factors), nil
}

// ToPrimary returns the primary item of item and the factor that converts a
// quantity of item into primary-equivalent mass.
func (t *ConversionTable) ToPrimary(item int) (int, float64, bool) {
	f, ok := t.factors[item]
	if !ok {
		return 0, 0, false
	}
	return f.PrimaryItem, f.Ratio, true
}

// FromPrimary returns the factor that converts a primary-equivalent quantity
// back into mass of item.
func (t *ConversionTable) FromPrimary(item int) (float64, bool) {
	f, ok := t.factors[item]
	if !ok {
		return 0, false
	}
	return 1 / f.Ratio, true
}

// Factors returns all factors ordered by source item.
func (t *ConversionTable) Factors() []model.ConversionFactor {
	out := make([]model.ConversionFactor, 0, len(t.factors))
	for _, f := range t.factors {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceItem < out[j].SourceItem })
	return out
}
