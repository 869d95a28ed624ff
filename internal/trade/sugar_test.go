package trade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mrio-cli/internal/faostat"
	"github.com/sells-group/mrio-cli/internal/model"
)

func sugarConversion(cane, beet float64) *ConversionTable {
	return NewConversionTable("dry_matter", []model.ConversionFactor{
		{SourceItem: model.ItemSugarCane, PrimaryItem: model.ItemSugarAggregate, Ratio: cane},
		{SourceItem: model.ItemSugarBeet, PrimaryItem: model.ItemSugarAggregate, Ratio: beet},
	})
}

func aggregateCell(consumer, producer int, v, relErr float64) model.AttributionResult {
	return model.AttributionResult{
		Consumer: consumer, Producer: producer, Item: model.ItemSugarAggregate,
		Year: 2013, Value: v, RelativeError: relErr,
	}
}

func TestAggregateItemMap(t *testing.T) {
	t.Parallel()
	in := []faostat.ItemMapping{
		{Item: 156, Primary: 156},
		{Item: 157, Primary: 157},
		{Item: 15, Primary: 15},
	}
	out := AggregateItemMap(in)
	assert.Equal(t, 2545, out[0].Primary)
	assert.Equal(t, 2545, out[1].Primary)
	assert.Equal(t, 15, out[2].Primary)
	assert.Equal(t, 156, in[0].Primary, "input is not modified")
}

func TestAggregateProduction(t *testing.T) {
	t.Parallel()
	production := []model.ProductionRecord{
		prod(1, model.ItemSugarCane, 80),
		prod(1, model.ItemSugarBeet, 20),
		prod(2, model.ItemSugarBeet, 0),
		prod(1, 15, 100),
	}
	out := AggregateProduction(production, sugarConversion(0.5, 0.25))
	require.Len(t, out, 5)
	assert.Equal(t, prod(1, model.ItemSugarAggregate, 45), out[4])
}

func TestSugarShares_ProductionFallback(t *testing.T) {
	t.Parallel()
	production := []model.ProductionRecord{
		prod(1, model.ItemSugarCane, 80),
		prod(1, model.ItemSugarBeet, 20),
	}
	shares := SugarShares(production, nil, sugarConversion(1, 1))
	assert.Equal(t, []SugarShare{
		{Country: 1, Year: 2013, Crop: model.ItemSugarCane, Production: 0.8, Processing: 0.8},
		{Country: 1, Year: 2013, Crop: model.ItemSugarBeet, Production: 0.2, Processing: 0.2},
	}, shares)
}

func TestSugarShares_Processing(t *testing.T) {
	t.Parallel()
	production := []model.ProductionRecord{
		prod(1, model.ItemSugarCane, 80),
		prod(1, model.ItemSugarBeet, 20),
		prod(2, model.ItemSugarCane, 50),
		prod(3, model.ItemSugarCane, 60),
		prod(3, model.ItemSugarBeet, 40),
	}
	processing := []faostat.Record{
		// country 1 processes only cane: beet gets 0
		{Area: 1, Item: model.ItemCBSugarCane, Element: model.ElementProcessing, Year: 2013, Value: 3},
		// country 2 grows no beet but processes it: cane falls back to production share
		{Area: 2, Item: model.ItemCBSugarBeet, Element: model.ElementProcessing, Year: 2013, Value: 1},
		// country 3 processes both, weighted by conversion ratio
		{Area: 3, Item: model.ItemCBSugarCane, Element: model.ElementProcessing, Year: 2013, Value: 2},
		{Area: 3, Item: model.ItemCBSugarBeet, Element: model.ElementProcessing, Year: 2013, Value: 1},
		// ignored: wrong element, aggregate area, non-positive value
		{Area: 3, Item: model.ItemCBSugarBeet, Element: model.ElementFeed, Year: 2013, Value: 9},
		{Area: 5000, Item: model.ItemCBSugarBeet, Element: model.ElementProcessing, Year: 2013, Value: 9},
		{Area: 1, Item: model.ItemCBSugarBeet, Element: model.ElementProcessing, Year: 2013, Value: 0},
	}

	shares := SugarShares(production, processing, sugarConversion(0.5, 1))
	require.Len(t, shares, 5)

	got := map[[2]int]float64{}
	for _, s := range shares {
		got[[2]int{s.Country, s.Crop}] = s.Processing
	}
	assert.InDelta(t, 1.0, got[[2]int{1, 156}], 1e-12)
	assert.InDelta(t, 0.0, got[[2]int{1, 157}], 1e-12)
	assert.InDelta(t, 1.0, got[[2]int{2, 156}], 1e-12)
	// cane 2000 t × 0.5 = 1000, beet 1000 t × 1 = 1000
	assert.InDelta(t, 0.5, got[[2]int{3, 156}], 1e-12)
	assert.InDelta(t, 0.5, got[[2]int{3, 157}], 1e-12)
}

func TestDisaggregate_SplitExample(t *testing.T) {
	t.Parallel()
	production := []model.ProductionRecord{
		prod(1, model.ItemSugarCane, 80),
		prod(1, model.ItemSugarBeet, 20),
	}
	conv := sugarConversion(1, 1)
	shares := SugarShares(production, nil, conv)

	out, stats := Disaggregate([]model.AttributionResult{aggregateCell(2, 1, 10, 0.1)}, shares, production, conv)
	require.Len(t, out, 2)
	assert.Equal(t, model.ItemSugarCane, out[0].Item)
	assert.InDelta(t, 8, out[0].Value, 1e-12)
	assert.Equal(t, model.ItemSugarBeet, out[1].Item)
	assert.InDelta(t, 2, out[1].Value, 1e-12)
	assert.Equal(t, 0.1, out[0].RelativeError)
	assert.Equal(t, SugarStats{Flows: 2}, stats)
}

func TestDisaggregate_DomesticResidual(t *testing.T) {
	t.Parallel()
	production := []model.ProductionRecord{
		prod(1, model.ItemSugarCane, 80),
		prod(1, model.ItemSugarBeet, 20),
	}
	conv := sugarConversion(1, 1)
	shares := SugarShares(production, nil, conv)
	cells := []model.AttributionResult{
		aggregateCell(1, 1, 50, 0),
		aggregateCell(2, 1, 10, 0),
		aggregateCell(2, 9, 4, 0), // producer 9 grows no sugar crops
		{Consumer: 2, Producer: 1, Item: 15, Year: 2013, Value: 3},
	}

	out, stats := Disaggregate(cells, shares, production, conv)
	require.Len(t, out, 4)

	got := map[[3]int]float64{}
	for _, r := range out {
		got[[3]int{r.Consumer, r.Producer, r.Item}] = r.Value
	}
	// cane: split 40 domestic + 8 exported, national 80 => 40 + 80 - 48
	assert.InDelta(t, 72, got[[3]int{1, 1, 156}], 1e-9)
	assert.InDelta(t, 8, got[[3]int{2, 1, 156}], 1e-9)
	// beet: split 10 + 2, national 20 => 10 + 20 - 12
	assert.InDelta(t, 18, got[[3]int{1, 1, 157}], 1e-9)
	assert.InDelta(t, 2, got[[3]int{2, 1, 157}], 1e-9)
	assert.Equal(t, 1, stats.Dropped)
	assert.Equal(t, 2, stats.Residuals)
}

func TestDisaggregate_ConversionScaling(t *testing.T) {
	t.Parallel()
	production := []model.ProductionRecord{prod(1, model.ItemSugarCane, 100)}
	conv := sugarConversion(0.25, 1)
	shares := SugarShares(production, nil, conv)

	out, _ := Disaggregate([]model.AttributionResult{aggregateCell(2, 1, 5, 0)}, shares, production, conv)
	require.Len(t, out, 1)
	// 5 t of aggregate is 20 t of cane.
	assert.InDelta(t, 20, out[0].Value, 1e-12)
}
