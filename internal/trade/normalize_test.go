package trade

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mrio-cli/internal/model"
)

func unitConversion(items ...int) *ConversionTable {
	var f []model.ConversionFactor
	for _, it := range items {
		f = append(f, model.ConversionFactor{SourceItem: it, PrimaryItem: it, Ratio: 1})
	}
	return NewConversionTable("dry_matter", f)
}

func imp(reporter, partner, item int, v float64) model.TradeReport {
	return model.TradeReport{Reporter: reporter, Partner: partner, Item: item, Year: 2013, Element: model.ImportReport, Value: v}
}

func exp(reporter, partner, item int, v float64) model.TradeReport {
	return model.TradeReport{Reporter: reporter, Partner: partner, Item: item, Year: 2013, Element: model.ExportReport, Value: v}
}

func TestNormalize_PreferredSide(t *testing.T) {
	t.Parallel()
	reports := []model.TradeReport{
		imp(2, 1, 15, 20), // 2 imports 20 from 1
		exp(1, 2, 15, 25), // 1 reports exporting 25 to 2
		exp(1, 3, 15, 7),  // only the exporter reported
	}
	conv := unitConversion(15)

	tests := []struct {
		name string
		dir  model.Direction
		want []model.CommodityFlow
	}{
		{
			name: "import",
			dir:  model.PreferImport,
			want: []model.CommodityFlow{
				{Consumer: 2, Producer: 1, Item: 15, Year: 2013, Value: 20},
				{Consumer: 3, Producer: 1, Item: 15, Year: 2013, Value: 7},
			},
		},
		{
			name: "export",
			dir:  model.PreferExport,
			want: []model.CommodityFlow{
				{Consumer: 2, Producer: 1, Item: 15, Year: 2013, Value: 25},
				{Consumer: 3, Producer: 1, Item: 15, Year: 2013, Value: 7},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			flows, stats, err := Normalize(reports, nil, tt.dir, conv)
			require.NoError(t, err)
			assert.Equal(t, tt.want, flows)
			assert.Equal(t, 1, stats.Duplicates)
		})
	}
}

func TestNormalize_ReportingWindow(t *testing.T) {
	t.Parallel()
	reports := []model.TradeReport{
		imp(2, 1, 15, 20), // reporter 2 not yet reporting in 2013
		exp(1, 2, 15, 25),
		exp(3, 4, 15, 9), // reporter 3 stopped reporting
	}
	windows := []model.ReportingWindow{
		{Country: 2, StartYear: 2014},
		{Country: 3, EndYear: 2010},
		{Country: 1, StartYear: 1990, EndYear: 2020},
	}

	flows, stats, err := Normalize(reports, windows, model.PreferImport, unitConversion(15))
	require.NoError(t, err)
	assert.Equal(t, []model.CommodityFlow{
		{Consumer: 2, Producer: 1, Item: 15, Year: 2013, Value: 25},
	}, flows)
	assert.Equal(t, 2, stats.Masked)
	assert.Equal(t, 2, stats.Zero)
}

func TestNormalize_DropsAndAggregates(t *testing.T) {
	t.Parallel()
	conv := NewConversionTable("dry_matter", []model.ConversionFactor{
		{SourceItem: 15, PrimaryItem: 15, Ratio: 1},
		{SourceItem: 16, PrimaryItem: 15, Ratio: 0.5},
	})
	reports := []model.TradeReport{
		imp(2, 1, 15, 10),
		imp(2, 1, 16, 8), // flour, 4 wheat-equivalent
		imp(2, 2, 15, 5), // self trade
		imp(2, 3, 15, 0), // zero
		imp(2, 3, 77, 3), // no conversion factor
	}

	flows, stats, err := Normalize(reports, nil, model.PreferImport, conv)
	require.NoError(t, err)
	assert.Equal(t, []model.CommodityFlow{
		{Consumer: 2, Producer: 1, Item: 15, Year: 2013, Value: 14},
	}, flows)
	assert.Equal(t, NormalizeStats{Reports: 5, SelfTrade: 1, Zero: 1, Unconverted: 1, Flows: 1}, stats)
}

func TestNormalize_InvalidDirection(t *testing.T) {
	t.Parallel()
	_, _, err := Normalize(nil, nil, model.Direction("both"), unitConversion())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidDirection))

	d, err := ParseDirection("export")
	require.NoError(t, err)
	assert.Equal(t, model.PreferExport, d)
}

func TestSortFlows(t *testing.T) {
	t.Parallel()
	flows := []model.CommodityFlow{
		{Consumer: 2, Producer: 1, Item: 15, Year: 2014},
		{Consumer: 1, Producer: 2, Item: 56, Year: 2013},
		{Consumer: 1, Producer: 1, Item: 15, Year: 2013},
		{Consumer: 1, Producer: 3, Item: 15, Year: 2013},
	}
	SortFlows(flows)
	keys := make([]model.FlowKey, len(flows))
	for i, f := range flows {
		keys[i] = model.FlowKey{Consumer: f.Consumer, Producer: f.Producer, Item: f.Item, Year: f.Year}
	}
	assert.Equal(t, []model.FlowKey{
		{Consumer: 1, Producer: 1, Item: 15, Year: 2013},
		{Consumer: 1, Producer: 3, Item: 15, Year: 2013},
		{Consumer: 1, Producer: 2, Item: 56, Year: 2013},
		{Consumer: 2, Producer: 1, Item: 15, Year: 2014},
	}, keys)
}
