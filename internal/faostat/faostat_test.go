package faostat

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/mrio-cli/internal/model"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func writeXLSX(t *testing.T, dir, name string, rows [][]string) {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	for _, r := range rows {
		row := sheet.AddRow()
		for _, c := range r {
			row.AddCell().SetString(c)
		}
	}
	require.NoError(t, f.Save(filepath.Join(dir, name)))
}

func TestNormalized_FiltersYearAndElement(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, ProductionFile, "Area Code,Area,Item Code,Item,Element Code,Element,Year Code,Year,Unit,Value,Flag\n"+
		"4,Alg\xe9rie,15,Wheat,5510,Production,2013,2013,t,100,\n"+
		"4,Alg\xe9rie,15,Wheat,5312,Area harvested,2013,2013,ha,9,\n"+
		"4,Alg\xe9rie,15,Wheat,5510,Production,2012,2012,t,90,\n"+
		"5001,World,15,Wheat,5510,Production,2013,2013,t,1000,\n"+
		"8,Angola,15,Wheat,5510,Production,2013,2013,t,,\n")

	l := NewLoader(dir)
	recs, err := l.Normalized(context.Background(), ProductionFile, 2013, model.ElementProduction)
	require.NoError(t, err)
	assert.Equal(t, []Record{
		{Area: 4, Item: 15, Element: 5510, Year: 2013, Value: 100},
		{Area: 5001, Item: 15, Element: 5510, Year: 2013, Value: 1000},
	}, recs)

	prod, err := l.Production(context.Background(), 2013)
	require.NoError(t, err)
	assert.Equal(t, []model.ProductionRecord{{Country: 4, Item: 15, Year: 2013, Value: 100}}, prod)
}

func TestNormalized_Cached(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, SUAFile, "Area Code,Item Code,Element Code,Year,Value\n4,17,5520,2019,3\n")

	l := NewLoader(dir)
	first, err := l.Normalized(context.Background(), SUAFile, 2019, model.ElementFeedTonnes)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, SUAFile)))
	second, err := l.Normalized(context.Background(), SUAFile, 2019, model.ElementFeedTonnes)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, 1, l.Purge())
	_, err = l.Normalized(context.Background(), SUAFile, 2019, model.ElementFeedTonnes)
	assert.True(t, errors.Is(err, ErrMissingInput))
}

func TestPurge_DropsOnlyYearTables(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		years []int
	}{
		{"no years", nil},
		{"one year", []int{2013}},
		{"ten years", []int{2010, 2011, 2012, 2013, 2014, 2015, 2016, 2017, 2018, 2019}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			writeFile(t, dir, TradeFile, "Reporter Country Code,Partner Country Code,Item Code,Element Code,Year,Unit,Value\n"+
				"4,8,15,5610,2013,t,20\n")
			writeFile(t, dir, ItemMapFile, "FAO_code,FAO_name,primary_item,FAO_name_primary\n15,Wheat,15,Wheat\n")

			l := NewLoader(dir)
			ctx := context.Background()
			_, err := l.ItemMap(ctx)
			require.NoError(t, err)
			for _, y := range tt.years {
				_, err := l.Trade(ctx, y)
				require.NoError(t, err)
			}
			assert.Equal(t, len(tt.years), l.years.ItemCount())

			assert.Equal(t, len(tt.years), l.Purge())
			assert.Equal(t, 0, l.years.ItemCount())
			assert.Equal(t, 1, l.cache.ItemCount())
		})
	}
}

func TestNormalized_MissingColumn(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, SUAFile, "Area Code,Item Code,Year,Value\n4,17,2019,3\n")

	_, err := NewLoader(dir).Normalized(context.Background(), SUAFile, 2019)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"Element Code"`)
}

func TestTrade(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, TradeFile, "Reporter Country Code,Partner Country Code,Item Code,Element Code,Year,Unit,Value\n"+
		"4,8,15,5610,2013,t,20\n"+
		"8,4,15,5910,2013,t,18\n"+
		"8,4,15,5622,2013,1000 US$,7\n"+
		"8,4,15,5910,2014,t,11\n")

	reports, err := NewLoader(dir).Trade(context.Background(), 2013)
	require.NoError(t, err)
	assert.Equal(t, []model.TradeReport{
		{Reporter: 4, Partner: 8, Item: 15, Year: 2013, Element: model.ImportReport, Value: 20},
		{Reporter: 8, Partner: 4, Item: 15, Year: 2013, Element: model.ExportReport, Value: 18},
	}, reports)
}

func TestMissingInput(t *testing.T) {
	t.Parallel()
	l := NewLoader(t.TempDir())
	ctx := context.Background()

	_, err := l.Trade(ctx, 2013)
	assert.True(t, errors.Is(err, ErrMissingInput))
	_, err = l.ItemMap(ctx)
	assert.True(t, errors.Is(err, ErrMissingInput))
	_, err = l.ContentFactors(ctx)
	assert.True(t, errors.Is(err, ErrMissingInput))
	_, err = l.ReportingWindows(ctx)
	assert.True(t, errors.Is(err, ErrMissingInput))
}

func TestItemMap(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, ItemMapFile, "FAO_code,FAO_name,primary_item,FAO_name_primary\n"+
		"15,Wheat,15,Wheat\n16,Flour of wheat,15,Wheat\n99,Orphan,,\n")

	m, err := NewLoader(dir).ItemMap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []ItemMapping{
		{Item: 15, Name: "Wheat", Primary: 15, PrimaryName: "Wheat"},
		{Item: 16, Name: "Flour of wheat", Primary: 15, PrimaryName: "Wheat"},
	}, m)
}

func TestContentFactors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeXLSX(t, dir, ContentFactorsFile, [][]string{
		{"", "", "g", "kcal"},
		{"Item Code", "Item", "dry_matter", "Energy"},
		{"15", "Wheat", "88", "334"},
		{"16", "Flour of wheat", "86", ""},
	})

	tbl, err := NewLoader(dir).ContentFactors(context.Background())
	require.NoError(t, err)
	assert.True(t, tbl.HasBasis("dry_matter"))
	assert.True(t, tbl.HasBasis("Energy"))
	assert.False(t, tbl.HasBasis("Protein"))

	v, ok := tbl.Content(16, "dry_matter")
	assert.True(t, ok)
	assert.Equal(t, 86.0, v)
	_, ok = tbl.Content(16, "energy")
	assert.False(t, ok)
	_, ok = tbl.Content(999, "dry_matter")
	assert.False(t, ok)
}

func TestReportingWindows_CSVFallback(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, ReportingDatesCSVFile, "Country Code,Country,Start Year,End Year\n62,Ethiopia PDR,,1992\n238,Ethiopia,1993,\n4,Algeria,,\n")

	w, err := NewLoader(dir).ReportingWindows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.ReportingWindow{
		{Country: 62, EndYear: 1992},
		{Country: 238, StartYear: 1993},
	}, w)
}

func TestReportingWindows_Workbook(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeXLSX(t, dir, ReportingDatesFile, [][]string{
		{"Country Code", "Start Year", "End Year"},
		{"51", "1993", ""},
	})

	w, err := NewLoader(dir).ReportingWindows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.ReportingWindow{{Country: 51, StartYear: 1993}}, w)
}

func TestFeedReferenceTables(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, WeighingFactorsFile, "Item Code,Item,Weighing factors\n867,Beef,10\n1058,Chicken,2\n882,Milk,\n")
	writeFile(t, dir, CBMapFile, "Item Code,Item,Primary Item Code\n2511,Wheat and products,2511\n2514,Maize,2514\n")
	writeFile(t, dir, CBSplitFile, "Primary Item Code,CB Item Code\n15,2511\n56,2514\n")
	writeFile(t, dir, CBConversionFile, "CB_code,CB_name,FAO_code,FAO_name\n2511,Wheat and products,15,Wheat\n2536,Sugar cane,156,Sugar cane\n")

	l := NewLoader(dir)
	ctx := context.Background()

	wf, err := l.WeighingFactors(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int]float64{867: 10, 1058: 2}, wf)

	cb, err := l.CBMap(ctx)
	require.NoError(t, err)
	assert.Equal(t, []CBPrimary{{2511, 2511}, {2514, 2514}}, cb)

	split, err := l.CBSplits(ctx)
	require.NoError(t, err)
	assert.Equal(t, []CBSplit{{15, 2511}, {56, 2514}}, split)

	conv, err := l.CBConversion(ctx)
	require.NoError(t, err)
	assert.Equal(t, []CBCode{{2511, 15, "Wheat and products"}, {2536, 156, "Sugar cane"}}, conv)
}

func TestParseIntOr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want int
	}{
		{"15", 15},
		{" '0015' ", 15},
		{`"2545"`, 2545},
		{"15.0", 15},
		{"15.5", -1},
		{"", -1},
		{"abc", -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseIntOr(tt.in, -1), tt.in)
	}
}
