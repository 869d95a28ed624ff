// Package faostat loads the FAOSTAT normalized exports and the reference
// tables the trade and feed stages read from the input directory.
package faostat

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mrio-cli/internal/fetcher"
)

// Input file names, relative to the input directory.
const (
	TradeFile                  = "Trade_DetailedTradeMatrix_E_All_Data_(Normalized).csv"
	ProductionFile             = "Production_Crops_Livestock_E_All_Data_(Normalized).csv"
	FoodBalanceFile            = "FoodBalanceSheets_E_All_Data_(Normalized).csv"
	FoodBalanceHistoricFile    = "FoodBalanceSheetsHistoric_E_All_Data_(Normalized).csv"
	NonFoodBalanceHistoricFile = "CommodityBalances_(non-food)_(-2013_old_methodology)_E_All_Data_(Normalized).csv"
	SUAFile                    = "SUA_Crops_Livestock_E_All_Data_(Normalized).csv"
	ItemMapFile                = "primary_item_map_feed.csv"
	ContentFactorsFile         = "content_factors_per_100g.xlsx"
	ReportingDatesFile         = "Reporting_Dates.xlsx"
	ReportingDatesCSVFile      = "Reporting_Dates.csv"
	WeighingFactorsFile        = "weighing_factors.csv"
	CBMapFile                  = "CB_to_primary_items_map.csv"
	CBSplitFile                = "CB_items_split.csv"
	CBConversionFile           = "CB_code_FAO_code_for_conversion_factors.csv"
)

// ErrMissingInput is returned when a required input table is absent.
var ErrMissingInput = eris.New("faostat: missing input file")

// Loader reads tables from one input directory. Parsed tables are cached so
// a multi-year run reads each reference table once; year-scoped exports are
// held only until Purge. It is safe for concurrent use.
type Loader struct {
	dir   string
	cache *cache.Cache // reference tables
	years *cache.Cache // year-scoped exports
	log   *zap.Logger
}

// NewLoader creates a Loader rooted at dir.
func NewLoader(dir string) *Loader {
	return &Loader{
		dir:   dir,
		cache: cache.New(time.Hour, 10*time.Minute),
		years: cache.New(cache.NoExpiration, 0),
		log:   zap.L().With(zap.String("component", "faostat")),
	}
}

// Dir returns the input directory.
func (l *Loader) Dir() string { return l.dir }

// Path returns the absolute location of an input file.
func (l *Loader) Path(name string) string { return filepath.Join(l.dir, name) }

// Purge drops the cached year-scoped exports and reports how many there were.
// Reference tables stay cached.
func (l *Loader) Purge() int {
	n := l.years.ItemCount()
	l.years.Flush()
	return n
}

// cached returns the value under key in c, computing it with load on a miss.
func cached[T any](c *cache.Cache, key string, load func() (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		return v.(T), nil
	}
	v, err := load()
	if err != nil {
		var zero T
		return zero, err
	}
	c.Set(key, v, cache.DefaultExpiration)
	return v, nil
}

// eachCSV iterates a Latin-1 input CSV, mapping a missing file to ErrMissingInput.
func (l *Loader) eachCSV(ctx context.Context, name string, fn func(h fetcher.Header, rec []string) error) error {
	err := fetcher.EachRow(ctx, l.Path(name), fetcher.CSVOptions{Latin1: true, LazyQuotes: true}, fn)
	return missing(err, name)
}

func missing(err error, name string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, fetcher.ErrNotFound) {
		return eris.Wrapf(ErrMissingInput, "faostat: %s", name)
	}
	return eris.Wrapf(err, "faostat: read %s", name)
}

func tableKey(name string, parts ...any) string {
	return name + fmt.Sprint(parts...)
}
