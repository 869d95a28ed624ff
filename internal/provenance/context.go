// Package provenance traces each country's food consumption back to the
// producing countries, directly and through the feed embedded in animal
// products, using the per-year trade and feed matrices.
package provenance

import (
	"sort"

	"github.com/sells-group/mrio-cli/internal/flowfile"
	"github.com/sells-group/mrio-cli/internal/model"
	"github.com/sells-group/mrio-cli/internal/numeric"
	"github.com/sells-group/mrio-cli/internal/trade"
)

// Inputs are the tables a Context is built from.
type Inputs struct {
	Year       int
	Trade      []model.CommodityFlow
	Feed       []model.MatrixRow
	Supply     []Supply
	Conversion *trade.ConversionTable
	Weights    map[int]float64
	Pasture    flowfile.Pasture
}

type mixKey struct{ animal, consumer int }

// mixRow is one feed origin's share of the feed embedded in an animal
// product consumed by a country.
type mixRow struct {
	producer int
	item     int
	value    float64
	ratio    float64
}

// Context is built once per run and shared by every country task. It is
// never written after NewContext returns.
type Context struct {
	year      int
	conv      *trade.ConversionTable
	weights   map[int]float64
	pasture   flowfile.Pasture
	trade     map[int][]model.CommodityFlow
	crops     map[int][]model.MatrixRow
	animals   map[int]bool
	mix       map[mixKey][]mixRow
	supply    map[int][]Supply
	countries []int
}

// NewContext indexes the matrices by consumer and precomputes the feed mix
// of every (animal product, consumer) pair.
func NewContext(in Inputs) *Context {
	c := &Context{
		year:    in.Year,
		conv:    in.Conversion,
		weights: in.Weights,
		pasture: in.Pasture,
		trade:   make(map[int][]model.CommodityFlow),
		crops:   make(map[int][]model.MatrixRow),
		animals: make(map[int]bool),
		mix:     make(map[mixKey][]mixRow),
		supply:  make(map[int][]Supply),
	}
	if c.pasture == nil {
		c.pasture = flowfile.Pasture{}
	}
	for _, f := range in.Trade {
		c.trade[f.Consumer] = append(c.trade[f.Consumer], f)
	}

	totals := make(map[mixKey]float64)
	for _, r := range in.Feed {
		if r.AnimalProduct == nil {
			c.crops[r.Consumer] = append(c.crops[r.Consumer], r)
			continue
		}
		c.animals[*r.AnimalProduct] = true
		if !(r.Value > 0) {
			continue
		}
		k := mixKey{*r.AnimalProduct, r.Consumer}
		c.mix[k] = append(c.mix[k], mixRow{producer: r.Producer, item: r.Item, value: r.Value})
		totals[k] += r.Value
	}
	for k, rows := range c.mix {
		for i := range rows {
			rows[i].ratio = numeric.SafeDiv(rows[i].value, totals[k])
		}
	}

	for _, s := range in.Supply {
		c.supply[s.Country] = append(c.supply[s.Country], s)
	}
	for country := range c.crops {
		if len(c.supply[country]) > 0 {
			c.countries = append(c.countries, country)
		}
	}
	sort.Ints(c.countries)
	return c
}

// Year is the matrices' year.
func (c *Context) Year() int { return c.year }

// Countries lists, in ascending order, the countries that consume crops in
// the feed matrix and have a food supply.
func (c *Context) Countries() []int {
	return append([]int(nil), c.countries...)
}
