// Package feed maps animal products to the crops fed to them and routes
// that embedded feed through the attributed trade matrix.
package feed

import (
	"sort"

	"github.com/sells-group/mrio-cli/internal/faostat"
	"github.com/sells-group/mrio-cli/internal/model"
	"github.com/sells-group/mrio-cli/internal/numeric"
	"github.com/sells-group/mrio-cli/internal/trade"
)

// Balances are the commodity-balance tables feed use is read from.
type Balances struct {
	Historic bool
	// FoodBalance holds the feed element of the food balance sheets, in
	// thousand tonnes.
	FoodBalance []faostat.Record
	// NonFood holds feed in tonnes: the old-methodology non-food balances
	// for historic years, SUA for current years.
	NonFood []faostat.Record
	CBCodes []faostat.CBCode
}

// FeedUse returns feed quantities in tonnes keyed by commodity-balance item.
// Current-year food balances are restricted to crop items and topped up with
// SUA items no longer reported as food, mapped to CB codes where possible.
func FeedUse(b Balances) []faostat.Record {
	faoOf := make(map[int]int, len(b.CBCodes))
	cbOf := make(map[int]int, len(b.CBCodes))
	for _, c := range b.CBCodes {
		faoOf[c.CBItem] = c.FAOItem
		if _, ok := cbOf[c.FAOItem]; !ok && c.FAOItem != 0 {
			cbOf[c.FAOItem] = c.CBItem
		}
	}
	missing := make(map[int]bool, len(model.MissingFoodItems))
	for _, it := range model.MissingFoodItems {
		missing[it] = true
	}

	var out []faostat.Record
	for _, r := range b.FoodBalance {
		if r.Element != model.ElementFeed {
			continue
		}
		if !b.Historic {
			fao, ok := faoOf[r.Item]
			if !ok || fao >= model.CropItemMax {
				continue
			}
		}
		r.Value *= model.ThousandTonnes
		out = append(out, r)
	}
	for _, r := range b.NonFood {
		if r.Element != model.ElementFeedTonnes {
			continue
		}
		if !b.Historic {
			if !missing[r.Item] {
				continue
			}
			if cb, ok := cbOf[r.Item]; ok {
				r.Item = cb
			}
		}
		out = append(out, r)
	}
	return out
}

// Total is one country's feed requirement for a primary feed item.
type Total struct {
	Country int
	Year    int
	Item    int
	Value   float64
}

// Totals converts feed use into primary feed items with the commodity-balance
// conversion table and sums per (country, year, primary item). Regional
// aggregates and items without a factor are dropped.
func Totals(use []faostat.Record, conv *trade.ConversionTable) []Total {
	type key struct{ country, year, item int }
	sums := make(map[key]float64)
	for _, r := range use {
		if !model.IsCountry(r.Area) {
			continue
		}
		primary, ratio, ok := conv.ToPrimary(r.Item)
		if !ok {
			continue
		}
		sums[key{r.Area, r.Year, primary}] += r.Value * ratio
	}
	out := make([]Total, 0, len(sums))
	for k, v := range sums {
		out = append(out, Total{Country: k.country, Year: k.year, Item: k.item, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Country != b.Country {
			return a.Country < b.Country
		}
		return a.Item < b.Item
	})
	return out
}

// Requirements allocates each producer country's feed totals over its
// animal products. Products are weighted by weights[item]/mean(weights),
// scaled by production, and the resulting share of total weighted production
// is divided by production to give feed per tonne of product:
//
//	tons_feed = (relative_production / production) × feed_total
//
// Only positive production and positive weights take part.
func Requirements(producers []int, year int, production []model.ProductionRecord, totals []Total, weights map[int]float64) []model.FeedRequirement {
	type animal struct {
		item   int
		value  float64
		weight float64
	}
	animals := make(map[int][]animal)
	for _, r := range production {
		if r.Year != year || r.Value <= 0 {
			continue
		}
		w, ok := weights[r.Item]
		if !ok || w <= 0 {
			continue
		}
		animals[r.Country] = append(animals[r.Country], animal{item: r.Item, value: r.Value, weight: w})
	}
	feeds := make(map[int][]Total)
	for _, t := range totals {
		if t.Year == year && t.Value > 0 {
			feeds[t.Country] = append(feeds[t.Country], t)
		}
	}

	sorted := append([]int(nil), producers...)
	sort.Ints(sorted)

	var out []model.FeedRequirement
	seen := make(map[int]bool, len(sorted))
	for _, country := range sorted {
		if seen[country] {
			continue
		}
		seen[country] = true
		rows := animals[country]
		if len(rows) == 0 || len(feeds[country]) == 0 {
			continue
		}

		var wsum float64
		for _, a := range rows {
			wsum += a.weight
		}
		mean := wsum / float64(len(rows))

		weighted := make([]float64, len(rows))
		var total float64
		for i, a := range rows {
			weighted[i] = numeric.SafeDiv(a.weight, mean) * a.value
			total += weighted[i]
		}

		for i, a := range rows {
			perTonne := numeric.SafeDiv(numeric.SafeDiv(weighted[i], total), a.value)
			for _, f := range feeds[country] {
				v := perTonne * f.Value
				if v <= 0 {
					continue
				}
				out = append(out, model.FeedRequirement{
					Producer:      country,
					AnimalProduct: a.item,
					FeedItem:      f.Item,
					Year:          year,
					TonsFeed:      v,
				})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Producer != b.Producer {
			return a.Producer < b.Producer
		}
		if a.AnimalProduct != b.AnimalProduct {
			return a.AnimalProduct < b.AnimalProduct
		}
		return a.FeedItem < b.FeedItem
	})
	return out
}
