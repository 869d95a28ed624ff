package trade

import (
	"math"
	"sort"

	"github.com/sells-group/mrio-cli/internal/faostat"
	"github.com/sells-group/mrio-cli/internal/model"
	"github.com/sells-group/mrio-cli/internal/numeric"
)

// sugarCrops maps each raw sugar crop to its commodity-balance processing item.
var sugarCrops = map[int]int{
	model.ItemSugarCane: model.ItemCBSugarCane,
	model.ItemSugarBeet: model.ItemCBSugarBeet,
}

// AggregateItemMap points sugar cane and sugar beet at the sugar aggregate
// so their trade is solved as one commodity.
func AggregateItemMap(items []faostat.ItemMapping) []faostat.ItemMapping {
	out := make([]faostat.ItemMapping, len(items))
	copy(out, items)
	for i, m := range out {
		if model.IsSugarCrop(m.Item) {
			out[i].Primary = model.ItemSugarAggregate
			out[i].PrimaryName = "Sugar aggregate"
		}
	}
	return out
}

// AggregateProduction appends sugar aggregate production per country and
// year: the sum of cane and beet production in primary-equivalent mass.
func AggregateProduction(production []model.ProductionRecord, conv *ConversionTable) []model.ProductionRecord {
	type key struct{ country, year int }
	sums := make(map[key]float64)
	for _, r := range production {
		if !model.IsSugarCrop(r.Item) {
			continue
		}
		_, ratio, ok := conv.ToPrimary(r.Item)
		if !ok {
			continue
		}
		sums[key{r.Country, r.Year}] += r.Value * ratio
	}

	out := make([]model.ProductionRecord, len(production), len(production)+len(sums))
	copy(out, production)
	keys := make([]key, 0, len(sums))
	for k, v := range sums {
		if v > 0 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].year != keys[j].year {
			return keys[i].year < keys[j].year
		}
		return keys[i].country < keys[j].country
	})
	for _, k := range keys {
		out = append(out, model.ProductionRecord{
			Country: k.country,
			Item:    model.ItemSugarAggregate,
			Year:    k.year,
			Value:   sums[k],
		})
	}
	return out
}

// SugarShare is one country's split of sugar between cane and beet.
type SugarShare struct {
	Country    int
	Year       int
	Crop       int
	Production float64 // share of raw production
	Processing float64 // share of processing input used for the split
}

// SugarStats counts what disaggregation did.
type SugarStats struct {
	Flows     int
	Dropped   int
	Residuals int
}

// SugarShares derives per-country crop shares from raw production and the
// food balance processing element (thousand tonnes). When a crop has no
// processing entry its share is 0 if the crops that do have one already sum
// to 1, otherwise the production share.
func SugarShares(production []model.ProductionRecord, processing []faostat.Record, conv *ConversionTable) []SugarShare {
	type key struct{ country, year int }

	prodTotal := make(map[key]float64)
	for _, r := range production {
		if model.IsSugarCrop(r.Item) {
			prodTotal[key{r.Country, r.Year}] += r.Value
		}
	}

	procByCrop := make(map[key]map[int]float64)
	procTotal := make(map[key]float64)
	for _, r := range processing {
		if r.Element != model.ElementProcessing || !model.IsCountry(r.Area) || r.Value <= 0 {
			continue
		}
		crop := 0
		for c, cb := range sugarCrops {
			if cb == r.Item {
				crop = c
			}
		}
		if crop == 0 {
			continue
		}
		_, ratio, ok := conv.ToPrimary(crop)
		if !ok {
			continue
		}
		k := key{r.Area, r.Year}
		if procByCrop[k] == nil {
			procByCrop[k] = make(map[int]float64)
		}
		v := r.Value * model.ThousandTonnes * ratio
		procByCrop[k][crop] += v
		procTotal[k] += v
	}

	var shares []SugarShare
	for _, r := range production {
		if !model.IsSugarCrop(r.Item) {
			continue
		}
		k := key{r.Country, r.Year}
		share := numeric.SafeDiv(r.Value, prodTotal[k])
		if share <= 0 {
			continue
		}
		shares = append(shares, SugarShare{Country: r.Country, Year: r.Year, Crop: r.Item, Production: share})
	}

	control := make(map[key]float64)
	known := make([]bool, len(shares))
	for i, s := range shares {
		k := key{s.Country, s.Year}
		if v, ok := procByCrop[k][s.Crop]; ok {
			shares[i].Processing = numeric.SafeDiv(v, procTotal[k])
			known[i] = true
			control[k] += shares[i].Processing
		}
	}
	for i, s := range shares {
		if known[i] {
			continue
		}
		if math.Abs(control[key{s.Country, s.Year}]-1) < 1e-9 {
			shares[i].Processing = 0
		} else {
			shares[i].Processing = s.Production
		}
	}

	sort.Slice(shares, func(i, j int) bool {
		a, b := shares[i], shares[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Country != b.Country {
			return a.Country < b.Country
		}
		return a.Crop < b.Crop
	})
	return shares
}

// Disaggregate splits solved sugar aggregate cells back into cane and beet.
// Each cell is multiplied by the producer's processing share and converted
// out of primary-equivalent mass. Domestic cells then absorb the residual
// national_production − attributed_total for the crop. Cells whose producer
// grows neither crop are dropped.
func Disaggregate(results []model.AttributionResult, shares []SugarShare, production []model.ProductionRecord, conv *ConversionTable) ([]model.AttributionResult, SugarStats) {
	type prodKey struct{ country, year int }
	type cropKey struct{ country, year, crop int }

	byProducer := make(map[prodKey][]SugarShare)
	for _, s := range shares {
		k := prodKey{s.Country, s.Year}
		byProducer[k] = append(byProducer[k], s)
	}
	national := make(map[cropKey]float64)
	for _, r := range production {
		if model.IsSugarCrop(r.Item) {
			national[cropKey{r.Country, r.Year, r.Item}] += r.Value
		}
	}

	var stats SugarStats
	var out []model.AttributionResult
	totals := make(map[cropKey]float64)
	for _, r := range results {
		if r.Item != model.ItemSugarAggregate {
			continue
		}
		crops := byProducer[prodKey{r.Producer, r.Year}]
		if len(crops) == 0 {
			stats.Dropped++
			continue
		}
		for _, s := range crops {
			back, ok := conv.FromPrimary(s.Crop)
			if !ok {
				stats.Dropped++
				continue
			}
			split := r
			split.Item = s.Crop
			split.Value = r.Value * s.Processing * back
			out = append(out, split)
			totals[cropKey{r.Producer, r.Year, s.Crop}] += split.Value
		}
	}

	for i, r := range out {
		if r.Consumer != r.Producer {
			continue
		}
		k := cropKey{r.Producer, r.Year, r.Item}
		out[i].Value = r.Value + national[k] - totals[k]
		stats.Residuals++
	}
	stats.Flows = len(out)
	return out, stats
}
