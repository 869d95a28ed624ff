package provenance

import (
	"sort"

	"github.com/sells-group/mrio-cli/internal/faostat"
	"github.com/sells-group/mrio-cli/internal/model"
)

// Supply is a country's food supply of one item, in tonnes.
type Supply struct {
	Country int
	Item    int
	Value   float64
}

// balanceItems have their food supply rebuilt from the balance elements
// because SUA does not report it for them.
var balanceItems = []int{model.ItemSugarCane, model.ItemSugarBeet, model.ItemPalmOil}

// CurrentSupply reads SUA element 5141. Cane, beet and palm oil are
// recomputed as production + imports − exports − losses, floored at zero.
func CurrentSupply(sua []faostat.Record) []Supply {
	type key struct{ country, item int }
	balance := make(map[key]float64)
	seen := make(map[key]bool)
	rebuilt := make(map[int]bool, len(balanceItems))
	for _, it := range balanceItems {
		rebuilt[it] = true
	}

	var out []Supply
	for _, r := range sua {
		if !model.IsCountry(r.Area) {
			continue
		}
		if rebuilt[r.Item] {
			k := key{r.Area, r.Item}
			switch r.Element {
			case model.ElementProduction, model.ElementImportQuantity:
				balance[k] += r.Value
				seen[k] = true
			case model.ElementExportQuantity, model.ElementLoss:
				balance[k] -= r.Value
				seen[k] = true
			}
			continue
		}
		if r.Element == model.ElementFoodSupply {
			out = append(out, Supply{Country: r.Area, Item: r.Item, Value: r.Value})
		}
	}
	for k := range seen {
		out = append(out, Supply{Country: k.country, Item: k.item, Value: max(balance[k], 0)})
	}
	sortSupply(out)
	return out
}

// HistoricSupply converts historic food balance element 645 (kg/capita/yr)
// to tonnes with the country's population (element 511, thousand persons)
// and maps CB items to FAO items where a mapping exists. Countries without a
// population row are omitted.
func HistoricSupply(fbs []faostat.Record, codes []faostat.CBCode) []Supply {
	faoOf := make(map[int]int, len(codes))
	for _, c := range codes {
		if _, ok := faoOf[c.CBItem]; !ok && c.FAOItem != 0 {
			faoOf[c.CBItem] = c.FAOItem
		}
	}
	population := make(map[int]float64)
	for _, r := range fbs {
		if r.Element == model.ElementPopulation {
			if _, ok := population[r.Area]; !ok {
				population[r.Area] = r.Value
			}
		}
	}

	var out []Supply
	for _, r := range fbs {
		if r.Element != model.ElementFoodPerCapita || !model.IsCountry(r.Area) {
			continue
		}
		pop, ok := population[r.Area]
		if !ok {
			continue
		}
		item := r.Item
		if fao, ok := faoOf[item]; ok {
			item = fao
		}
		out = append(out, Supply{Country: r.Area, Item: item, Value: r.Value * pop})
	}
	sortSupply(out)
	return out
}

func sortSupply(s []Supply) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Country != s[j].Country {
			return s[i].Country < s[j].Country
		}
		return s[i].Item < s[j].Item
	})
}
