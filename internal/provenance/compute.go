package provenance

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mrio-cli/internal/numeric"
)

// ErrNoSupply is returned for a country without food supply data.
var ErrNoSupply = eris.New("provenance: no food supply")

// minRatio drops shares too small to matter.
const minRatio = 1e-8

// HumanRow is the share of a country's direct consumption of an item that
// originates in Producer. Primary marks animal products read from the trade
// matrix; other rows are crops net of feed.
type HumanRow struct {
	Producer   int
	Item       int
	Primary    bool
	Ratio      float64
	Provenance float64
	Error      float64
	PastureM2  float64
}

// FeedRow is feed grown in Producer that ends up in an animal product the
// country imports from AnimalProducer.
type FeedRow struct {
	Producer       int
	Item           int
	AnimalProduct  int
	AnimalProducer int
	Ratio          float64
	Provenance     float64
	Error          float64
}

// Result is one country's provenance. Failed results carry no rows.
type Result struct {
	Country int
	Year    int
	Human   []HumanRow
	Feed    []FeedRow
	Failed  bool
}

type consumption struct {
	value float64
	errSq numeric.SumSq
}

func (c consumption) err() float64 { return c.errSq.Root() }

type ratioRow struct {
	producer int
	item     int
	primary  bool
	ratio    float64
}

// Compute derives a country's human-consumed and feed provenance.
func Compute(c *Context, country int) (Result, error) {
	res := Result{Country: country, Year: c.year}
	supply := c.supply[country]
	if len(supply) == 0 {
		return res, eris.Wrapf(ErrNoSupply, "provenance: country %d year %d", country, c.year)
	}

	primary := make(map[int]consumption)
	for _, s := range supply {
		item, ratio, ok := c.conv.ToPrimary(s.Item)
		if !ok {
			continue
		}
		pc := primary[item]
		pc.value += s.Value * ratio
		pc.errSq.Add(s.Value)
		primary[item] = pc
	}

	ratios := c.importRatios(country)
	for _, r := range ratios {
		pc, ok := primary[r.item]
		if !ok {
			continue
		}
		prov := r.ratio * pc.value
		if r.ratio <= minRatio || !(prov > 0) {
			continue
		}
		row := HumanRow{
			Producer:   r.producer,
			Item:       r.item,
			Primary:    r.primary,
			Ratio:      r.ratio,
			Provenance: prov,
			Error:      prov * math.Sqrt(1+math.Pow(numeric.SafeDiv(pc.err(), pc.value), 2)),
		}
		if r.primary {
			row.PastureM2 = c.pasture.Area(r.producer, r.item, prov)
		}
		res.Human = append(res.Human, row)
	}

	for _, r := range ratios {
		w := c.weights[r.item]
		pc, ok := primary[r.item]
		if !ok || !(w > 0) {
			continue
		}
		cVal := r.ratio * pc.value * w
		cErr := r.ratio * pc.err() * w
		for _, m := range c.mix[mixKey{r.item, r.producer}] {
			prov := m.ratio * cVal
			if m.value <= minRatio || !(prov > 0) {
				continue
			}
			res.Feed = append(res.Feed, FeedRow{
				Producer:       m.producer,
				Item:           m.item,
				AnimalProduct:  r.item,
				AnimalProducer: r.producer,
				Ratio:          m.ratio,
				Provenance:     prov,
				Error:          prov * math.Sqrt(1+math.Pow(cErr/cVal, 2)),
			})
		}
	}

	sort.Slice(res.Human, func(i, j int) bool {
		a, b := res.Human[i], res.Human[j]
		if a.Item != b.Item {
			return a.Item < b.Item
		}
		return a.Producer < b.Producer
	})
	sort.Slice(res.Feed, func(i, j int) bool {
		a, b := res.Feed[i], res.Feed[j]
		if a.AnimalProduct != b.AnimalProduct {
			return a.AnimalProduct < b.AnimalProduct
		}
		if a.AnimalProducer != b.AnimalProducer {
			return a.AnimalProducer < b.AnimalProducer
		}
		if a.Item != b.Item {
			return a.Item < b.Item
		}
		return a.Producer < b.Producer
	})
	return res, nil
}

// importRatios splits each item the country consumes across its producers:
// crops from the feed matrix (net of feed, negative rows ignored) and animal
// products from the trade matrix.
func (c *Context) importRatios(country int) []ratioRow {
	totals := make(map[int]float64)
	type cell struct {
		producer, item int
		primary        bool
		value          float64
	}
	var cells []cell
	for _, r := range c.crops[country] {
		if r.Value < 0 {
			continue
		}
		cells = append(cells, cell{r.Producer, r.Item, false, r.Value})
		totals[r.Item] += r.Value
	}
	for _, f := range c.trade[country] {
		if !c.animals[f.Item] {
			continue
		}
		cells = append(cells, cell{f.Producer, f.Item, true, f.Value})
		totals[f.Item] += f.Value
	}

	out := make([]ratioRow, len(cells))
	for i, x := range cells {
		out[i] = ratioRow{
			producer: x.producer,
			item:     x.item,
			primary:  x.primary,
			ratio:    numeric.SafeDiv(x.value, totals[x.item]),
		}
	}
	return out
}
