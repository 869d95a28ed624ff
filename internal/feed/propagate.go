package feed

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/mrio-cli/internal/faostat"
	"github.com/sells-group/mrio-cli/internal/model"
	"github.com/sells-group/mrio-cli/internal/numeric"
)

// ShareKey identifies a consumer's supply of one commodity-balance item.
type ShareKey struct {
	Consumer int
	CBItem   int
	Year     int
}

// CropShare is the fraction of a consumer's supply of a commodity-balance
// item that came from one producer as one primary crop.
type CropShare struct {
	Producer int
	Item     int
	Share    float64
}

// CropShares splits each consumer's supply of every commodity-balance item
// across its producing countries and constituent crops. Shares sum to 1 per
// key; zero-value rows get share 0. Rows without a split entry are skipped.
func CropShares(matrix []model.CommodityFlow, splits []faostat.CBSplit) map[ShareKey][]CropShare {
	cbOf := make(map[int][]int)
	for _, s := range splits {
		cbOf[s.PrimaryItem] = append(cbOf[s.PrimaryItem], s.CBItem)
	}

	type member struct {
		producer, item int
		value          float64
	}
	groups := make(map[ShareKey][]member)
	sums := make(map[ShareKey]float64)
	for _, f := range matrix {
		if f.Item >= model.CropItemMax {
			continue
		}
		for _, cb := range cbOf[f.Item] {
			k := ShareKey{Consumer: f.Consumer, CBItem: cb, Year: f.Year}
			groups[k] = append(groups[k], member{producer: f.Producer, item: f.Item, value: f.Value})
			sums[k] += f.Value
		}
	}

	out := make(map[ShareKey][]CropShare, len(groups))
	for k, members := range groups {
		shares := make([]CropShare, len(members))
		for i, m := range members {
			share := 0.0
			if m.value != 0 {
				share = numeric.SafeDiv(m.value, sums[k])
			}
			shares[i] = CropShare{Producer: m.producer, Item: m.item, Share: share}
		}
		out[k] = shares
	}
	return out
}

// FeedShare is the feed per tonne of an animal product that one country's
// crop contributes.
type FeedShare struct {
	AnimalProducer int
	AnimalProduct  int
	FeedProducer   int
	FeedItem       int
	Year           int
	Tons           float64
}

// DistributeFeed spreads every requirement over the crops the animal
// producing country sources for that feed item. Requirements with no crop
// shares are returned as unmatched.
func DistributeFeed(reqs []model.FeedRequirement, shares map[ShareKey][]CropShare) ([]FeedShare, int) {
	var out []FeedShare
	unmatched := 0
	for _, r := range reqs {
		cs, ok := shares[ShareKey{Consumer: r.Producer, CBItem: r.FeedItem, Year: r.Year}]
		if !ok {
			unmatched++
			continue
		}
		for _, s := range cs {
			out = append(out, FeedShare{
				AnimalProducer: r.Producer,
				AnimalProduct:  r.AnimalProduct,
				FeedProducer:   s.Producer,
				FeedItem:       s.Item,
				Year:           r.Year,
				Tons:           r.TonsFeed * s.Share,
			})
		}
	}
	return out, unmatched
}

// PropagateStats counts rows through propagation.
type PropagateStats struct {
	Requirements   int
	Unmatched      int
	AnimalFlows    int
	UnmatchedFlows int
	VirtualFlows   int
	CropRows       int
	FeedRows       int
}

// VirtualFlows routes feed embedded in traded animal products: every animal
// product flow is multiplied by the per-tonne feed shares of its producer.
func VirtualFlows(matrix []model.CommodityFlow, feedShares []FeedShare, stats *PropagateStats) []model.VirtualFeedFlow {
	type apKey struct{ producer, product, year int }
	byAP := make(map[apKey][]FeedShare)
	for _, s := range feedShares {
		k := apKey{s.AnimalProducer, s.AnimalProduct, s.Year}
		byAP[k] = append(byAP[k], s)
	}

	var out []model.VirtualFeedFlow
	for _, f := range matrix {
		if !model.IsAnimalProduct(f.Item) {
			continue
		}
		stats.AnimalFlows++
		shares, ok := byAP[apKey{f.Producer, f.Item, f.Year}]
		if !ok {
			stats.UnmatchedFlows++
			continue
		}
		for _, s := range shares {
			out = append(out, model.VirtualFeedFlow{
				FeedProducer:   s.FeedProducer,
				AnimalProducer: f.Producer,
				FinalConsumer:  f.Consumer,
				FeedItem:       s.FeedItem,
				AnimalProduct:  f.Item,
				Year:           f.Year,
				Tons:           s.Tons * f.Value,
				Error:          s.Tons * f.Error,
			})
		}
	}
	stats.VirtualFlows = len(out)
	return out
}

type accum struct {
	value   float64
	errSq   numeric.SumSq
	percent float64
}

type rowKey struct {
	year, producer, consumer, item, animal int
}

// Propagate builds the unified feed matrix for one year:
//
//   - crop flows (items below the animal range) minus the feed each animal
//     producing country consumed, re-keyed as flows from the feed producer
//     to the animal producer; percent errors of merged rows are summed and
//     error is value × summed percent
//   - feed embedded in animal products, attributed to the final consumer of
//     the product and tagged with the animal product code
//
// Absolute errors of grouped virtual flows combine by root-sum-square.
func Propagate(matrix []model.CommodityFlow, reqs []model.FeedRequirement, splits []faostat.CBSplit) ([]model.MatrixRow, PropagateStats) {
	log := zap.L().With(zap.String("component", "feed"))
	stats := PropagateStats{Requirements: len(reqs)}

	shares := CropShares(matrix, splits)
	feedShares, unmatched := DistributeFeed(reqs, shares)
	stats.Unmatched = unmatched
	virtual := VirtualFlows(matrix, feedShares, &stats)

	// Feed in animal products, by final consumer.
	embedded := make(map[rowKey]*accum)
	// Feed consumed by the animal producer, by feed origin.
	origin := make(map[rowKey]*accum)
	for _, v := range virtual {
		ek := rowKey{v.Year, v.FeedProducer, v.FinalConsumer, v.FeedItem, v.AnimalProduct}
		add(embedded, ek, v.Tons, v.Error)
		orig := rowKey{v.Year, v.FeedProducer, v.AnimalProducer, v.FeedItem, 0}
		add(origin, orig, v.Tons, v.Error)
	}

	crops := make(map[rowKey]*accum)
	for _, f := range matrix {
		if f.Item >= model.AnimalProductMin {
			continue
		}
		k := rowKey{f.Year, f.Producer, f.Consumer, f.Item, 0}
		a := crops[k]
		if a == nil {
			a = &accum{}
			crops[k] = a
		}
		a.value += f.Value
		a.percent += numeric.SafeDiv(f.Error, f.Value)
	}
	for k, o := range origin {
		a := crops[k]
		if a == nil {
			a = &accum{}
			crops[k] = a
		}
		a.value -= o.value
	}

	out := make([]model.MatrixRow, 0, len(crops)+len(embedded))
	for k, a := range crops {
		out = append(out, model.MatrixRow{
			Consumer: k.consumer,
			Producer: k.producer,
			Item:     k.item,
			Year:     k.year,
			Value:    a.value,
			Error:    a.value * a.percent,
		})
	}
	stats.CropRows = len(out)
	for k, a := range embedded {
		animal := k.animal
		out = append(out, model.MatrixRow{
			Consumer:      k.consumer,
			Producer:      k.producer,
			Item:          k.item,
			Year:          k.year,
			Value:         a.value,
			Error:         a.errSq.Root(),
			AnimalProduct: &animal,
		})
	}
	stats.FeedRows = len(out) - stats.CropRows
	SortRows(out)

	log.Info("feed propagated",
		zap.Int("requirements", stats.Requirements),
		zap.Int("unmatched_requirements", stats.Unmatched),
		zap.Int("animal_flows", stats.AnimalFlows),
		zap.Int("virtual_flows", stats.VirtualFlows),
		zap.Int("crop_rows", stats.CropRows),
		zap.Int("feed_rows", stats.FeedRows),
	)
	return out, stats
}

func add(m map[rowKey]*accum, k rowKey, value, err float64) {
	a := m[k]
	if a == nil {
		a = &accum{}
		m[k] = a
	}
	a.value += value
	a.errSq.Add(err)
}

// SortRows orders rows by year and animal product, crop rows first, then by
// item, consumer and producer.
func SortRows(rows []model.MatrixRow) {
	ap := func(r model.MatrixRow) int {
		if r.AnimalProduct == nil {
			return -1
		}
		return *r.AnimalProduct
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if ap(a) != ap(b) {
			return ap(a) < ap(b)
		}
		if a.Item != b.Item {
			return a.Item < b.Item
		}
		if a.Consumer != b.Consumer {
			return a.Consumer < b.Consumer
		}
		return a.Producer < b.Producer
	})
}
