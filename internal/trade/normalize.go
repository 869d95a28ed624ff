package trade

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mrio-cli/internal/model"
	"github.com/sells-group/mrio-cli/internal/numeric"
)

// ErrInvalidDirection is returned for a preferred side other than import or export.
var ErrInvalidDirection = eris.New("trade: prefer_import must be either 'import' or 'export'")

// NormalizeStats counts what the normalizer kept and dropped.
type NormalizeStats struct {
	Reports     int
	Masked      int
	SelfTrade   int
	Zero        int
	Duplicates  int
	Unconverted int
	Flows       int
}

// ParseDirection validates a preferred reporting side.
func ParseDirection(s string) (model.Direction, error) {
	switch d := model.Direction(s); d {
	case model.PreferImport, model.PreferExport:
		return d, nil
	}
	return "", eris.Wrapf(ErrInvalidDirection, "trade: got %q", s)
}

// Normalize reconciles import- and export-side reports into one flow per
// (consumer, producer, year, item), converts each into primary-equivalent
// mass and aggregates by primary item. Reports outside a reporter's valid
// window count as zero. The preferred side wins; the other side only fills
// keys the preferred side lacks. Output is sorted by item, consumer and
// producer.
func Normalize(reports []model.TradeReport, windows []model.ReportingWindow, dir model.Direction, conv *ConversionTable) ([]model.CommodityFlow, NormalizeStats, error) {
	var stats NormalizeStats
	if _, err := ParseDirection(string(dir)); err != nil {
		return nil, stats, err
	}
	stats.Reports = len(reports)

	window := make(map[int]model.ReportingWindow, len(windows))
	for _, w := range windows {
		window[w.Country] = w
	}

	preferred, fallback := model.ImportReport, model.ExportReport
	if dir == model.PreferExport {
		preferred, fallback = model.ExportReport, model.ImportReport
	}

	raw := make(map[model.FlowKey]float64)
	var order []model.FlowKey
	for _, side := range []model.TradeElement{preferred, fallback} {
		for _, r := range reports {
			if r.Element != side {
				continue
			}
			v := r.Value
			if w, ok := window[r.Reporter]; ok && !w.Covers(r.Year) {
				stats.Masked++
				v = 0
			}
			consumer, producer := r.Reporter, r.Partner
			if side == model.ExportReport {
				consumer, producer = r.Partner, r.Reporter
			}
			if consumer == producer {
				stats.SelfTrade++
				continue
			}
			if v == 0 || !numeric.Finite(v) {
				stats.Zero++
				continue
			}
			key := model.FlowKey{Consumer: consumer, Producer: producer, Item: r.Item, Year: r.Year}
			if _, dup := raw[key]; dup {
				stats.Duplicates++
				continue
			}
			raw[key] = v
			order = append(order, key)
		}
	}

	agg := make(map[model.FlowKey]float64)
	for _, key := range order {
		primary, ratio, ok := conv.ToPrimary(key.Item)
		if !ok {
			stats.Unconverted++
			continue
		}
		pk := key
		pk.Item = primary
		agg[pk] += raw[key] * ratio
	}

	flows := make([]model.CommodityFlow, 0, len(agg))
	for k, v := range agg {
		flows = append(flows, model.CommodityFlow{
			Consumer: k.Consumer,
			Producer: k.Producer,
			Item:     k.Item,
			Year:     k.Year,
			Value:    v,
		})
	}
	SortFlows(flows)
	stats.Flows = len(flows)
	return flows, stats, nil
}

// SortFlows orders flows by year, item, consumer and producer.
func SortFlows(flows []model.CommodityFlow) {
	sort.Slice(flows, func(i, j int) bool {
		a, b := flows[i], flows[j]
		if a.Year != b.Year {
			return a.Year < b.Year
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
