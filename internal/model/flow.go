// Package model defines the trade and feed records passed between pipeline stages.
package model

// CommodityFlow is one edge in a per-commodity trade graph. Consumer equal to
// Producer is a domestic self-flow.
type CommodityFlow struct {
	Consumer int     `json:"consumer_country_code"`
	Producer int     `json:"producer_country_code"`
	Item     int     `json:"item_code"`
	Year     int     `json:"year"`
	Value    float64 `json:"value"`
	Error    float64 `json:"error"`
}

// FlowKey identifies a flow independent of its value.
type FlowKey struct {
	Consumer int
	Producer int
	Item     int
	Year     int
}

// ProductionRecord is authoritative national output for one country, item and year.
type ProductionRecord struct {
	Country int     `json:"country_code"`
	Item    int     `json:"item_code"`
	Year    int     `json:"year"`
	Value   float64 `json:"value"`
}

// TradeElement tells which side reported a bilateral trade record.
type TradeElement int

const (
	ImportReport TradeElement = iota + 1 // reporter is the consumer
	ExportReport                         // reporter is the producer
)

// TradeReport is one raw bilateral trade record as published by the reporter.
type TradeReport struct {
	Reporter int
	Partner  int
	Item     int
	Year     int
	Element  TradeElement
	Value    float64
}

// ReportingWindow bounds the years in which a country's own trade reports are
// trusted. A zero bound is open.
type ReportingWindow struct {
	Country   int
	StartYear int
	EndYear   int
}

// Covers reports whether year falls inside the window.
func (w ReportingWindow) Covers(year int) bool {
	if w.StartYear != 0 && year < w.StartYear {
		return false
	}
	if w.EndYear != 0 && year > w.EndYear {
		return false
	}
	return true
}

// ConversionFactor maps a processed item to its primary-equivalent mass.
// Processed quantity × Ratio = primary-equivalent quantity.
type ConversionFactor struct {
	SourceItem  int     `json:"source_item_code"`
	PrimaryItem int     `json:"primary_item_code"`
	Ratio       float64 `json:"ratio"`
}

// AttributionResult is one nonzero cell of a solved attribution matrix.
type AttributionResult struct {
	Consumer      int     `json:"consumer_country_code"`
	Producer      int     `json:"producer_country_code"`
	Item          int     `json:"item_code"`
	Year          int     `json:"year"`
	Value         float64 `json:"value"`
	RelativeError float64 `json:"relative_error"`
}

// Flow converts the result into a flow with absolute error.
func (r AttributionResult) Flow() CommodityFlow {
	return CommodityFlow{
		Consumer: r.Consumer,
		Producer: r.Producer,
		Item:     r.Item,
		Year:     r.Year,
		Value:    r.Value,
		Error:    r.Value * r.RelativeError,
	}
}

// FeedRequirement is the feed attributed to each tonne of an animal product
// produced in a country.
type FeedRequirement struct {
	Producer      int     `json:"producer_country_code"`
	AnimalProduct int     `json:"animal_product_code"`
	FeedItem      int     `json:"feed_item_code"`
	Year          int     `json:"year"`
	TonsFeed      float64 `json:"tons_feed"`
}

// VirtualFeedFlow is feed embedded in a traded animal product, traced from
// the crop's producer through the animal producer to the final consumer.
type VirtualFeedFlow struct {
	FeedProducer   int
	AnimalProducer int
	FinalConsumer  int
	FeedItem       int
	AnimalProduct  int
	Year           int
	Tons           float64
	Error          float64
}

// MatrixRow is one row of a persisted trade matrix file. AnimalProduct is
// nil for plain crop and livestock flows.
type MatrixRow struct {
	Consumer      int     `json:"consumer_country_code"`
	Producer      int     `json:"producer_country_code"`
	Item          int     `json:"item_code"`
	Year          int     `json:"year"`
	Value         float64 `json:"value"`
	Error         float64 `json:"error"`
	AnimalProduct *int    `json:"animal_product_code,omitempty"`
}

// RowFromFlow builds a matrix row without an animal product.
func RowFromFlow(f CommodityFlow) MatrixRow {
	return MatrixRow{
		Consumer: f.Consumer,
		Producer: f.Producer,
		Item:     f.Item,
		Year:     f.Year,
		Value:    f.Value,
		Error:    f.Error,
	}
}

// Flow drops the animal product and returns the row as a flow.
func (r MatrixRow) Flow() CommodityFlow {
	return CommodityFlow{
		Consumer: r.Consumer,
		Producer: r.Producer,
		Item:     r.Item,
		Year:     r.Year,
		Value:    r.Value,
		Error:    r.Error,
	}
}
