package model

// FAOSTAT element codes used by the pipeline.
const (
	ElementProduction     = 5510
	ElementImportQuantity = 5610
	ElementExportQuantity = 5910
	ElementFeed           = 5521 // food balance sheets, thousand tonnes
	ElementFeedTonnes     = 5520 // commodity balances and SUA, tonnes
	ElementProcessing     = 5131 // food balance sheets, thousand tonnes
	ElementFoodSupply     = 5141 // SUA, tonnes
	ElementLoss           = 5016
	ElementFoodPerCapita  = 645 // historic food balance sheets, kg/capita/yr
	ElementPopulation     = 511 // thousand persons
)

// Item codes with special handling.
const (
	ItemSugarCane      = 156
	ItemSugarBeet      = 157
	ItemSugarAggregate = 2545
	ItemCBSugarCane    = 2536
	ItemCBSugarBeet    = 2537
	ItemPalmOil        = 257
)

// Thresholds separating crop and livestock item ranges.
const (
	// AnimalProductMin: items above this code are livestock products.
	AnimalProductMin = 850
	// CropItemMax: items below this code are crops when deriving feed shares.
	CropItemMax = 867
	// MaxCountryCode: FAOSTAT area codes at or above this are regional aggregates.
	MaxCountryCode = 300
)

// ThousandTonnes converts food balance sheet quantities to tonnes.
const ThousandTonnes = 1000

// IsSugarCrop reports whether item is cane or beet.
func IsSugarCrop(item int) bool {
	return item == ItemSugarCane || item == ItemSugarBeet
}

// IsAnimalProduct reports whether item is in the livestock product range.
func IsAnimalProduct(item int) bool {
	return item > AnimalProductMin
}

// IsCountry reports whether an area code is a single country, not an aggregate.
func IsCountry(area int) bool {
	return area > 0 && area < MaxCountryCode
}

// MissingFoodItems are SUA items no longer reported in the current food
// balance sheets but still used as feed.
var MissingFoodItems = []int{
	17, 767, 329, 332, 780, 335, 291, 269, 826, 634, 253,
	821, 256, 259, 272, 270, 836, 789, 771, 238, 782, 809,
}
