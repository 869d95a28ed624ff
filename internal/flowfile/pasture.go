package flowfile

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mrio-cli/internal/fetcher"
)

// PastureFile is the pasture requirement table in the input directory.
const PastureFile = "Pasture_calc.csv"

// PastureKey identifies a producing country and animal product.
type PastureKey struct {
	Country int
	Item    int
}

// Pasture maps (country, item) to square metres of pasture per tonne.
type Pasture map[PastureKey]float64

// Area returns the pasture area for tons of item from country; 0 when the
// pair has no factor.
func (p Pasture) Area(country, item int, tons float64) float64 {
	return p[PastureKey{Country: country, Item: item}] * tons
}

// ReadPasture loads Pasture_calc.csv. Rows with unparsable cells are skipped.
func ReadPasture(ctx context.Context, path string) (Pasture, error) {
	out := Pasture{}
	err := fetcher.EachRow(ctx, path, fetcher.CSVOptions{Latin1: true}, func(h fetcher.Header, rec []string) error {
		if err := h.Require("Country_Code", "Item_Code", "Pasture_m2_per_t"); err != nil {
			return err
		}
		c, err1 := strconv.Atoi(h.Get(rec, "Country_Code"))
		it, err2 := strconv.Atoi(h.Get(rec, "Item_Code"))
		v, err3 := strconv.ParseFloat(h.Get(rec, "Pasture_m2_per_t"), 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return nil
		}
		out[PastureKey{Country: c, Item: it}] = v
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "flowfile: read pasture %s", path)
	}
	return out, nil
}
