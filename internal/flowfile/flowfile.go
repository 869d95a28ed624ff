// Package flowfile reads and writes the per-year matrix files and the run
// manifest under <results>/<year>/.mrio.
package flowfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mrio-cli/internal/fetcher"
	"github.com/sells-group/mrio-cli/internal/model"
)

// Column headers of the matrix files.
var (
	TradeMatrixHeader = []string{"Consumer_Country_Code", "Producer_Country_Code", "Item_Code", "Year", "Value", "Error"}
	FeedMatrixHeader  = []string{"Consumer_Country_Code", "Producer_Country_Code", "Item_Code", "Year", "Value", "Error", "Animal_Product_Code"}
)

// MrioDir returns <results>/<year>/.mrio.
func MrioDir(results string, year int) string {
	return filepath.Join(results, strconv.Itoa(year), ".mrio")
}

// TradeMatrixPath returns the trade matrix file for a year and option set.
func TradeMatrixPath(results string, year int, opts model.Options) string {
	return filepath.Join(MrioDir(results, year), fmt.Sprintf("TradeMatrix_%s_%s.csv", opts.Direction, opts.ConversionOption))
}

// FeedMatrixPath returns the feed matrix file for a year and option set.
func FeedMatrixPath(results string, year int, opts model.Options) string {
	return filepath.Join(MrioDir(results, year), fmt.Sprintf("TradeMatrixFeed_%s_%s.csv", opts.Direction, opts.ConversionOption))
}

// WriteTradeMatrix writes flows in the given order.
func WriteTradeMatrix(path string, flows []model.CommodityFlow) error {
	return WriteCSV(path, TradeMatrixHeader, len(flows), func(i int) []string {
		f := flows[i]
		return []string{itoa(f.Consumer), itoa(f.Producer), itoa(f.Item), itoa(f.Year), ftoa(f.Value), ftoa(f.Error)}
	})
}

// WriteFeedMatrix writes rows in the given order; a nil animal product is
// written as an empty cell.
func WriteFeedMatrix(path string, rows []model.MatrixRow) error {
	return WriteCSV(path, FeedMatrixHeader, len(rows), func(i int) []string {
		r := rows[i]
		ap := ""
		if r.AnimalProduct != nil {
			ap = itoa(*r.AnimalProduct)
		}
		return []string{itoa(r.Consumer), itoa(r.Producer), itoa(r.Item), itoa(r.Year), ftoa(r.Value), ftoa(r.Error), ap}
	})
}

// ReadTradeMatrix reads a trade matrix file.
func ReadTradeMatrix(ctx context.Context, path string) ([]model.CommodityFlow, error) {
	rows, err := readRows(ctx, path, TradeMatrixHeader[:6])
	if err != nil {
		return nil, err
	}
	flows := make([]model.CommodityFlow, len(rows))
	for i, r := range rows {
		flows[i] = r.Flow()
	}
	return flows, nil
}

// ReadFeedMatrix reads a feed matrix file.
func ReadFeedMatrix(ctx context.Context, path string) ([]model.MatrixRow, error) {
	return readRows(ctx, path, FeedMatrixHeader)
}

func readRows(ctx context.Context, path string, required []string) ([]model.MatrixRow, error) {
	var out []model.MatrixRow
	line := 1
	err := fetcher.EachRow(ctx, path, fetcher.CSVOptions{}, func(h fetcher.Header, rec []string) error {
		line++
		if err := h.Require(required...); err != nil {
			return err
		}
		var r model.MatrixRow
		var err error
		if r.Consumer, err = strconv.Atoi(h.Get(rec, "Consumer_Country_Code")); err != nil {
			return eris.Wrapf(err, "flowfile: line %d consumer", line)
		}
		if r.Producer, err = strconv.Atoi(h.Get(rec, "Producer_Country_Code")); err != nil {
			return eris.Wrapf(err, "flowfile: line %d producer", line)
		}
		if r.Item, err = strconv.Atoi(h.Get(rec, "Item_Code")); err != nil {
			return eris.Wrapf(err, "flowfile: line %d item", line)
		}
		if r.Year, err = strconv.Atoi(h.Get(rec, "Year")); err != nil {
			return eris.Wrapf(err, "flowfile: line %d year", line)
		}
		if r.Value, err = parseFloat(h.Get(rec, "Value")); err != nil {
			return eris.Wrapf(err, "flowfile: line %d value", line)
		}
		if r.Error, err = parseFloat(h.Get(rec, "Error")); err != nil {
			return eris.Wrapf(err, "flowfile: line %d error", line)
		}
		if s := h.Get(rec, "Animal_Product_Code"); s != "" {
			ap, err := strconv.Atoi(s)
			if err != nil {
				return eris.Wrapf(err, "flowfile: line %d animal product", line)
			}
			r.AnimalProduct = &ap
		}
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "flowfile: read %s", path)
	}
	return out, nil
}

// WriteCSV writes to a temporary file in the target directory and renames
// it into place, so readers never see a partial matrix.
func WriteCSV(path string, header []string, n int, row func(i int) []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "flowfile: mkdir %s", filepath.Dir(path))
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return eris.Wrapf(err, "flowfile: create %s", path)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "flowfile: write header %s", path)
	}
	for i := range n {
		if err := w.Write(row(i)); err != nil {
			tmp.Close() //nolint:errcheck
			return eris.Wrapf(err, "flowfile: write row %d of %s", i, path)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "flowfile: flush %s", path)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "flowfile: close %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrapf(err, "flowfile: rename %s", path)
	}
	return nil
}

func itoa(v int) string { return strconv.Itoa(v) }

// ftoa uses the shortest representation that round-trips.
func ftoa(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
