// Package fetcher reads the local tabular sources the pipeline consumes:
// Latin-1 encoded FAOSTAT CSV exports and XLSX reference workbooks.
package fetcher

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/charmap"
)

// ErrNotFound is returned when a source table does not exist on disk.
var ErrNotFound = eris.New("fetcher: source file not found")

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	HasHeader  bool            // if true, first row is skipped but sent to HeaderCh
	HeaderCh   chan<- []string // optional: receives the header row
	LazyQuotes bool
	TrimSpace  bool
	Latin1     bool // decode ISO-8859-1 input (FAOSTAT bulk exports)
}

// StreamCSV reads CSV rows and sends them to a channel.
// Caller must consume the returned row channel. Errors are sent on the error channel.
// Both channels are closed when processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		if opts.Latin1 {
			r = charmap.ISO8859_1.NewDecoder().Reader(r)
		}
		reader := csv.NewReader(r)
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1 // allow variable fields
		reader.ReuseRecord = false

		first := true
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			if opts.TrimSpace {
				for i, field := range record {
					record[i] = strings.TrimSpace(field)
				}
			}

			if first && opts.HasHeader {
				first = false
				if opts.HeaderCh != nil {
					select {
					case opts.HeaderCh <- record:
					case <-ctx.Done():
						errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled sending header")
						return
					}
				}
				continue
			}
			first = false

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// Header maps normalized column names to their positions in a record.
// "Reporter Country Code" and "reporter_country_code" resolve to the same column.
type Header map[string]int

// NewHeader indexes a header row.
func NewHeader(cols []string) Header {
	h := make(Header, len(cols))
	for i, col := range cols {
		key := NormalizeColumn(col)
		if _, dup := h[key]; dup {
			continue // first occurrence wins
		}
		h[key] = i
	}
	return h
}

// NormalizeColumn lowercases a column name, strips a UTF-8 BOM and replaces
// spaces with underscores.
func NormalizeColumn(s string) string {
	s = strings.TrimPrefix(s, "\uFEFF")
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, " ", "_")
}

// Has reports whether the header contains the named column.
func (h Header) Has(name string) bool {
	_, ok := h[NormalizeColumn(name)]
	return ok
}

// Get returns the named column from record, or "" when absent.
func (h Header) Get(record []string, name string) string {
	idx, ok := h[NormalizeColumn(name)]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// Require returns an error naming the first missing column.
func (h Header) Require(names ...string) error {
	for _, n := range names {
		if !h.Has(n) {
			return eris.Errorf("fetcher: missing column %q", n)
		}
	}
	return nil
}

// EachRow opens a CSV file, indexes its header and calls fn for every data row.
// A missing file is reported as ErrNotFound.
func EachRow(ctx context.Context, path string, opts CSVOptions, fn func(h Header, record []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return eris.Wrapf(ErrNotFound, "csv: %s", path)
		}
		return eris.Wrapf(err, "csv: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	return eachRecord(ctx, f, path, opts, fn)
}

// eachRecord cancels the reader as soon as fn fails.
func eachRecord(ctx context.Context, r io.Reader, name string, opts CSVOptions, fn func(h Header, record []string) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	headerCh := make(chan []string, 1)
	opts.HasHeader = true
	opts.HeaderCh = headerCh
	rowCh, errCh := StreamCSV(ctx, r, opts)

	var header Header
	for record := range rowCh {
		if header == nil {
			header = NewHeader(<-headerCh)
		}
		if err := fn(header, record); err != nil {
			cancel()
			for range rowCh {
			}
			<-errCh
			return err
		}
	}
	if err := <-errCh; err != nil {
		return eris.Wrapf(err, "csv: %s", name)
	}
	return nil
}
