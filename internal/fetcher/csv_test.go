package fetcher

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectRows(t *testing.T, rowCh <-chan []string, errCh <-chan error) ([][]string, error) {
	t.Helper()
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	for err := range errCh {
		if err != nil {
			return rows, err
		}
	}
	return rows, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// countingReader records how many bytes the CSV reader pulled.
type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

func TestStreamCSV_Basic(t *testing.T) {
	t.Parallel()
	input := "Area Code,Item Code,Value\n4,15,100\n8,15,50\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"4", "15", "100"}, rows[1])
}

func TestStreamCSV_WithHeader(t *testing.T) {
	t.Parallel()
	input := "Area Code,Value\n4,30\n8,25\n"
	headerCh := make(chan []string, 1)

	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
	})

	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Area Code", "Value"}, <-headerCh)
}

func TestStreamCSV_Latin1(t *testing.T) {
	t.Parallel()
	// "Côte d'Ivoire" with ô encoded as the single byte 0xF4.
	input := "Area\n" + "C\xf4te d'Ivoire\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{Latin1: true})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Côte d'Ivoire", rows[1][0])
}

func TestStreamCSV_TrimSpace(t *testing.T) {
	t.Parallel()
	input := " a , b \n 1 , 2 \n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{TrimSpace: true})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, rows)
}

func TestStreamCSV_Empty(t *testing.T) {
	t.Parallel()
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(""), CSVOptions{})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStreamCSV_ContextCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rowCh, errCh := StreamCSV(ctx, strings.NewReader("a\n1\n"), CSVOptions{})
	rows, err := collectRows(t, rowCh, errCh)
	require.Error(t, err)
	assert.Empty(t, rows)
	assert.Contains(t, err.Error(), "context cancelled")
}

func TestNormalizeColumn(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"Reporter Country Code", "reporter_country_code"},
		{"  Item Code ", "item_code"},
		{"\uFEFFArea Code", "area_code"},
		{"Value", "value"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeColumn(tt.in), tt.in)
	}
}

func TestHeader(t *testing.T) {
	t.Parallel()
	h := NewHeader([]string{"Area Code", "Item Code", "Value", "Area Code"})
	rec := []string{"4", " 15 ", "100"}

	assert.True(t, h.Has("area_code"))
	assert.False(t, h.Has("Flag"))
	assert.Equal(t, "4", h.Get(rec, "Area Code"))
	assert.Equal(t, "15", h.Get(rec, "item_code"))
	assert.Equal(t, "", h.Get(rec, "Flag"))
	assert.Equal(t, "", h.Get([]string{"4"}, "Value"))

	require.NoError(t, h.Require("Area Code", "Value"))
	err := h.Require("Area Code", "Element Code")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"Element Code"`)
}

func TestEachRow(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "prod.csv")
	writeFile(t, path, "Area Code,Value\n4,10\n8,\xe920\n")

	var areas, values []string
	err := EachRow(context.Background(), path, CSVOptions{Latin1: true}, func(h Header, rec []string) error {
		areas = append(areas, h.Get(rec, "area_code"))
		values = append(values, h.Get(rec, "value"))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "8"}, areas)
	assert.Equal(t, []string{"10", "é20"}, values)
}

func TestEachRow_CallbackError(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "t.csv")
	writeFile(t, path, "a\n1\n2\n3\n")

	calls := 0
	stop := errors.New("stop")
	err := EachRow(context.Background(), path, CSVOptions{}, func(Header, []string) error {
		calls++
		return stop
	})
	require.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestEachRow_NotFound(t *testing.T) {
	t.Parallel()
	err := EachRow(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), CSVOptions{}, func(Header, []string) error {
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestEachRecord_StopsReadingOnCallbackError(t *testing.T) {
	t.Parallel()
	body := "a\n" + strings.Repeat("12345\n", 200_000)
	stop := errors.New("stop")

	tests := []struct {
		name    string
		failAt  int
		wantErr error
	}{
		{"first row", 1, stop},
		{"tenth row", 10, stop},
		{"never", 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			src := &countingReader{r: strings.NewReader(body)}
			calls := 0
			err := eachRecord(context.Background(), src, "big.csv", CSVOptions{}, func(Header, []string) error {
				calls++
				if calls == tt.failAt {
					return stop
				}
				return nil
			})
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, 200_000, calls)
				assert.Equal(t, int64(len(body)), src.n.Load())
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.failAt, calls)
			assert.Less(t, src.n.Load(), int64(len(body)/10))
		})
	}
}
