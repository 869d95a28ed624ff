package db

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var flowUpsert = UpsertConfig{
	Table:        "mrio.flows",
	Columns:      []string{"run_id", "consumer", "producer", "value"},
	ConflictKeys: []string{"run_id", "consumer", "producer"},
}

func TestBulkUpsert_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  UpsertConfig
		rows [][]any
		want string
	}{
		{"empty rows", UpsertConfig{}, nil, ""},
		{"no columns", UpsertConfig{Table: "flows", ConflictKeys: []string{"id"}}, [][]any{{1}}, "no columns specified"},
		{"no keys", UpsertConfig{Table: "flows", Columns: []string{"id"}}, [][]any{{1}}, "no conflict keys specified"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			n, err := BulkUpsert(context.Background(), nil, tt.cfg, tt.rows)
			if tt.want == "" {
				require.NoError(t, err)
				assert.Zero(t, n)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestUpsertSQL(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		`INSERT INTO "mrio"."flows" ("run_id", "consumer", "producer", "value") SELECT "run_id", "consumer", "producer", "value" FROM "_stage_mrio_flows" ON CONFLICT ("run_id", "consumer", "producer") DO UPDATE SET "value" = EXCLUDED."value"`,
		upsertSQL(flowUpsert))

	keysOnly := UpsertConfig{Table: "runs", Columns: []string{"id"}, ConflictKeys: []string{"id"}}
	assert.Equal(t, `INSERT INTO "runs" ("id") SELECT "id" FROM "_stage_runs" ON CONFLICT ("id") DO NOTHING`, upsertSQL(keysOnly))
}

func TestBulkUpsert(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TEMP TABLE "_stage_mrio_flows" (LIKE "mrio"."flows" INCLUDING DEFAULTS) ON COMMIT DROP`)).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_mrio_flows"}, flowUpsert.Columns).WillReturnResult(2)
	mock.ExpectExec(regexp.QuoteMeta(upsertSQL(flowUpsert))).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()
	mock.ExpectRollback()

	n, err := BulkUpsert(context.Background(), mock, flowUpsert, [][]any{{"r", 1, 2, 5.0}, {"r", 2, 1, 3.0}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_mrio_flows"}, flowUpsert.Columns).WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, flowUpsert, [][]any{{"r", 1, 2, 5.0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into staging table for mrio.flows")
	assert.NoError(t, mock.ExpectationsWereMet())
}
