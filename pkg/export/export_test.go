package export_test

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/aretw0/revisit/pkg/export"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tidy = `{"header":["participantId","trialId","answer","duration"],"rows":[["p1","t1","yes",1.5],["p2","t1",null,2],["p2","t2",{"x":1},true]]}`

func TestParseTidy(t *testing.T) {
	table, err := export.ParseTidy([]byte(tidy))
	require.NoError(t, err)
	assert.Len(t, table.Rows, 3)

	col, err := table.Column("duration")
	require.NoError(t, err)
	assert.Equal(t, []any{json.Number("1.5"), json.Number("2"), true}, col)

	_, err = table.Column("missing")
	assert.ErrorIs(t, err, export.ErrColumnNotFound)

	recs, err := table.Records()
	require.NoError(t, err)
	assert.Equal(t, "p2", recs[1]["participantId"])
	assert.Nil(t, recs[1]["answer"])
}

func TestParseTidy_RaggedRows(t *testing.T) {
	_, err := export.ParseTidy([]byte(`{"header":["a","b"],"rows":[["1"]]}`))
	assert.ErrorIs(t, err, export.ErrRaggedRow)

	_, err = export.ParseTidy([]byte(`[]`))
	assert.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	table, err := export.ParseTidy([]byte(tidy))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, table.WriteCSV(&buf))
	assert.Equal(t,
		"participantId,trialId,answer,duration\n"+
			"p1,t1,yes,1.5\n"+
			"p2,t1,,2\n"+
			"p2,t2,\"{\"\"x\"\":1}\",true\n",
		buf.String())
}

func TestWriteSQLite(t *testing.T) {
	table, err := export.ParseTidy([]byte(tidy))
	require.NoError(t, err)

	db, err := export.OpenSQLite(filepath.Join(t.TempDir(), "export.db"))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, export.WriteSQLite(ctx, db, "participants", table))
	// Replacing is idempotent.
	require.NoError(t, export.WriteSQLite(ctx, db, "participants", table))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM "participants"`).Scan(&count))
	assert.Equal(t, 3, count)

	var answer *string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT "answer" FROM "participants" WHERE "participantId" = 'p2' AND "trialId" = 't1'`).Scan(&answer))
	assert.Nil(t, answer)

	var duration string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT "duration" FROM "participants" WHERE "participantId" = 'p1'`).Scan(&duration))
	assert.Equal(t, "1.5", duration)
}

func TestWriteSQLite_NoColumns(t *testing.T) {
	db, err := export.OpenSQLite(filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer db.Close()
	assert.Error(t, export.WriteSQLite(context.Background(), db, "t", export.Table{}))
}

func TestTable_RaggedRowsRejected(t *testing.T) {
	tables := map[string]export.Table{
		"too long":  {Header: []string{"a"}, Rows: [][]any{{"1", "2"}}},
		"too short": {Header: []string{"a", "b"}, Rows: [][]any{{"1", "2"}, {"3"}}},
	}
	db, err := export.OpenSQLite(filepath.Join(t.TempDir(), "ragged.db"))
	require.NoError(t, err)
	defer db.Close()

	for name, table := range tables {
		t.Run(name, func(t *testing.T) {
			_, err := table.Column("a")
			assert.ErrorIs(t, err, export.ErrRaggedRow)

			_, err = table.Records()
			assert.ErrorIs(t, err, export.ErrRaggedRow)

			var buf bytes.Buffer
			assert.ErrorIs(t, table.WriteCSV(&buf), export.ErrRaggedRow)
			assert.Empty(t, buf.String())

			assert.ErrorIs(t, export.WriteSQLite(context.Background(), db, "t", table), export.ErrRaggedRow)
		})
	}
}
