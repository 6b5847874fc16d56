package vtab

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
)

// TestEndToEndSelectThroughRealSQLite drives the module the way
// webtab-server actually does: sql.Register, CREATE VIRTUAL TABLE, then
// a SELECT that pushes the url predicate down through BestIndex/Filter
// into a live HTTP fetch.
func TestEndToEndSelectThroughRealSQLite(t *testing.T) {
	addr := serveOnce(t, buildResponse(`{"id":1,"name":"a"}
{"id":2,"name":"b"}
`))

	Register("webtab_integration", zerolog.Nop(), WorkerConfig{})

	db, err := sql.Open("webtab_integration", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	ddl := `CREATE VIRTUAL TABLE items USING webtab_integration(id INT, name TEXT)`
	if _, err := db.Exec(ddl); err != nil {
		t.Fatalf("CREATE VIRTUAL TABLE: %v", err)
	}

	rows, err := db.Query(`SELECT id, name FROM items WHERE url = ?`, "http://"+addr+"/")
	if err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	defer rows.Close()

	var got []struct {
		id   int
		name string
	}
	for rows.Next() {
		var id int
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			t.Fatalf("Scan: %v", err)
		}
		got = append(got, struct {
			id   int
			name string
		}{id, name})
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows.Err: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d: %+v", len(got), got)
	}
	if got[0].id != 1 || got[0].name != "a" {
		t.Fatalf("row 0 = %+v", got[0])
	}
	if got[1].id != 2 || got[1].name != "b" {
		t.Fatalf("row 1 = %+v", got[1])
	}
}
