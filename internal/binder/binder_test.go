package binder

import (
	"testing"

	"github.com/sausheong/webtab/internal/jsonpush"
	"github.com/sausheong/webtab/internal/schema"
)

func mustParse(t *testing.T, doc string) jsonpush.Value {
	t.Helper()
	v, err := jsonpush.ParseValue([]byte(doc))
	if err != nil {
		t.Fatalf("ParseValue: %v", err)
	}
	return v
}

func TestBindDirectColumn(t *testing.T) {
	row := mustParse(t, `{"id":1,"n":"a"}`)
	col := schema.ColumnDef{Name: "n", DeclaredType: "TEXT", Projection: schema.Projection{Kind: schema.Direct, Name: "n"}}
	r := Bind(col, row)
	if r.Kind != ResultText || r.Text != "a" {
		t.Fatalf("got %+v", r)
	}
}

func TestBindMissingKeyIsNull(t *testing.T) {
	row := mustParse(t, `{"id":1}`)
	col := schema.ColumnDef{Name: "n", Projection: schema.Projection{Kind: schema.Direct, Name: "n"}}
	r := Bind(col, row)
	if r.Kind != ResultNull {
		t.Fatalf("got %+v", r)
	}
}

func TestBindGeneratedPath(t *testing.T) {
	row := mustParse(t, `{"user":{"profile":{"name":"ada"}}}`)
	col := schema.ColumnDef{
		Name:       "name",
		Projection: schema.Projection{Kind: schema.GeneratedPath, Segments: []string{"user", "profile", "name"}},
	}
	r := Bind(col, row)
	if r.Kind != ResultText || r.Text != "ada" {
		t.Fatalf("got %+v", r)
	}
}

func TestBindGeneratedPathThroughNonObjectIsNull(t *testing.T) {
	row := mustParse(t, `{"user":"not an object"}`)
	col := schema.ColumnDef{
		Projection: schema.Projection{Kind: schema.GeneratedPath, Segments: []string{"user", "profile"}},
	}
	r := Bind(col, row)
	if r.Kind != ResultNull {
		t.Fatalf("got %+v", r)
	}
}

func TestBindBooleanIntLikeColumn(t *testing.T) {
	row := mustParse(t, `{"a":true}`)
	col := schema.ColumnDef{DeclaredType: "INTEGER", Projection: schema.Projection{Kind: schema.Direct, Name: "a"}}
	r := Bind(col, row)
	if r.Kind != ResultInt || r.Int != 1 {
		t.Fatalf("got %+v", r)
	}
}

func TestBindBooleanTextColumn(t *testing.T) {
	row := mustParse(t, `{"a":true}`)
	col := schema.ColumnDef{DeclaredType: "TEXT", Projection: schema.Projection{Kind: schema.Direct, Name: "a"}}
	r := Bind(col, row)
	if r.Kind != ResultText || r.Text != "true" {
		t.Fatalf("got %+v", r)
	}
}

func TestBindIntegerAndFloat(t *testing.T) {
	row := mustParse(t, `{"i":5,"f":1.5}`)
	ci := schema.ColumnDef{Projection: schema.Projection{Kind: schema.Direct, Name: "i"}}
	cf := schema.ColumnDef{Projection: schema.Projection{Kind: schema.Direct, Name: "f"}}
	ri := Bind(ci, row)
	rf := Bind(cf, row)
	if ri.Kind != ResultInt || ri.Int != 5 {
		t.Fatalf("int got %+v", ri)
	}
	if rf.Kind != ResultFloat || rf.Float != 1.5 {
		t.Fatalf("float got %+v", rf)
	}
}

func TestBindObjectSerializesAsText(t *testing.T) {
	row := mustParse(t, `{"meta":{"a":1}}`)
	col := schema.ColumnDef{Projection: schema.Projection{Kind: schema.Direct, Name: "meta"}}
	r := Bind(col, row)
	if r.Kind != ResultText || r.Text != `{"a":1}` {
		t.Fatalf("got %+v", r)
	}
}
