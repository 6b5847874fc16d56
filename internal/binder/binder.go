// Package binder projects one decoded JSON row onto a table's declared
// columns, applying the direct-key / generated-path lookup rules and
// the JSON-to-SQL type conversion table.
package binder

import (
	"github.com/sausheong/webtab/internal/jsonpush"
	"github.com/sausheong/webtab/internal/schema"
)

// ResultKind tags the SQL-level type a Result carries.
type ResultKind int

const (
	ResultNull ResultKind = iota
	ResultText
	ResultInt
	ResultFloat
)

// Result is the SQL value produced for one column, shaped so a vtab
// cursor can dispatch straight to the matching sqlite3.SQLiteContext
// Result* call without a second type switch.
type Result struct {
	Kind  ResultKind
	Text  string
	Int   int64
	Float float64
}

// ParseRow decodes one already-framed NDJSON line back into a Value.
// The line is bounded and self-contained, so this is a single
// non-incremental parse, not a resumption of the streaming transcoder.
func ParseRow(line []byte) (jsonpush.Value, error) {
	return jsonpush.ParseValue(line)
}

// Bind resolves col's value against row, the current row's JSON
// document.
func Bind(col schema.ColumnDef, row jsonpush.Value) Result {
	if row.Kind != jsonpush.KindObject {
		return Result{Kind: ResultNull}
	}

	v, ok := resolve(col.Projection, row)
	if !ok {
		return Result{Kind: ResultNull}
	}
	return convert(v, col)
}

func resolve(p schema.Projection, root jsonpush.Value) (jsonpush.Value, bool) {
	switch p.Kind {
	case schema.Direct:
		return root.Get(p.Name)
	case schema.GeneratedPath:
		cur := root
		for i, seg := range p.Segments {
			if cur.Kind != jsonpush.KindObject {
				return jsonpush.Value{}, false
			}
			next, ok := cur.Get(seg)
			if !ok {
				return jsonpush.Value{}, false
			}
			cur = next
			if i == len(p.Segments)-1 {
				return cur, true
			}
		}
		return jsonpush.Value{}, false
	default:
		return jsonpush.Value{}, false
	}
}

func convert(v jsonpush.Value, col schema.ColumnDef) Result {
	switch v.Kind {
	case jsonpush.KindNull:
		return Result{Kind: ResultNull}
	case jsonpush.KindString:
		return Result{Kind: ResultText, Text: v.Str}
	case jsonpush.KindInt:
		return Result{Kind: ResultInt, Int: v.Int}
	case jsonpush.KindFloat:
		return Result{Kind: ResultFloat, Float: v.Float}
	case jsonpush.KindBool:
		if col.IsIntLike() {
			if v.Bool {
				return Result{Kind: ResultInt, Int: 1}
			}
			return Result{Kind: ResultInt, Int: 0}
		}
		if v.Bool {
			return Result{Kind: ResultText, Text: "true"}
		}
		return Result{Kind: ResultText, Text: "false"}
	case jsonpush.KindArray, jsonpush.KindObject:
		return Result{Kind: ResultText, Text: string(jsonpush.Serialize(v))}
	default:
		return Result{Kind: ResultNull}
	}
}
