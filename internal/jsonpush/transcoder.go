package jsonpush

import (
	"fmt"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/sausheong/webtab/internal/queue"
)

// MaxDepth bounds recursion while walking a document. A response that
// nests deeper than this is rejected rather than risking a stack
// overflow on hostile or malformed input.
const MaxDepth = 64

// Transcoder walks a decoded HTTP response body with json-iterator's
// manual token API and pushes one serialized NDJSON line per output row
// onto out. json-iterator supplies the raw token stream; Transcoder owns
// the depth tracking, value assembly, and the path filter that decides
// which part of the document becomes rows.
type Transcoder struct {
	out *queue.ByteQueue
}

// New returns a Transcoder that pushes rows onto out.
func New(out *queue.ByteQueue) *Transcoder {
	return &Transcoder{out: out}
}

// Transcode reads one JSON document from r, walks it into a Value tree,
// then descends path (a sequence of object keys) to find the row
// source. If the value at that path is an array, each element becomes
// its own row; otherwise the value itself becomes a single row. An
// empty path transcodes the whole document as one row (or, if the
// document itself is a top-level array, one row per element).
func (t *Transcoder) Transcode(r io.Reader, path []string) error {
	iter := jsoniter.Parse(jsoniter.ConfigDefault, r, 64*1024)
	root, err := walkValue(iter, 0)
	if err != nil {
		return err
	}
	if iter.Error != nil && iter.Error != io.EOF {
		return iter.Error
	}

	target := root
	for _, seg := range path {
		v, ok := target.Get(seg)
		if !ok {
			return fmt.Errorf("jsonpush: path segment %q not found", seg)
		}
		target = v
	}

	if target.Kind == KindArray {
		for _, elem := range target.Arr {
			t.emit(elem)
		}
		return nil
	}
	t.emit(target)
	return nil
}

// TranscodeStream reads repeated top-level JSON values from r until EOF,
// the shape a long-lived HTTP response body takes. With no path filter
// each top-level value becomes its own row, matching a whitespace- or
// concatenation-separated JSON stream. With a path filter, only the
// first top-level value is consulted: it is descended per path and,
// if the result is an array, fanned out one row per element.
func (t *Transcoder) TranscodeStream(r io.Reader, path []string) error {
	iter := jsoniter.Parse(jsoniter.ConfigDefault, r, 64*1024)
	first := true
	for {
		next := iter.WhatIsNext()
		if iter.Error != nil {
			if iter.Error == io.EOF {
				return nil
			}
			return iter.Error
		}
		if next == jsoniter.InvalidValue {
			return nil
		}

		root, err := walkValue(iter, 0)
		if err != nil {
			return err
		}

		if first && len(path) > 0 {
			target := root
			for _, seg := range path {
				v, ok := target.Get(seg)
				if !ok {
					return fmt.Errorf("jsonpush: path segment %q not found", seg)
				}
				target = v
			}
			if target.Kind == KindArray {
				for _, elem := range target.Arr {
					t.emit(elem)
				}
			} else {
				t.emit(target)
			}
			return nil
		}

		t.emit(root)
		first = false
	}
}

func (t *Transcoder) emit(v Value) {
	line := Serialize(v)
	buf := queue.GetBuf(len(line))
	buf = append(buf[:0], line...)
	t.out.Push(buf)
}

// ParseValue decodes a single JSON document (such as one NDJSON line)
// into a Value, using the same walk as Transcode. Column binding reuses
// this rather than a second decoder.
func ParseValue(data []byte) (Value, error) {
	iter := jsoniter.ConfigDefault.BorrowIterator(data)
	defer jsoniter.ConfigDefault.ReturnIterator(iter)
	v, err := walkValue(iter, 0)
	if err != nil {
		return Value{}, err
	}
	if iter.Error != nil && iter.Error != io.EOF {
		return Value{}, iter.Error
	}
	return v, nil
}

func walkValue(iter *jsoniter.Iterator, depth int) (Value, error) {
	if depth > MaxDepth {
		return Value{}, fmt.Errorf("jsonpush: max nesting depth %d exceeded", MaxDepth)
	}

	switch iter.WhatIsNext() {
	case jsoniter.NilValue:
		iter.ReadNil()
		return Value{Kind: KindNull}, iter.Error
	case jsoniter.BoolValue:
		b := iter.ReadBool()
		return Value{Kind: KindBool, Bool: b}, iter.Error
	case jsoniter.NumberValue:
		return walkNumber(iter)
	case jsoniter.StringValue:
		s := iter.ReadString()
		return Value{Kind: KindString, Str: s}, iter.Error
	case jsoniter.ArrayValue:
		var arr []Value
		for iter.ReadArray() {
			elem, err := walkValue(iter, depth+1)
			if err != nil {
				return Value{}, err
			}
			arr = append(arr, elem)
		}
		return Value{Kind: KindArray, Arr: arr}, iter.Error
	case jsoniter.ObjectValue:
		var fields []Field
		for key := iter.ReadObject(); key != ""; key = iter.ReadObject() {
			val, err := walkValue(iter, depth+1)
			if err != nil {
				return Value{}, err
			}
			fields = append(fields, Field{Key: key, Value: val})
		}
		return Value{Kind: KindObject, Fields: fields}, iter.Error
	default:
		return Value{}, fmt.Errorf("jsonpush: unexpected token at depth %d", depth)
	}
}

// walkNumber classifies a number lexeme as int or float by the presence
// of a decimal point or exponent, rather than always widening to
// float64, so integer columns round-trip exactly.
func walkNumber(iter *jsoniter.Iterator) (Value, error) {
	num := iter.ReadNumber()
	lexeme := string(num)
	if strings.ContainsAny(lexeme, ".eE") {
		f, err := num.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("jsonpush: malformed number %q: %w", lexeme, err)
		}
		return Value{Kind: KindFloat, Float: f}, nil
	}
	n, err := num.Int64()
	if err != nil {
		// Outside int64 range: fall back to float rather than failing
		// the whole row.
		f, ferr := num.Float64()
		if ferr != nil {
			return Value{}, fmt.Errorf("jsonpush: malformed number %q: %w", lexeme, err)
		}
		return Value{Kind: KindFloat, Float: f}, nil
	}
	return Value{Kind: KindInt, Int: n}, nil
}
