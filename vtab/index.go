package vtab

import (
	"fmt"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/sausheong/webtab/internal/metrics"
	"github.com/sausheong/webtab/internal/schema"
)

// VTab implements sqlite3.VTab for one declared table.
type VTab struct {
	schema *schema.Schema
	log    zerolog.Logger
	cfg    WorkerConfig
	ring   *metrics.ErrorRing
}

// BestIndex scans the constraint list once for an equality predicate
// against url or body, the only columns worth pushing down — there is
// exactly one row source (the HTTP response), so unlike a B-tree
// planner a miss here is a planning-time rejection, not a cost
// estimate between scan strategies.
func (v *VTab) BestIndex(cst []sqlite3.InfoConstraint, _ []sqlite3.InfoOrderBy) (*sqlite3.IndexResult, error) {
	used := make([]sqlite3.IndexConstraintUsage, len(cst))
	mask := schema.NewPlanMask()

	argvPos := 1
	urlPushed := false
	for i, c := range cst {
		if !c.Usable || c.Op != sqlite3.OpEQ {
			continue
		}
		if c.Column != schema.ColURL && c.Column != schema.ColBody {
			continue
		}
		used[i] = sqlite3.IndexConstraintUsage{ArgvIndex: argvPos, Omit: true}
		mask.ArgvPosition[c.Column] = argvPos
		argvPos++
		if c.Column == schema.ColURL {
			urlPushed = true
		}
	}

	if !urlPushed && !v.schema.URLColumn().HasDefault {
		return nil, fmt.Errorf("vtab: %s requires a url predicate or a DEFAULT on the url column", v.schema.TableName)
	}

	return &sqlite3.IndexResult{
		Used:          used,
		IdxNum:        0,
		IdxStr:        mask.Encode(),
		EstimatedCost: 1.0,
		EstimatedRows: 100,
	}, nil
}

// Open allocates a fresh Cursor. The fetch worker is not spawned until
// Filter supplies the resolved URL.
func (v *VTab) Open() (sqlite3.VTabCursor, error) {
	return &Cursor{vtab: v}, nil
}

// Disconnect and Destroy release the schema. Neither has any worker or
// file-backed state to tear down: that lives entirely on the Cursor.
func (v *VTab) Disconnect() error { return nil }
func (v *VTab) Destroy() error    { return nil }
