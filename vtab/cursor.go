package vtab

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/sausheong/webtab/internal/binder"
	"github.com/sausheong/webtab/internal/fetch"
	"github.com/sausheong/webtab/internal/jsonpush"
	"github.com/sausheong/webtab/internal/metrics"
	"github.com/sausheong/webtab/internal/schema"
)

// Cursor implements sqlite3.VTabCursor. It holds the lookahead-by-one
// row: nextDoc is always the document Column/Rowid should report for
// the current position, parsed one call ahead of where the query
// thread currently is.
type Cursor struct {
	vtab   *VTab
	worker *fetch.Worker
	cancel context.CancelFunc
	reader *bufio.Reader

	hidden  [schema.FirstUserColumn]binder.Result
	nextDoc *jsonpush.Value
	rowID   int64
	started time.Time
}

// Filter resolves the request URL/body/headers from the pushed-down
// argv values or the schema's declared defaults, spawns the fetch
// worker, and reads the first row so xEof is meaningful immediately.
func (cur *Cursor) Filter(_ int, idxStr string, vals []interface{}) error {
	mask := schema.DecodePlanMask(idxStr)

	url := resolveArg(mask, schema.ColURL, vals, cur.vtab.schema.URLColumn().DefaultValue)
	body := resolveArg(mask, schema.ColBody, vals, cur.vtab.schema.BodyColumn().DefaultValue)
	headers := cur.vtab.schema.HeadersColumn().DefaultValue

	cur.hidden[schema.ColURL] = binder.Result{Kind: binder.ResultText, Text: url}
	cur.hidden[schema.ColHeaders] = binder.Result{Kind: binder.ResultText, Text: headers}
	cur.hidden[schema.ColBody] = binder.Result{Kind: binder.ResultText, Text: body}

	if url == "" {
		return fmt.Errorf("vtab: %s: empty url at filter time", cur.vtab.schema.TableName)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cur.cancel = cancel
	cur.started = time.Now()

	w, err := fetch.Start(ctx, fetch.Request{
		Table:          cur.vtab.schema.TableName,
		URL:            url,
		Body:           body,
		ExtraHeaders:   headers,
		UserAgent:      cur.vtab.cfg.UserAgent,
		ConnectTimeout: cur.vtab.cfg.ConnectTimeout,
		ReadTimeout:    cur.vtab.cfg.ReadTimeout,
	}, cur.vtab.log)
	if err != nil {
		cancel()
		return err
	}

	cur.worker = w
	cur.reader = bufio.NewReader(w.Stream())
	cur.rowID = 0
	return cur.advance()
}

func resolveArg(mask *schema.PlanMask, col int, vals []interface{}, fallback string) string {
	pos, ok := mask.ArgvPosition[col]
	if !ok {
		return fallback
	}
	i := pos - 1
	if i < 0 || i >= len(vals) {
		return fallback
	}
	s, ok := vals[i].(string)
	if !ok {
		return fallback
	}
	return s
}

// advance reads and parses the next NDJSON line into nextDoc, or
// clears nextDoc once the stream and worker both report completion.
func (cur *Cursor) advance() error {
	metrics.QueueDepth.WithLabelValues(cur.vtab.schema.TableName).Set(float64(cur.worker.QueueLen()))
	line, err := cur.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return cur.fail("read", err)
	}
	line = strings.TrimSuffix(line, "\n")

	if line == "" {
		cur.worker.Wait()
		metrics.FetchDuration.WithLabelValues(cur.vtab.schema.TableName).Observe(time.Since(cur.started).Seconds())
		if werr := cur.worker.Err(); werr != nil {
			return cur.fail("fetch", werr)
		}
		cur.nextDoc = nil
		return nil
	}

	v, perr := binder.ParseRow([]byte(line))
	if perr != nil {
		return cur.fail("json", perr)
	}
	cur.nextDoc = &v
	cur.rowID++
	metrics.RowsEmittedTotal.WithLabelValues(cur.vtab.schema.TableName).Inc()
	return nil
}

func (cur *Cursor) fail(phase string, err error) error {
	metrics.FetchErrorsTotal.WithLabelValues(cur.vtab.schema.TableName, phase).Inc()
	fetchID := ""
	if cur.worker != nil {
		fetchID = cur.worker.ID()
	}
	cur.vtab.ring.Record(metrics.ErrorEvent{
		Table:   cur.vtab.schema.TableName,
		FetchID: fetchID,
		URL:     cur.hidden[schema.ColURL].Text,
		Phase:   phase,
		Message: err.Error(),
		At:      time.Now(),
	})
	cur.vtab.log.Error().Str("fetch_id", fetchID).Str("phase", phase).Err(err).Msg("vtab cursor error")
	return err
}

// Next advances past the current row. Calling Next while already at
// EOF is a no-op, matching the host's contract.
func (cur *Cursor) Next() error {
	if cur.nextDoc == nil {
		return nil
	}
	return cur.advance()
}

// EOF reports whether any row remains.
func (cur *Cursor) EOF() bool { return cur.nextDoc == nil }

// Rowid returns the monotonic row counter.
func (cur *Cursor) Rowid() (int64, error) { return cur.rowID, nil }

// Column projects one column of the current row into ctx.
func (cur *Cursor) Column(ctx *sqlite3.SQLiteContext, col int) error {
	if col < schema.FirstUserColumn {
		return writeResult(ctx, cur.hidden[col])
	}
	if cur.nextDoc == nil {
		ctx.ResultNull()
		return nil
	}
	colDef, ok := cur.vtab.schema.Column(col)
	if !ok {
		return fmt.Errorf("vtab: column index %d out of range", col)
	}
	return writeResult(ctx, binder.Bind(colDef, *cur.nextDoc))
}

func writeResult(ctx *sqlite3.SQLiteContext, r binder.Result) error {
	switch r.Kind {
	case binder.ResultNull:
		ctx.ResultNull()
	case binder.ResultText:
		ctx.ResultText(r.Text)
	case binder.ResultInt:
		ctx.ResultInt64(r.Int)
	case binder.ResultFloat:
		ctx.ResultDouble(r.Float)
	}
	return nil
}

// Close tears down the fetch worker. xClose must wait for the worker
// to acknowledge shutdown before this returns, so no orphaned worker
// outlives its cursor.
func (cur *Cursor) Close() error {
	if cur.cancel != nil {
		cur.cancel()
	}
	if cur.worker != nil {
		cur.worker.Wait()
	}
	return nil
}
