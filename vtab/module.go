// Package vtab implements the SQLite virtual table module: schema
// declaration from DDL arguments, constraint-pushdown planning, and
// the cursor that drives one HTTP fetch per query.
package vtab

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/sausheong/webtab/internal/decl"
	"github.com/sausheong/webtab/internal/metrics"
	"github.com/sausheong/webtab/internal/schema"
)

// WorkerConfig carries the per-table defaults every spawned fetch
// worker inherits.
type WorkerConfig struct {
	UserAgent      string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// Module implements sqlite3.Module. One Module instance is registered
// per driver name and serves every table created against it.
type Module struct {
	log   zerolog.Logger
	cfg   WorkerConfig
	Ring  *metrics.ErrorRing
}

// NewModule returns a Module ready to register with a
// sqlite3.SQLiteDriver's ConnectHook.
func NewModule(log zerolog.Logger, cfg WorkerConfig) *Module {
	return &Module{log: log, cfg: cfg, Ring: metrics.NewErrorRing(50)}
}

// Register wires a Module into database/sql under driverName, so
// sql.Open(driverName, path) opens a connection with the module
// already registered for CREATE VIRTUAL TABLE statements.
func Register(driverName string, log zerolog.Logger, cfg WorkerConfig) *Module {
	m := NewModule(log, cfg)
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.CreateModule(driverName, m)
		},
	})
	return m
}

// Create and Connect behave identically: there is no on-disk state to
// initialize beyond the schema itself.
func (m *Module) Create(c *sqlite3.SQLiteConn, args []string) (sqlite3.VTab, error) {
	return m.connect(c, args)
}

func (m *Module) Connect(c *sqlite3.SQLiteConn, args []string) (sqlite3.VTab, error) {
	return m.connect(c, args)
}

// DestroyModule releases module-wide state. There is none to release
// here; the schema and error ring live on the VTab and Module values
// respectively, which the host already owns.
func (m *Module) DestroyModule() {}

func (m *Module) connect(c *sqlite3.SQLiteConn, args []string) (sqlite3.VTab, error) {
	sch, err := buildValidatedSchema(args)
	if err != nil {
		return nil, err
	}

	if err := c.DeclareVTab(createTableDDL(sch)); err != nil {
		return nil, fmt.Errorf("vtab: declare %s: %w", sch.TableName, err)
	}

	return &VTab{schema: sch, log: m.log.With().Str("table", sch.TableName).Logger(), cfg: m.cfg, ring: m.Ring}, nil
}

// buildValidatedSchema parses the xConnect/xCreate argument list into a
// schema and enforces the schema-level invariants SPEC_FULL.md requires
// before the table is ever declared to the host — split out from
// connect so it can be exercised without a live sqlite3 connection.
func buildValidatedSchema(args []string) (*schema.Schema, error) {
	// args[0] is the module name, args[1] the database name, args[2] the
	// table name; the rest are the colspec declarations.
	if len(args) < 3 {
		return nil, fmt.Errorf("vtab: expected at least 3 arguments, got %d", len(args))
	}
	tableName := args[2]

	sch, err := decl.BuildSchema(tableName, args[3:])
	if err != nil {
		return nil, err
	}
	if sch.URLColumn().DeclaredType != "TEXT" {
		return nil, fmt.Errorf("vtab: %s: url column must be TEXT", tableName)
	}
	return sch, nil
}

// createTableDDL renders the schema back into the CREATE TABLE text
// SQLite requires from DeclareVTab, marking the three synthetic
// columns HIDDEN so they never appear in SELECT *.
func createTableDDL(s *schema.Schema) string {
	ddl := "CREATE TABLE x("
	for i, col := range s.Columns {
		if i > 0 {
			ddl += ", "
		}
		ddl += quoteIdent(col.Name) + " " + col.DeclaredType
		if i < schema.FirstUserColumn {
			ddl += " HIDDEN"
		}
	}
	ddl += ")"
	return ddl
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}
