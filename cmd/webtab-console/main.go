// Command webtab-console is a readline-driven REPL for running ad hoc
// SELECT statements against a registered webtab table, for manual
// testing without standing up the admin server.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/sausheong/webtab/internal/logging"
	"github.com/sausheong/webtab/vtab"
)

func main() {
	sqlitePath := flag.String("sqlite-path", "webtab.db", "path to the SQLite database file")
	connectTimeout := flag.Duration("connect-timeout", 10*time.Second, "per-query connect timeout")
	readTimeout := flag.Duration("read-timeout", 30*time.Second, "per-query read timeout")
	flag.Parse()

	log := logging.New("error", false)
	vtab.Register("webtab", log, vtab.WorkerConfig{
		UserAgent:      "webtab-console/1.0",
		ConnectTimeout: *connectTimeout,
		ReadTimeout:    *readTimeout,
	})

	db, err := sql.Open("webtab", *sqlitePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening %s: %v\n", *sqlitePath, err)
		os.Exit(1)
	}
	defer db.Close()

	fmt.Println("webtab console")
	fmt.Printf("database: %s\n", *sqlitePath)
	fmt.Println("type 'exit' or 'quit' to leave; statements do not require a trailing ';'")
	fmt.Println()

	rl, err := readline.New("webtab> ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error initializing readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				break
			}
			fmt.Fprintf(os.Stderr, "error reading input: %v\n", err)
			continue
		}

		line = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), ";"))
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		runStatement(db, line)
	}
}

func runStatement(db *sql.DB, stmt string) {
	start := time.Now()
	rows, err := db.Query(stmt)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}

	count := 0
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Println(formatRow(cols, vals))
		count++
	}
	if err := rows.Err(); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}

	fmt.Printf("(%d rows, %s)\n", count, time.Since(start).Round(time.Millisecond))
}

func formatRow(cols []string, vals []interface{}) string {
	var b strings.Builder
	for i, v := range vals {
		if i > 0 {
			b.WriteString("  ")
		}
		fmt.Fprintf(&b, "%s=%v", cols[i], v)
	}
	return b.String()
}
