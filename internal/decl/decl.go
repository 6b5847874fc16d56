// Package decl parses the colspec-list argument strings a
// CREATE VIRTUAL TABLE statement passes to xConnect/xCreate into a
// schema.Schema. It is a one-time parse: the result is cached on the
// VTab and never re-run per query.
package decl

import (
	"fmt"
	"strings"

	"github.com/sausheong/webtab/internal/schema"
)

// BuildSchema parses the raw colspec arguments (one element per
// declared column, as the host hands them to xConnect/xCreate) into a
// full schema: the three synthetic columns first, then whatever the
// DDL declared.
func BuildSchema(tableName string, rawArgs []string) (*schema.Schema, error) {
	var synthetic [schema.FirstUserColumn]schema.ColumnDef
	synthetic[schema.ColURL] = schema.ColumnDef{Name: "url", DeclaredType: "TEXT", Projection: schema.Projection{Kind: schema.Direct, Name: "url"}}
	synthetic[schema.ColHeaders] = schema.ColumnDef{Name: "headers", DeclaredType: "TEXT", Projection: schema.Projection{Kind: schema.Direct, Name: "headers"}}
	synthetic[schema.ColBody] = schema.ColumnDef{Name: "body", DeclaredType: "TEXT", Projection: schema.Projection{Kind: schema.Direct, Name: "body"}}

	var userColumns []schema.ColumnDef
	seen := map[string]bool{"url": true, "headers": true, "body": true}

	for _, raw := range rawArgs {
		for _, spec := range splitColspecs(raw) {
			spec = strings.TrimSpace(spec)
			if spec == "" {
				continue
			}
			col, err := parseColspec(spec)
			if err != nil {
				return nil, fmt.Errorf("decl: %w", err)
			}
			switch col.Name {
			case "url", "headers", "body":
				synthetic[synthIndex(col.Name)] = overrideSynthetic(synthetic[synthIndex(col.Name)], col)
			default:
				if seen[col.Name] {
					return nil, fmt.Errorf("decl: duplicate column %q", col.Name)
				}
				seen[col.Name] = true
				userColumns = append(userColumns, col)
			}
		}
	}

	return schema.New(tableName, synthetic, userColumns)
}

func synthIndex(name string) int {
	switch name {
	case "url":
		return schema.ColURL
	case "headers":
		return schema.ColHeaders
	default:
		return schema.ColBody
	}
}

// overrideSynthetic lets the DDL attach a DEFAULT, and re-declare the
// type, of url/headers/body without losing their fixed Direct
// projection. The declared type is propagated rather than discarded so
// a non-TEXT url column (url must stay TEXT, per the synthetic row
// source contract) surfaces as the schema-validation error the host
// raises at xConnect, instead of being silently coerced back to TEXT.
func overrideSynthetic(base, declared schema.ColumnDef) schema.ColumnDef {
	base.DeclaredType = declared.DeclaredType
	base.DefaultValue = declared.DefaultValue
	base.HasDefault = declared.HasDefault
	return base
}

// splitColspecs splits a comma-joined colspec list at top-level commas
// only — commas inside a quoted string or inside the parentheses of a
// GENERATED ALWAYS AS (...) path expression do not end a colspec. The
// scan tracks quote and paren state exactly as
// Parser.removeInlineComments tracks quote state: one pass, one rune at
// a time, no backtracking.
func splitColspecs(s string) []string {
	var out []string
	var cur strings.Builder
	depth := 0
	var quote rune

	for _, r := range s {
		switch {
		case quote != 0:
			cur.WriteRune(r)
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
			cur.WriteRune(r)
		case r == '(':
			depth++
			cur.WriteRune(r)
		case r == ')':
			if depth > 0 {
				depth--
			}
			cur.WriteRune(r)
		case r == ',' && depth == 0:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// parseColspec parses one `name TYPE [DEFAULT '...'] [GENERATED ALWAYS
// AS (...)]` declaration.
func parseColspec(spec string) (schema.ColumnDef, error) {
	name, rest, err := readName(spec)
	if err != nil {
		return schema.ColumnDef{}, err
	}
	rest = strings.TrimSpace(rest)

	declType, rest := nextToken(rest)
	if declType == "" {
		return schema.ColumnDef{}, fmt.Errorf("column %q: missing type", name)
	}
	rest = strings.TrimSpace(rest)

	col := schema.ColumnDef{
		Name:         name,
		DeclaredType: strings.ToUpper(declType),
		Projection:   schema.Projection{Kind: schema.Direct, Name: name},
	}

	if rest == "" {
		return col, nil
	}

	upperRest := strings.ToUpper(rest)
	switch {
	case strings.HasPrefix(upperRest, "DEFAULT"):
		value, err := parseDefault(rest)
		if err != nil {
			return schema.ColumnDef{}, fmt.Errorf("column %q: %w", name, err)
		}
		col.DefaultValue = value
		col.HasDefault = true
	case strings.HasPrefix(upperRest, "GENERATED"):
		segments, err := parseGeneratedPath(rest)
		if err != nil {
			return schema.ColumnDef{}, fmt.Errorf("column %q: %w", name, err)
		}
		col.Projection = schema.Projection{Kind: schema.GeneratedPath, Segments: segments}
	default:
		return schema.ColumnDef{}, fmt.Errorf("column %q: unexpected trailing clause %q", name, rest)
	}

	return col, nil
}

// readName consumes the column name, preserving case and stripping
// quotes when the name is double-quoted; otherwise it lowercases the
// bare identifier.
func readName(spec string) (name string, rest string, err error) {
	spec = strings.TrimLeft(spec, " \t\n")
	if spec == "" {
		return "", "", fmt.Errorf("empty column declaration")
	}
	if spec[0] == '"' {
		end := strings.IndexByte(spec[1:], '"')
		if end < 0 {
			return "", "", fmt.Errorf("unterminated quoted column name in %q", spec)
		}
		return spec[1 : 1+end], spec[2+end:], nil
	}
	tok, rest := nextToken(spec)
	return strings.ToLower(tok), rest, nil
}

// nextToken splits s at the first run of whitespace.
func nextToken(s string) (tok string, rest string) {
	s = strings.TrimLeft(s, " \t\n")
	i := strings.IndexAny(s, " \t\n")
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i:]
}

// parseDefault parses `DEFAULT '<value>'`.
func parseDefault(rest string) (string, error) {
	_, rest = nextToken(rest) // consume "DEFAULT"
	rest = strings.TrimSpace(rest)
	if len(rest) < 2 || rest[0] != '\'' {
		return "", fmt.Errorf("DEFAULT requires a quoted value")
	}
	end := strings.IndexByte(rest[1:], '\'')
	if end < 0 {
		return "", fmt.Errorf("unterminated DEFAULT value")
	}
	return rest[1 : 1+end], nil
}

// parseGeneratedPath parses `GENERATED ALWAYS AS (key1->key2->...)`.
func parseGeneratedPath(rest string) ([]string, error) {
	open := strings.IndexByte(rest, '(')
	closeIdx := strings.LastIndexByte(rest, ')')
	if open < 0 || closeIdx < 0 || closeIdx < open {
		return nil, fmt.Errorf("GENERATED ALWAYS AS requires a parenthesized path")
	}
	head := strings.ToUpper(strings.TrimSpace(rest[:open]))
	if head != "GENERATED ALWAYS AS" {
		return nil, fmt.Errorf("expected GENERATED ALWAYS AS, got %q", rest[:open])
	}

	inner := rest[open+1 : closeIdx]
	parts := strings.Split(inner, "->")
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if len(p) >= 2 && p[0] == '\'' && p[len(p)-1] == '\'' {
			p = p[1 : len(p)-1]
		}
		if p == "" {
			return nil, fmt.Errorf("empty path segment in %q", inner)
		}
		segments = append(segments, p)
	}
	return segments, nil
}
