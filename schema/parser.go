package schema

import (
	"strconv"
	"strings"
)

// ParseTable parses the schema-language declaration of one table. Each
// non-blank line, after trimming a trailing comma, is a field line
//
//	name TYPE[(args)] [UNSIGNED] [AUTO_INCREMENT] [NOTNULL] [DEFAULT value]
//
// or an index line
//
//	INDEX [PRIMARY|UNIQUE] (col[, col...])
//
// Any malformed line aborts parsing with a *ParseError.
func ParseTable(name, text string) (*Table, error) {
	t := &Table{Name: name}
	columns := make(map[string]bool)
	var indexLines []string

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasSuffix(line, ",") {
			line = strings.TrimSpace(strings.TrimSuffix(line, ","))
		}
		if line == "" {
			continue
		}

		p := &lineParser{table: name, line: line}
		if err := p.init(); err != nil {
			return nil, err
		}

		if p.peek().is("INDEX") {
			idx, err := p.parseIndex()
			if err != nil {
				return nil, err
			}
			if idx.Kind == IndexPrimary {
				if _, dup := t.PrimaryKey(); dup {
					return nil, p.fail("more than one primary index")
				}
			}
			t.Indexes = append(t.Indexes, idx)
			indexLines = append(indexLines, line)
			continue
		}

		col, err := p.parseField()
		if err != nil {
			return nil, err
		}
		if columns[col.Name] {
			return nil, p.fail("duplicate column")
		}
		columns[col.Name] = true
		t.Columns = append(t.Columns, col)
	}

	for n, idx := range t.Indexes {
		for _, c := range idx.Columns {
			if !columns[c] {
				return nil, &ParseError{Table: name, Line: indexLines[n], Reason: "index references undeclared column " + c}
			}
		}
	}
	return t, nil
}

type lineParser struct {
	table string
	line  string
	toks  []token
	pos   int
}

func (p *lineParser) init() error {
	toks, err := tokenize(p.line)
	if err != nil {
		return p.fail(err.Error())
	}
	p.toks = toks
	return nil
}

func (p *lineParser) fail(reason string) *ParseError {
	return &ParseError{Table: p.table, Line: p.line, Reason: reason}
}

func (p *lineParser) peek() token {
	if p.pos >= len(p.toks) {
		return token{typ: -1}
	}
	return p.toks[p.pos]
}

func (p *lineParser) next() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	t := p.toks[p.pos]
	p.pos++
	return t, true
}

func (p *lineParser) done() bool { return p.pos >= len(p.toks) }

func (p *lineParser) parseIndex() (IndexSpec, error) {
	p.pos++ // INDEX
	idx := IndexSpec{Kind: IndexPlain}

	if t := p.peek(); t.typ == tokWord {
		switch t.val {
		case "PRIMARY":
			idx.Kind = IndexPrimary
		case "UNIQUE":
			idx.Kind = IndexUnique
		default:
			return idx, p.fail("invalid index type " + t.val)
		}
		p.pos++
	}

	if t, ok := p.next(); !ok || t.typ != tokParenOpen {
		return idx, p.fail("invalid index specifier")
	}
	for {
		t, ok := p.next()
		if !ok || t.typ != tokWord || !isIdentifier(t.val) {
			return idx, p.fail("invalid index column")
		}
		idx.Columns = append(idx.Columns, t.val)

		sep, ok := p.next()
		if !ok {
			return idx, p.fail("unterminated index column list")
		}
		if sep.typ == tokParenClose {
			break
		}
		if sep.typ != tokComma {
			return idx, p.fail("invalid index specifier")
		}
	}
	if !p.done() {
		return idx, p.fail("unexpected trailing input")
	}
	return idx, nil
}

func (p *lineParser) parseField() (ColumnSpec, error) {
	var col ColumnSpec

	name, ok := p.next()
	if !ok || name.typ != tokWord || !isIdentifier(name.val) {
		return col, p.fail("invalid field specifier")
	}
	col.Name = name.val

	typ, ok := p.next()
	if !ok || typ.typ != tokWord {
		return col, p.fail("invalid field specifier")
	}
	col.Type = TypeCode(typ.val)
	if !col.Type.Known() {
		return col, p.fail("invalid type specifier " + typ.val)
	}

	hasArgs := p.peek().typ == tokParenOpen
	switch {
	case col.Type.Sized() && !hasArgs:
		return col, p.fail(string(col.Type) + " type requires arguments")
	case !col.Type.Sized() && hasArgs:
		return col, p.fail(string(col.Type) + " type does not accept arguments")
	case hasArgs:
		args, err := p.parseArgs(col.Type)
		if err != nil {
			return col, err
		}
		col.Args = args
	}

	// Modifiers are accepted only in grammar order.
	stage := 0
	for !p.done() {
		t, _ := p.next()
		switch {
		case t.is("UNSIGNED") && stage < 1:
			col.Unsigned, stage = true, 1
		case t.is("AUTO_INCREMENT") && stage < 2:
			col.AutoIncrement, stage = true, 2
		case t.is("NOTNULL") && stage < 3:
			col.NotNull, stage = true, 3
		case t.is("DEFAULT") && stage < 4:
			v, ok := p.next()
			if !ok || (v.typ != tokWord && v.typ != tokString) {
				return col, p.fail("DEFAULT requires a value")
			}
			val := v.val
			col.Default, stage = &val, 4
		default:
			return col, p.fail("invalid field specifier")
		}
	}
	return col, nil
}

func (p *lineParser) parseArgs(code TypeCode) (string, error) {
	p.pos++ // (
	if p.peek().typ == tokParenClose {
		return "", p.fail(string(code) + " type requires arguments")
	}
	// Values and commas alternate: v [, v]... )
	var vals []token
	for {
		v, ok := p.next()
		if !ok {
			return "", p.fail("unterminated type arguments")
		}
		if v.typ != tokWord && v.typ != tokString {
			return "", p.fail("invalid arguments for " + string(code))
		}
		vals = append(vals, v)

		sep, ok := p.next()
		if !ok {
			return "", p.fail("unterminated type arguments")
		}
		if sep.typ == tokParenClose {
			break
		}
		if sep.typ != tokComma {
			return "", p.fail("invalid arguments for " + string(code))
		}
	}

	if code == TypeEnum {
		values := make([]string, 0, len(vals))
		for _, v := range vals {
			if v.typ != tokString {
				return "", p.fail("ENUM values must be quoted")
			}
			values = append(values, v.val)
		}
		return CanonicalEnum(values), nil
	}

	if len(vals) != 1 || vals[0].typ != tokWord {
		return "", p.fail("invalid size for " + string(code))
	}
	n, err := strconv.Atoi(vals[0].val)
	if err != nil || n <= 0 {
		return "", p.fail("invalid size for " + string(code))
	}
	return strconv.Itoa(n), nil
}

// CanonicalEnum serializes enum values with uniform single quoting and no
// incidental whitespace, doubling embedded quotes.
func CanonicalEnum(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}
	return strings.Join(quoted, ",")
}

// EnumValues splits a canonical enum argument list back into its values.
func EnumValues(args string) []string {
	toks, err := tokenize(args)
	if err != nil {
		return nil
	}
	var out []string
	for _, t := range toks {
		if t.typ == tokString {
			out = append(out, t.val)
		}
	}
	return out
}
