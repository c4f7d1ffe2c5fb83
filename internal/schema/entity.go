package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gertd/go-pluralize"
	"github.com/iancoleman/strcase"
)

// ParseEntity extracts a Table from the source text of a Go struct
// definition. It is a best-effort text scan, not a full parser: column names
// come from `db:"…"` tags or snake_cased field names, explicit types from
// `db_type:"…"` tags, implicit types from the Go field types. Pointer fields
// are nullable. Tag options primary_key, auto_increment and not_null are
// recognised.
//
// When tableName is empty it is derived by pluralizing the snake_cased
// struct name.
func ParseEntity(entityCode, tableName string) (Table, error) {
	structName, fields, err := scanStruct(entityCode)
	if err != nil {
		return Table{}, err
	}

	if tableName == "" {
		tableName = pluralizeClient.Plural(strcase.ToSnake(structName))
	}

	columns := make([]Column, 0, len(fields))
	for _, f := range fields {
		col, ok := f.toColumn()
		if !ok {
			continue
		}
		columns = append(columns, col)
	}

	if len(columns) == 0 {
		return Table{}, fmt.Errorf("no columns parsed from entity %q", structName)
	}

	var pkColumns []string
	for _, c := range columns {
		if c.PrimaryKey {
			pkColumns = append(pkColumns, c.Name)
		}
	}

	return Table{
		Name:              tableName,
		Columns:           columns,
		PrimaryKeyColumns: pkColumns,
	}, nil
}

var (
	pluralizeClient = pluralize.NewClient()

	structRe = regexp.MustCompile(`type\s+([A-Za-z_][A-Za-z0-9_]*)\s+struct\s*\{`)
	fieldRe  = regexp.MustCompile("^([A-Za-z_][A-Za-z0-9_]*)\\s+([*\\[\\]A-Za-z0-9_.]+)(?:\\s+`([^`]*)`)?")
	tagRe    = regexp.MustCompile(`(\w+):"([^"]*)"`)
)

type entityField struct {
	name   string
	goType string
	tags   map[string]string
}

func scanStruct(code string) (string, []entityField, error) {
	m := structRe.FindStringSubmatchIndex(code)
	if m == nil {
		return "", nil, fmt.Errorf("no struct definition found")
	}
	structName := code[m[2]:m[3]]
	body := code[m[1]:]
	if end := strings.Index(body, "}"); end >= 0 {
		body = body[:end]
	}

	var fields []entityField
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}

		fm := fieldRe.FindStringSubmatch(line)
		if fm == nil {
			continue
		}

		tags := make(map[string]string)
		for _, tm := range tagRe.FindAllStringSubmatch(fm[3], -1) {
			tags[tm[1]] = tm[2]
		}

		fields = append(fields, entityField{name: fm[1], goType: fm[2], tags: tags})
	}

	return structName, fields, nil
}

func (f entityField) toColumn() (Column, bool) {
	name := strcase.ToSnake(f.name)
	nullable := strings.HasPrefix(f.goType, "*")

	var primaryKey, autoIncrement bool
	if dbTag, ok := f.tags["db"]; ok {
		parts := strings.Split(dbTag, ",")
		if parts[0] == "-" {
			return Column{}, false
		}
		if parts[0] != "" {
			name = parts[0]
		}
		for _, opt := range parts[1:] {
			switch opt {
			case "primary_key":
				primaryKey = true
			case "auto_increment":
				autoIncrement = true
			case "not_null":
				nullable = false
			}
		}
	}

	var colType ColumnType
	if explicit, ok := f.tags["db_type"]; ok {
		colType = parseColumnTypeString(explicit)
	} else {
		t, ok := inferColumnType(f.goType)
		if !ok {
			return Column{}, false
		}
		colType = t
	}

	if primaryKey {
		nullable = false
	}

	return Column{
		Name:          name,
		Type:          colType,
		Nullable:      nullable,
		AutoIncrement: autoIncrement,
		PrimaryKey:    primaryKey,
	}, true
}

var stringLenRe = regexp.MustCompile(`^String\((\d+)\)$`)

func parseColumnTypeString(s string) ColumnType {
	switch s {
	case "Integer", "Int":
		return Integer()
	case "BigInteger", "BigInt":
		return BigInteger()
	case "String":
		return String(255)
	case "Text":
		return Text()
	case "Boolean", "Bool":
		return Boolean()
	case "Float":
		return Float()
	case "Double":
		return Double()
	case "Date":
		return Date()
	case "Time":
		return Time()
	case "DateTime":
		return DateTime()
	case "Timestamp":
		return Timestamp()
	case "Json", "JSON":
		return JSON()
	case "Binary":
		return Binary()
	}
	if m := stringLenRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return String(n)
		}
		return String(255)
	}
	return Custom(s)
}

func inferColumnType(goType string) (ColumnType, bool) {
	switch strings.TrimPrefix(goType, "*") {
	case "int", "int32", "uint32":
		return Integer(), true
	case "int64", "uint64":
		return BigInteger(), true
	case "string":
		return String(255), true
	case "bool":
		return Boolean(), true
	case "float32":
		return Float(), true
	case "float64":
		return Double(), true
	case "time.Time":
		return DateTime(), true
	case "[]byte":
		return Binary(), true
	case "json.RawMessage":
		return JSON(), true
	}
	return ColumnType{}, false
}
