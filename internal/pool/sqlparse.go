package pool

import (
	"regexp"
	"strings"

	"github.com/dbnexus/dbnexus/internal/permission"
)

// The gate recognises the four common DML leading forms and captures the
// first identifier only. Multi-table statements, CTEs and nested subqueries
// are outside its scope; callers with those use ExecuteWithOperation.
var (
	selectTableRe = regexp.MustCompile(`(?i)\bFROM\s+([A-Za-z_][A-Za-z0-9_]*)`)
	insertTableRe = regexp.MustCompile(`(?i)\bINTO\s+([A-Za-z_][A-Za-z0-9_]*)`)
	updateTableRe = regexp.MustCompile(`(?i)^\s*UPDATE\s+([A-Za-z_][A-Za-z0-9_]*)`)
)

// ParseSQLOperation extracts the (table, operation) pair a statement should
// be gated on. ok is false when the statement does not match one of the four
// DML shapes.
func ParseSQLOperation(query string) (table string, op permission.Operation, ok bool) {
	leading := strings.ToUpper(strings.TrimSpace(query))

	var re *regexp.Regexp
	switch {
	case strings.HasPrefix(leading, "SELECT"):
		re, op = selectTableRe, permission.Select
	case strings.HasPrefix(leading, "INSERT"):
		re, op = insertTableRe, permission.Insert
	case strings.HasPrefix(leading, "UPDATE"):
		re, op = updateTableRe, permission.Update
	case strings.HasPrefix(leading, "DELETE"):
		re, op = selectTableRe, permission.Delete
	default:
		return "", 0, false
	}

	m := re.FindStringSubmatch(query)
	if m == nil {
		return "", 0, false
	}
	return m[1], op, true
}
