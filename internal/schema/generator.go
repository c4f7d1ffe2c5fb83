package schema

import (
	"fmt"
	"strings"

	"github.com/dbnexus/dbnexus/internal/config"
)

// Generator renders schema changes into dialect-specific SQL.
type Generator struct {
	DBType config.DatabaseType
}

// NewGenerator creates a generator for the given database type.
func NewGenerator(dt config.DatabaseType) *Generator {
	return &Generator{DBType: dt}
}

// ColumnTypeSQL renders a column type for the generator's dialect.
func (g *Generator) ColumnTypeSQL(ct ColumnType) string {
	switch ct.Kind {
	case KindInteger:
		return "INTEGER"
	case KindBigInteger:
		return "BIGINT"
	case KindString:
		if g.DBType == config.SQLite {
			return "TEXT"
		}
		length := ct.Length
		if length == 0 {
			length = 255
		}
		return fmt.Sprintf("VARCHAR(%d)", length)
	case KindText:
		return "TEXT"
	case KindBoolean:
		if g.DBType == config.SQLite {
			return "INTEGER"
		}
		return "BOOLEAN"
	case KindFloat:
		return "FLOAT"
	case KindDouble:
		return "DOUBLE PRECISION"
	case KindDate:
		return "DATE"
	case KindTime:
		return "TIME"
	case KindDateTime:
		switch g.DBType {
		case config.MySQL:
			return "DATETIME"
		case config.Postgres:
			return "TIMESTAMP"
		default:
			return "TEXT"
		}
	case KindTimestamp:
		return "TIMESTAMP"
	case KindJSON:
		switch g.DBType {
		case config.MySQL:
			return "JSON"
		case config.Postgres:
			return "JSONB"
		default:
			return "TEXT"
		}
	case KindBinary:
		return "BLOB"
	case KindCustom:
		return ct.Name
	}
	return "TEXT"
}

// columnDefinition renders one column line of a CREATE TABLE statement.
// The auto-increment flag on a primary column is dialect-specific; Postgres
// ignores it.
func (g *Generator) columnDefinition(col Column) string {
	def := fmt.Sprintf("    %s %s", col.Name, g.ColumnTypeSQL(col.Type))

	if col.AutoIncrement && col.PrimaryKey {
		switch g.DBType {
		case config.MySQL:
			def += " AUTO_INCREMENT"
		case config.SQLite:
			def += " PRIMARY KEY AUTOINCREMENT"
		}
	}

	if !col.Nullable {
		def += " NOT NULL"
	}

	if col.Default != nil {
		def += " DEFAULT " + *col.Default
	}

	return def
}

// CreateTableSQL renders a full CREATE TABLE statement followed by the
// table's index and foreign key statements.
func (g *Generator) CreateTableSQL(t Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", t.Name)

	defs := make([]string, 0, len(t.Columns)+1)
	for _, col := range t.Columns {
		defs = append(defs, g.columnDefinition(col))
	}

	if len(t.PrimaryKeyColumns) > 0 {
		defs = append(defs, fmt.Sprintf("    PRIMARY KEY (%s)", strings.Join(t.PrimaryKeyColumns, ", ")))
	}

	b.WriteString(strings.Join(defs, ",\n"))
	b.WriteString("\n);")

	for _, idx := range t.Indexes {
		if idx.IsConstraint {
			continue
		}
		b.WriteString("\n\n")
		b.WriteString(g.CreateIndexSQL(idx))
	}

	for _, fk := range t.ForeignKeys {
		b.WriteString("\n\n")
		b.WriteString(g.AddForeignKeySQL(fk))
	}

	return b.String()
}

// DropTableSQL renders a DROP TABLE statement.
func (g *Generator) DropTableSQL(tableName string) string {
	return fmt.Sprintf("DROP TABLE %s;", tableName)
}

// AddColumnSQL renders an ALTER TABLE ... ADD statement.
func (g *Generator) AddColumnSQL(tableName string, col Column) string {
	def := strings.TrimPrefix(g.columnDefinition(col), "    ")
	return fmt.Sprintf("ALTER TABLE %s ADD %s;", tableName, def)
}

// DropColumnSQL renders an ALTER TABLE ... DROP COLUMN statement. For SQLite
// the statement is preceded by a comment noting that older versions need a
// table rebuild instead.
func (g *Generator) DropColumnSQL(tableName, columnName string) string {
	stmt := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s;", tableName, columnName)
	if g.DBType == config.SQLite {
		return fmt.Sprintf("-- SQLite before 3.35 cannot drop columns directly; rebuild table %s if needed\n%s",
			tableName, stmt)
	}
	return stmt
}

// CreateIndexSQL renders a CREATE [UNIQUE] INDEX statement.
func (g *Generator) CreateIndexSQL(idx Index) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		unique, idx.Name, idx.TableName, strings.Join(idx.Columns, ", "))
}

// DropIndexSQL renders a DROP INDEX statement.
func (g *Generator) DropIndexSQL(indexName string) string {
	return fmt.Sprintf("DROP INDEX %s;", indexName)
}

// AddForeignKeySQL renders an ALTER TABLE ... ADD CONSTRAINT ... FOREIGN KEY
// statement with optional ON DELETE / ON UPDATE clauses.
func (g *Generator) AddForeignKeySQL(fk ForeignKey) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s(%s)",
		fk.TableName, fk.Name, fk.ColumnName, fk.ReferencedTable, fk.ReferencedColumn)

	if fk.OnDelete != nil {
		fmt.Fprintf(&b, " ON DELETE %s", fk.OnDelete)
	}
	if fk.OnUpdate != nil {
		fmt.Fprintf(&b, " ON UPDATE %s", fk.OnUpdate)
	}

	b.WriteString(";")
	return b.String()
}

// DropForeignKeySQL renders an ALTER TABLE ... DROP CONSTRAINT statement.
func (g *Generator) DropForeignKeySQL(tableName, fkName string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s;", tableName, fkName)
}

// MigrationSQL renders a whole migration. Each table change is preceded by a
// comment naming it; chunks are separated by blank lines and trailing
// whitespace is trimmed. The ColumnChanges of an AlterTable (type,
// nullability and default changes) are not rendered.
func (g *Generator) MigrationSQL(m Migration) string {
	var b strings.Builder

	for _, change := range m.TableChanges {
		switch c := change.(type) {
		case CreateTable:
			fmt.Fprintf(&b, "-- Create table: %s\n", c.Table.Name)
			b.WriteString(g.CreateTableSQL(c.Table))
			b.WriteString("\n\n")

		case DropTable:
			fmt.Fprintf(&b, "-- Drop table: %s\n", c.TableName)
			b.WriteString(g.DropTableSQL(c.TableName))
			b.WriteString("\n\n")

		case AlterTable:
			fmt.Fprintf(&b, "-- Alter table: %s\n", c.TableName)

			for _, col := range c.AddedColumns {
				fmt.Fprintf(&b, "-- Add column: %s\n", col.Name)
				b.WriteString(g.AddColumnSQL(c.TableName, col))
				b.WriteString("\n")
			}

			for _, name := range c.RemovedColumns {
				fmt.Fprintf(&b, "-- Drop column: %s\n", name)
				b.WriteString(g.DropColumnSQL(c.TableName, name))
				b.WriteString("\n")
			}

			for _, idx := range c.AddedIndexes {
				fmt.Fprintf(&b, "-- Add index: %s\n", idx.Name)
				b.WriteString(g.CreateIndexSQL(idx))
				b.WriteString("\n")
			}

			for _, name := range c.RemovedIndexes {
				fmt.Fprintf(&b, "-- Drop index: %s\n", name)
				b.WriteString(g.DropIndexSQL(name))
				b.WriteString("\n")
			}

			for _, fk := range c.AddedForeignKeys {
				fmt.Fprintf(&b, "-- Add foreign key: %s\n", fk.Name)
				b.WriteString(g.AddForeignKeySQL(fk))
				b.WriteString("\n")
			}

			for _, name := range c.RemovedForeignKeys {
				fmt.Fprintf(&b, "-- Drop foreign key: %s\n", name)
				b.WriteString(g.DropForeignKeySQL(c.TableName, name))
				b.WriteString("\n")
			}

			b.WriteString("\n")
		}
	}

	return strings.TrimRight(b.String(), " \n\t")
}
