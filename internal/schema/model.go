// Package schema models database schemas independently of any dialect and
// computes the migrations between them.
package schema

import (
	"time"

	"github.com/dbnexus/dbnexus/internal/config"
)

// ColumnKind enumerates the supported column data types.
type ColumnKind int

const (
	KindInteger ColumnKind = iota
	KindBigInteger
	KindString
	KindText
	KindBoolean
	KindFloat
	KindDouble
	KindDate
	KindTime
	KindDateTime
	KindTimestamp
	KindJSON
	KindBinary
	KindCustom
)

// ColumnType is a tagged column data type. Length is meaningful only for
// KindString (0 means unspecified) and Name only for KindCustom. The zero
// value is an unqualified Integer.
type ColumnType struct {
	Kind   ColumnKind
	Length int
	Name   string
}

func Integer() ColumnType           { return ColumnType{Kind: KindInteger} }
func BigInteger() ColumnType        { return ColumnType{Kind: KindBigInteger} }
func String(length int) ColumnType  { return ColumnType{Kind: KindString, Length: length} }
func Text() ColumnType              { return ColumnType{Kind: KindText} }
func Boolean() ColumnType           { return ColumnType{Kind: KindBoolean} }
func Float() ColumnType             { return ColumnType{Kind: KindFloat} }
func Double() ColumnType            { return ColumnType{Kind: KindDouble} }
func Date() ColumnType              { return ColumnType{Kind: KindDate} }
func Time() ColumnType              { return ColumnType{Kind: KindTime} }
func DateTime() ColumnType          { return ColumnType{Kind: KindDateTime} }
func Timestamp() ColumnType         { return ColumnType{Kind: KindTimestamp} }
func JSON() ColumnType              { return ColumnType{Kind: KindJSON} }
func Binary() ColumnType            { return ColumnType{Kind: KindBinary} }
func Custom(name string) ColumnType { return ColumnType{Kind: KindCustom, Name: name} }

// Column describes one table column.
type Column struct {
	Name          string
	Type          ColumnType
	Nullable      bool
	Default       *string
	AutoIncrement bool
	PrimaryKey    bool
}

// Index describes one table index.
type Index struct {
	Name         string
	TableName    string
	Columns      []string
	Unique       bool
	IsConstraint bool
}

// ForeignKeyAction is a referential action.
type ForeignKeyAction int

const (
	Cascade ForeignKeyAction = iota
	SetNull
	SetDefault
	Restrict
	NoAction
)

func (a ForeignKeyAction) String() string {
	switch a {
	case SetNull:
		return "SET NULL"
	case SetDefault:
		return "SET DEFAULT"
	case Restrict:
		return "RESTRICT"
	case NoAction:
		return "NO ACTION"
	default:
		return "CASCADE"
	}
}

// ForeignKey describes one foreign key constraint.
type ForeignKey struct {
	Name             string
	TableName        string
	ColumnName       string
	ReferencedTable  string
	ReferencedColumn string
	OnDelete         *ForeignKeyAction
	OnUpdate         *ForeignKeyAction
}

// Table describes one table.
type Table struct {
	Name              string
	Columns           []Column
	PrimaryKeyColumns []string
	Indexes           []Index
	ForeignKeys       []ForeignKey
}

// Column returns the named column, if present.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Schema is a dialect-tagged set of tables.
type Schema struct {
	DatabaseType config.DatabaseType
	Tables       []Table
}

// NewSchema creates an empty schema for a database type.
func NewSchema(dt config.DatabaseType) Schema {
	return Schema{DatabaseType: dt}
}

// AddTable appends a table.
func (s *Schema) AddTable(t Table) {
	s.Tables = append(s.Tables, t)
}

// Table returns the named table, if present.
func (s *Schema) Table(name string) (*Table, bool) {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i], true
		}
	}
	return nil, false
}

// HasTable reports whether the named table exists.
func (s *Schema) HasTable(name string) bool {
	_, ok := s.Table(name)
	return ok
}

// TableChange is one element of a migration: CreateTable, DropTable or
// AlterTable.
type TableChange interface {
	isTableChange()
}

// CreateTable adds a table.
type CreateTable struct {
	Table Table
}

// DropTable removes a table.
type DropTable struct {
	TableName string
}

// AlterTable modifies an existing table.
type AlterTable struct {
	TableName          string
	ColumnChanges      []ColumnChange
	AddedColumns       []Column
	RemovedColumns     []string
	AddedIndexes       []Index
	RemovedIndexes     []string
	AddedForeignKeys   []ForeignKey
	RemovedForeignKeys []string
}

func (CreateTable) isTableChange() {}
func (DropTable) isTableChange()   {}
func (AlterTable) isTableChange()  {}

// ColumnChangeKind enumerates per-column differences.
type ColumnChangeKind int

const (
	TypeChanged ColumnChangeKind = iota
	NullabilityChanged
	DefaultChanged
)

// ColumnChange records one changed attribute of a name-matched column pair.
type ColumnChange struct {
	Kind       ColumnChangeKind
	ColumnName string

	OldType ColumnType
	NewType ColumnType

	OldNullable bool
	NewNullable bool

	OldDefault *string
	NewDefault *string
}

// Migration is an ordered set of table changes with a version identity.
type Migration struct {
	Version      uint32
	Description  string
	TableChanges []TableChange
	Timestamp    time.Time
}

// NewMigration creates an empty migration.
func NewMigration(version uint32, description string) Migration {
	return Migration{
		Version:     version,
		Description: description,
		Timestamp:   time.Now().UTC(),
	}
}

// AddTableChange appends a change.
func (m *Migration) AddTableChange(c TableChange) {
	m.TableChanges = append(m.TableChanges, c)
}
