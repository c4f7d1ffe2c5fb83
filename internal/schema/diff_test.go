package schema

import (
	"testing"

	"github.com/dbnexus/dbnexus/internal/config"
)

func usersTable() Table {
	return Table{
		Name: "users",
		Columns: []Column{
			{Name: "id", Type: Integer(), PrimaryKey: true},
		},
		PrimaryKeyColumns: []string{"id"},
	}
}

func TestDiffIdenticalSchemas(t *testing.T) {
	s := NewSchema(config.Postgres)
	s.AddTable(usersTable())

	if migrations := Diff(s, s); len(migrations) != 0 {
		t.Errorf("diff of identical schemas = %d migrations, want 0", len(migrations))
	}
}

func TestDiffFromEmpty(t *testing.T) {
	old := NewSchema(config.Postgres)

	new := NewSchema(config.Postgres)
	new.AddTable(usersTable())
	new.AddTable(Table{Name: "orders", Columns: []Column{{Name: "id", Type: Integer()}}})

	migrations := Diff(old, new)
	if len(migrations) != 1 {
		t.Fatalf("got %d migrations, want 1", len(migrations))
	}

	changes := migrations[0].TableChanges
	if len(changes) != 2 {
		t.Fatalf("got %d changes, want 2 creates", len(changes))
	}
	for i, want := range []string{"users", "orders"} {
		ct, ok := changes[i].(CreateTable)
		if !ok {
			t.Fatalf("change %d is %T, want CreateTable", i, changes[i])
		}
		if ct.Table.Name != want {
			t.Errorf("change %d creates %q, want %q", i, ct.Table.Name, want)
		}
	}
}

func TestDiffDropTable(t *testing.T) {
	old := NewSchema(config.SQLite)
	old.AddTable(usersTable())

	migrations := Diff(old, NewSchema(config.SQLite))
	if len(migrations) != 1 || len(migrations[0].TableChanges) != 1 {
		t.Fatal("expected one migration with one change")
	}
	dt, ok := migrations[0].TableChanges[0].(DropTable)
	if !ok || dt.TableName != "users" {
		t.Errorf("change = %+v, want DropTable users", migrations[0].TableChanges[0])
	}
}

func TestDiffAddedColumn(t *testing.T) {
	old := NewSchema(config.Postgres)
	old.AddTable(usersTable())

	newTable := usersTable()
	newTable.Columns = append(newTable.Columns, Column{
		Name: "email", Type: String(255), Nullable: false,
	})
	new := NewSchema(config.Postgres)
	new.AddTable(newTable)

	migrations := Diff(old, new)
	if len(migrations) != 1 {
		t.Fatalf("got %d migrations, want 1", len(migrations))
	}

	alter, ok := migrations[0].TableChanges[0].(AlterTable)
	if !ok {
		t.Fatalf("change is %T, want AlterTable", migrations[0].TableChanges[0])
	}
	if alter.TableName != "users" {
		t.Errorf("table = %q", alter.TableName)
	}
	if len(alter.AddedColumns) != 1 {
		t.Fatalf("added = %d, want 1", len(alter.AddedColumns))
	}
	col := alter.AddedColumns[0]
	if col.Name != "email" || col.Type != String(255) || col.Nullable {
		t.Errorf("added column = %+v", col)
	}

	if len(alter.RemovedColumns) != 0 || len(alter.ColumnChanges) != 0 ||
		len(alter.AddedIndexes) != 0 || len(alter.RemovedIndexes) != 0 ||
		len(alter.AddedForeignKeys) != 0 || len(alter.RemovedForeignKeys) != 0 {
		t.Errorf("unexpected extra changes: %+v", alter)
	}
}

func TestDiffColumnAttributeChanges(t *testing.T) {
	oldDefault := "0"
	old := NewSchema(config.MySQL)
	old.AddTable(Table{
		Name: "items",
		Columns: []Column{
			{Name: "qty", Type: Integer(), Nullable: true, Default: &oldDefault},
		},
	})

	newDefault := "1"
	new := NewSchema(config.MySQL)
	new.AddTable(Table{
		Name: "items",
		Columns: []Column{
			{Name: "qty", Type: BigInteger(), Nullable: false, Default: &newDefault},
		},
	})

	migrations := Diff(old, new)
	if len(migrations) != 1 {
		t.Fatal("expected one migration")
	}
	alter := migrations[0].TableChanges[0].(AlterTable)
	if len(alter.ColumnChanges) != 3 {
		t.Fatalf("got %d column changes, want type+nullability+default", len(alter.ColumnChanges))
	}

	kinds := map[ColumnChangeKind]bool{}
	for _, cc := range alter.ColumnChanges {
		kinds[cc.Kind] = true
		if cc.ColumnName != "qty" {
			t.Errorf("column name = %q", cc.ColumnName)
		}
	}
	for _, k := range []ColumnChangeKind{TypeChanged, NullabilityChanged, DefaultChanged} {
		if !kinds[k] {
			t.Errorf("missing change kind %v", k)
		}
	}
}

func TestDiffIndexesAndForeignKeys(t *testing.T) {
	old := NewSchema(config.Postgres)
	old.AddTable(Table{
		Name:    "orders",
		Columns: []Column{{Name: "id", Type: Integer()}},
		Indexes: []Index{{Name: "idx_old", TableName: "orders", Columns: []string{"id"}}},
	})

	new := NewSchema(config.Postgres)
	new.AddTable(Table{
		Name:    "orders",
		Columns: []Column{{Name: "id", Type: Integer()}},
		Indexes: []Index{{Name: "idx_new", TableName: "orders", Columns: []string{"id"}, Unique: true}},
		ForeignKeys: []ForeignKey{{
			Name: "fk_user", TableName: "orders", ColumnName: "user_id",
			ReferencedTable: "users", ReferencedColumn: "id",
		}},
	})

	alter := Diff(old, new)[0].TableChanges[0].(AlterTable)
	if len(alter.AddedIndexes) != 1 || alter.AddedIndexes[0].Name != "idx_new" {
		t.Errorf("added indexes = %+v", alter.AddedIndexes)
	}
	if len(alter.RemovedIndexes) != 1 || alter.RemovedIndexes[0] != "idx_old" {
		t.Errorf("removed indexes = %+v", alter.RemovedIndexes)
	}
	if len(alter.AddedForeignKeys) != 1 || alter.AddedForeignKeys[0].Name != "fk_user" {
		t.Errorf("added fks = %+v", alter.AddedForeignKeys)
	}
}
