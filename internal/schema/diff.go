package schema

// Diff computes the migrations that turn old into new. At most one migration
// is produced; when the schemas are identical the result is empty.
//
// Ordering is deterministic: additions and column changes follow the new
// schema's order, removals follow the old schema's order.
func Diff(old, new Schema) []Migration {
	migration := NewMigration(1, "Schema changes")

	for _, newTable := range new.Tables {
		if !old.HasTable(newTable.Name) {
			migration.AddTableChange(CreateTable{Table: newTable})
		}
	}

	for _, oldTable := range old.Tables {
		if !new.HasTable(oldTable.Name) {
			migration.AddTableChange(DropTable{TableName: oldTable.Name})
		}
	}

	for i := range new.Tables {
		newTable := &new.Tables[i]
		oldTable, ok := old.Table(newTable.Name)
		if !ok {
			continue
		}

		alter := AlterTable{
			TableName:          newTable.Name,
			ColumnChanges:      diffColumns(oldTable, newTable),
			AddedColumns:       addedColumns(oldTable, newTable),
			RemovedColumns:     removedColumns(oldTable, newTable),
			AddedIndexes:       addedIndexes(oldTable, newTable),
			RemovedIndexes:     removedIndexes(oldTable, newTable),
			AddedForeignKeys:   addedForeignKeys(oldTable, newTable),
			RemovedForeignKeys: removedForeignKeys(oldTable, newTable),
		}

		if len(alter.ColumnChanges) > 0 || len(alter.AddedColumns) > 0 ||
			len(alter.RemovedColumns) > 0 || len(alter.AddedIndexes) > 0 ||
			len(alter.RemovedIndexes) > 0 || len(alter.AddedForeignKeys) > 0 ||
			len(alter.RemovedForeignKeys) > 0 {
			migration.AddTableChange(alter)
		}
	}

	if len(migration.TableChanges) == 0 {
		return nil
	}
	return []Migration{migration}
}

// diffColumns emits one change per differing attribute among type,
// nullability and default for every name-matched column pair.
func diffColumns(oldTable, newTable *Table) []ColumnChange {
	var changes []ColumnChange

	for _, newCol := range newTable.Columns {
		oldCol, ok := oldTable.Column(newCol.Name)
		if !ok {
			continue
		}

		if oldCol.Type != newCol.Type {
			changes = append(changes, ColumnChange{
				Kind:       TypeChanged,
				ColumnName: newCol.Name,
				OldType:    oldCol.Type,
				NewType:    newCol.Type,
			})
		}

		if oldCol.Nullable != newCol.Nullable {
			changes = append(changes, ColumnChange{
				Kind:        NullabilityChanged,
				ColumnName:  newCol.Name,
				OldNullable: oldCol.Nullable,
				NewNullable: newCol.Nullable,
			})
		}

		if !equalDefaults(oldCol.Default, newCol.Default) {
			changes = append(changes, ColumnChange{
				Kind:       DefaultChanged,
				ColumnName: newCol.Name,
				OldDefault: oldCol.Default,
				NewDefault: newCol.Default,
			})
		}
	}

	return changes
}

func equalDefaults(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func addedColumns(oldTable, newTable *Table) []Column {
	var added []Column
	for _, c := range newTable.Columns {
		if _, ok := oldTable.Column(c.Name); !ok {
			added = append(added, c)
		}
	}
	return added
}

func removedColumns(oldTable, newTable *Table) []string {
	var removed []string
	for _, c := range oldTable.Columns {
		if _, ok := newTable.Column(c.Name); !ok {
			removed = append(removed, c.Name)
		}
	}
	return removed
}

func addedIndexes(oldTable, newTable *Table) []Index {
	var added []Index
	for _, idx := range newTable.Indexes {
		if !hasIndex(oldTable, idx.Name) {
			added = append(added, idx)
		}
	}
	return added
}

func removedIndexes(oldTable, newTable *Table) []string {
	var removed []string
	for _, idx := range oldTable.Indexes {
		if !hasIndex(newTable, idx.Name) {
			removed = append(removed, idx.Name)
		}
	}
	return removed
}

func hasIndex(t *Table, name string) bool {
	for _, idx := range t.Indexes {
		if idx.Name == name {
			return true
		}
	}
	return false
}

func addedForeignKeys(oldTable, newTable *Table) []ForeignKey {
	var added []ForeignKey
	for _, fk := range newTable.ForeignKeys {
		if !hasForeignKey(oldTable, fk.Name) {
			added = append(added, fk)
		}
	}
	return added
}

func removedForeignKeys(oldTable, newTable *Table) []string {
	var removed []string
	for _, fk := range oldTable.ForeignKeys {
		if !hasForeignKey(newTable, fk.Name) {
			removed = append(removed, fk.Name)
		}
	}
	return removed
}

func hasForeignKey(t *Table, name string) bool {
	for _, fk := range t.ForeignKeys {
		if fk.Name == name {
			return true
		}
	}
	return false
}
