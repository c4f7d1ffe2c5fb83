package permission

import (
	"strings"
	"testing"
)

func TestOperationString(t *testing.T) {
	cases := map[Operation]string{
		Select: "SELECT",
		Insert: "INSERT",
		Update: "UPDATE",
		Delete: "DELETE",
	}
	for op, want := range cases {
		if op.String() != want {
			t.Errorf("%v.String() = %q, want %q", int(op), op.String(), want)
		}
		parsed, err := ParseOperation(want)
		if err != nil {
			t.Errorf("ParseOperation(%q): %v", want, err)
		}
		if parsed != op {
			t.Errorf("ParseOperation(%q) = %v", want, parsed)
		}
	}

	if _, err := ParseOperation("TRUNCATE"); err == nil {
		t.Error("expected error for unknown operation")
	}
}

func TestOperationIsWrite(t *testing.T) {
	if Select.IsWrite() {
		t.Error("SELECT should not be a write")
	}
	for _, op := range []Operation{Insert, Update, Delete} {
		if !op.IsWrite() {
			t.Errorf("%s should be a write", op)
		}
	}
}

func TestRolePolicyAllows(t *testing.T) {
	policy := RolePolicy{
		Tables: []TablePermission{
			{Name: "users", Operations: []Operation{Select, Insert}},
			{Name: "*", Operations: []Operation{Select}},
		},
	}

	// exact table match
	if !policy.Allows("users", Select) || !policy.Allows("users", Insert) {
		t.Error("users SELECT/INSERT should be allowed")
	}
	if policy.Allows("users", Delete) {
		t.Error("users DELETE should be denied")
	}

	// wildcard match
	if !policy.Allows("orders", Select) {
		t.Error("wildcard SELECT should be allowed")
	}
	if policy.Allows("orders", Update) {
		t.Error("wildcard UPDATE should be denied")
	}
}

const policyYAML = `
roles:
  admin:
    tables:
      - name: users
        operations: [SELECT, INSERT, UPDATE, DELETE]
  reader:
    tables:
      - name: users
        operations:
          - SELECT
`

func TestFromYAML(t *testing.T) {
	cfg, err := FromYAML([]byte(policyYAML))
	if err != nil {
		t.Fatalf("FromYAML: %v", err)
	}

	admin, ok := cfg.RolePolicy("admin")
	if !ok {
		t.Fatal("admin role missing")
	}
	if !admin.Allows("users", Delete) {
		t.Error("admin should be allowed users DELETE")
	}

	reader, ok := cfg.RolePolicy("reader")
	if !ok {
		t.Fatal("reader role missing")
	}
	if !reader.Allows("users", Select) || reader.Allows("users", Insert) {
		t.Error("reader should be SELECT-only")
	}

	if _, ok := cfg.RolePolicy("guest"); ok {
		t.Error("guest role should not exist")
	}
}

func TestCheckAccess(t *testing.T) {
	cfg, err := FromYAML([]byte(policyYAML))
	if err != nil {
		t.Fatal(err)
	}

	if !cfg.CheckAccess("admin", "users", Select) {
		t.Error("admin users SELECT should pass")
	}
	if cfg.CheckAccess("reader", "users", Delete) {
		t.Error("reader users DELETE should fail")
	}
	if cfg.CheckAccess("guest", "users", Select) {
		t.Error("unknown role should fail closed")
	}
}

func TestValidateValid(t *testing.T) {
	cfg, err := FromYAML([]byte(policyYAML))
	if err != nil {
		t.Fatal(err)
	}
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("valid config produced violations: %v", errs)
	}
}

func TestValidateEmptyRoles(t *testing.T) {
	cfg := &Config{}
	errs := cfg.Validate()
	if len(errs) == 0 {
		t.Fatal("expected violation for empty roles")
	}
	if !strings.Contains(errs[0].Error(), "no roles defined") {
		t.Errorf("unexpected error: %v", errs[0])
	}
}

func TestValidateEmptyTables(t *testing.T) {
	cfg := &Config{Roles: map[string]RolePolicy{"admin": {}}}
	errs := cfg.Validate()
	if len(errs) == 0 {
		t.Fatal("expected violation for role without tables")
	}
	if !strings.Contains(errs[0].Error(), "no table permissions") {
		t.Errorf("unexpected error: %v", errs[0])
	}
}

func TestValidateEmptyOperations(t *testing.T) {
	cfg := &Config{Roles: map[string]RolePolicy{
		"admin": {Tables: []TablePermission{{Name: "users"}}},
	}}
	errs := cfg.Validate()
	found := false
	for _, err := range errs {
		if strings.Contains(err.Error(), "no operations defined") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected violation for empty operations, got %v", errs)
	}
}

func TestOperationYAMLRejectsUnknown(t *testing.T) {
	_, err := FromYAML([]byte(`
roles:
  admin:
    tables:
      - name: users
        operations: [DROP]
`))
	if err == nil {
		t.Error("expected YAML error for unknown operation")
	}
}
