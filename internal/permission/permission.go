// Package permission implements role → table → operation access control
// backed by a YAML policy document and a bounded LRU cache.
package permission

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Operation is one of the four gated DML statement kinds.
type Operation int

const (
	Select Operation = iota
	Insert
	Update
	Delete
)

func (op Operation) String() string {
	switch op {
	case Select:
		return "SELECT"
	case Insert:
		return "INSERT"
	case Update:
		return "UPDATE"
	case Delete:
		return "DELETE"
	}
	return fmt.Sprintf("Operation(%d)", int(op))
}

// IsWrite reports whether the operation mutates data.
func (op Operation) IsWrite() bool {
	return op == Insert || op == Update || op == Delete
}

// ParseOperation parses the canonical uppercase form.
func ParseOperation(s string) (Operation, error) {
	switch s {
	case "SELECT":
		return Select, nil
	case "INSERT":
		return Insert, nil
	case "UPDATE":
		return Update, nil
	case "DELETE":
		return Delete, nil
	}
	return 0, fmt.Errorf("unknown operation %q", s)
}

// UnmarshalYAML decodes the canonical string form.
func (op *Operation) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseOperation(s)
	if err != nil {
		return err
	}
	*op = parsed
	return nil
}

// MarshalYAML encodes the canonical string form.
func (op Operation) MarshalYAML() (any, error) {
	return op.String(), nil
}

// TablePermission grants a set of operations on one table. The name "*"
// matches every table.
type TablePermission struct {
	Name       string      `yaml:"name"`
	Operations []Operation `yaml:"operations"`
}

// RolePolicy is the ordered list of table permissions granted to a role.
type RolePolicy struct {
	Tables []TablePermission `yaml:"tables"`
}

// Allows reports whether the policy grants the operation on the table.
func (p RolePolicy) Allows(table string, op Operation) bool {
	for _, tp := range p.Tables {
		if tp.Name != "*" && tp.Name != table {
			continue
		}
		for _, granted := range tp.Operations {
			if granted == op {
				return true
			}
		}
	}
	return false
}

// Config maps role names to their policies.
type Config struct {
	Roles map[string]RolePolicy `yaml:"roles"`
}

// FromYAML parses a permission policy document.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing permission config: %w", err)
	}
	return &cfg, nil
}

// RolePolicy returns the policy for a role, if declared.
func (c *Config) RolePolicy(role string) (RolePolicy, bool) {
	p, ok := c.Roles[role]
	return p, ok
}

// CheckAccess evaluates a role/table/operation triple directly against the
// config, bypassing any cache. Unknown roles are denied.
func (c *Config) CheckAccess(role, table string, op Operation) bool {
	p, ok := c.Roles[role]
	if !ok {
		return false
	}
	return p.Allows(table, op)
}

// Validate returns every violation found in the config: no roles, a role
// without table permissions, a permission with an empty name or no operations.
func (c *Config) Validate() []error {
	var errs []error

	if len(c.Roles) == 0 {
		errs = append(errs, fmt.Errorf("no roles defined in permission config"))
	}

	for role, policy := range c.Roles {
		if len(policy.Tables) == 0 {
			errs = append(errs, fmt.Errorf("role %q has no table permissions defined", role))
		}
		for _, tp := range policy.Tables {
			if tp.Name == "" {
				errs = append(errs, fmt.Errorf("role %q has a table permission with empty name", role))
			}
			if len(tp.Operations) == 0 {
				errs = append(errs, fmt.Errorf("table %q in role %q has no operations defined", tp.Name, role))
			}
		}
	}

	return errs
}
