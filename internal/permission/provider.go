package permission

import (
	"fmt"
	"os"
	"sync"
)

// Provider is a pluggable source of permission decisions. The YAML file
// provider below is the default; alternative backends (a directory service,
// a policy engine) implement the same capability set.
type Provider interface {
	// Name identifies the provider for logs and diagnostics.
	Name() string

	// CheckPermission decides a role/table/operation triple.
	CheckPermission(role, table string, op Operation) bool

	// AllowedResources lists the table names a role may touch with the
	// given operation. The wildcard entry "*" is returned as-is.
	AllowedResources(role string, op Operation) []string

	// Refresh re-reads the backing store.
	Refresh() error
}

// FileProvider serves permission decisions from a YAML policy document on
// disk. Reads take a shared read lock on a snapshot that Refresh swaps.
type FileProvider struct {
	path string

	mu  sync.RWMutex
	cfg *Config
}

// NewFileProvider loads the document at path. The initial load must succeed;
// later Refresh failures keep the previous snapshot.
func NewFileProvider(path string) (*FileProvider, error) {
	p := &FileProvider{path: path}
	if err := p.Refresh(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *FileProvider) Name() string {
	return "yaml-file"
}

// Config returns the current policy snapshot.
func (p *FileProvider) Config() *Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

func (p *FileProvider) CheckPermission(role, table string, op Operation) bool {
	return p.Config().CheckAccess(role, table, op)
}

func (p *FileProvider) AllowedResources(role string, op Operation) []string {
	policy, ok := p.Config().RolePolicy(role)
	if !ok {
		return nil
	}

	var tables []string
	for _, tp := range policy.Tables {
		for _, granted := range tp.Operations {
			if granted == op {
				tables = append(tables, tp.Name)
				break
			}
		}
	}
	return tables
}

func (p *FileProvider) Refresh() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("reading permission config: %w", err)
	}
	cfg, err := FromYAML(data)
	if err != nil {
		return err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid permission config: %v", errs[0])
	}

	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
	return nil
}
