package exec

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrModuleNotFound is returned when a table import names a module that is not registered with the store.
var ErrModuleNotFound = errors.New("module not found")

// ErrDuplicateInstance is returned when an instance is registered under a name that is already in use.
var ErrDuplicateInstance = errors.New("duplicate instance")

// ErrTableType is returned when an exported table does not satisfy the type of the import it is resolved for.
var ErrTableType = errors.New("table type mismatch")

// An ExportNotFoundError is returned if an export could not be found.
type ExportNotFoundError struct {
	ModuleName string
	FieldName  string
}

func (e *ExportNotFoundError) Error() string {
	return fmt.Sprintf("wasm: couldn't find export with name %s in module %s", e.FieldName, e.ModuleName)
}

// A Store holds instantiated modules and resolves table imports against their exports.
type Store struct {
	mu        sync.RWMutex
	instances map[string]*Instance
}

// NewStore creates a new, empty store.
func NewStore() *Store {
	return &Store{instances: map[string]*Instance{}}
}

// RegisterInstance registers an instance with the store. The store takes ownership of the instance only if
// registration succeeds; registering a second instance under the same name returns ErrDuplicateInstance.
func (s *Store) RegisterInstance(inst *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[inst.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateInstance, inst.Name())
	}
	s.instances[inst.Name()] = inst
	return nil
}

// Instance returns the instance registered under the given name.
func (s *Store) Instance(name string) (*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	return inst, nil
}

// InstanceNames returns the names of the registered instances in sorted order.
func (s *Store) InstanceNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.instances))
	for name := range s.instances {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveTable resolves an import of the named table with the given type. The exported table must have the same
// element kind, be at least as large as the import's minimum, and, if the import declares a maximum, declare a
// maximum no larger than it.
func (s *Store) ResolveTable(moduleName, tableName string, typ TableType) (*Table, error) {
	inst, err := s.Instance(moduleName)
	if err != nil {
		return nil, err
	}
	table, err := inst.GetTable(tableName)
	if err != nil {
		return nil, err
	}
	if table.Type().Kind != typ.Kind || !limitsMatch(table.Size(), table.Type().Max, typ) {
		return nil, fmt.Errorf("%w: import %s.%s (%v), export (%v)", ErrTableType, moduleName, tableName, typ, table.Type())
	}
	return table, nil
}

func limitsMatch(size uint32, max *uint32, expected TableType) bool {
	if size < expected.Min {
		return false
	}
	expectedMax, ok := expected.Maximum()
	return !ok || (max != nil && *max <= expectedMax)
}

// Close closes every registered instance.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for name, inst := range s.instances {
		if err := inst.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.instances, name)
	}
	return firstErr
}
