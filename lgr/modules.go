package lgr

import (
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/abyssdigger/toolbox/internal/diag"
)

// moduleTable is an immutable snapshot of the registered modules. A new
// table is published on every mutation so readers never lock.
type moduleTable struct {
	bits  map[string]uint32
	names map[uint32]string
}

// ModuleRegistry assigns a unique bit to every module name. Bits are handed
// out in registration order from 1<<0 up to 1<<30 and are never reused
// (except after Clear).
type ModuleRegistry struct {
	mtx   sync.Mutex
	table atomic.Pointer[moduleTable]
	diag  *zap.Logger
}

func NewModuleRegistry(diagLogger *zap.Logger) *ModuleRegistry {
	r := &ModuleRegistry{diag: diag.Or(diagLogger)}
	r.table.Store(&moduleTable{bits: map[string]uint32{}, names: map[uint32]string{}})
	return r
}

// fits reports whether all names could be registered: none is blank and the
// new ones fit into the free bits.
func (r *ModuleRegistry) fits(names []string) error {
	t := r.table.Load()
	fresh := map[string]struct{}{}
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			return ErrBlankModuleName
		}
		if _, ok := t.bits[name]; !ok {
			fresh[name] = struct{}{}
		}
	}
	if len(t.bits)+len(fresh) > MAX_MODULES {
		return ErrModulesExhausted
	}
	return nil
}

// Register returns the bit of the module, registering it first if needed.
// A blank name or a full registry returns bit 0 with an error.
func (r *ModuleRegistry) Register(name string) (uint32, error) {
	if strings.TrimSpace(name) == "" {
		r.diag.Error("module registration rejected", zap.String("module", name), zap.Error(ErrBlankModuleName))
		return 0, ErrBlankModuleName
	}
	if bit, ok := r.Bit(name); ok {
		return bit, nil
	}
	r.mtx.Lock()
	defer r.mtx.Unlock()
	old := r.table.Load()
	if bit, ok := old.bits[name]; ok {
		return bit, nil
	}
	if len(old.bits) >= MAX_MODULES {
		r.diag.Error("module registration rejected", zap.String("module", name), zap.Error(ErrModulesExhausted))
		return 0, ErrModulesExhausted
	}
	bit := uint32(1) << len(old.bits)
	next := &moduleTable{
		bits:  make(map[string]uint32, len(old.bits)+1),
		names: make(map[uint32]string, len(old.names)+1),
	}
	for k, v := range old.bits {
		next.bits[k] = v
		next.names[v] = k
	}
	next.bits[name] = bit
	next.names[bit] = name
	r.table.Store(next)
	return bit, nil
}

func (r *ModuleRegistry) Bit(name string) (uint32, bool) {
	bit, ok := r.table.Load().bits[name]
	return bit, ok
}

func (r *ModuleRegistry) Name(bit uint32) (string, bool) {
	name, ok := r.table.Load().names[bit]
	return name, ok
}

func (r *ModuleRegistry) IsRegistered(name string) bool {
	_, ok := r.Bit(name)
	return ok
}

func (r *ModuleRegistry) Count() int {
	return len(r.table.Load().bits)
}

// Names returns the registered module names sorted alphabetically.
func (r *ModuleRegistry) Names() []string {
	t := r.table.Load()
	names := make([]string, 0, len(t.bits))
	for name := range t.bits {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Clear forgets every module so bits can be handed out again. Intended for
// tests and full reconfiguration only.
func (r *ModuleRegistry) Clear() {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.table.Store(&moduleTable{bits: map[string]uint32{}, names: map[uint32]string{}})
}
