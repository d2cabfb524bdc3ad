package lgr

import (
	"errors"
	"slices"
	"strconv"
	"strings"
	"sync"
)

const DEFAULT_GROUP_VERSION = "1.0.0"

// Group bundles log categories (modules) of one application component so
// they can be switched on and off together and tagged with the group name.
type Group struct {
	Name        string
	PackageID   string
	Version     string
	Description string
}

// TagPrefix is the group marker used by tag and file sinks: "[Name]".
func (g Group) TagPrefix() string {
	return "[" + g.Name + "]"
}

// GroupResolver maps a category to the group owning it.
type GroupResolver interface {
	GroupOf(category string) (Group, bool)
}

type groupEntry struct {
	group      Group
	categories []string // registration order
}

// groupRegistry keeps groups and the reverse category index. A category
// belongs to at most one group.
type groupRegistry struct {
	mtx     sync.RWMutex
	groups  map[string]*groupEntry
	order   []string
	byCateg map[string]string
}

func newGroupRegistry() *groupRegistry {
	return &groupRegistry{groups: map[string]*groupEntry{}, byCateg: map[string]string{}}
}

func (r *groupRegistry) register(g Group) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if g.Version == "" {
		g.Version = DEFAULT_GROUP_VERSION
	}
	if e, ok := r.groups[g.Name]; ok {
		e.group = g
		return
	}
	r.groups[g.Name] = &groupEntry{group: g}
	r.order = append(r.order, g.Name)
}

// check reports whether categories could be attached to group without
// changing anything.
func (r *groupRegistry) check(group string, categories []string) error {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return r.checkLocked(group, categories)
}

func (r *groupRegistry) checkLocked(group string, categories []string) error {
	if _, ok := r.groups[group]; !ok {
		return ErrUnknownGroup
	}
	for _, c := range categories {
		if owner, ok := r.byCateg[c]; ok && owner != group {
			return errors.Join(ErrCategoryConflict, errors.New("category `"+c+"` belongs to group `"+owner+"`"))
		}
	}
	return nil
}

// addCategories attaches categories to a group. The call is all or nothing:
// a category owned by another group rejects the whole batch.
func (r *groupRegistry) addCategories(group string, categories []string) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if err := r.checkLocked(group, categories); err != nil {
		return err
	}
	e := r.groups[group]
	for _, c := range categories {
		if _, ok := r.byCateg[c]; !ok {
			r.byCateg[c] = group
			e.categories = append(e.categories, c)
		}
	}
	return nil
}

func (r *groupRegistry) categories(group string) ([]string, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	e, ok := r.groups[group]
	if !ok {
		return nil, false
	}
	return slices.Clone(e.categories), true
}

func (r *groupRegistry) has(group string) bool {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	_, ok := r.groups[group]
	return ok
}

func (r *groupRegistry) groupOf(category string) (Group, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	name, ok := r.byCateg[category]
	if !ok {
		return Group{}, false
	}
	return r.groups[name].group, true
}

func (r *groupRegistry) list() []Group {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	res := make([]Group, 0, len(r.order))
	for _, name := range r.order {
		res = append(res, r.groups[name].group)
	}
	return res
}

func (r *groupRegistry) stats() string {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	var sb strings.Builder
	sb.WriteString("Log Group Statistics:\n")
	sb.WriteString("Total Groups: " + strconv.Itoa(len(r.order)) + "\n")
	sb.WriteString("Total Log Categories: " + strconv.Itoa(len(r.byCateg)) + "\n")
	for _, name := range r.order {
		e := r.groups[name]
		sb.WriteString("\n" + e.group.Name + " (" + e.group.PackageID + "):\n")
		sb.WriteString("  Version: " + e.group.Version + "\n")
		sb.WriteString("  Log Categories: " + strings.Join(e.categories, ", ") + "\n")
	}
	return sb.String()
}
