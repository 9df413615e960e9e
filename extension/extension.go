// Package extension attaches resolved project environments to a host under a
// name, so that downstream code can look them up without knowing how they
// were loaded.
package extension

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/presbrey/projectenv/envtree"
	"github.com/presbrey/projectenv/hierarchy"
	"github.com/presbrey/projectenv/syncmap"
)

// DefaultName is the name a Plugin registers its store under when none is set
const DefaultName = "projectEnv"

// ErrDuplicate is returned when a name is registered twice
var ErrDuplicate = errors.New("extension already registered")

// Context is passed to hooks after a store has been registered
type Context struct {
	Name    string
	Project hierarchy.Node
	Store   *syncmap.Map
	Report  *envtree.Report
}

// Hook runs after a project environment has been loaded and registered
type Hook func(ctx *Context) error

type hookInfo struct {
	name     string
	hook     Hook
	priority int64
}

// Registry holds named stores and the hooks that run when one is added
type Registry struct {
	mu     sync.RWMutex
	stores map[string]*syncmap.Map
	hooks  []hookInfo
	log    zerolog.Logger
}

// NewRegistry creates an empty Registry that does not log
func NewRegistry() *Registry {
	return &Registry{
		stores: make(map[string]*syncmap.Map),
		log:    zerolog.Nop(),
	}
}

// WithLogger sets the logger used to report hook failures
func (r *Registry) WithLogger(log zerolog.Logger) *Registry {
	r.mu.Lock()
	r.log = log
	r.mu.Unlock()
	return r
}

// Register adds store under name
func (r *Registry) Register(name string, store *syncmap.Map) error {
	if name == "" {
		return fmt.Errorf("extension name must not be empty")
	}
	if store == nil {
		return fmt.Errorf("extension %q: nil store", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stores[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	r.stores[name] = store
	return nil
}

// Lookup returns the store registered under name
func (r *Registry) Lookup(name string) (*syncmap.Map, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	store, ok := r.stores[name]
	return store, ok
}

// Names returns the registered names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.stores))
	for name := range r.stores {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// OnLoad adds a hook with default priority (0)
func (r *Registry) OnLoad(hook Hook) {
	r.OnLoadWithPriority(hook, 0)
}

// OnLoadWithPriority adds a hook. Lower priorities run first; equal
// priorities run in registration order.
func (r *Registry) OnLoadWithPriority(hook Hook, priority int64) {
	name := runtime.FuncForPC(reflect.ValueOf(hook).Pointer()).Name()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.hooks = append(r.hooks, hookInfo{name: name, hook: hook, priority: priority})
}

// HookError collects the failures of one hook run, keyed by hook name
type HookError struct {
	Errors map[string]error
}

func (e *HookError) Error() string {
	names := make([]string, 0, len(e.Errors))
	for name := range e.Errors {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s: %v", name, e.Errors[name])
	}
	return "load hooks failed: " + strings.Join(parts, "; ")
}

// runHooks executes every hook with ctx, recovering from panics
func (r *Registry) runHooks(ctx *Context) error {
	r.mu.RLock()
	hooks := make([]hookInfo, len(r.hooks))
	copy(hooks, r.hooks)
	log := r.log
	r.mu.RUnlock()

	sort.SliceStable(hooks, func(i, j int) bool {
		return hooks[i].priority < hooks[j].priority
	})

	failed := make(map[string]error)
	for _, info := range hooks {
		err := func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("panic in hook %s: %v", info.name, p)
				}
			}()
			return info.hook(ctx)
		}()

		if err != nil {
			failed[info.name] = err
			log.Error().Err(err).Str("hook", info.name).Str("extension", ctx.Name).Msg("load hook failed")
		}
	}

	if len(failed) == 0 {
		return nil
	}
	return &HookError{Errors: failed}
}

// Plugin loads a project's environment and registers it with a Registry
type Plugin struct {
	// Name to register under (default: DefaultName)
	Name string

	// Config for the underlying loader; nil uses envtree.DefaultConfig
	Config *envtree.Config
}

// Apply resolves project, registers the resulting store and runs the
// registry's hooks. The store is returned even when a hook fails.
func (p Plugin) Apply(reg *Registry, project hierarchy.Node) (*syncmap.Map, error) {
	name := p.Name
	if name == "" {
		name = DefaultName
	}

	loader := envtree.New(p.Config)
	report, err := loader.Load(project)
	if err != nil {
		return nil, fmt.Errorf("extension %s: %w", name, err)
	}

	store := loader.Store()
	if err := reg.Register(name, store); err != nil {
		return nil, err
	}

	ctx := &Context{Name: name, Project: project, Store: store, Report: report}
	if err := reg.runHooks(ctx); err != nil {
		return store, err
	}
	return store, nil
}
