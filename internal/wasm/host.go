package wasm

import (
	"fmt"
	"sort"

	"github.com/tetratelabs/wazero"
)

// HostFunction describes one function exported to guests.
// Fn must be a Go func accepted by wazero's WithFunc.
type HostFunction struct {
	Name   string
	Params []string
	Fn     any
}

// HostModule is a named table of host functions plus import aliases.
type HostModule struct {
	name      string
	functions map[string]HostFunction
	aliases   map[string]string
}

// NewHostModule creates an empty host module.
func NewHostModule(name string) *HostModule {
	return &HostModule{
		name:      name,
		functions: make(map[string]HostFunction),
		aliases:   make(map[string]string),
	}
}

// Name returns the import module name.
func (m *HostModule) Name() string {
	return m.name
}

// Add registers fn under name, replacing any previous entry.
func (m *HostModule) Add(name string, fn any, params ...string) {
	m.functions[name] = HostFunction{Name: name, Params: params, Fn: fn}
}

// Has reports whether name resolves to a function, directly or by alias.
func (m *HostModule) Has(name string) bool {
	_, ok := m.resolve(name)
	return ok
}

// Alias exports the function registered as canonical under another name.
func (m *HostModule) Alias(alias, canonical string) error {
	if _, ok := m.functions[canonical]; !ok {
		return &FunctionNotFoundError{ModuleName: m.name, FunctionName: canonical}
	}
	if _, clash := m.functions[alias]; clash {
		return fmt.Errorf("alias %q shadows a registered function", alias)
	}
	m.aliases[alias] = canonical
	return nil
}

// Names lists exported names, aliases included, in sorted order.
func (m *HostModule) Names() []string {
	names := make([]string, 0, len(m.functions)+len(m.aliases))
	for name := range m.functions {
		names = append(names, name)
	}
	for alias := range m.aliases {
		names = append(names, alias)
	}
	sort.Strings(names)
	return names
}

func (m *HostModule) resolve(name string) (HostFunction, bool) {
	if fn, ok := m.functions[name]; ok {
		return fn, true
	}
	if canonical, ok := m.aliases[name]; ok {
		fn, ok := m.functions[canonical]
		return fn, ok
	}
	return HostFunction{}, false
}

// Export registers every function and alias on builder.
func (m *HostModule) Export(builder wazero.HostModuleBuilder) {
	for _, name := range m.Names() {
		fn, _ := m.resolve(name)
		builder.NewFunctionBuilder().
			WithFunc(fn.Fn).
			WithParameterNames(fn.Params...).
			Export(name)
	}
}
