package host

import (
	"sort"
	"strings"

	"github.com/hayride-dev/hayride-go/contract"
	domainerrors "github.com/hayride-dev/hayride-go/domain/errors"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// wasiModule is the core-module WASI import namespace.
const wasiModule = "wasi_snapshot_preview1"

// ComponentKind is the execution model inferred from a component's exports.
type ComponentKind string

const (
	// KindCLI runs an entry point to completion.
	KindCLI ComponentKind = "cli"
	// KindServer handles incoming HTTP requests.
	KindServer ComponentKind = "server"
	// KindWebsocket handles websocket connections.
	KindWebsocket ComponentKind = "ws"
	// KindReactor only serves calls into its exports.
	KindReactor ComponentKind = "reactor"
)

// Import is one guest import module and the functions taken from it.
type Import struct {
	Module    string
	Interface contract.InterfaceRef
	Funcs     []string
	WASI      bool
}

// Component is a compiled and introspected binary. It is immutable and may
// be instantiated any number of times.
type Component struct {
	compiled  wazero.CompiledModule
	Name      string
	Digest    string
	Kind      ComponentKind
	Entry     string
	Imports   []Import
	Exports   []contract.InterfaceRef
	Functions []string

	hasAllocate bool
	hasMemory   bool
}

// InterfaceImports returns the non-WASI imported interfaces.
func (c *Component) InterfaceImports() []contract.InterfaceRef {
	var refs []contract.InterfaceRef
	for _, imp := range c.Imports {
		if !imp.WASI {
			refs = append(refs, imp.Interface)
		}
	}
	return refs
}

// HasFunction reports whether name is an exported function.
func (c *Component) HasFunction(name string) bool {
	i := sort.SearchStrings(c.Functions, name)
	return i < len(c.Functions) && c.Functions[i] == name
}

// ResolveFunction maps a short function name onto the single exported
// "iface#fn" carrying it. Exact export names resolve to themselves.
func (c *Component) ResolveFunction(fn string) (string, bool) {
	if c.HasFunction(fn) {
		return fn, true
	}
	match := ""
	for _, name := range c.Functions {
		if strings.HasSuffix(name, "#"+fn) {
			if match != "" {
				return "", false
			}
			match = name
		}
	}
	return match, match != ""
}

// introspect reads the import and export sections of compiled.
func introspect(name string, compiled wazero.CompiledModule) (*Component, error) {
	c := &Component{compiled: compiled, Name: name, Kind: KindReactor}

	byModule := make(map[string]int)
	for _, def := range compiled.ImportedFunctions() {
		module, fn, _ := def.Import()
		idx, seen := byModule[module]
		if !seen {
			imp := Import{Module: module, WASI: module == wasiModule}
			if !imp.WASI {
				ref, err := contract.ParseInterfaceRef(module)
				if err != nil {
					return nil, &domainerrors.LoadError{Component: name, Reason: "malformed import", Interface: module, Err: err}
				}
				imp.Interface = ref
			}
			idx = len(c.Imports)
			byModule[module] = idx
			c.Imports = append(c.Imports, imp)
		}
		if !c.Imports[idx].WASI && !isPackedABI(def) {
			return nil, &domainerrors.LoadError{Component: name, Reason: "abi mismatch", Interface: module + "#" + fn}
		}
		c.Imports[idx].Funcs = append(c.Imports[idx].Funcs, fn)
	}
	sort.Slice(c.Imports, func(i, j int) bool { return c.Imports[i].Module < c.Imports[j].Module })

	seen := make(map[string]bool)
	for fn, def := range compiled.ExportedFunctions() {
		c.Functions = append(c.Functions, fn)
		if fn == "allocate" {
			c.hasAllocate = isAllocateABI(def)
			continue
		}
		q, err := contract.ParseQualified(fn)
		if err != nil {
			continue
		}
		if !seen[q.Interface.String()] {
			seen[q.Interface.String()] = true
			c.Exports = append(c.Exports, q.Interface)
		}
	}
	sort.Strings(c.Functions)
	sort.Slice(c.Exports, func(i, j int) bool { return c.Exports[i].String() < c.Exports[j].String() })
	_, c.hasMemory = compiled.ExportedMemories()["memory"]

	c.Kind, c.Entry = detectKind(c)
	return c, nil
}

// FindExport returns the first exported function of iface, at any version,
// named fn. An empty fn matches any function of the interface.
func (c *Component) FindExport(iface contract.InterfaceRef, fn string) (string, bool) {
	for _, name := range c.Functions {
		q, err := contract.ParseQualified(name)
		if err == nil && q.Interface.Key() == iface.Key() && (fn == "" || q.Func == fn) {
			return name, true
		}
	}
	return "", false
}

// Serves reports whether the component is put on the network rather than
// run or called.
func (c *Component) Serves() bool {
	return c.Kind == KindServer || c.Kind == KindWebsocket
}

// detectKind infers the execution model: a CLI run export (or a WASI
// command's _start) wins over handler exports.
func detectKind(c *Component) (ComponentKind, string) {
	if name, ok := c.FindExport(contract.CLIRun, "run"); ok {
		return KindCLI, name
	}
	if c.HasFunction("_start") {
		return KindCLI, "_start"
	}
	if name, ok := c.FindExport(contract.HTTPIncomingHandler, ""); ok {
		return KindServer, name
	}
	if name, ok := c.FindExport(contract.WebsocketHandler, ""); ok {
		return KindWebsocket, name
	}
	return KindReactor, ""
}

// needsGuestHeap reports whether the host must write into guest memory to
// serve this component's imports or exports.
func (c *Component) needsGuestHeap() bool {
	if len(c.InterfaceImports()) > 0 {
		return true
	}
	for _, name := range c.Functions {
		if name != c.Entry && strings.Contains(name, "#") {
			return true
		}
	}
	return false
}

func isPackedABI(def api.FunctionDefinition) bool {
	p, r := def.ParamTypes(), def.ResultTypes()
	return len(p) == 1 && p[0] == api.ValueTypeI64 && len(r) == 1 && r[0] == api.ValueTypeI64
}

func isAllocateABI(def api.FunctionDefinition) bool {
	p, r := def.ParamTypes(), def.ResultTypes()
	return len(p) == 1 && p[0] == api.ValueTypeI32 && len(r) == 1 && r[0] == api.ValueTypeI32
}
