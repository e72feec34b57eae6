package testutil

// Value types for WasmModule signatures.
const (
	I32 byte = 0x7F
	I64 byte = 0x7E
)

// GuestHeapOffset is where the allocate export of GuestModule always points.
const GuestHeapOffset = 1024

// Instruction snippets for function bodies. The encoder appends the final end.
var (
	// BodyEcho returns the first parameter unchanged.
	BodyEcho = []byte{0x20, 0x00}
	// BodyNop does nothing.
	BodyNop = []byte{}
	// BodyTrap executes unreachable.
	BodyTrap = []byte{0x00}
	// BodySpin loops forever.
	BodySpin = []byte{0x03, 0x40, 0x0C, 0x00, 0x0B}
)

// BodyConstI32 returns v.
func BodyConstI32(v int32) []byte {
	return append([]byte{0x41}, sleb(int64(v))...)
}

// BodyForward passes the first parameter to the function at index fn and
// returns its result.
func BodyForward(fn uint32) []byte {
	return append([]byte{0x20, 0x00, 0x10}, uleb(uint64(fn))...)
}

// WasmImport is an imported host function.
type WasmImport struct {
	Module  string
	Name    string
	Params  []byte
	Results []byte
}

// WasmFunc is a function defined by the module.
type WasmFunc struct {
	Export  string
	Params  []byte
	Results []byte
	Body    []byte
}

// WasmModule is a minimal hand-encoded core module for tests that need a
// real binary without a guest toolchain.
type WasmModule struct {
	Imports      []WasmImport
	Funcs        []WasmFunc
	MemoryPages  uint32
	ExportMemory bool
}

// Encode renders the binary module.
func (m WasmModule) Encode() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

	var types [][]byte
	for _, imp := range m.Imports {
		types = append(types, funcType(imp.Params, imp.Results))
	}
	for _, fn := range m.Funcs {
		types = append(types, funcType(fn.Params, fn.Results))
	}
	if len(types) > 0 {
		out = append(out, section(1, vec(types))...)
	}

	if len(m.Imports) > 0 {
		var entries [][]byte
		for i, imp := range m.Imports {
			e := append(name(imp.Module), name(imp.Name)...)
			e = append(e, 0x00)
			e = append(e, uleb(uint64(i))...)
			entries = append(entries, e)
		}
		out = append(out, section(2, vec(entries))...)
	}

	numImports := len(m.Imports)
	if len(m.Funcs) > 0 {
		var idx [][]byte
		for i := range m.Funcs {
			idx = append(idx, uleb(uint64(numImports+i)))
		}
		out = append(out, section(3, vec(idx))...)
	}

	if m.MemoryPages > 0 {
		limits := append([]byte{0x00}, uleb(uint64(m.MemoryPages))...)
		out = append(out, section(5, vec([][]byte{limits}))...)
	}

	var exports [][]byte
	for i, fn := range m.Funcs {
		if fn.Export == "" {
			continue
		}
		e := append(name(fn.Export), 0x00)
		e = append(e, uleb(uint64(numImports+i))...)
		exports = append(exports, e)
	}
	if m.MemoryPages > 0 && m.ExportMemory {
		exports = append(exports, append(name("memory"), 0x02, 0x00))
	}
	if len(exports) > 0 {
		out = append(out, section(7, vec(exports))...)
	}

	if len(m.Funcs) > 0 {
		var bodies [][]byte
		for _, fn := range m.Funcs {
			body := append([]byte{0x00}, fn.Body...)
			body = append(body, 0x0B)
			bodies = append(bodies, append(uleb(uint64(len(body))), body...))
		}
		out = append(out, section(10, vec(bodies))...)
	}
	return out
}

// GuestModule returns a module with one page of exported memory and an
// allocate export that always returns GuestHeapOffset, followed by funcs.
func GuestModule(imports []WasmImport, funcs ...WasmFunc) WasmModule {
	alloc := WasmFunc{Export: "allocate", Params: []byte{I32}, Results: []byte{I32}, Body: BodyConstI32(GuestHeapOffset)}
	return WasmModule{
		Imports:      imports,
		Funcs:        append([]WasmFunc{alloc}, funcs...),
		MemoryPages:  1,
		ExportMemory: true,
	}
}

// HostImport declares an imported (i64) -> i64 host function.
func HostImport(module, fn string) WasmImport {
	return WasmImport{Module: module, Name: fn, Params: []byte{I64}, Results: []byte{I64}}
}

// EchoExport declares an exported (i64) -> i64 function returning its input.
func EchoExport(export string) WasmFunc {
	return WasmFunc{Export: export, Params: []byte{I64}, Results: []byte{I64}, Body: BodyEcho}
}

// ForwardExport declares an exported (i64) -> i64 function that calls the
// import at index fn with its argument.
func ForwardExport(export string, fn uint32) WasmFunc {
	return WasmFunc{Export: export, Params: []byte{I64}, Results: []byte{I64}, Body: BodyForward(fn)}
}

// RunExport declares an exported () -> () function with the given body.
func RunExport(export string, body []byte) WasmFunc {
	return WasmFunc{Export: export, Body: body}
}

func funcType(params, results []byte) []byte {
	t := []byte{0x60}
	t = append(t, uleb(uint64(len(params)))...)
	t = append(t, params...)
	t = append(t, uleb(uint64(len(results)))...)
	return append(t, results...)
}

func section(id byte, content []byte) []byte {
	out := append([]byte{id}, uleb(uint64(len(content)))...)
	return append(out, content...)
}

func vec(items [][]byte) []byte {
	out := uleb(uint64(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func name(s string) []byte {
	return append(uleb(uint64(len(s))), s...)
}

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}
