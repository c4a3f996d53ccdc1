package asm

import "github.com/kiplingw/agni-go/exe"

// variable is a declared Var's stack slot assignment. size is the slot
// count: 1 for a scalar, >1 for an array.
type variable struct {
	index int32
	size  int32
}

// function collects everything pass 1 learns about one Func block and
// everything pass 2 needs to re-derive while re-walking its body.
type function struct {
	name          string
	index         int32
	entryPoint    int32
	paramCount    uint8
	localDataSize uint32

	// locals and labels are fully known after pass 1 (their indices do
	// not depend on the function's final size). params is deferred to
	// pass 2: its stack index formula needs the committed localDataSize,
	// which pass 1 only finalizes at the closing brace (mirrors the
	// reference assembler, which re-declares Param symbols on its
	// second pass).
	locals map[string]variable
	labels map[string]int32
	params map[string]variable
}

func newFunction(name string, index, entryPoint int32) *function {
	return &function{
		name:       name,
		index:      index,
		entryPoint: entryPoint,
		locals:     make(map[string]variable),
		labels:     make(map[string]int32),
		params:     make(map[string]variable),
	}
}

// module is the shared symbol/string state both passes read and write.
// Pass 1 populates directives, globals, functions, locals and labels;
// pass 2 adds each function's Param symbols, the host-function table
// (interned as CallHost operands are seen) and the string table (interned
// as literals are seen, plus the SetHost name when the executable is
// built).
type module struct {
	hostName  string
	hostMajor uint8
	hostMinor uint8
	hostSet   bool

	stackSize          uint32
	stackSizeSet       bool
	threadPriority     exe.ThreadPriorityType
	threadPriorityUser uint32
	threadPrioritySet  bool

	globals        map[string]variable
	globalOrder    []string
	globalDataSize uint32

	functions    map[string]*function
	functionList []*function
	mainIndex    int32

	hostFunctions    map[string]int32
	hostFunctionList []string

	strings      map[string]int32
	stringList   []string

	instructionCount uint32

	warnings []string
}

func newModule() *module {
	return &module{
		globals:       make(map[string]variable),
		functions:     make(map[string]*function),
		mainIndex:     int32(exe.MainIndexNone),
		hostFunctions: make(map[string]int32),
		strings:       make(map[string]int32),
	}
}

// intern returns s's string-table index, adding it if this is the first
// occurrence. An empty string is never interned: callers emit it as the
// integer literal 0 instead.
func (m *module) intern(s string) int32 {
	key := s
	if idx, ok := m.strings[key]; ok {
		return idx
	}
	idx := int32(len(m.stringList))
	m.strings[key] = idx
	m.stringList = append(m.stringList, s)
	return idx
}

// internHostFunction returns host_fn's table index, interning a fresh
// entry on first reference. Host functions have no declaration statement;
// the first CallHost to name them is what creates their table entry,
// matching the reference assembler.
func (m *module) internHostFunction(name string) int32 {
	key := lowerKey(name)
	if idx, ok := m.hostFunctions[key]; ok {
		return idx
	}
	idx := int32(len(m.hostFunctionList))
	m.hostFunctions[key] = idx
	m.hostFunctionList = append(m.hostFunctionList, name)
	return idx
}
