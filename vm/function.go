package vm

// function is the in-memory function descriptor: name, entry point,
// parameter count, local-data size, and a cached stack-frame size
// computed once at load time (parameters + one marker slot + locals)
// rather than stored on disk (see exe.FunctionEntry).
type function struct {
	name           string
	entryPoint     uint32
	parameterCount uint8
	localDataSize  uint32
	stackFrameSize uint32
}
