// Package unwind wraps an external core-reader/unwinder: it consumes
// the core stream from a pipe, resolves the victim PID, and later
// emits per-thread register state and backtraces.
//
// Two variants satisfy the Dumper interface, selected at build time by
// a cgo build tag: a library-backed variant binding the system
// libunwind-ptrace coredump reader, and a fallback that degrades to
// enumerating /proc/<PID>/task when the library isn't available.
package unwind

import (
	"io"
	"time"
)

// TriState is a 3-valued flag for facts the unwinder may not be able
// to determine at all, keeping "unknown" distinct from "no".
type TriState int

const (
	Unknown TriState = iota
	No
	Yes
)

// Frame is one backtrace entry for a thread.
type Frame struct {
	// Address is the instruction pointer for this frame.
	Address uint64
	// Symbol is the resolved procedure name, if any.
	Symbol string
	// HasSymbol reports whether Symbol/Offset were resolved.
	HasSymbol bool
	// Offset is the instruction's offset from Symbol's start.
	Offset uint64
	// ProcLength is the length of the containing procedure, when known.
	ProcLength uint64
	// Exception reports whether this frame has an exception handler.
	Exception TriState
	// SignalFrame reports whether this frame is a signal trampoline.
	SignalFrame TriState
	// BackingFile is the file mapped at Address, when known.
	BackingFile string
	HasBackingFile bool
}

// Thread holds one thread's dump: CPU accounting, register state, and
// its backtrace. Frames is empty in degraded mode.
type Thread struct {
	PID        int
	UserTime   time.Duration
	SystemTime time.Duration
	// Registers holds the raw register words, when available.
	Registers []uint64
	Frames     []Frame
}

// Mapping is a (virtual address, backing file) hint fed to the
// unwinder before it starts stepping, so it can resolve the image
// backing each instruction pointer.
type Mapping struct {
	VAddr uint64
	Path  string
}

// TaskCallback is invoked with a thread's PID immediately before that
// thread's frames are emitted, so the info emitter can interleave the
// per-task /proc snapshot.
type TaskCallback func(pid int)

// ProcDirSetter is implemented by the degraded-mode dumper, which
// cannot learn the victim's /proc directory from the core stream and
// needs it handed over once the pipeline resolves it by other means.
type ProcDirSetter interface {
	SetProcDir(dir string)
}

// Dumper is the unwinder's public contract.
type Dumper interface {
	// Prepare is called once, with the read end of a pipe onto which
	// core bytes will be written. It returns the resolved victim PID,
	// or -1 if it cannot be determined.
	Prepare(core io.Reader) (pid int, err error)

	// AddMappings appends backing-file hints discovered after Prepare
	// returns (typically from /proc/<PID>/maps, once the PID and proc
	// directory are known) to those passed to New. Must be called
	// before Dump.
	AddMappings(mappings []Mapping)

	// Dump emits one Thread per thread found in the core (or, in
	// degraded mode, one per /proc/<PID>/task entry with only PID
	// populated), calling taskCB(pid) immediately before handing each
	// Thread to emit.
	Dump(taskCB TaskCallback, emit func(Thread)) error
}
