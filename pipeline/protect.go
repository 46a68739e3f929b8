package pipeline

import (
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// coreSignals are the signals whose default disposition generates a
// core dump. A crash handler crashing on one of these must never
// re-enter the kernel's core dispatch.
var coreSignals = []os.Signal{
	syscall.SIGQUIT,
	syscall.SIGILL,
	syscall.SIGABRT,
	syscall.SIGFPE,
	syscall.SIGSEGV,
	syscall.SIGBUS,
	syscall.SIGSYS,
	syscall.SIGTRAP,
	syscall.SIGXCPU,
	syscall.SIGXFSZ,
}

// selfProtect makes the handler safe to crash: the core-dump resource
// limit drops to zero so no recursive core is ever generated, and
// every core-generating signal terminates the process immediately
// with exit code 2. The runtime delivers these signals on its
// pre-allocated alternate stack (it installs its handlers with
// SA_ONSTACK), so the termination path runs even if the fault
// corrupted the goroutine stack.
func selfProtect() {
	unix.Setrlimit(unix.RLIMIT_CORE, &unix.Rlimit{Cur: 0, Max: 0})

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, coreSignals...)
	go func() {
		<-ch
		os.Exit(2)
	}()
}
