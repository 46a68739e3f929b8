// Package pipeline orchestrates the single-pass consumption of the
// core dump arriving on standard input: it fans the byte stream to
// the on-disk core output (through its filter chain) and to the
// unwinder's pipe, primes the unwinder with the first buffer so the
// victim PID becomes known early enough to open /proc/<PID>, opens
// both output channels, drains the rest of the stream, and tears
// everything down across every failure path.
//
// Exactly two threads exist: the main pipeline thread and the
// unwinder thread. They synchronize through one mutex (held by the
// main thread until both outputs are open) and one atomic word
// holding the victim PID.
package pipeline

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"crashinfo-go/config"
	"crashinfo-go/crashinfoerrors"
	"crashinfo-go/infostream"
	"crashinfo-go/logging"
	"crashinfo-go/outputchannel"
	"crashinfo-go/procread"
	"crashinfo-go/unwind"
)

// Victim PID sentinel values for the shared atomic word.
const (
	pidUnknown int64 = -1
	pidFailed  int64 = -2
)

const (
	// primeBufferSize is the size of the single buffer read from
	// stdin before the outputs are open, fed to the unwinder so it
	// can parse the core's note segments and resolve the victim PID.
	primeBufferSize = 32 * 1024

	primingMaxAttempts   = 5
	primingRetryInterval = 10 * time.Millisecond
)

// Pipeline is the run's mutable state: the victim PID, the two output
// channel runtimes, the open /proc/<PID> directory, and the wall-clock
// start time. One instance exists per run.
type Pipeline struct {
	cfg  *config.Config
	sink *logging.MultiSink

	victimPID   atomic.Int64
	outputReady sync.Mutex

	start time.Time

	core       *outputchannel.Channel
	info       *outputchannel.Channel
	infoWriter *infostream.Writer
	procDir    *os.File

	// emit is populated by the main thread before outputReady is
	// released; the unwinder thread reads it only after acquiring the
	// mutex, which orders the accesses.
	emit infostream.EmitParams
}

// New builds a Pipeline over an immutable configuration. The run's
// start time is taken here, before any I/O happens, so the
// processing_time record measures the whole run.
func New(cfg *config.Config, sink *logging.MultiSink) *Pipeline {
	p := &Pipeline{cfg: cfg, sink: sink, start: time.Now()}
	p.victimPID.Store(pidUnknown)
	return p
}

// Run consumes the core dump from stdin to completion. Only a failure
// to create the unwinder pipe aborts the run; every other error is
// channel-scoped or logged and absorbed.
func (p *Pipeline) Run(stdin io.Reader, dumper unwind.Dumper) error {
	selfProtect()

	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return crashinfoerrors.Wrap(err, crashinfoerrors.KindResource, "pipeline.Run")
	}
	unwindR := os.NewFile(uintptr(fds[0]), "unwind-pipe")
	unwindW := fds[1]
	unix.SetNonblock(unwindW, true)

	p.outputReady.Lock()
	done := make(chan struct{})
	go p.unwinderThread(unwindR, dumper, done)

	// Priming phase: one buffer from stdin, written to the unwinder
	// pipe non-blocking. Gives the unwinder a bounded head-start at
	// resolving the PID without risking a deadlock if it never reads.
	prime := make([]byte, primeBufferSize)
	n, primeReadErr := stdin.Read(prime)
	if primeReadErr != nil && primeReadErr != io.EOF && n == 0 {
		p.sink.Warning("reading core from stdin failed: %v", primeReadErr)
	}

	primed := 0
	unwindOK := true
	attempts := 0
	for primed < n {
		if p.victimPID.Load() != pidUnknown {
			break
		}
		if attempts >= primingMaxAttempts {
			break
		}
		w, werr := unix.Write(unwindW, prime[primed:n])
		if w > 0 {
			primed += w
		}
		if werr == unix.EAGAIN {
			attempts++
			time.Sleep(primingRetryInterval)
			continue
		}
		if werr != nil {
			if werr != unix.EPIPE {
				p.sink.Warning("priming the unwinder failed: %v", werr)
			}
			unwindOK = false
			break
		}
	}

	// PID-dependent setup: synthesize /proc/<PID> unless an explicit
	// directory is configured, then collect the victim's facts.
	procPath := p.cfg.Proc.Dir
	if procPath == "" {
		if pid := p.victimPID.Load(); pid >= 0 {
			procPath = fmt.Sprintf("/proc/%d", pid)
		}
	}
	exe, cmdline, mappings, pidMap := p.readProc(procPath, dumper)

	// Output opening. A channel that fails to open is disabled; the
	// other keeps running.
	p.openOutputs(exe)

	p.emit = infostream.EmitParams{
		Start:        p.start,
		Exe:          exe,
		Cmdline:      cmdline,
		Mappings:     mappings,
		ProcDir:      procPath,
		ProcIgnore:   p.cfg.Proc.Ignore,
		ProcSnapshot: p.cfg.ProcSnapshot,
		TaskSnapshot: p.cfg.TaskSnapshot,
		PIDMap:       pidMap,
		Dumper:       dumper,
	}
	p.outputReady.Unlock()

	// Drain phase: the unwinder pipe goes back to blocking, the primed
	// buffer is flushed to both consumers, then stdin is copied until
	// end-of-file. The on-disk core sees exactly the concatenation of
	// every chunk read; the unwinder sees a prefix of it.
	unix.SetNonblock(unwindW, false)

	coreOK := p.core != nil
	writeCore := func(b []byte) {
		if !coreOK {
			return
		}
		if _, err := p.core.File.Write(b); err != nil {
			p.sink.Warning("writing core output failed: %v", err)
			coreOK = false
		}
	}
	writeUnwind := func(b []byte) {
		if !unwindOK {
			return
		}
		off := 0
		for off < len(b) {
			w, err := unix.Write(unwindW, b[off:])
			if w > 0 {
				off += w
			}
			if err == unix.EINTR {
				continue
			}
			if err != nil {
				if err != unix.EPIPE {
					p.sink.Warning("writing to the unwinder failed: %v", err)
				}
				unwindOK = false
				return
			}
		}
	}

	writeCore(prime[:n])
	if primed < n {
		writeUnwind(prime[primed:n])
	}

	if primeReadErr == nil {
		buf := make([]byte, primeBufferSize)
		for {
			rn, rerr := stdin.Read(buf)
			if rn > 0 {
				writeCore(buf[:rn])
				writeUnwind(buf[:rn])
			}
			if rerr != nil {
				if rerr != io.EOF {
					p.sink.Warning("reading core from stdin failed: %v", rerr)
				}
				break
			}
		}
	}

	// Shutdown: EOF to the unwinder, join its thread, then close the
	// channels (which reaps filters in order and runs per-channel
	// notify programs).
	unix.Close(unwindW)
	<-done

	if p.infoWriter != nil {
		if err := p.infoWriter.Flush(); err != nil {
			p.sink.Warning("flushing info output failed: %v", err)
		}
	}
	p.info.Close()
	p.core.Close()
	if p.procDir != nil {
		p.procDir.Close()
	}

	if p.core != nil && p.info != nil && p.core.Filename != "" && p.info.Filename != "" {
		outputchannel.NotifyBoth(p.cfg.GlobalNotify, p.core.Filename, p.info.Filename)
	}
	return nil
}

// unwinderThread runs on the second thread: resolve the victim PID
// from the core's leading bytes, wait until the main thread has the
// outputs open, then emit the info document (whose threads section
// consumes the rest of the piped core).
func (p *Pipeline) unwinderThread(core *os.File, dumper unwind.Dumper, done chan struct{}) {
	defer close(done)
	defer core.Close()

	pid, err := dumper.Prepare(core)
	if err != nil || pid < 0 {
		if err != nil {
			logging.Default().Warn("unwinder could not resolve victim pid", "err", err)
		}
		p.victimPID.CompareAndSwap(pidUnknown, pidFailed)
	} else {
		p.victimPID.CompareAndSwap(pidUnknown, int64(pid))
		logging.WithPID(logging.Default(), pid).Debug("victim pid resolved")
	}

	p.outputReady.Lock()
	p.outputReady.Unlock()

	if p.infoWriter == nil {
		return
	}

	if setter, ok := dumper.(unwind.ProcDirSetter); ok {
		setter.SetProcDir(p.emit.ProcDir)
	}
	if err := infostream.Emit(p.infoWriter, p.emit); err != nil {
		p.sink.Warning("writing info stream failed: %v", err)
	}
}

// readProc opens /proc/<PID> (or its configured stand-in) and collects
// the victim's executable path, command line, executable mappings, and
// namespace thread-ID table. Every failure here is logged and absorbed:
// a crash handler that can't read /proc still saves the core.
func (p *Pipeline) readProc(procPath string, dumper unwind.Dumper) (exe string, cmdline []string, mappings []procread.Mapping, pidMap map[int]int) {
	exe = p.cfg.Proc.Exe

	if !p.cfg.Proc.Ignore && procPath != "" {
		dir, err := os.Open(procPath)
		if err != nil {
			p.sink.Warning("can't open proc directory %q: %v", procPath, err)
		} else {
			p.procDir = dir
		}
	}

	if p.procDir != nil {
		logging.WithPath(logging.Default(), procPath).Debug("reading victim process facts")
		if exe == "" {
			e, err := procread.ReadExe(procPath)
			if err != nil {
				p.sink.Warning("can't read executable link in %q: %v", procPath, err)
			} else {
				exe = e
			}
		}

		cl, err := procread.ReadCmdline(procPath)
		if err != nil {
			p.sink.Warning("can't read command line in %q: %v", procPath, err)
		} else {
			cmdline = cl
		}

		maps, err := procread.ParseMaps(procPath)
		if err != nil {
			p.sink.Warning("can't parse memory maps in %q: %v", procPath, err)
		} else {
			mappings = maps
		}

		tbl, err := procread.BuildNSPidTable(procPath)
		if err != nil {
			p.sink.Warning("can't build thread namespace table in %q: %v", procPath, err)
		} else {
			pidMap = tbl
		}
	}

	// Explicit mapping hints stand in when /proc/<PID>/maps was
	// unavailable (they were already handed to the unwinder at
	// construction).
	if len(mappings) == 0 {
		for _, m := range p.cfg.Proc.Mappings {
			mappings = append(mappings, procread.Mapping{VAddr: m.VAddr, Path: m.Path})
		}
	} else {
		hints := make([]unwind.Mapping, len(mappings))
		for i, m := range mappings {
			hints[i] = unwind.Mapping{VAddr: m.VAddr, Path: m.Path}
		}
		dumper.AddMappings(hints)
	}

	return exe, cmdline, mappings, pidMap
}

// openOutputs opens the info channel first (so the unwinder can start
// emitting the moment the lock is released), then the core channel.
// An open failure disables only the affected channel.
func (p *Pipeline) openOutputs(exe string) {
	info, err := outputchannel.Open("info", p.cfg.InfoOutput, exe, p.start, p.sink)
	if err != nil {
		logging.Default().Error("info output disabled", "err", err)
	} else if info != nil {
		p.info = info
		p.infoWriter = infostream.NewWriter(info.File)
		p.sink.SetStream(p.infoWriter)
	}

	core, err := outputchannel.Open("core", p.cfg.CoreOutput, exe, p.start, p.sink)
	if err != nil {
		logging.Default().Error("core output disabled", "err", err)
	} else if core != nil {
		p.core = core
	}
}
