//go:build !cgo || !linux

package unwind

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// FallbackDumper is used when the build has cgo disabled or targets a
// platform other than linux. It cannot recover the victim PID from the core stream at all,
// and its Dump degrades to enumerating /proc/<PID>/task, producing no
// register or backtrace data.
type FallbackDumper struct {
	// ProcDir is /proc/<PID>, populated by the pipeline once the PID
	// is known by other means (e.g. an explicit /proc override).
	ProcDir string
}

// New returns the fallback Dumper, compiled when cgo is disabled or
// the target is not linux.
func New(bufferSize, depthCap int, mappings []Mapping) Dumper {
	return &FallbackDumper{}
}

func (d *FallbackDumper) Prepare(core io.Reader) (int, error) {
	return -1, fmt.Errorf("unwind: no unwinder library available")
}

func (d *FallbackDumper) AddMappings(mappings []Mapping) {}

// SetProcDir implements ProcDirSetter.
func (d *FallbackDumper) SetProcDir(dir string) {
	d.ProcDir = dir
}

func (d *FallbackDumper) Dump(taskCB TaskCallback, emit func(Thread)) error {
	if d.ProcDir == "" {
		return fmt.Errorf("unwind: proc directory not available")
	}

	taskDir := filepath.Join(d.ProcDir, "task")
	entries, err := os.ReadDir(taskDir)
	if err != nil {
		return fmt.Errorf("unwind: read %s: %w", taskDir, err)
	}

	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		taskCB(pid)
		emit(Thread{PID: pid})
	}

	return nil
}
