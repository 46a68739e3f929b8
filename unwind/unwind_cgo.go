//go:build cgo && linux

package unwind

/*
#cgo LDFLAGS: -lunwind-ptrace -lunwind-coredump -lunwind
#include <stdlib.h>
#include <libunwind.h>
#include <libunwind-ptrace.h>
#include <libunwind-coredump.h>

static struct UCD_info *ucd_create_fd(int fd, const char *descr, unsigned buffer_size) {
	return _UCD_create_fd(fd, descr, buffer_size);
}
*/
import "C"

import (
	"fmt"
	"io"
	"os"
	"time"
	"unsafe"
)

// CgoDumper binds the system libunwind coredump-reader API:
// _UCD_create_fd over the core pipe, unw_create_addr_space,
// unw_init_remote per thread, then unw_step/unw_get_reg/
// unw_get_proc_name to walk each call chain.
type CgoDumper struct {
	BufferSize int
	DepthCap   int
	Mappings   []Mapping

	as C.unw_addr_space_t
	ui *C.struct_UCD_info
	ok bool
}

// New returns the cgo-backed Dumper. This variant is compiled whenever
// cgo is enabled on linux, and then needs the libunwind headers and
// libraries to build.
func New(bufferSize, depthCap int, mappings []Mapping) Dumper {
	return &CgoDumper{BufferSize: bufferSize, DepthCap: depthCap, Mappings: mappings}
}

func (d *CgoDumper) AddMappings(mappings []Mapping) {
	d.Mappings = append(d.Mappings, mappings...)
}

func (d *CgoDumper) Prepare(core io.Reader) (int, error) {
	f, ok := core.(*os.File)
	if !ok {
		return -1, fmt.Errorf("unwind: cgo dumper requires an *os.File core pipe")
	}

	d.as = C.unw_create_addr_space(&C._UCD_accessors, 0)
	if d.as == nil {
		return -1, fmt.Errorf("unwind: failed to create address space")
	}

	descr := C.CString("<pipe>")
	defer C.free(unsafe.Pointer(descr))

	d.ui = C.ucd_create_fd(C.int(f.Fd()), descr, C.uint(d.BufferSize))
	if d.ui == nil {
		C.unw_destroy_addr_space(d.as)
		return -1, fmt.Errorf("unwind: failed to create UCD_info")
	}

	minPID := int(^uint(0) >> 1)
	minPIDFs := minPID
	numThreads := int(C._UCD_get_num_threads(d.ui))
	for t := 0; t < numThreads; t++ {
		C._UCD_select_thread(d.ui, C.int(t))
		pid := int(C._UCD_get_pid(d.ui))
		if pid < minPID {
			minPID = pid
		}
		if pid < minPIDFs {
			if _, err := os.Stat(fmt.Sprintf("/proc/%d", pid)); err == nil {
				minPIDFs = pid
			}
		}
	}

	pid := minPID
	if minPIDFs != int(^uint(0)>>1) {
		pid = minPIDFs
	}
	d.ok = true
	return pid, nil
}

func (d *CgoDumper) Dump(taskCB TaskCallback, emit func(Thread)) error {
	if !d.ok {
		return fmt.Errorf("unwind: Prepare did not succeed")
	}
	defer func() {
		C._UCD_destroy(d.ui)
		C.unw_destroy_addr_space(d.as)
	}()

	for _, m := range d.Mappings {
		path := C.CString(m.Path)
		C._UCD_add_backing_file_at_vaddr(d.ui, C.unw_word_t(m.VAddr), path)
		C.free(unsafe.Pointer(path))
	}

	var cursor C.unw_cursor_t
	numThreads := int(C._UCD_get_num_threads(d.ui))
	for t := 0; t < numThreads; t++ {
		C._UCD_select_thread(d.ui, C.int(t))

		if rtn := C.unw_init_remote(&cursor, d.as, unsafe.Pointer(d.ui)); rtn != 0 {
			continue
		}

		pid := int(C._UCD_get_pid(d.ui))
		taskCB(pid)

		th := Thread{PID: pid}
		th.UserTime = cTimevalDuration(C._UCD_get_utime(d.ui))
		th.SystemTime = cTimevalDuration(C._UCD_get_stime(d.ui))

		for i := 0; i < 256; i++ {
			var reg C.unw_word_t
			if C.unw_get_reg(&cursor, C.int(i), &reg) != 0 {
				break
			}
			th.Registers = append(th.Registers, uint64(reg))
		}

		for depth := 0; depth < d.DepthCap; depth++ {
			var frame Frame

			var ip C.unw_word_t
			if C.unw_get_reg(&cursor, C.UNW_REG_IP, &ip) == 0 {
				frame.Address = uint64(ip)
			}

			var pi C.unw_proc_info_t
			if C.unw_get_proc_info(&cursor, &pi) == 0 {
				frame.ProcLength = uint64(pi.end_ip - pi.start_ip)
				if pi.handler != 0 {
					frame.Exception = Yes
				} else {
					frame.Exception = No
				}
			} else {
				frame.Exception = Unknown
			}

			switch rtn := C.unw_is_signal_frame(&cursor); {
			case rtn > 0:
				frame.SignalFrame = Yes
			case rtn == 0:
				frame.SignalFrame = No
			default:
				frame.SignalFrame = Unknown
			}

			var nameBuf [256]C.char
			var off C.unw_word_t
			if C.unw_get_proc_name(&cursor, &nameBuf[0], C.size_t(len(nameBuf)), &off) == 0 {
				frame.Symbol = C.GoString(&nameBuf[0])
				frame.HasSymbol = true
				frame.Offset = uint64(off)
			}

			if file := C._UCD_get_proc_backing_file(d.ui, C.unw_word_t(frame.Address)); file != nil {
				frame.BackingFile = C.GoString(file)
				frame.HasBackingFile = true
			}

			th.Frames = append(th.Frames, frame)

			if C.unw_step(&cursor) <= 0 {
				break
			}
		}

		emit(th)
	}

	return nil
}

func cTimevalDuration(tv *C.struct_timeval) time.Duration {
	if tv == nil {
		return 0
	}
	return time.Duration(tv.tv_sec)*time.Second + time.Duration(tv.tv_usec)*time.Microsecond
}
