// Package procread reads the victim process's /proc/<PID> directory
// once it becomes accessible: its executable link, its memory-map
// table, and a namespace-to-host thread ID table built from each
// task's status file.
package procread

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"crashinfo-go/crashinfoerrors"
	"crashinfo-go/logging"
)

// Mapping is one retained line of /proc/<PID>/maps: an executable,
// absolute-path region. Offset and Inode disambiguate multiple
// mappings of the same path at different offsets (e.g. distinct .so
// segments); both are zero when not meaningfully populated.
type Mapping struct {
	VAddr  uint64
	Path   string
	Offset uint64
	Inode  uint64
}

// ReadExe reads /proc/<PID>/exe.
func ReadExe(procDir string) (string, error) {
	return os.Readlink(filepath.Join(procDir, "exe"))
}

// ParseMaps parses /proc/<PID>/maps, retaining lines whose permissions
// include execute and whose path is absolute.
func ParseMaps(procDir string) ([]Mapping, error) {
	f, err := os.Open(filepath.Join(procDir, "maps"))
	if err != nil {
		return nil, fmt.Errorf("procread: open maps: %w", err)
	}
	defer f.Close()

	var out []Mapping
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m, ok := parseMapsLine(scanner.Text())
		if !ok {
			continue
		}
		out = append(out, m)
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("procread: scan maps: %w", err)
	}
	return out, nil
}

// parseMapsLine parses one /proc/<PID>/maps line, of the form:
//
//	<start>-<end> <perms> <offset> <dev> <inode> <path>
func parseMapsLine(line string) (Mapping, bool) {
	fields := strings.Fields(line)
	if len(fields) < 6 {
		return Mapping{}, false
	}

	addrRange := fields[0]
	perms := fields[1]
	offsetField := fields[2]
	inodeField := fields[4]
	path := fields[5]

	if len(perms) < 3 || perms[2] != 'x' {
		return Mapping{}, false
	}
	if !strings.HasPrefix(path, "/") {
		return Mapping{}, false
	}

	dash := strings.IndexByte(addrRange, '-')
	if dash < 0 {
		return Mapping{}, false
	}
	vaddr, err := strconv.ParseUint(addrRange[:dash], 16, 64)
	if err != nil {
		return Mapping{}, false
	}

	offset, _ := strconv.ParseUint(offsetField, 16, 64)
	inode, _ := strconv.ParseUint(inodeField, 10, 64)

	return Mapping{VAddr: vaddr, Path: path, Offset: offset, Inode: inode}, true
}

// ReadCmdline reads /proc/<PID>/cmdline, whose contents separate
// arguments by NUL bytes with a trailing NUL ending the list.
func ReadCmdline(procDir string) ([]string, error) {
	raw, err := os.ReadFile(filepath.Join(procDir, "cmdline"))
	if err != nil {
		return nil, fmt.Errorf("procread: read cmdline: %w", err)
	}
	trimmed := strings.TrimRight(string(raw), "\x00")
	if trimmed == "" {
		return nil, nil
	}
	return strings.Split(trimmed, "\x00"), nil
}

// BuildNSPidTable walks /proc/<PID>/task/*/status and extracts the
// last numeric field of each NSpid: line, building a table mapping
// namespace-local thread IDs to host-visible thread IDs (the host TID
// is taken from the task directory name).
//
// A single task's read failure is logged and skipped; a malformed
// NSpid line aborts the whole scan.
func BuildNSPidTable(procDir string) (map[int]int, error) {
	taskDir := filepath.Join(procDir, "task")
	entries, err := os.ReadDir(taskDir)
	if err != nil {
		return nil, fmt.Errorf("procread: read task dir: %w", err)
	}

	table := make(map[int]int, len(entries))
	for _, entry := range entries {
		hostPID, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}

		nsPID, ok, err := readNSPid(filepath.Join(taskDir, entry.Name(), "status"))
		if err != nil {
			return nil, err
		}
		if !ok {
			logging.Default().Error("can't open task status file", "tid", hostPID)
			continue
		}

		table[nsPID] = hostPID
	}

	return table, nil
}

// readNSPid reads one task's status file and extracts its NSpid line's
// last field. ok is false (with no error) when the file couldn't be
// opened at all: a per-task failure the caller logs and skips rather
// than an abort.
func readNSPid(statusPath string) (nsPID int, ok bool, err error) {
	f, openErr := os.Open(statusPath)
	if openErr != nil {
		return 0, false, nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "NSpid:") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			logging.Default().Warn("malformed NSpid line", "line", line)
			return 0, false, crashinfoerrors.ErrMalformedNSpid
		}

		last := fields[len(fields)-1]
		n, convErr := strconv.Atoi(last)
		if convErr != nil {
			logging.Default().Warn("malformed NSpid line", "line", line)
			return 0, false, crashinfoerrors.ErrMalformedNSpid
		}

		return n, true, nil
	}

	return 0, false, nil
}

// DumpFile reads one relative file under dir and returns its
// chomped contents for embedding as a proc_dump block scalar. The
// caller distinguishes "could not open" from a real read by checking
// err: when non-nil, the info emitter falls back to an inline
// "~ # reason" marker instead of aborting the whole snapshot.
func DumpFile(dir, name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\n"), nil
}

// MapPID resolves a namespace-local thread ID reported by the
// unwinder to its host-visible PID using table. If no mapping exists,
// it logs a warning and returns nsPID unchanged.
func MapPID(table map[int]int, nsPID int) int {
	if hostPID, ok := table[nsPID]; ok {
		return hostPID
	}
	logging.Default().Warn("failed to map namespace pid", "nspid", nsPID)
	return nsPID
}
