package infostream

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"crashinfo-go/logging"
	"crashinfo-go/procread"
	"crashinfo-go/unwind"
)

// EmitParams bundles every fact and callback the document needs.
type EmitParams struct {
	Start   time.Time
	Exe     string
	Cmdline []string

	Mappings []procread.Mapping

	ProcDir      string
	ProcIgnore   bool
	ProcSnapshot []string
	TaskSnapshot []string

	// PIDMap translates namespace-local thread IDs reported by the
	// unwinder to host-visible ones, when the victim runs under a PID
	// namespace. Empty when no translation is needed.
	PIDMap map[int]int

	Dumper unwind.Dumper
}

// Emit builds the full sidecar document and writes it through w in one
// locked call.
func Emit(w *Writer, p EmitParams) error {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key string, val *yaml.Node) {
		doc.Content = append(doc.Content, plainScalar(key), val)
	}

	add("datetime", plainScalar(p.Start.UTC().Format("2006-01-02T15:04:05Z")))
	add("exe", quoted(p.Exe))
	add("cmdline", cmdlineNode(p.Cmdline))
	add("executable_mappings", mappingsNode(p.Mappings))
	add("proc_dump", procDumpNode(p.ProcDir, p.ProcSnapshot, p.ProcIgnore))
	add("threads", threadsNode(p))
	add("processing_time", floatScalar(formatElapsed(time.Since(p.Start))))

	return w.WriteDocument(doc)
}

func cmdlineNode(args []string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, a := range args {
		n.Content = append(n.Content, quoted(a))
	}
	return n
}

func mappingsNode(mappings []procread.Mapping) *yaml.Node {
	if len(mappings) == 0 {
		return nullScalar()
	}
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, m := range mappings {
		n.Content = append(n.Content, plainScalar(fmt.Sprintf("0x%016x", m.VAddr)), quoted(m.Path))
	}
	return n
}

// procDumpNode builds one proc_dump block: a mapping from quoted file
// name to either its chomped contents (as a literal block scalar) or
// an inline "~ # reason" marker when the file couldn't be opened.
func procDumpNode(dir string, files []string, ignore bool) *yaml.Node {
	if ignore {
		n := nullScalar()
		n.LineComment = "proc_ignore = 1"
		return n
	}
	if len(files) == 0 || dir == "" {
		return nullScalar()
	}

	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range files {
		key := quoted(name)
		content, err := procread.DumpFile(dir, name)
		if err != nil {
			logging.Default().Error("can't open proc file", "file", name, "err", err)
			val := nullScalar()
			val.LineComment = fmt.Sprintf("Can't open: %v", err)
			n.Content = append(n.Content, key, val)
			continue
		}
		n.Content = append(n.Content, key, literalScalar(content))
	}
	return n
}

func threadsNode(p EmitParams) *yaml.Node {
	if p.Dumper == nil {
		n := nullScalar()
		n.LineComment = "Unwinder is disabled and proc_ignore = 1"
		return n
	}

	seq := &yaml.Node{Kind: yaml.SequenceNode}
	err := p.Dumper.Dump(
		func(pid int) {
			logging.Default().Debug("dumping thread", "pid", pid)
		},
		func(th unwind.Thread) {
			seq.Content = append(seq.Content, threadNode(th, p))
		},
	)
	if err != nil {
		logging.Default().Error("unwinder dump failed", "err", err)
	}
	if len(seq.Content) == 0 {
		return nullScalar()
	}
	return seq
}

func threadNode(th unwind.Thread, p EmitParams) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key string, val *yaml.Node) {
		n.Content = append(n.Content, plainScalar(key), val)
	}

	tid := th.PID
	if len(p.PIDMap) > 0 {
		tid = procread.MapPID(p.PIDMap, th.PID)
	}
	add("tid", intScalar(tid))

	taskDir := ""
	if p.ProcDir != "" {
		taskDir = filepath.Join(p.ProcDir, "task", strconv.Itoa(tid))
	}
	add("proc_dump", procDumpNode(taskDir, p.TaskSnapshot, p.ProcIgnore))

	if len(th.Registers) == 0 && len(th.Frames) == 0 {
		return n
	}

	add("user_time", floatScalar(formatElapsed(th.UserTime)))
	add("system_time", floatScalar(formatElapsed(th.SystemTime)))
	add("registers", registersNode(th.Registers))
	add("backtrace", backtraceNode(th.Frames))
	return n
}

func registersNode(regs []uint64) *yaml.Node {
	n := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, r := range regs {
		n.Content = append(n.Content, plainScalar(fmt.Sprintf("0x%016x", r)))
	}
	return n
}

func backtraceNode(frames []unwind.Frame) *yaml.Node {
	n := &yaml.Node{Kind: yaml.SequenceNode}
	for _, f := range frames {
		frame := &yaml.Node{Kind: yaml.MappingNode, Style: yaml.FlowStyle}
		add := func(key string, val *yaml.Node) {
			frame.Content = append(frame.Content, plainScalar(key), val)
		}

		add("a", plainScalar(fmt.Sprintf("%016x", f.Address)))
		if f.HasSymbol {
			add("s", plainScalar(f.Symbol))
			add("o", plainScalar(fmt.Sprintf("0x%x", f.Offset)))
			add("l", plainScalar(fmt.Sprintf("0x%x", f.ProcLength)))
		}
		add("e", intScalar(triStateCode(f.Exception)))
		add("S", intScalar(triStateCode(f.SignalFrame)))
		if f.HasBackingFile {
			add("f", quoted(f.BackingFile))
		}

		n.Content = append(n.Content, frame)
	}
	return n
}

func triStateCode(t unwind.TriState) int {
	switch t {
	case unwind.Yes:
		return 1
	case unwind.No:
		return 0
	default:
		return -1
	}
}

// formatElapsed formats a duration as "<seconds>.<microseconds>",
// the fixed-width form of the processing_time and per-thread
// user_time/system_time fields.
func formatElapsed(d time.Duration) string {
	sec := int64(d / time.Second)
	micro := int64((d % time.Second) / time.Microsecond)
	if micro < 0 {
		micro = -micro
	}
	return fmt.Sprintf("%d.%06d", sec, micro)
}
