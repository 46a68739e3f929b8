// Package config defines the crash handler's configuration and
// parses it from the line-oriented configuration file format and from
// individual "-o keyword=value" command-line overrides.
//
// The configuration is immutable once loading completes; all fields
// described here correspond directly to the data model's
// "Configuration" record.
package config

import "crashinfo-go/logging"

// CollisionPolicy selects how an Output Opener handles a path that is
// already occupied by an existing file.
type CollisionPolicy int

const (
	// Append opens the existing file or creates it; writes seek to end.
	Append CollisionPolicy = iota
	// Overwrite opens or creates the file, truncating it to zero.
	Overwrite
	// Keep creates the file exclusively; on collision, writes are
	// silently redirected to a discard sink.
	Keep
	// Sequence creates the file exclusively; on collision, the
	// collision counter is incremented and the template re-rendered,
	// up to the configured ceiling.
	Sequence
)

// String returns the configuration keyword spelling of the policy.
func (c CollisionPolicy) String() string {
	switch c {
	case Append:
		return "append"
	case Overwrite:
		return "overwrite"
	case Keep:
		return "keep"
	case Sequence:
		return "sequence"
	default:
		return "unknown"
	}
}

// ParseCollisionPolicy parses one of the fixed enumeration names.
func ParseCollisionPolicy(s string) (CollisionPolicy, bool) {
	switch s {
	case "append":
		return Append, true
	case "overwrite", "truncate":
		return Overwrite, true
	case "keep":
		return Keep, true
	case "sequence":
		return Sequence, true
	default:
		return 0, false
	}
}

// OutputSpec describes one output channel: where it is written, how
// collisions are resolved, and what transforms bytes pass through
// before landing at the final destination.
type OutputSpec struct {
	// Template is the output-path template. Empty means the channel
	// is not configured and stays closed for the whole run.
	Template string

	// Policy is the collision-resolution policy.
	Policy CollisionPolicy

	// SequenceCeiling bounds the Sequence policy's counter. Ignored by
	// every other policy.
	SequenceCeiling int

	// MakeParentDirs creates missing parent directories (mode 0700)
	// when the template's directory doesn't exist.
	MakeParentDirs bool

	// Filters is the ordered list of shell command lines the output
	// bytes are piped through before reaching the opened file.
	Filters []string

	// Notify is the ordered list of commands run once this channel's
	// file is finalized, with "@1" substituted for its filename.
	Notify []string
}

// Mapping is one (virtual_address, backing_file) hint from an
// explicit /proc override block, used when /proc/<PID> itself isn't
// available or trustworthy.
type Mapping struct {
	VAddr uint64
	Path  string
}

// ProcOverride lets the operator substitute explicit process facts
// instead of (or in addition to) reading them from /proc/<PID>.
type ProcOverride struct {
	// Ignore disables reading /proc/<PID> entirely when true.
	Ignore bool
	// Dir, if set, is used instead of synthesizing /proc/<PID>.
	Dir string
	// Exe, if set, is used instead of reading /proc/<PID>/exe.
	Exe string
	// Mappings are handed to the unwinder as backing-file hints; they
	// stand in for the emitted executable mappings only when
	// /proc/<PID>/maps yields none.
	Mappings []Mapping
}

// Config is the crash handler's full, immutable configuration.
type Config struct {
	CoreOutput OutputSpec
	InfoOutput OutputSpec

	// ReadBufferSize is the core-stream read buffer size, in bytes,
	// used by the unwinder for backward seeks over the piped core.
	ReadBufferSize int

	// BacktraceDepth caps the number of frames unwound per thread.
	BacktraceDepth int

	// StderrThreshold, SyslogThreshold, and StreamThreshold are the
	// three independent log severity thresholds; -1 disables a sink.
	StderrThreshold logging.Severity
	SyslogThreshold logging.Severity
	StreamThreshold logging.Severity

	// GlobalNotify runs once both outputs have been finalized,
	// receiving both filenames as "@1" and "@2".
	GlobalNotify []string

	// Proc is the optional /proc override block.
	Proc ProcOverride

	// ProcSnapshot and TaskSnapshot are the ordered relative file
	// names snapshotted from /proc/<PID> and each
	// /proc/<PID>/task/<TID>, respectively.
	ProcSnapshot []string
	TaskSnapshot []string
}

// Default returns the configuration's built-in defaults, applied
// before any -c file or -o override is processed.
func Default() *Config {
	return &Config{
		CoreOutput: OutputSpec{
			Policy:          Keep,
			SequenceCeiling: 0,
		},
		InfoOutput: OutputSpec{
			Policy:          Append,
			SequenceCeiling: 0,
		},
		ReadBufferSize:  32 * 1024,
		BacktraceDepth:  64,
		StderrThreshold: logging.SeverityWarning,
		SyslogThreshold: logging.SeverityDisabled,
		StreamThreshold: logging.SeverityNotice,
	}
}
