package crashinfoerrors

// Path expansion and output-opening errors.
var (
	// ErrPathTooLong indicates a rendered output path exceeded the
	// fixed path buffer after wildcard substitution.
	ErrPathTooLong = &CrashError{Kind: KindResource, Detail: "path too long"}

	// ErrNotAbsolute indicates an output-path template was not
	// absolute, as required by the Output Opener.
	ErrNotAbsolute = &CrashError{Kind: KindConfig, Detail: "output path must be absolute"}

	// ErrSequenceExhausted indicates the Sequence collision policy
	// reached its configured ceiling without finding a free name.
	ErrSequenceExhausted = &CrashError{Kind: KindResource, Detail: "sequence ceiling exhausted"}

	// ErrCannotOpen indicates an output file could not be opened or
	// created for a reason other than EEXIST/ENOENT handled by policy.
	ErrCannotOpen = &CrashError{Kind: KindResource, Detail: "cannot open output"}
)

// Configuration parsing errors.
var (
	// ErrUnknownKeyword indicates a configuration line used a keyword
	// the parser does not recognize.
	ErrUnknownKeyword = &CrashError{Kind: KindConfig, Detail: "unknown keyword"}

	// ErrInvalidEnum indicates an enumeration option's value was not
	// one of its fixed accepted names.
	ErrInvalidEnum = &CrashError{Kind: KindConfig, Detail: "invalid enumeration value"}

	// ErrInvalidInteger indicates an integer-valued option could not
	// be parsed.
	ErrInvalidInteger = &CrashError{Kind: KindConfig, Detail: "invalid integer value"}

	// ErrInvalidMapping indicates a malformed mapping-hint line in the
	// /proc override block.
	ErrInvalidMapping = &CrashError{Kind: KindConfig, Detail: "invalid mapping syntax"}

	// ErrMalformedLine indicates a configuration line was not of the
	// form "keyword = value".
	ErrMalformedLine = &CrashError{Kind: KindConfig, Detail: "malformed configuration line"}
)

// Unwinder and /proc errors.
var (
	// ErrUnwinderUnavailable indicates the unwinder failed to resolve
	// the victim PID.
	ErrUnwinderUnavailable = &CrashError{Kind: KindUnwind, Detail: "unwinder could not resolve pid"}

	// ErrMalformedNSpid indicates a task's status file had an NSpid
	// line that could not be parsed, aborting the /proc scan.
	ErrMalformedNSpid = &CrashError{Kind: KindResource, Detail: "malformed NSpid line"}

	// ErrPIDUnresolved indicates /proc/<PID> setup was attempted
	// before the victim PID became known.
	ErrPIDUnresolved = &CrashError{Kind: KindResource, Detail: "victim pid not yet resolved"}
)
