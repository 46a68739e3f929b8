package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"crashinfo-go/crashinfoerrors"
	"crashinfo-go/logging"
)

// logLevelNames maps the configuration file's log-level enum to the
// severity scale: the syslog level names, with "none" added as the
// disabling sentinel.
var logLevelNames = map[string]logging.Severity{
	"none":    logging.SeverityDisabled,
	"emerg":   logging.SeverityCritical,
	"alert":   logging.SeverityCritical,
	"crit":    logging.SeverityCritical,
	"err":     logging.SeverityError,
	"warning": logging.SeverityWarning,
	"notice":  logging.SeverityNotice,
	"info":    logging.SeverityInfo,
	"debug":   logging.SeverityDebug,
}

func parseLogLevel(value string) (logging.Severity, error) {
	sev, ok := logLevelNames[value]
	if !ok {
		return 0, crashinfoerrors.ErrInvalidEnum
	}
	return sev, nil
}

func parseBool(value string) (bool, error) {
	switch value {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, crashinfoerrors.ErrInvalidEnum
	}
}

// parseMapping parses one "<addr>:<path>" value, where addr accepts
// the same bases strconv.ParseUint does (decimal, 0x-prefixed hex,
// 0-prefixed octal).
func parseMapping(value string) (Mapping, error) {
	colon := strings.IndexByte(value, ':')
	if colon < 0 {
		return Mapping{}, crashinfoerrors.ErrInvalidMapping
	}
	addr, err := strconv.ParseUint(value[:colon], 0, 64)
	if err != nil {
		return Mapping{}, crashinfoerrors.ErrInvalidMapping
	}
	return Mapping{VAddr: addr, Path: value[colon+1:]}, nil
}

// appendMulti appends value to *list, or clears *list when value is
// the "~" sentinel.
func appendMulti(list *[]string, value string) {
	if value == "~" {
		*list = nil
		return
	}
	*list = append(*list, value)
}

// keywords maps every recognized configuration keyword to a setter
// closing over cfg. Declared as a function (rather than a package
// level map literal) so each call gets setters bound to its own cfg.
func keywords(cfg *Config) map[string]func(string) error {
	return map[string]func(string) error{
		"info_output": func(v string) error {
			if v == "~" {
				cfg.InfoOutput.Template = ""
			} else {
				cfg.InfoOutput.Template = v
			}
			return nil
		},
		"info_exists": func(v string) error {
			p, ok := ParseCollisionPolicy(v)
			if !ok {
				return crashinfoerrors.ErrInvalidEnum
			}
			cfg.InfoOutput.Policy = p
			return nil
		},
		"info_exists_seq": func(v string) error {
			n, err := strconv.ParseInt(v, 0, 64)
			if err != nil {
				return crashinfoerrors.ErrInvalidInteger
			}
			cfg.InfoOutput.SequenceCeiling = int(n)
			return nil
		},
		"info_filter": func(v string) error {
			appendMulti(&cfg.InfoOutput.Filters, v)
			return nil
		},
		"info_mkdir": func(v string) error {
			b, err := parseBool(v)
			if err != nil {
				return err
			}
			cfg.InfoOutput.MakeParentDirs = b
			return nil
		},
		"info_notify": func(v string) error {
			appendMulti(&cfg.InfoOutput.Notify, v)
			return nil
		},
		"backtrace_max_depth": func(v string) error {
			n, err := strconv.ParseInt(v, 0, 64)
			if err != nil {
				return crashinfoerrors.ErrInvalidInteger
			}
			cfg.BacktraceDepth = int(n)
			return nil
		},
		"core_output": func(v string) error {
			if v == "~" {
				cfg.CoreOutput.Template = ""
			} else {
				cfg.CoreOutput.Template = v
			}
			return nil
		},
		"core_exists": func(v string) error {
			p, ok := ParseCollisionPolicy(v)
			if !ok {
				return crashinfoerrors.ErrInvalidEnum
			}
			cfg.CoreOutput.Policy = p
			return nil
		},
		"core_exists_seq": func(v string) error {
			n, err := strconv.ParseInt(v, 0, 64)
			if err != nil {
				return crashinfoerrors.ErrInvalidInteger
			}
			cfg.CoreOutput.SequenceCeiling = int(n)
			return nil
		},
		"core_filter": func(v string) error {
			appendMulti(&cfg.CoreOutput.Filters, v)
			return nil
		},
		"core_mkdir": func(v string) error {
			b, err := parseBool(v)
			if err != nil {
				return err
			}
			cfg.CoreOutput.MakeParentDirs = b
			return nil
		},
		"core_notify": func(v string) error {
			appendMulti(&cfg.CoreOutput.Notify, v)
			return nil
		},
		"core_buffer_size": func(v string) error {
			n, err := strconv.ParseInt(v, 0, 64)
			if err != nil {
				return crashinfoerrors.ErrInvalidInteger
			}
			cfg.ReadBufferSize = int(n)
			return nil
		},
		"info_core_notify": func(v string) error {
			appendMulti(&cfg.GlobalNotify, v)
			return nil
		},
		"log_info": func(v string) error {
			sev, err := parseLogLevel(v)
			if err != nil {
				return err
			}
			cfg.StreamThreshold = sev
			return nil
		},
		"log_syslog": func(v string) error {
			sev, err := parseLogLevel(v)
			if err != nil {
				return err
			}
			cfg.SyslogThreshold = sev
			return nil
		},
		"log_stderr": func(v string) error {
			sev, err := parseLogLevel(v)
			if err != nil {
				return err
			}
			cfg.StderrThreshold = sev
			return nil
		},
		"proc_ignore": func(v string) error {
			b, err := parseBool(v)
			if err != nil {
				return err
			}
			cfg.Proc.Ignore = b
			return nil
		},
		"proc_path": func(v string) error {
			if v == "~" {
				cfg.Proc.Dir = ""
			} else {
				cfg.Proc.Dir = v
			}
			return nil
		},
		"proc_exe": func(v string) error {
			if v == "~" {
				cfg.Proc.Exe = ""
			} else {
				cfg.Proc.Exe = v
			}
			return nil
		},
		"proc_maps": func(v string) error {
			if v == "~" {
				cfg.Proc.Mappings = nil
				return nil
			}
			m, err := parseMapping(v)
			if err != nil {
				return err
			}
			cfg.Proc.Mappings = append(cfg.Proc.Mappings, m)
			return nil
		},
		"proc_dump_root": func(v string) error {
			appendMulti(&cfg.ProcSnapshot, v)
			return nil
		},
		"proc_dump_task": func(v string) error {
			appendMulti(&cfg.TaskSnapshot, v)
			return nil
		},
	}
}

// ApplyLine applies one "keyword = value" configuration line to cfg.
// Blank lines and lines whose first non-whitespace character is '#'
// are silently accepted as no-ops. Whitespace around both keyword and
// value is trimmed; the "~" sentinel clears multi-valued and string
// options per their individual setters above.
func ApplyLine(cfg *Config, line string) error {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return nil
	}

	eq := strings.IndexByte(trimmed, '=')
	if eq < 0 {
		return crashinfoerrors.ErrMalformedLine
	}

	keyword := strings.TrimSpace(trimmed[:eq])
	value := strings.TrimSpace(trimmed[eq+1:])
	if keyword == "" || value == "" {
		return crashinfoerrors.ErrMalformedLine
	}

	handler, ok := keywords(cfg)[keyword]
	if !ok {
		return crashinfoerrors.ErrUnknownKeyword
	}
	return handler(value)
}

// Load reads path line by line, applying each line to cfg with
// ApplyLine. Any parse failure is fatal and names the offending file
// and line number.
func Load(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return crashinfoerrors.Wrap(err, crashinfoerrors.KindConfig, "config.Load")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if err := ApplyLine(cfg, scanner.Text()); err != nil {
			return crashinfoerrors.WrapWithDetail(err, crashinfoerrors.KindConfig, "config.Load",
				fmt.Sprintf("%s:%d", path, lineNum))
		}
	}
	if err := scanner.Err(); err != nil {
		return crashinfoerrors.Wrap(err, crashinfoerrors.KindConfig, "config.Load")
	}
	return nil
}
