// Package outputchannel combines the path expander, a collision
// policy, optional parent-directory creation, and the filter chain
// builder into a single writable output channel: one of the core
// dump's two destinations (the core file itself, or the info
// sidecar).
package outputchannel

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"crashinfo-go/config"
	"crashinfo-go/crashinfoerrors"
	"crashinfo-go/filterchain"
	"crashinfo-go/logging"
	"crashinfo-go/pathexpand"
)

// Channel is the open runtime state of one output destination: an
// open file descriptor, the concrete filename it resolved to, and the
// live filter-process chain feeding it (if any). Between Open and
// Close, File is either valid or the channel failed to open at all;
// no descriptor is ever leaked across a failure path.
type Channel struct {
	Name     string
	File     *os.File
	Filename string

	filters *filterchain.Process
	notify  []string
	spec    config.OutputSpec

	// procReadFd is the destination file Open created, which the
	// last filter writes into once filters are attached (File is then
	// the pipe feeding the chain). Close and Abort close it.
	procReadFd *os.File
}

// Open renders spec's template, applies its collision policy, and
// returns a Channel whose File is ready to receive bytes. If spec has
// no template configured, Open returns (nil, nil): the channel stays
// closed for the run.
func Open(name string, spec config.OutputSpec, exe string, start time.Time, sink *logging.MultiSink) (*Channel, error) {
	if spec.Template == "" {
		return nil, nil
	}

	if spec.Template[0] != '/' {
		return nil, crashinfoerrors.WrapChannel(crashinfoerrors.ErrNotAbsolute, crashinfoerrors.KindConfig, "open_output", name)
	}

	counter := 0
	for {
		path, err := pathexpand.Expand(spec.Template, pathexpand.Params{
			Time:       start,
			Exe:        exe,
			Counter:    counter,
			Ceiling:    spec.SequenceCeiling,
			IsSequence: spec.Policy == config.Sequence,
			Notify:     sink,
		})
		if err != nil {
			sink.Critical("expanded output filename %q is too long", spec.Template)
			return nil, crashinfoerrors.WrapChannel(err, crashinfoerrors.KindResource, "open_output", name)
		}

		f, openErr := openWithPolicy(path, spec)
		if openErr == nil {
			ch := &Channel{Name: name, File: f, Filename: path, spec: spec, notify: spec.Notify}
			if len(spec.Filters) == 0 {
				return ch, nil
			}
			if err := ch.attachFilters(spec.Filters); err != nil {
				f.Close()
				return nil, crashinfoerrors.WrapChannel(err, crashinfoerrors.KindResource, "open_output", name)
			}
			return ch, nil
		}

		switch {
		case errors.Is(openErr, os.ErrExist) && spec.Policy == config.Keep:
			sink.Notice("file %q already exists, ignoring the output", path)
			devnull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
			if err != nil {
				return nil, crashinfoerrors.WrapChannel(crashinfoerrors.ErrCannotOpen, crashinfoerrors.KindResource, "open_output", name)
			}
			return &Channel{Name: name, File: devnull, Filename: path, spec: spec, notify: spec.Notify}, nil

		case errors.Is(openErr, os.ErrExist) && spec.Policy == config.Sequence:
			counter++
			if spec.SequenceCeiling > 0 && counter >= spec.SequenceCeiling {
				sink.Critical("filename sequence limit reached for %q", spec.Template)
				return nil, crashinfoerrors.WrapChannel(crashinfoerrors.ErrSequenceExhausted, crashinfoerrors.KindResource, "open_output", name)
			}
			continue

		case errors.Is(openErr, os.ErrNotExist) && spec.MakeParentDirs:
			if mkErr := os.MkdirAll(dirname(path), 0700); mkErr != nil {
				sink.Critical("can't create directory for %q: %v", path, mkErr)
				return nil, crashinfoerrors.WrapChannel(crashinfoerrors.ErrCannotOpen, crashinfoerrors.KindResource, "open_output", name)
			}
			f, retryErr := openWithPolicy(path, spec)
			if retryErr != nil {
				sink.Critical("can't open %q: %v", path, retryErr)
				return nil, crashinfoerrors.WrapChannel(crashinfoerrors.ErrCannotOpen, crashinfoerrors.KindResource, "open_output", name)
			}
			ch := &Channel{Name: name, File: f, Filename: path, spec: spec, notify: spec.Notify}
			if len(spec.Filters) == 0 {
				return ch, nil
			}
			if err := ch.attachFilters(spec.Filters); err != nil {
				f.Close()
				return nil, crashinfoerrors.WrapChannel(err, crashinfoerrors.KindResource, "open_output", name)
			}
			return ch, nil

		default:
			sink.Critical("can't open %q: %v", path, openErr)
			return nil, crashinfoerrors.WrapChannel(crashinfoerrors.ErrCannotOpen, crashinfoerrors.KindResource, "open_output", name)
		}
	}
}

func openWithPolicy(path string, spec config.OutputSpec) (*os.File, error) {
	var flags int
	switch spec.Policy {
	case config.Append:
		flags = os.O_WRONLY | os.O_APPEND | os.O_CREATE
	case config.Overwrite:
		flags = os.O_WRONLY | os.O_TRUNC | os.O_CREATE
	case config.Keep, config.Sequence:
		flags = os.O_WRONLY | os.O_EXCL | os.O_CREATE
	default:
		flags = os.O_WRONLY | os.O_TRUNC | os.O_CREATE
	}
	return os.OpenFile(path, flags, 0600)
}

// attachFilters creates the pipe the channel's File writes into,
// rewires File to that pipe's write end, and builds the filter chain
// between the pipe's read end and the file Open already created.
func (c *Channel) attachFilters(filters []string) error {
	r, w, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("create filter pipe: %w", err)
	}

	dest := c.File
	head, err := filterchain.Build(filters, r, dest)
	r.Close()
	if err != nil {
		w.Close()
		return err
	}

	c.filters = head
	c.File = w
	c.procReadFd = dest
	return nil
}

func dirname(path string) string {
	return filepath.Dir(path)
}

// Close flushes, syncs and closes the channel's file, reaps every
// filter in the chain strictly in order, then spawns the channel's
// configured notify commands with its filename substituted for "@1".
// Filter reaping happens before notify spawning so a filter's exit
// status is always logged before the run is considered finished for
// this channel.
func (c *Channel) Close() {
	if c == nil || c.File == nil {
		return
	}

	logging.WithChannel(logging.Default(), c.Name).Debug("closing output", "file", c.Filename)

	c.File.Sync()
	c.File.Close()
	if c.procReadFd != nil {
		c.procReadFd.Close()
	}
	filterchain.Close(c.filters)

	if c.Filename != "" {
		c.spawnNotify()
	}
}

// Abort kills and reaps any filters already spawned for this channel
// and closes its descriptors, without running notify commands. Used
// on the error path so "no child process is left running".
func (c *Channel) Abort() {
	if c == nil {
		return
	}
	filterchain.Kill(c.filters)
	if c.File != nil {
		c.File.Close()
	}
	if c.procReadFd != nil {
		c.procReadFd.Close()
	}
}

func (c *Channel) spawnNotify() {
	for _, cmdline := range c.notify {
		spawnDetached(cmdline, c.Filename, "")
	}
}

// spawnDetached runs a notify command with "@1"/"@2" substituted for
// filename1/filename2, stdin/stdout/stderr redirected to /dev/null,
// and does not wait for it: a background goroutine reaps it instead
// so the detached child never lingers as a zombie.
func spawnDetached(cmdline, filename1, filename2 string) {
	argv := filterchain.Tokenize(cmdline, filename1, filename2)
	if len(argv) == 0 {
		return
	}

	path, err := exec.LookPath(argv[0])
	if err != nil {
		logging.Default().Error("notify program not found", "cmd", argv[0], "err", err)
		return
	}

	null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		logging.Default().Error("can't open /dev/null for notify", "err", err)
		return
	}
	defer null.Close()

	cmd := exec.Command(path, argv[1:]...)
	cmd.Stdin = null
	cmd.Stdout = null
	cmd.Stderr = null
	cmd.SysProcAttr = &syscall.SysProcAttr{}

	if err := cmd.Start(); err != nil {
		logging.Default().Error("starting notify program failed", "cmd", cmdline, "err", err)
		return
	}
	go cmd.Wait()
}

// NotifyBoth spawns the cross-channel notify commands once both
// output channels have materialized a filename.
func NotifyBoth(commands []string, filename1, filename2 string) {
	for _, cmdline := range commands {
		spawnDetached(cmdline, filename1, filename2)
	}
}
