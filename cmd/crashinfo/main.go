// crashinfo is a crash handler invoked by the kernel's core-dispatch
// facility. The crashing process's core dump arrives on stdin; the
// handler writes it to a configured destination (optionally through a
// filter pipeline) and produces a structured sidecar document
// describing the crash.
//
// It is not meant to be run interactively. A typical installation:
//
//	echo '|/usr/sbin/crashinfo -c /etc/crashinfo.conf' > /proc/sys/kernel/core_pattern
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"crashinfo-go/config"
	"crashinfo-go/crashinfoerrors"
	"crashinfo-go/logging"
	"crashinfo-go/pipeline"
	"crashinfo-go/unwind"
)

var (
	configFiles []string
	options     []string
)

var rootCmd = &cobra.Command{
	Use:   "crashinfo",
	Short: "kernel core-dump crash handler",
	Long: `crashinfo reads a process core dump from standard input, saves it to a
configured destination (optionally through a chain of filter programs),
and writes a structured info stream describing the crash: executable,
command line, memory mappings, per-thread registers and backtraces, and
snapshots of selected /proc files.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringArrayVarP(&configFiles, "config", "c", nil, "load additional configuration from a file")
	rootCmd.Flags().StringArrayVarP(&options, "option", "o", nil, "apply one inline keyword=value configuration line")
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	for _, path := range configFiles {
		if err := config.Load(cfg, path); err != nil {
			return err
		}
	}
	for _, line := range options {
		if err := config.ApplyLine(cfg, line); err != nil {
			return crashinfoerrors.WrapWithDetail(err, crashinfoerrors.KindConfig, "option", line)
		}
	}

	logging.SetDefault(logging.NewLogger(logging.Config{Level: cfg.StderrThreshold.Level()}))

	sink := logging.NewMultiSink(cfg.StderrThreshold, cfg.SyslogThreshold, cfg.StreamThreshold)
	defer sink.Close()

	hints := make([]unwind.Mapping, 0, len(cfg.Proc.Mappings))
	for _, m := range cfg.Proc.Mappings {
		hints = append(hints, unwind.Mapping{VAddr: m.VAddr, Path: m.Path})
	}
	dumper := unwind.New(cfg.ReadBufferSize, cfg.BacktraceDepth, hints)

	return pipeline.New(cfg, sink).Run(os.Stdin, dumper)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "crashinfo: %v\n", err)
		os.Exit(1)
	}
}
