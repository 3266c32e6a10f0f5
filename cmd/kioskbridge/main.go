// Kioskbridge runs a kiosk browser and bridges the host hardware to
// Home Assistant over MQTT discovery.
//
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]) and may be overridden
// with flags such as --web-url and --mqtt-url.
//
// Usage:
//
//	kioskbridge [flags] [serve]   Start the kiosk and the MQTT bridge
//	kioskbridge init [dir]        Write an example config file (default: .)
//	kioskbridge setup             Prompt for settings and write the config file
//	kioskbridge version           Print version and build information
//	kioskbridge -o json version   Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nugget/kioskbridge/internal/buildinfo"
	"github.com/nugget/kioskbridge/internal/config"
)

// main constructs the OS-level environment and delegates to [run], so
// the whole lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Structured logs go to stdout; fatal
// errors are returned for main to print on stderr. A fresh FlagSet per
// call keeps run free of package-level state.
func run(ctx context.Context, stdin io.Reader, stdout io.Writer, stderr io.Writer, args []string) error {
	fs := pflag.NewFlagSet(buildinfo.AppName, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	flags := config.RegisterFlags(fs)
	outputFmt := fs.StringP("output", "o", "text", "output format: text or json")
	help := fs.BoolP("help", "h", false, "show usage")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *help {
		return printUsage(stdout, fs)
	}
	if *outputFmt != "text" && *outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", *outputFmt)
	}

	command := "serve"
	if fs.NArg() > 0 {
		command = fs.Arg(0)
	}

	switch command {
	case "serve":
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, stdout, flags, serveDeps{})
	case "init":
		dir := "."
		if fs.NArg() > 1 {
			dir = fs.Arg(1)
		}
		return runInit(stdout, dir)
	case "setup":
		return runSetup(stdin, stdout, flags)
	case "version":
		return runVersion(stdout, *outputFmt)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// loadConfig merges the config file (if any) with the command-line
// flags and validates the result. A missing file is only an error when
// --config named one explicitly.
func loadConfig(flags *config.Flags) (*config.Config, string, error) {
	cfg := config.Default()
	path, err := config.FindConfig(flags.ConfigPath)
	switch {
	case err == nil:
		cfg, err = config.Load(path)
		if err != nil {
			return nil, "", fmt.Errorf("load config %s: %w", path, err)
		}
	case flags.ConfigPath != "":
		return nil, "", err
	default:
		path = ""
	}

	flags.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.LogLevel != "" {
		// Validate has already accepted the level.
		level, _ = config.ParseLogLevel(cfg.LogLevel)
	}
	return config.NewLogger(w, level, cfg.LogFormat)
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func printUsage(w io.Writer, fs *pflag.FlagSet) error {
	fmt.Fprintln(w, "Kioskbridge - kiosk browser with Home Assistant hardware integration")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: kioskbridge [flags] [command]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the kiosk and the MQTT bridge (default)")
	fmt.Fprintln(w, "  init [dir]   Write an example kioskbridge.yaml (default: .)")
	fmt.Fprintln(w, "  setup        Prompt for settings and write the user config file")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprint(w, fs.FlagUsages())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	for _, p := range config.DefaultSearchPaths() {
		fmt.Fprintf(w, "  %s\n", p)
	}
	return nil
}
