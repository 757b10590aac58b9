// Command causa runs the lawyer agent orchestrator.
//
// Usage:
//
//	causa serve --config config.yaml
//	causa serve --config causa/config --config-type consul --watch
//	causa validate config.yaml --print
//	causa schema > config.schema.json
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/causahq/causa/pkg/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the orchestrator server."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`
	Schema   SchemaCmd   `cmd:"" help:"Generate the JSON Schema for the configuration."`

	Config    string `short:"c" help:"Path to config file (or KV key for remote sources)." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose, or custom)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("causa version %s\n", version)
	return nil
}

// printBanner prints a colored ASCII banner using causa-blue (#2563eb).
func printBanner() {
	// Only on a terminal; piped output gets no banner.
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			return
		}
	} else {
		return
	}

	blueColor := "\033[38;2;37;99;235m"
	resetColor := "\033[0m"

	banner := `
 ██████╗ █████╗ ██╗   ██╗███████╗ █████╗
██╔════╝██╔══██╗██║   ██║██╔════╝██╔══██╗
██║     ███████║██║   ██║███████╗███████║
██║     ██╔══██║██║   ██║╚════██║██╔══██║
╚██████╗██║  ██║╚██████╔╝███████║██║  ██║
 ╚═════╝╚═╝  ╚═╝ ╚═════╝ ╚══════╝╚═╝  ╚═╝
`
	fmt.Printf("%s%s%s\n", blueColor, banner, resetColor)
}

// shouldSkipBanner reports whether the invoked command is informational.
// validate and schema output is meant to be piped or parsed, so the banner
// stays out of the way.
func shouldSkipBanner(args []string) bool {
	if len(args) < 2 {
		return false
	}
	for _, arg := range args {
		if arg == "validate" || arg == "schema" || arg == "version" {
			return true
		}
	}
	return false
}

func main() {
	if !shouldSkipBanner(os.Args) {
		printBanner()
	}

	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("causa"),
		kong.Description("Causa - Romanian legal assistance agent orchestrator"),
		kong.UsageOnError(),
	)

	cleanup, err := initLoggerFromCLI(cli.LogLevel, cli.LogFile, cli.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
