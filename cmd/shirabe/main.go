// Package main is the shirabe CLI entry point.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/shirabe/internal/config"
	"github.com/hyperjump/shirabe/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "~/.shirabe/config.yaml"

// errUsage marks a command line the user should fix; main prints usage for it.
var errUsage = errors.New("usage error")

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory wins if it exists, and a missing default file means built-in
// defaults. Returns the config and the path that was loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				cfg, err := config.Load(fallback)
				if err != nil {
					return nil, "", err
				}
				return cfg, fallback, nil
			}
		}
		path = expandHome(path)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			cfg, err := config.Default()
			return cfg, "", err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// commonFlags registers the flags every command accepts.
type commonFlags struct {
	configPath *string
	debug      *bool
}

func newFlagSet(name string) (*flag.FlagSet, commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	return fs, commonFlags{
		configPath: fs.String("config", defaultConfigPath, "config file path"),
		debug:      fs.Bool("debug", false, "enable debug logging"),
	}
}

// setup loads config and builds the logger for a parsed command.
func (c commonFlags) setup() (*config.Config, *zap.Logger, error) {
	cfg, resolved, err := loadConfig(*c.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	debug := cfg.Debug || *c.debug
	logger, err := utils.NewLogger(debug)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if resolved == "" {
		logger.Debug("no config file, using defaults")
	} else {
		logger.Debug("config loaded", zap.String("config_path", resolved))
	}
	return cfg, logger, nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}
	var err error
	switch cmd, rest := args[0], args[1:]; cmd {
	case "index":
		err = runIndex(rest, stdout)
	case "search":
		err = runSearch(rest, stdout)
	case "stats":
		err = runStats(rest, stdout)
	case "toc":
		err = runTOC(rest, stdout)
	case "clear":
		err = runClear(rest, stdout)
	case "serve":
		err = runServe(rest)
	case "mcp":
		err = runMCP(rest)
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "shirabe version %s\n", version)
	case "help", "--help", "-h":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", cmd)
		printUsage(stderr)
		return 1
	}
	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintln(stderr, err)
		printUsage(stderr)
		return 2
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

// argsReorder moves flags that appear after positional arguments to the front so
// flag.Parse sees them: "shirabe search airway -top-k 3" works like
// "shirabe search -top-k 3 airway".
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// buildSearchQuery joins positional args so multi-word queries work with or
// without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `shirabe - offline semantic search over document manuals

Usage:
  shirabe index [flags] <path>      Build the index from a file or directory
  shirabe search [flags] <query>    Search the index
  shirabe stats [flags]             Show index statistics
  shirabe toc [flags]               Show the table of contents or find a section
  shirabe clear --yes               Delete the persisted index (bookmarks are kept)
  shirabe serve [flags]             Start the HTTP API
  shirabe mcp [flags]               Serve MCP tools over stdio
  shirabe version                   Show version
  shirabe help                      Show this help

Common Flags:
  --config string    Config file path (default: ./config.yaml, then ~/.shirabe/config.yaml)
  --debug            Enable debug logging

Index Flags:
  --watch                Rebuild the index whenever files under <path> change
  --on-error string      abort or skip documents that fail to embed (default from config)
  --bookmarks string     Bookmark mapping to install (.json or .xlsx)
  --sheet string         Sheet to read from an .xlsx bookmark file (default: first)

Search Flags:
  --top-k int        Number of results (default from config, 5)
  --output string    text, compact or json (default: text)

Stats Flags:
  --output string    text or json (default: text)

Toc Flags:
  --find string      Keywords to look up in section titles
  --fuzzy            Tolerate misspellings in --find
  --limit int        Maximum matches for --find (default: 20)
  --output string    text or json (default: text)

Examples:
  shirabe index ./manual
  shirabe index --bookmarks title_page.xlsx manual.pdf
  shirabe index --watch ./manual
  shirabe search how do I open the airway
  shirabe search --output json --top-k 3 "bleeding control"
  shirabe toc --find airway --fuzzy
  shirabe serve --config ./config.yaml
`)
}
