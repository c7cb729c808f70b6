// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package cmd implements the command line interface of the asar binary.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"

	asar "github.com/hashicorp/go-asar"
)

// CLI are the cli parameters for the asar binary
type CLI struct {
	List    listCmd    `cmd:"" help:"List the entries of a directory in the archive."`
	Tree    treeCmd    `cmd:"" help:"Print the file tree of the archive."`
	Read    readCmd    `cmd:"" help:"Print the content of a file in the archive to STDOUT."`
	Extract extractCmd `cmd:"" help:"Extract files from the archive."`

	NoColor bool             `optional:"" help:"Disable colored output."`
	Verbose bool             `short:"v" optional:"" help:"Verbose logging."`
	Version kong.VersionFlag `short:"V" optional:"" help:"Print release version information."`
}

// globals carries state shared by all subcommands.
type globals struct {
	logger *slog.Logger
}

// listCmd lists the entries of a directory in declaration order.
type listCmd struct {
	Archive string `arg:"" name:"archive" help:"Path to archive." type:"existingfile"`
	Path    string `arg:"" optional:"" name:"path" help:"Directory in the archive. (default: root)"`
}

// treeCmd prints the file tree of an archive.
type treeCmd struct {
	Archive string `arg:"" name:"archive" help:"Path to archive." type:"existingfile"`
	Path    string `arg:"" optional:"" name:"path" help:"Directory in the archive. (default: root)"`
	Depth   int    `short:"d" optional:"" default:"-1" help:"Number of sub-folder levels to show. (-1 for all)"`
}

// readCmd prints the content of a single file to stdout.
type readCmd struct {
	Archive string `arg:"" name:"archive" help:"Path to archive." type:"existingfile"`
	Path    string `arg:"" name:"path" help:"File in the archive."`
}

// extractCmd extracts a file or directory tree to a destination directory.
type extractCmd struct {
	Archive           string `arg:"" name:"archive" help:"Path to archive." type:"existingfile"`
	Destination       string `arg:"" name:"destination" default:"." help:"Output directory/file."`
	Path              string `optional:"" short:"p" help:"Path in the archive to extract. (default: whole archive)"`
	ContinueOnError   bool   `short:"C" help:"Continue extraction on error."`
	DenySymlinks      bool   `short:"D" help:"Deny symlink extraction."`
	Concurrency       int    `optional:"" default:"1" help:"Number of files written in parallel."`
	MaxFiles          int64  `optional:"" default:"100000" help:"Maximum files that are extracted before stop. (disable check: -1)"`
	MaxExtractionSize int64  `optional:"" default:"1073741824" help:"Maximum extraction size allowed (in bytes). (disable check: -1)"`
	Overwrite         bool   `short:"O" help:"Overwrite if exist."`
	Telemetry         bool   `short:"T" optional:"" default:"false" help:"Print telemetry data to log after extraction."`
}

// Run the entrypoint into the asar binary as a cli tool
func Run(version, commit, date string) {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Description("A decoder and extractor for Electron ASAR archives"),
		kong.UsageOnError(),
		kong.Vars{
			"version": fmt.Sprintf("%s (%s), commit %s, built at %s", filepath.Base(os.Args[0]), version, commit, date),
		},
	)

	// Check for verbose output
	logLevel := slog.LevelError
	if cli.Verbose {
		logLevel = slog.LevelDebug
	}

	// setup logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	if cli.NoColor {
		color.NoColor = true
	}

	if err := ctx.Run(&globals{logger: logger}); err != nil {
		logger.Error("command failed", "err", err)
		os.Exit(1)
	}
}

// Run lists the entries of a directory in the archive.
func (c *listCmd) Run(g *globals) error {
	a, err := asar.Open(c.Archive)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.List(c.Path)
	if err != nil {
		return err
	}

	dir := color.New(color.FgCyan, color.Bold).SprintFunc()
	for _, e := range entries {
		if e.IsDir {
			fmt.Println(dir(e.Name + "/"))
		} else {
			fmt.Println(e.Name)
		}
	}
	return nil
}

// Run prints the file tree of the archive.
func (c *treeCmd) Run(g *globals) error {
	a, err := asar.Open(c.Archive)
	if err != nil {
		return err
	}
	defer a.Close()

	tree, err := a.TreeDepth(c.Path, c.Depth)
	if err != nil {
		return err
	}
	fmt.Print(tree)
	return nil
}

// Run prints the content of a file in the archive to stdout.
func (c *readCmd) Run(g *globals) error {
	a, err := asar.Open(c.Archive)
	if err != nil {
		return err
	}
	defer a.Close()

	data, err := a.ReadFile(c.Path)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

// Run extracts a file or directory tree from the archive.
func (c *extractCmd) Run(g *globals) error {
	a, err := asar.Open(c.Archive)
	if err != nil {
		return err
	}
	defer a.Close()

	// setup telemetry hook
	telemetryToLog := func(ctx context.Context, td *asar.TelemetryData) {
		if c.Telemetry {
			g.logger.Info("extraction finished", "telemetry", td)
		}
	}

	cfg := asar.NewConfig(
		asar.WithConcurrency(c.Concurrency),
		asar.WithContinueOnError(c.ContinueOnError),
		asar.WithDenySymlinkExtraction(c.DenySymlinks),
		asar.WithLogger(g.logger),
		asar.WithMaxExtractionSize(c.MaxExtractionSize),
		asar.WithMaxFiles(c.MaxFiles),
		asar.WithOverwrite(c.Overwrite),
		asar.WithTelemetryHook(telemetryToLog),
	)

	entry, err := a.Lookup(c.Path)
	if err != nil {
		return err
	}
	if !entry.IsDir() {
		dst := filepath.Join(c.Destination, filepath.Base(c.Path))
		return a.ExtractFile(context.Background(), c.Path, dst, cfg)
	}
	return a.Extract(context.Background(), c.Path, c.Destination, cfg)
}
