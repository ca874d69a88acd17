package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/topocrawl/topocrawl/internal/templates"
)

func runTemplatesList(cmd *cobra.Command, args []string) {
	logger := newLogger(logLevel)

	registry := templates.NewRegistry(logger)
	if err := registry.Load(context.Background(), templatesDir); err != nil {
		fatal(logger, "Failed to load templates", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COMMAND\tSTATE MACHINE\tREGEX FALLBACK")
	for _, e := range registry.Entries() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Slug, yesNo(e.Machine != nil), yesNo(e.Fallback != nil))
	}
	tw.Flush()
}

func runTemplatesValidate(cmd *cobra.Command, args []string) {
	logger := newLogger(logLevel)

	dir := templatesDir
	if len(args) == 1 {
		dir = args[0]
	}
	if dir == "" {
		fatal(logger, "No template directory given", errors.New("pass a directory argument or --templates"))
	}

	registry := templates.NewRegistry(logger)
	if err := registry.Load(context.Background(), dir); err != nil {
		fatal(logger, "Template validation failed", err)
	}

	entries := registry.Entries()
	logger.Info("Templates compiled cleanly", "dir", dir, "commands", len(entries))
	for _, e := range entries {
		fmt.Println(e.Slug)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
