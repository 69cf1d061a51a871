package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"rtbench/internal/ledger"
)

func newListCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := ledger.Open(g.ledger)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer l.Close()
			runs, err := l.List(cmd.Context())
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
}

func printRuns(w io.Writer, runs []ledger.Run) {
	fmt.Fprintf(w, "%-8s %-25s %-22s %-10s %-20s\n", "ID", "NAME", "HOST", "STATUS", "CREATED_AT")
	for _, r := range runs {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(w, "%-8s %-25s %-22s %-10s %-20s\n", id, r.Name, r.Host, r.Status, r.CreatedAt.Format(time.RFC3339))
	}
}

func newShowCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one run and its per-program outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := ledger.Open(g.ledger)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer l.Close()
			run, err := l.Load(cmd.Context(), args[0])
			if errors.Is(err, ledger.ErrNotFound) {
				return fmt.Errorf("no run with id %s", args[0])
			}
			if err != nil {
				return err
			}
			printRun(cmd.OutOrStdout(), run)
			return nil
		},
	}
}

func printRun(w io.Writer, r *ledger.Run) {
	fmt.Fprintf(w, "Run %s\n", r.ID)
	fmt.Fprintln(w, "-------------")
	fmt.Fprintf(w, "Name:        %s\n", r.Name)
	fmt.Fprintf(w, "Host:        %s\n", r.Host)
	fmt.Fprintf(w, "Status:      %s\n", r.Status)
	fmt.Fprintf(w, "Tracing:     %t\n", r.Tracing)
	fmt.Fprintf(w, "Repeat:      %d\n", r.Repeat)
	fmt.Fprintf(w, "Flags:       %s\n", r.Flags)
	fmt.Fprintf(w, "Data dir:    %s\n", r.DataDir)
	fmt.Fprintf(w, "Git commit:  %s\n", r.GitCommit)
	fmt.Fprintf(w, "Git branch:  %s\n", r.GitBranch)
	if !r.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created at:  %s\n", r.CreatedAt.Format(time.RFC3339))
	} else {
		fmt.Fprintf(w, "Created at:  (unknown)\n")
	}
	if !r.CompletedAt.IsZero() {
		fmt.Fprintf(w, "Completed:   %s\n", r.CompletedAt.Format(time.RFC3339))
	}
	if len(r.Outcomes) > 0 {
		fmt.Fprintln(w, "Outcomes")
		for _, o := range r.Outcomes {
			line := fmt.Sprintf("  %-20s %-14s %s", o.Program, o.Stage, o.Status)
			if o.Detail != "" {
				line += " (" + o.Detail + ")"
			}
			fmt.Fprintln(w, line)
		}
	}
	if r.ConfigSnapshot != "" {
		fmt.Fprintln(w, "Config snapshot:")
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, []byte(r.ConfigSnapshot), "  ", "  "); err == nil {
			fmt.Fprintln(w, pretty.String())
		} else {
			fmt.Fprintln(w, r.ConfigSnapshot)
		}
	}
}
