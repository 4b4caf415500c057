package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rongwang/leave-roster-server/internal/config"
	"github.com/rongwang/leave-roster-server/internal/models"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	feedLimit int

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}

	setAdminKeyCmd = &cobra.Command{
		Use:   "set-admin-key [key]",
		Short: "Provision or rotate the admin key",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
			if err := e.svc.SetAdminKey(ctx, args[0]); err != nil {
				return err
			}
			fmt.Println("admin key updated")
			return nil
		}),
	}

	importPilotsCmd = &cobra.Command{
		Use:   "import-pilots [file.yaml]",
		Short: "Add the pilots listed in a YAML file, skipping names already present",
		Args:  cobra.ExactArgs(1),
		RunE:  withEnv(runImportPilots),
	}

	feedCmd = &cobra.Command{
		Use:   "feed",
		Short: "Print the most recent changes across the roster",
		Args:  cobra.NoArgs,
		RunE:  withEnv(runFeed),
	}

	revertCmd = &cobra.Command{
		Use:   "revert [audit path]",
		Short: "Restore a document to the snapshot held by one of its audit entries",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
			if err := e.svc.Revert(ctx, requestContext(), args[0]); err != nil {
				return err
			}
			fmt.Printf("reverted %s\n", args[0])
			return nil
		}),
	}

	hideCmd = &cobra.Command{
		Use:   "hide [audit path]",
		Short: "Hide an audit entry from the feed",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
			if err := e.svc.Hide(ctx, requestContext(), args[0]); err != nil {
				return err
			}
			fmt.Printf("hid %s\n", args[0])
			return nil
		}),
	}
)

func init() {
	feedCmd.Flags().IntVar(&feedLimit, "limit", 0, "number of entries to print (default 50, max 500)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.Store != "postgres" {
		return fmt.Errorf("the %s store has no migrations", cfg.Database.Store)
	}

	db, err := config.SetupDatabase(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Println("migrations applied")
	return nil
}

// pilotFile is the layout accepted by import-pilots
type pilotFile struct {
	Pilots []struct {
		Name   string `yaml:"name"`
		Active *bool  `yaml:"active"`
	} `yaml:"pilots"`
}

// readPilotFile decodes a pilot list, rejecting unnamed entries
func readPilotFile(r io.Reader) ([]models.CreatePilotRequest, error) {
	var file pilotFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("error parsing pilot file: %w", err)
	}

	reqs := make([]models.CreatePilotRequest, 0, len(file.Pilots))
	for i, p := range file.Pilots {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, fmt.Errorf("pilot %d has no name", i+1)
		}
		reqs = append(reqs, models.CreatePilotRequest{DisplayName: name, Active: p.Active})
	}
	return reqs, nil
}

func runImportPilots(ctx context.Context, e *env, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	reqs, err := readPilotFile(f)
	if err != nil {
		return err
	}

	existing, err := e.svc.ListPilots(ctx, false)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(existing))
	for _, p := range existing {
		known[strings.ToLower(p.DisplayName)] = true
	}

	created := 0
	for _, req := range reqs {
		if known[strings.ToLower(req.DisplayName)] {
			e.logger.Info(ctx, "pilot already present", "name", req.DisplayName)
			continue
		}
		if _, err := e.svc.CreatePilot(ctx, requestContext(), req); err != nil {
			return fmt.Errorf("error importing %s: %w", req.DisplayName, err)
		}
		known[strings.ToLower(req.DisplayName)] = true
		created++
	}

	fmt.Printf("imported %d of %d pilots\n", created, len(reqs))
	return nil
}

func runFeed(ctx context.Context, e *env, args []string) error {
	entries, err := e.svc.Feed(ctx, feedLimit)
	if err != nil {
		return err
	}
	hidden, err := e.svc.HiddenPaths(ctx)
	if err != nil {
		return err
	}
	return printFeed(os.Stdout, entries, hidden)
}

func printFeed(w io.Writer, entries []models.AuditEntry, hidden []string) error {
	hiddenSet := make(map[string]bool, len(hidden))
	for _, path := range hidden {
		hiddenSet[path] = true
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, entry := range entries {
		path := entry.Ref().Path()
		mark := ""
		if hiddenSet[path] {
			mark = "hidden"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", entry.Timestamp.Format(time.DateTime), path, entry.HumanLine, mark)
	}
	return tw.Flush()
}
