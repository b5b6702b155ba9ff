package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"concord/client"
	"concord/internal/conflict"
	"concord/internal/merge"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var serverURL string

func newClient() *client.Client {
	return client.New(serverURL)
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRecords(records []*conflict.Record) {
	if len(records) == 0 {
		fmt.Println("No conflicts")
		return
	}

	yellow := color.New(color.FgYellow).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()

	for _, r := range records {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		state := yellow("pending")
		if r.Resolved {
			state = green("resolved")
			if r.Resolution != nil {
				state += " (" + string(r.Resolution.Strategy) + ")"
			}
		}
		fmt.Printf("%s  %s  v%d vs v%d  %s\n",
			id, r.FileID, r.CurrentVersion, r.ExpectedVersion, state)
	}
}

func printConflict(c *conflict.Record, mr *merge.Result) {
	color.Yellow("Conflict %s: file is at version %d, write was based on %d", c.ID, c.CurrentVersion, c.ExpectedVersion)
	if c.Diff != nil {
		printColoredDiff(c.Diff.Format())
	}
	if mr != nil && mr.Success {
		fmt.Println("Auto-merge succeeded; resolve with strategy auto-merge to apply it")
	} else if mr != nil {
		fmt.Printf("Auto-merge failed: %s\n", mr.Reason)
	}
}

func init() {
	defaultServer := os.Getenv("CONCORD_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer, "Concord server URL")

	var fileCmd = &cobra.Command{
		Use:   "file",
		Short: "Manage files under conflict control",
	}

	var addFileCmd = &cobra.Command{
		Use:   "add <path>",
		Short: "Register a local file with the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readFile(args[0])
			if err != nil {
				return err
			}
			id, _ := cmd.Flags().GetString("id")
			by, _ := cmd.Flags().GetString("by")

			ctx, cancel := requestContext()
			defer cancel()

			f, err := newClient().CreateFile(ctx, id, filepath.Base(args[0]), content, by)
			if err != nil {
				return fmt.Errorf("creating file: %w", err)
			}
			fmt.Printf("Created %s (%s) at version %d\n", f.ID, f.FileName, f.Version)
			return nil
		},
	}
	addFileCmd.Flags().String("id", "", "File id (generated when empty)")
	addFileCmd.Flags().String("by", os.Getenv("USER"), "Author of the file")

	var getFileCmd = &cobra.Command{
		Use:   "get <id>",
		Short: "Print the stored content of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			f, err := newClient().GetFile(ctx, args[0])
			if err != nil {
				return fmt.Errorf("getting file: %w", err)
			}
			fmt.Print(f.Content)
			return nil
		},
	}

	var listFilesCmd = &cobra.Command{
		Use:   "list",
		Short: "List files",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			files, err := newClient().ListFiles(ctx)
			if err != nil {
				return fmt.Errorf("listing files: %w", err)
			}
			for _, f := range files {
				fmt.Printf("%s  %s  v%d  %s\n", f.ID, f.FileName, f.Version, f.ModifiedBy)
			}
			return nil
		},
	}

	var deleteFileCmd = &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a file and its version history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			if err := newClient().DeleteFile(ctx, args[0]); err != nil {
				return fmt.Errorf("deleting file: %w", err)
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}

	var versionsCmd = &cobra.Command{
		Use:   "versions <id>",
		Short: "List the stored versions of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			versions, err := newClient().ListVersions(ctx, args[0])
			if err != nil {
				return fmt.Errorf("listing versions: %w", err)
			}
			for _, v := range versions {
				fmt.Printf("v%d\n", v)
			}
			return nil
		},
	}

	var writeCmd = &cobra.Command{
		Use:   "write <file-id> <path>",
		Short: "Save a local file, based on the version it was read at",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readFile(args[1])
			if err != nil {
				return err
			}
			version, _ := cmd.Flags().GetInt("version")
			by, _ := cmd.Flags().GetString("by")

			ctx, cancel := requestContext()
			defer cancel()

			res, err := newClient().WriteFile(ctx, args[0], content, version, by)
			if err != nil {
				return fmt.Errorf("writing file: %w", err)
			}
			if res.Committed {
				color.Green("Saved %s at version %d", args[0], res.NewVersion)
				return nil
			}
			printConflict(res.Conflict, res.AutoMergeResult)
			return nil
		},
	}
	writeCmd.Flags().Int("version", 0, "Version the content was based on")
	writeCmd.Flags().String("by", os.Getenv("USER"), "Author of the write")
	writeCmd.MarkFlagRequired("version")

	var detectCmd = &cobra.Command{
		Use:   "detect <file-id> <path>",
		Short: "Check a proposed write against the stored version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readFile(args[1])
			if err != nil {
				return err
			}
			by, _ := cmd.Flags().GetString("by")

			p := conflict.DetectParams{FileID: args[0], Content: content, ModifiedBy: by}
			if cmd.Flags().Changed("version") {
				v, _ := cmd.Flags().GetInt("version")
				p.Version = &v
			}

			ctx, cancel := requestContext()
			defer cancel()

			res, err := newClient().DetectConflict(ctx, p)
			if err != nil {
				return fmt.Errorf("detecting conflict: %w", err)
			}
			if !res.HasConflict {
				color.Green("No conflict")
				return nil
			}

			printConflict(res.Conflict, res.AutoMergeResult)
			return nil
		},
	}
	detectCmd.Flags().Int("version", 0, "Version the content was based on")
	detectCmd.Flags().String("by", os.Getenv("USER"), "Author of the write")

	var resolveCmd = &cobra.Command{
		Use:   "resolve <file-id> <strategy>",
		Short: "Resolve the active conflict of a file",
		Long: `Strategies are use-mine (keep stored content), use-theirs (take the
incoming write), merge (requires --content) and auto-merge.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			strategy, err := conflict.ParseStrategy(args[1])
			if err != nil {
				return err
			}

			var merged *string
			if path, _ := cmd.Flags().GetString("content"); path != "" {
				content, err := readFile(path)
				if err != nil {
					return err
				}
				merged = &content
			}
			by, _ := cmd.Flags().GetString("by")

			ctx, cancel := requestContext()
			defer cancel()

			res, err := newClient().ResolveConflict(ctx, args[0], strategy, merged, by)
			if err != nil {
				return fmt.Errorf("resolving conflict: %w", err)
			}
			color.Green("Resolved %s at version %d", args[0], res.NewVersion)
			return nil
		},
	}
	resolveCmd.Flags().String("content", "", "File holding the merged content")
	resolveCmd.Flags().String("by", os.Getenv("USER"), "Who resolved the conflict")

	var conflictsCmd = &cobra.Command{
		Use:   "conflicts",
		Short: "List active conflicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			records, err := newClient().ActiveConflicts(ctx)
			if err != nil {
				return fmt.Errorf("listing conflicts: %w", err)
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(records)
			}
			printRecords(records)
			return nil
		},
	}
	conflictsCmd.Flags().Bool("json", false, "Print full records as JSON")

	var historyCmd = &cobra.Command{
		Use:   "history",
		Short: "List resolved conflicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			ctx, cancel := requestContext()
			defer cancel()

			records, err := newClient().History(ctx, limit)
			if err != nil {
				return fmt.Errorf("getting history: %w", err)
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(records)
			}
			printRecords(records)
			return nil
		},
	}
	historyCmd.Flags().Int("limit", 0, "Maximum entries (server default when 0)")
	historyCmd.Flags().Bool("json", false, "Print full records as JSON")

	var clearHistoryCmd = &cobra.Command{
		Use:   "clear-history",
		Short: "Drop all resolved conflicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			if err := newClient().ClearHistory(ctx); err != nil {
				return fmt.Errorf("clearing history: %w", err)
			}
			fmt.Println("History cleared")
			return nil
		},
	}

	fileCmd.AddCommand(addFileCmd)
	fileCmd.AddCommand(getFileCmd)
	fileCmd.AddCommand(listFilesCmd)
	fileCmd.AddCommand(deleteFileCmd)
	fileCmd.AddCommand(versionsCmd)

	rootCmd.AddCommand(fileCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(conflictsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(clearHistoryCmd)
}
