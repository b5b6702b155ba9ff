// cmd/concord/main.go
package main

import (
	"fmt"
	"os"
	"strings"

	"concord/internal/diff"
	"concord/internal/merge"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "concord",
	Short: "Concord detects and resolves conflicting writes to shared files",
	Long: `Concord tracks the version every writer based its edit on. A stale write
becomes a conflict that is auto-merged when possible and otherwise resolved
by choosing a side or supplying merged content.`,
	SilenceUsage: true,
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

func init() {
	var diffCmd = &cobra.Command{
		Use:   "diff <old> <new>",
		Short: "Show line changes between two files",
		Long: `Compares two files line by line at the same positions. With --unified a
context diff is printed instead.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := readFile(args[0])
			if err != nil {
				return err
			}
			b, err := readFile(args[1])
			if err != nil {
				return err
			}

			unified, _ := cmd.Flags().GetBool("unified")
			if unified {
				ctxLines, _ := cmd.Flags().GetInt("context")
				out, err := diff.Unified(args[0], a, b, ctxLines)
				if err != nil {
					return fmt.Errorf("generating diff: %w", err)
				}
				printColoredDiff(out)
				return nil
			}

			d := diff.Diff(a, b)
			if d.Empty() {
				fmt.Println("No differences")
				return nil
			}
			printColoredDiff(d.Format())
			fmt.Printf("%d added, %d deleted, %d modified\n",
				len(d.Additions), len(d.Deletions), len(d.Modifications))
			return nil
		},
	}
	diffCmd.Flags().BoolP("unified", "u", false, "Print a unified diff")
	diffCmd.Flags().IntP("context", "c", diff.DefaultContext, "Context lines for the unified diff")

	var mergeCmd = &cobra.Command{
		Use:   "merge <base> <mine> <theirs>",
		Short: "Three-way merge of two edits of a common base",
		Long: `Merges mine and theirs line by line against base. Lines changed on both
sides to different text are wrapped in conflict markers and the command exits
with an error.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := readFile(args[0])
			if err != nil {
				return err
			}
			mine, err := readFile(args[1])
			if err != nil {
				return err
			}
			theirs, err := readFile(args[2])
			if err != nil {
				return err
			}

			res := merge.Auto(&base, mine, theirs)
			printMerged(res.MergedContent)
			if !res.Success {
				return fmt.Errorf("%s (lines %v)", res.Reason, res.Conflicts)
			}
			return nil
		},
	}

	var markersCmd = &cobra.Command{
		Use:   "markers <local> <remote>",
		Short: "Wrap two whole files in conflict markers",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			local, err := readFile(args[0])
			if err != nil {
				return err
			}
			remote, err := readFile(args[1])
			if err != nil {
				return err
			}

			printMerged(merge.TwoWay(local, remote))
			return nil
		},
	}

	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(markersCmd)
}

func printColoredDiff(diff string) {
	// Create color objects
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	header := color.New(color.FgCyan)

	// Process diff line by line
	lines := strings.Split(strings.TrimSuffix(diff, "\n"), "\n")
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "@@"),
			strings.HasPrefix(line, "---"),
			strings.HasPrefix(line, "+++"):
			header.Println(line)
		case strings.HasPrefix(line, "+"):
			added.Println(line)
		case strings.HasPrefix(line, "-"):
			removed.Println(line)
		default:
			fmt.Println(line)
		}
	}
}

func printMerged(content string) {
	marker := color.New(color.FgYellow, color.Bold)

	for _, line := range strings.Split(content, "\n") {
		switch line {
		case merge.MarkerLocal, merge.MarkerSep, merge.MarkerRemote:
			marker.Println(line)
		default:
			fmt.Println(line)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
