package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fentz26/litscreen/internal/controlplane"
	"github.com/fentz26/litscreen/internal/export"
	"github.com/fentz26/litscreen/internal/tui"
	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit FILE...",
	Short: "Submit files to a running server",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSubmit,
}

var statusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show task status",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [task-id]",
	Short: "Download the results of a completed task",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetch,
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List tasks",
	Args:  cobra.NoArgs,
	RunE:  runTasks,
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List audited runs",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

var decisionsCmd = &cobra.Command{
	Use:   "decisions [task-id]",
	Short: "Show the per-record verdicts of an audited task",
	Args:  cobra.ExactArgs(1),
	RunE:  runDecisions,
}

var (
	submitOpts   tui.SubmitOptions
	taKeywords   string
	jrKeywords   string
	submitWatch  bool
	fetchDataset string
	fetchFormat  string
	fetchOut     string
	listStatus   string
	runsLimit    int
	excludedOnly bool
)

func init() {
	rootCmd.AddCommand(submitCmd, statusCmd, fetchCmd, tasksCmd, runsCmd, decisionsCmd)

	f := submitCmd.Flags()
	f.StringVar(&taKeywords, "ta-keywords-file", "", "file with one title/abstract blacklist term per line (default from config)")
	f.StringVar(&jrKeywords, "journal-keywords-file", "", "file with one journal blacklist term per line (default from config)")
	f.StringVar(&submitOpts.Criteria, "criteria", "", "exclusion criteria for the AI stage")
	f.StringVar(&submitOpts.APIKey, "api-key", "", "API key for the AI stage (the server's key when empty)")
	f.StringVar(&submitOpts.Model, "model", "", "model for the AI stage")
	f.BoolVar(&submitOpts.KeepDuplicates, "no-dedup", false, "keep duplicate records")
	f.BoolVar(&submitOpts.Verify, "verify", false, "verify AI exclusions with a second scope check")
	f.BoolVarP(&submitWatch, "watch", "w", false, "follow the task until it finishes")

	fetchCmd.Flags().StringVar(&fetchDataset, "dataset", "both", "dataset: kept, removed or both")
	fetchCmd.Flags().StringVar(&fetchFormat, "format", "", "output format (default csv)")
	fetchCmd.Flags().StringVarP(&fetchOut, "out", "o", ".", "output directory")

	tasksCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (queued, processing, completed, error)")
	runsCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum number of runs")
	decisionsCmd.Flags().BoolVar(&excludedOnly, "excluded", false, "only excluded records")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	opts := submitOpts
	opts.TitleAbstractKeywords = strings.Join(cfg.Screening.Blacklists.TitleAbstract, "\n")
	opts.JournalKeywords = strings.Join(cfg.Screening.Blacklists.Journal, "\n")
	if taKeywords != "" {
		data, err := os.ReadFile(taKeywords)
		if err != nil {
			return err
		}
		opts.TitleAbstractKeywords = string(data)
	}
	if jrKeywords != "" {
		data, err := os.ReadFile(jrKeywords)
		if err != nil {
			return err
		}
		opts.JournalKeywords = string(data)
	}

	client := tui.NewClient(apiAddr)
	id, err := client.Submit(args, opts)
	if err != nil {
		return err
	}
	fmt.Printf("Submitted task: %s\n", id)

	if submitWatch {
		return watchTask(client, id)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	view, err := tui.NewClient(apiAddr).Status(args[0])
	if err != nil {
		return err
	}
	printStatus(view)
	return nil
}

func printStatus(view *controlplane.StatusView) {
	fmt.Printf("ID:       %s\n", view.ID)
	fmt.Printf("Status:   %s\n", view.Status)
	fmt.Printf("Progress: %d%%\n", view.Progress)
	fmt.Printf("Message:  %s\n", view.Message)
	if len(view.Files) > 0 {
		fmt.Printf("Files:    %s\n", strings.Join(view.Files, ", "))
	}
	if view.Error != "" {
		fmt.Printf("Error:    %s\n", view.Error)
	}
	if view.Stats != nil {
		fmt.Println()
		fmt.Println(tui.RenderStats(*view.Stats))
	}
}

func runFetch(cmd *cobra.Command, args []string) error {
	if _, err := export.ParseDataset(fetchDataset); err != nil {
		return err
	}
	name, data, err := tui.NewClient(apiAddr).Download(args[0], fetchDataset, fetchFormat)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(fetchOut, 0755); err != nil {
		return err
	}
	path := filepath.Join(fetchOut, filepath.Base(name))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%d bytes)\n", path, len(data))
	return nil
}

func runTasks(cmd *cobra.Command, args []string) error {
	tasks, err := tui.NewClient(apiAddr).ListTasks(listStatus)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPROGRESS\tKEPT\tEXCLUDED\tFILES\tCREATED")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%d%%\t%d\t%d\t%s\t%s\n",
			truncateID(t.ID), t.Status, t.Progress, t.Kept, t.Excluded,
			truncate(strings.Join(t.Files, ", "), 40), t.CreatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func runRuns(cmd *cobra.Command, args []string) error {
	runs, err := tui.NewClient(apiAddr).Runs(listStatus, runsLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tSTATUS\tTOTAL\tKEPT\tEXCLUDED\tSTARTED\tERROR")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			truncateID(r.TaskID), r.Status, r.Total, r.Kept, r.Excluded,
			r.StartedAt.Local().Format(time.DateTime), truncate(r.Error, 40))
	}
	return w.Flush()
}

func runDecisions(cmd *cobra.Command, args []string) error {
	decisions, err := tui.NewClient(apiAddr).Decisions(args[0], excludedOnly)
	if err != nil {
		return err
	}
	if len(decisions) == 0 {
		fmt.Println("No decisions found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EXCLUDED\tTITLE\tREASON")
	for _, d := range decisions {
		fmt.Fprintf(w, "%v\t%s\t%s\n", d.Excluded, truncate(d.Title, 60), d.Reason)
	}
	return w.Flush()
}

// --- Helpers ---

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
