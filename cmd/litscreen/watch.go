package main

import (
	"fmt"

	"github.com/fentz26/litscreen/internal/models"
	"github.com/fentz26/litscreen/internal/tui"
	"github.com/spf13/cobra"
)

var watchInterval = tui.DefaultPollInterval

var watchCmd = &cobra.Command{
	Use:   "watch [task-id]",
	Short: "Follow a task's progress until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return watchTask(tui.NewClient(apiAddr), args[0])
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", tui.DefaultPollInterval, "poll interval")
	rootCmd.AddCommand(watchCmd)
}

func watchTask(client *tui.Client, id string) error {
	view, err := tui.NewWatch(client, id, watchInterval).Run()
	if err != nil {
		return err
	}
	if view == nil {
		return nil
	}
	switch view.Status {
	case models.TaskStatusCompleted:
		fmt.Printf("Fetch results with: litscreen fetch %s\n", id)
	case models.TaskStatusError:
		return fmt.Errorf("task %s failed: %s", id, view.Error)
	}
	return nil
}
