package main

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/fentz26/litscreen/internal/tui"
	"github.com/spf13/cobra"
)

var noAutostart bool

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive task dashboard",
	Args:  cobra.NoArgs,
	RunE:  runTUI,
}

func init() {
	tuiCmd.Flags().BoolVar(&noAutostart, "no-autostart", false, "do not start a background server when none is reachable")
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	client := tui.NewClient(apiAddr)
	if !isServerRunning(client) && !noAutostart {
		fmt.Println("litscreen server not running. Starting background service...")
		if err := startServer(client); err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	}

	if err := tui.New(client).Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// isServerRunning treats any answer from /health as a live server, even an
// unhealthy one.
func isServerRunning(client *tui.Client) bool {
	health, _ := client.CheckHealth()
	return health != nil
}

func startServer(client *tui.Client) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	serveArgs := []string{"serve"}
	if cfgFile != "" {
		serveArgs = append(serveArgs, "--config", cfgFile)
	}
	c := exec.Command(exe, serveArgs...)
	// Detach so the server survives the dashboard.
	configureDaemonProc(c)
	c.Stdin = nil
	c.Stdout = nil
	c.Stderr = nil

	if err := c.Start(); err != nil {
		return err
	}

	fmt.Print("   Waiting for server...")
	for i := 0; i < 20; i++ {
		if isServerRunning(client) {
			fmt.Println(" Done.")
			return nil
		}
		time.Sleep(250 * time.Millisecond)
		fmt.Print(".")
	}
	fmt.Println(" Timeout!")
	return fmt.Errorf("server started but API not reachable at %s", apiAddr)
}
