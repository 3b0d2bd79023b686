package main

import (
	"fmt"
	"runtime"

	"github.com/fentz26/litscreen/internal/update"
	"github.com/spf13/cobra"
)

var checkLatest bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of litscreen",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

func init() {
	versionCmd.Flags().BoolVar(&checkLatest, "check", false, "check GitHub for a newer release")
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	fmt.Printf("litscreen version %s\n", update.Version)
	fmt.Printf("  OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go version: %s\n", runtime.Version())

	if !checkLatest {
		return nil
	}
	checker, err := update.NewChecker()
	if err != nil {
		return err
	}
	res, err := checker.Check(true)
	if err != nil {
		return err
	}
	if res.HasUpdate {
		fmt.Printf("\nA newer release is available: %s\n  %s\n", res.Latest, res.ReleaseURL)
	} else {
		fmt.Println("\nYou are running the latest release.")
	}
	return nil
}
