package main

import (
	"fmt"
	"os"

	"github.com/ignatij/exectrack/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "exectrack",
	Short: "Track paginated executions until they complete",
}

func main() {
	cli.SetupCLI(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
