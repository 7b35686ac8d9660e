// Command ringtapctl is the userland administration CLI for the capture
// runtime: binding rings to devices, managing clusters, and installing
// filters, grounded in this repository's own internal/capture package
// rather than talking to a separate dataplane process.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ringtap/ringtap/internal/xcmd"
)

var rootCmd = &cobra.Command{
	Use:   "ringtapctl",
	Short: "Administer ringtap capture sockets, clusters, and filters",
}

func init() {
	rootCmd.AddCommand(bindCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(filterCmd)
	rootCmd.AddCommand(bloomCmd)
	rootCmd.AddCommand(stringCmd)
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		xcmd.WaitInterrupted(ctx)
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}
