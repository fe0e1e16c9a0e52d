package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "teamsbridge",
		Short:        "Bridge between Microsoft Teams and the knowledge agent",
		SilenceUsage: true,
	}
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the receiver and notifier servers",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
