package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "alchemist-core [command]",
		Long:  "alchemist-core is the NATS JetStream-backed control plane: message kernel, content store, event log, subject router, rate limiter, policy engine, response cache, and renderer bridge, wired into one process.",
		Short: "alchemist-core control plane",
	}

	root.AddCommand(newServeCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
