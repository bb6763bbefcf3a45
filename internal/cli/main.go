package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := newRoot()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:          "clipforge",
		Short:        "Turn long videos into captioned vertical clips",
		SilenceUsage: true,
	}
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	root.AddCommand(
		newProcessCmd(),
		newSubmitCmd(),
		newStartCmd(),
		newStatusCmd(),
		newListCmd(),
		newCancelCmd(),
		newFetchCmd(),
		newReportCmd(),
		newWorkerCmd(),
	)
	return root
}
