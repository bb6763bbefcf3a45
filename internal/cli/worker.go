package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Execute jobs from the redis queue until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(0)
			defer cancel()
			s, err := open(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.close()

			fmt.Fprintln(cmd.ErrOrStderr(), "worker started")
			err = s.svc.Consume(ctx)
			if errors.Is(err, context.Canceled) {
				fmt.Fprintln(cmd.ErrOrStderr(), "worker stopped")
				return nil
			}
			return err
		},
	}
}
