package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zoff-tech/go-messenger/pkg/messaging"
)

func (a *app) receiveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "receive",
		Short: "Starts listening for incoming messages on the configured RabbitMQ queue",
		Long: `Starts listening for incoming messages on the configured RabbitMQ queue.

Runs until the broker ends the subscription. SIGINT or SIGTERM stops the
receiver and the process exits with status 0.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runReceive(cmd.Context())
		},
	}
}

// runReceive consumes the queue on a separate goroutine and waits for it.
func (a *app) runReceive(ctx context.Context) error {
	settings, b, cleanup, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	receiver := messaging.NewReceiver(b, a.log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", ErrReceiverTask, r)
			}
		}()
		return receiver.Run(gctx, settings.QueueName)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("message receiver error: %w", err)
	}
	return nil
}
