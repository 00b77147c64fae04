package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/zoff-tech/go-messenger/pkg/messaging"
)

func (a *app) sendCommand() *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Sends a message to a RabbitMQ queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSend(cmd.Context(), message)
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "Specifies the content of the message to be sent to the queue.")
	cmd.MarkFlagRequired("message")

	return cmd
}

// runSend publishes one message. A failed publish is logged but does not fail
// the command.
func (a *app) runSend(ctx context.Context, message string) error {
	settings, b, cleanup, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	receipt, err := messaging.Send(ctx, b, settings.QueueName, message)
	if err != nil {
		a.log.Error("Failed to publish message", "queue", settings.QueueName, "err", err)
		return nil
	}

	a.log.Info("Successfully sent message",
		"queue", receipt.Queue,
		"size", receipt.Size,
		"confirmed", receipt.Confirmed,
		"message_id", receipt.MessageID,
	)
	return nil
}
