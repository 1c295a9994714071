package cmd

import (
	"context"

	"github.com/google/uuid"
	"github.com/msgdeck/msgdeck/internal/app"
	"github.com/spf13/cobra"
)

var renewUserID string

var subscriptionCommand = &cobra.Command{
	Use:   "subscription",
	Short: "Subscription maintenance",
}

var subscriptionRenewCommand = &cobra.Command{
	Use:   "renew <subscription-id>",
	Short: "Advance a subscription to its next billing period",
	Args:  cobra.ExactArgs(1),
	Run:   renewSubscription,
}

func init() {
	subscriptionRenewCommand.Flags().StringVar(&renewUserID, "user", "", "id of the user performing the renewal")
	_ = subscriptionRenewCommand.MarkFlagRequired("user")

	subscriptionCommand.AddCommand(subscriptionRenewCommand)
}

func renewSubscription(_ *cobra.Command, args []string) {
	ctx := context.Background()

	subscriptionID, err := uuid.Parse(args[0])
	if err != nil {
		exitWithError("invalid subscription id", err)
	}

	userID, err := uuid.Parse(renewUserID)
	if err != nil {
		exitWithError("invalid user id", err)
	}

	service, err := app.New(ctx, resolveConfig())
	if err != nil {
		exitWithError("unable to create app", err)
	}
	defer service.Close()

	if err := service.StartConsumers(); err != nil {
		exitWithError("unable to start event consumers", err)
	}

	result, err := service.Subscriptions().Renew(ctx, userID, subscriptionID)
	if err != nil {
		service.Close()
		exitWithError("unable to renew subscription", err)
	}

	event := service.Logger().Info().
		Str("subscription_id", result.Subscription.ID.String()).
		Time("period_start", result.Subscription.CurrentPeriodStart).
		Time("period_end", result.Subscription.CurrentPeriodEnd)

	if result.Invoice != nil {
		event = event.Str("invoice_number", result.Invoice.InvoiceNumber).Str("total", result.Invoice.Total.StringFixed(2))
	}

	event.Msg("subscription renewed")
}
