package cmd

import (
	"context"
	"os"
	"strconv"

	"github.com/msgdeck/msgdeck/internal/app"
	"github.com/msgdeck/msgdeck/internal/store"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var listAllPlans bool

var plansCommand = &cobra.Command{
	Use:   "plans",
	Short: "Plan catalog",
}

var plansListCommand = &cobra.Command{
	Use:   "list",
	Short: "Print the plan catalog",
	Run:   listPlans,
}

func init() {
	plansListCommand.Flags().BoolVar(&listAllPlans, "all", false, "include inactive and private plans")
	plansCommand.AddCommand(plansListCommand)
}

func listPlans(_ *cobra.Command, _ []string) {
	ctx := context.Background()

	service, err := app.New(ctx, resolveConfig())
	if err != nil {
		exitWithError("unable to create app", err)
	}
	defer service.Close()

	var plans []*store.Plan
	if listAllPlans {
		plans, err = service.Plans().ListPlans(ctx)
	} else {
		plans, err = service.Plans().ListPublicPlans(ctx)
	}

	if err != nil {
		exitWithError("unable to list plans", err)
	}

	renderPlans(plans)
}

func renderPlans(plans []*store.Plan) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Name", "Price", "Cycle", "Trial days", "Messages/month", "Instances", "Active"})
	table.SetAutoWrapText(false)

	for _, p := range plans {
		table.Append([]string{
			p.ID.String(),
			p.Name,
			p.Price.StringFixed(2) + " " + p.Currency,
			p.BillingCycle.String(),
			strconv.Itoa(p.TrialDays),
			formatLimit(p.MaxMessagesPerMonth),
			formatLimit(p.MaxWhatsappInstances),
			strconv.FormatBool(p.IsActive),
		})
	}

	table.Render()
}

func formatLimit(limit *int64) string {
	if limit == nil {
		return "unlimited"
	}

	return strconv.FormatInt(*limit, 10)
}
