package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jrsteele09/solugarde-client/api"
	"github.com/jrsteele09/solugarde-client/health"
	"github.com/spf13/cobra"
)

func newHealthCommand(a *app) *cobra.Command {
	var retries int
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "health",
		Args:  cobra.NoArgs,
		Short: "Check that the API is reachable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := health.Check(cmd.Context(), a.client(), health.WithRetries(retries), health.WithTimeout(timeout))
			if !r.Healthy {
				return fmt.Errorf("%s is unhealthy: %s", r.APIURL, r.Error)
			}
			printf("%s is healthy (%s)", r.APIURL, r.ResponseTime.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().IntVar(&retries, "retries", health.DefaultRetries, "attempts before giving up")
	cmd.Flags().DurationVar(&timeout, "timeout", health.DefaultTimeout, "timeout per attempt")
	return cmd
}

func newGarderiesCommand(a *app) *cobra.Command {
	var q api.GarderieQuery
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "garderies",
		Args:  cobra.NoArgs,
		Short: "List daycares",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.restore(cmd.Context()); err != nil {
				return err
			}
			if activeOnly {
				active := true
				q.IsActive = &active
			}
			page, err := a.client().ListGarderies(cmd.Context(), q)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tREGION\tACTIVE\tUSERS")
			for _, g := range page.Data {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\n", g.ID, g.Name, g.Region, g.IsActive, g.UserCount)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			printf("page %d of %d (%d total)", page.Page, page.TotalPages, page.Total)
			return nil
		},
	}
	cmd.Flags().IntVar(&q.Page.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&q.Limit, "limit", 20, "page size")
	cmd.Flags().StringVar(&q.Search, "search", "", "filter by name")
	cmd.Flags().StringVar(&q.Region, "region", "", "filter by region")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only active daycares")
	return cmd
}
