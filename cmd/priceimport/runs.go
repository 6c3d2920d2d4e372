package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newRunsCmd(flags *globalFlags) *cobra.Command {
	var (
		dealerID int64
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List a dealer's recent imports",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer e.close()

			runs, err := e.store.ListImportRuns(cmd.Context(), dealerID, limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tSTATUS\tFILE\tROWS\tINSERTED\tERROR")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
					r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Status, r.FileName, r.TotalRows, r.Inserted, r.Error)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().Int64Var(&dealerID, "dealer", 0, "dealer id")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	cmd.MarkFlagRequired("dealer")
	return cmd
}
