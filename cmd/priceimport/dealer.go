package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/dealerprice/internal/catalog"
	"github.com/JonMunkholm/dealerprice/internal/decode"
)

func newDealerCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dealer",
		Short: "Manage dealers",
	}
	cmd.AddCommand(newDealerCreateCmd(flags), newDealerShowCmd(flags))
	return cmd
}

func newDealerCreateCmd(flags *globalFlags) *cobra.Command {
	var (
		name      string
		currency  string
		separator string
		provider  string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a dealer",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, ok := catalog.ParseCurrency(currency)
			if !ok {
				return fmt.Errorf("unknown currency %q", currency)
			}
			if _, err := decode.ParseSeparator(separator); err != nil {
				return err
			}

			e, err := setup(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer e.close()

			d := catalog.Dealer{Name: name, BaseCurrency: base, Separator: separator}
			if provider != "" {
				id, err := e.store.CreateProvider(cmd.Context(), provider)
				if err != nil {
					return err
				}
				d.ProviderID = &id
			}

			d, err = e.store.CreateDealer(cmd.Context(), d)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created dealer %d (%s)\n", d.ID, d.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "dealer name")
	cmd.Flags().StringVar(&currency, "currency", "RUB", "base currency (ISO code)")
	cmd.Flags().StringVar(&separator, "separator", ";", "default csv separator")
	cmd.Flags().StringVar(&provider, "provider", "", "create and attach a provider with this name")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newDealerShowCmd(flags *globalFlags) *cobra.Command {
	var dealerID int64

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a dealer and its last import",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer e.close()

			d, err := e.store.GetDealer(cmd.Context(), dealerID)
			if err != nil {
				return userError(err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "id\t%d\n", d.ID)
			fmt.Fprintf(tw, "name\t%s\n", d.Name)
			fmt.Fprintf(tw, "currency\t%s\n", d.BaseCurrency)
			fmt.Fprintf(tw, "separator\t%q\n", d.Separator)
			if d.FileType != nil {
				fmt.Fprintf(tw, "file type\t%s\n", *d.FileType)
			}
			if d.LastUpload != nil {
				fmt.Fprintf(tw, "last upload\t%s (%s)\n", d.LastUpload.Format("2006-01-02 15:04"), d.LastUploadedFile)
			}
			fmt.Fprintf(tw, "saved mapping\t%v\n", len(d.Mapping) > 0)
			return tw.Flush()
		},
	}

	cmd.Flags().Int64Var(&dealerID, "dealer", 0, "dealer id")
	cmd.MarkFlagRequired("dealer")
	return cmd
}
