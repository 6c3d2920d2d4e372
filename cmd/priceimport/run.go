package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/dealerprice/internal/core"
	"github.com/JonMunkholm/dealerprice/internal/mapping"
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	var (
		ff          fileFlags
		mappingPath string
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Import a price list, replacing the dealer's products",
		Long: `run decodes the file, applies the column mapping and replaces every product
of the dealer. Without --mapping the mapping saved by the dealer's last
successful import is used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer e.close()

			m, err := loadMapping(cmd, e, ff.dealerID, mappingPath)
			if err != nil {
				return err
			}

			res, runErr := e.service.RunImport(cmd.Context(), core.ImportRequest{
				DealerID:  ff.dealerID,
				Path:      ff.file,
				Format:    ff.format,
				Separator: ff.separator,
				Codepage:  ff.codepage,
				Mapping:   m,
			})
			if res != nil {
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					if err := enc.Encode(res); err != nil {
						return err
					}
				} else {
					printResult(cmd.OutOrStdout(), res)
				}
			}
			if runErr != nil {
				return userError(runErr)
			}
			return nil
		},
	}

	ff.register(cmd)
	cmd.Flags().StringVarP(&mappingPath, "mapping", "m", "", "column mapping file (.yaml or .json)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func loadMapping(cmd *cobra.Command, e *env, dealerID int64, path string) (*mapping.ColumnMapping, error) {
	if path != "" {
		return mapping.LoadFile(path)
	}

	dealer, err := e.store.GetDealer(cmd.Context(), dealerID)
	if err != nil {
		return nil, userError(err)
	}
	if len(dealer.Mapping) == 0 {
		return nil, userError(fmt.Errorf("dealer %d has no saved mapping; pass --mapping: %w", dealerID, core.ErrNoMapping))
	}
	return mapping.ParseJSON(dealer.Mapping)
}

func printResult(out io.Writer, res *core.ImportResult) {
	fmt.Fprintf(out, "import %s: %s\n", res.ImportID, res.Status)
	fmt.Fprintf(out, "  file:         %s (%s)\n", res.FileName, res.FormatName)
	fmt.Fprintf(out, "  rows:         %d decoded, %d filtered out, %d kept\n", res.TotalRows, res.FilteredOut, res.Kept)
	fmt.Fprintf(out, "  records:      %d assembled\n", res.Assembled)
	fmt.Fprintf(out, "  issues:       %d missing name, %d coercions, %d unknown currencies\n",
		res.MissingName, res.Coercions, res.UnknownCurrencies)
	fmt.Fprintf(out, "  products:     %d deleted, %d inserted in %d batches\n", res.Deleted, res.Inserted, res.Batches)
	if res.ManufacturersCreated > 0 {
		fmt.Fprintf(out, "  brands:       %d created\n", res.ManufacturersCreated)
	}
	fmt.Fprintf(out, "  duration:     %s\n", res.Duration.Round(time.Millisecond))
	if res.ErrorCode == "IMP001" {
		fmt.Fprintln(out, "  WARNING: the dealer's products were only partly replaced; run the import again")
	}
}
