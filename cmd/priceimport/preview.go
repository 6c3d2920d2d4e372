package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/dealerprice/internal/core"
)

type fileFlags struct {
	dealerID  int64
	file      string
	format    string
	separator string
	codepage  string
}

func (f *fileFlags) register(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&f.dealerID, "dealer", 0, "dealer id")
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "price list file")
	cmd.Flags().StringVar(&f.format, "format", "", "container override: xls, xlsx, dbf, csv")
	cmd.Flags().StringVar(&f.separator, "separator", "", `csv separator: ";", "," or "tab" (default: dealer's)`)
	cmd.Flags().StringVar(&f.codepage, "codepage", "", "text encoding, e.g. cp866, cp1251")
	cmd.MarkFlagRequired("dealer")
	cmd.MarkFlagRequired("file")
}

func newPreviewCmd(flags *globalFlags) *cobra.Command {
	var (
		ff     fileFlags
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Decode a price list and print its header and first rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer e.close()

			res, err := e.service.Preview(cmd.Context(), core.PreviewRequest{
				DealerID:  ff.dealerID,
				Path:      ff.file,
				Format:    ff.format,
				Separator: ff.separator,
				Codepage:  ff.codepage,
			})
			if err != nil {
				return userError(err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			return printPreview(cmd, res)
		},
	}

	ff.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the preview as JSON")
	return cmd
}

func printPreview(cmd *cobra.Command, res *core.PreviewResult) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "format: %s, rows: %d\n\n", res.Format, res.TotalRows)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	idx := make([]string, len(res.Header))
	for i := range res.Header {
		idx[i] = fmt.Sprintf("[%d]", i)
	}
	fmt.Fprintln(tw, strings.Join(idx, "\t"))
	fmt.Fprintln(tw, strings.Join(res.Header, "\t"))
	for _, row := range res.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(res.Mapping) > 0 {
		fmt.Fprintln(out, "\nsaved mapping:")
		for col := range res.Header {
			if opt, ok := res.Mapping[col]; ok && opt.Name != "" {
				fmt.Fprintf(out, "  [%d] %s -> %s\n", col, res.Header[col], opt.Name)
			}
		}
	}
	return nil
}

// userError prefixes a pipeline error with its user-facing message.
func userError(err error) error {
	return fmt.Errorf("%s: %w", core.FormatUserError(err), err)
}
