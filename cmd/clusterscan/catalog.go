package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/thebtf/clusterscan/internal/catalog"
	"github.com/thebtf/clusterscan/pkg/units"
)

func catalogCommand(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the known clusters available to probe",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := catalog.Load(a.cfg.CatalogPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(reg.All())
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tRA\tRA_DEG\tDEC\tTIDAL_RADIUS")
			for _, o := range reg.All() {
				fmt.Fprintf(tw, "%s\t%s\t%.6f\t%s\t%.2f'\n",
					o.Name, units.FormatRA(o.RADeg()), o.RADeg(), units.FormatDecimal(o.Dec), o.TidalRadius)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	cmd.Flags().StringVar(&a.cfg.CatalogPath, "catalog", a.cfg.CatalogPath, "YAML file of extra catalog objects")
	return cmd
}
