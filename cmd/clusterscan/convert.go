package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thebtf/clusterscan/pkg/units"
)

func convertCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert between sexagesimal and decimal coordinates",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:     "ra <hh:mm:ss>",
			Short:   "Convert a sexagesimal right ascension to degrees",
			Example: "  clusterscan convert ra 17:40:42.09",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := units.ParseRA(args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), units.FormatDecimal(v))
				return err
			},
		},
		&cobra.Command{
			Use:     "dec <dd:mm:ss>",
			Short:   "Convert a sexagesimal declination to degrees",
			Example: "  clusterscan convert dec -53:40:27.6",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := units.ParseDec(args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), units.FormatDecimal(v))
				return err
			},
		},
		&cobra.Command{
			Use:   "deg <ra_deg> [dec_deg]",
			Short: "Format decimal degrees as sexagesimal",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				out := cmd.OutOrStdout()
				ra, err := parseFloat(args[0])
				if err != nil {
					return err
				}
				if len(args) == 1 {
					_, err = fmt.Fprintln(out, units.FormatRA(ra))
					return err
				}
				dec, err := parseFloat(args[1])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(out, "%s %s\n", units.FormatRA(ra), units.FormatDec(dec))
				return err
			},
		},
	)
	return cmd
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}
