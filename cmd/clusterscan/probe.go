package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thebtf/clusterscan/internal/catalog"
	"github.com/thebtf/clusterscan/internal/figure"
	"github.com/thebtf/clusterscan/internal/gaia"
	"github.com/thebtf/clusterscan/pkg/clustering"
	"github.com/thebtf/clusterscan/pkg/models"
	"github.com/thebtf/clusterscan/pkg/units"
)

func probeCommand(a *app) *cobra.Command {
	var (
		limit     int
		adqlOnly  bool
		drawFig   bool
		allFields bool
	)

	cmd := &cobra.Command{
		Use:   "probe <object>",
		Short: "Query and cluster the field around a known cluster",
		Long: `Probe looks up a named object in the catalog, fetches the stars inside
its tidal radius and runs the same clustering a scan would. Use it to check
eps and min-samples against a cluster that is known to be there.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := catalog.Load(a.cfg.CatalogPath)
			if err != nil {
				return err
			}
			obj, ok := reg.Get(args[0])
			if !ok {
				return fmt.Errorf("unknown object %q (known: %v)", args[0], reg.Names())
			}

			params := gaia.QueryParams{
				Shape:           a.cfg.Shape,
				RA:              obj.RADeg(),
				Dec:             obj.Dec,
				Size:            obj.RadiusDeg(),
				Limit:           limit,
				AllColumns:      allFields,
				OrderByDistance: true,
			}

			out := cmd.OutOrStdout()
			if adqlOnly {
				q, err := gaia.BuildQuery(params)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, q)
				return err
			}

			client, err := a.gaiaClient()
			if err != nil {
				return err
			}

			start := time.Now()
			obs, err := client.Query(cmd.Context(), params)
			if err != nil {
				return fmt.Errorf("query %s: %w", obj.Name, err)
			}
			log.Debug().Int("rows", len(obs)).Dur("took", time.Since(start)).Msg("Probe query done")

			res := clustering.NewDBSCAN(a.cfg.Eps, a.cfg.MinSamples).Cluster(obs)
			fmt.Fprintf(out, "object:     %s\n", obj.Name)
			fmt.Fprintf(out, "position:   %s %s (%s, %s)\n",
				units.FormatRA(obj.RADeg()), units.FormatDec(obj.Dec),
				units.FormatDecimal(obj.RADeg()), units.FormatDecimal(obj.Dec))
			fmt.Fprintf(out, "radius:     %.2f arcmin\n", obj.TidalRadius)
			fmt.Fprintf(out, "stars:      %d\n", res.Total)
			fmt.Fprintf(out, "clusters:   %d\n", res.Clusters)
			fmt.Fprintf(out, "clustered:  %d\n", res.Clustered)
			fmt.Fprintf(out, "score:      %.4f\n", res.Score)

			if !drawFig || res.Clustered == 0 {
				return nil
			}
			r, err := figure.NewRenderer(a.cfg.FiguresDir)
			if err != nil {
				return err
			}
			det := models.Detection{
				RA:        obj.RADeg(),
				Dec:       obj.Dec,
				Score:     res.Score,
				Clustered: res.Clustered,
				Total:     res.Total,
				Clusters:  res.Clusters,
			}
			path, err := r.Render(det, models.PatchData{Observations: obs, Labels: res.Labels})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "figure:     %s\n", path)
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&limit, "limit", 0, "TOP n rows, nearest first (0 = unlimited)")
	f.BoolVar(&adqlOnly, "adql", false, "Print the ADQL query and exit")
	f.BoolVar(&drawFig, "figure", false, "Render a figure when clusters are found")
	f.BoolVar(&allFields, "all-columns", false, "Select every gaia_source column")
	f.Float64Var(&a.cfg.Eps, "eps", a.cfg.Eps, "DBSCAN neighbourhood radius")
	f.IntVar(&a.cfg.MinSamples, "min-samples", a.cfg.MinSamples, "DBSCAN minimum neighbourhood size")
	f.StringVar(&a.cfg.Shape, "shape", a.cfg.Shape, "Query region shape: CIRCLE or BOX")
	f.StringVar(&a.cfg.CatalogPath, "catalog", a.cfg.CatalogPath, "YAML file of extra catalog objects")
	return cmd
}
