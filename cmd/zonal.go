package cmd

import (
	"ndvi-tools/aggfunc"
	"ndvi-tools/statsio"
	"ndvi-tools/vectortools"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var zonalFlags = []string{"stat", "field", "band", "allTouched", "table", "label"}

// zonalCmd represents the zonal command
var zonalCmd = &cobra.Command{
	Use:   "zonal [polygons] [raster] [output]",
	Short: "Attach a zonal statistic of a raster to every polygon",
	Long: `Compute a statistic of the raster cells inside each polygon and
	save the layer with the statistic as a new column. The output format
	follows the extension: .shp, .gpkg, .geojson/.json or .fgb.

	Polygons are reprojected to the raster CRS when they differ. Nodata
	cells are ignored; polygons without valid cells get an empty value.

	Options:
		--stat:       Statistic to compute, choose from: mean, min, max, sum
		--field:      Name of the new column (default NDVI_mean)
		--band:       1-based raster band to aggregate
		--allTouched: Use every cell touched by a polygon, not only cell centers
		--table:      Also export fid,label,value to a .csv or .parquet file
		--label:      Attribute used as label in the exported table`,
	Args: cobra.ExactArgs(3),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, zonalFlags...)
	},
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevels()
		if err := runZonal(args[0], args[1], args[2]); err != nil {
			logrus.Fatal(err)
		}
	},
}

// checkZonalOutputs rejects an unknown statistic or an output that cannot be
// written before any file is created.
func checkZonalOutputs(out string) error {
	if _, err := aggfunc.Parse(viper.GetString("stat")); err != nil {
		return err
	}
	format, err := vectortools.FormatFor(out)
	if err != nil {
		return err
	}
	if err := format.CheckFieldName(fieldName()); err != nil {
		return err
	}
	if table := viper.GetString("table"); table != "" {
		return statsio.CheckFormat(table)
	}
	return nil
}

func fieldName() string {
	if field := viper.GetString("field"); field != "" {
		return field
	}
	return vectortools.DefaultField
}

func runZonal(polygons, raster, out string) error {
	if err := checkZonalOutputs(out); err != nil {
		return err
	}
	fc, err := vectortools.Open(polygons)
	if err != nil {
		return err
	}

	opts := []vectortools.ZonalOption{vectortools.Band(viper.GetInt("band"))}
	if viper.GetBool("allTouched") {
		opts = append(opts, vectortools.AllTouched())
	}
	field := fieldName()
	if err := fc.ZonalStatsToField(raster, viper.GetString("stat"), field, opts...); err != nil {
		return err
	}
	if err := fc.Save(out); err != nil {
		return err
	}

	table := viper.GetString("table")
	if table == "" {
		return nil
	}
	rows, err := statsio.ZonalRows(fc, field, viper.GetString("label"))
	if err != nil {
		return err
	}
	return statsio.WriteZonal(rows, table)
}

func addZonalFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("stat", "s", "mean", "Statistic to compute, choose from: mean, min, max, sum")
	cmd.Flags().StringP("field", "f", vectortools.DefaultField, "Name of the new column")
	cmd.Flags().IntP("band", "b", 1, "1-based raster band to aggregate")
	cmd.Flags().Bool("allTouched", false, "Use every cell touched by a polygon")
	cmd.Flags().String("table", "", "Export the statistic table to a .csv or .parquet file")
	cmd.Flags().String("label", "", "Attribute used to label rows of the exported table")
}

func init() {
	rootCmd.AddCommand(zonalCmd)
	addZonalFlags(zonalCmd)
}
