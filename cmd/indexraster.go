package cmd

import (
	"ndvi-tools/aggfunc"
	"ndvi-tools/celltools"
	"ndvi-tools/statsio"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// indexrasterCmd represents the indexraster command
var indexrasterCmd = &cobra.Command{
	Use:   "indexraster [raster] [output]",
	Short: "Convert a raster to S2 cells, aggregating over each cell",
	Long: `Convert a GeoTIFF in a geographic CRS to a CSV or Parquet file
	containing S2 cell IDs and aggregated values for the raster cells
	contained. The format follows the output extension.

	Use tiled rasters for best performance. Untiled rasters are read one
	stripe at a time.

	Options:
		--numWorkers: Number of workers to spawn for parallel processing. Not recommended
		              to exceed number of CPU cores.
		--s2Lvl:      S2 cell level to generate results for. Essentially output resolution.
		--aggFunc:    Function to use when aggregating to S2 cell. Default is the mean,
		              choose from: mean, sum, max, min
		--band:       1-based band to index`,
	Args: cobra.ExactArgs(2),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, "numWorkers", "s2Lvl", "aggFunc", "band")
	},
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevels()
		if err := runIndexRaster(args[0], args[1]); err != nil {
			logrus.Fatal(err)
		}
	},
}

func runIndexRaster(src, dst string) error {
	stat, err := aggfunc.Parse(viper.GetString("aggFunc"))
	if err != nil {
		return err
	}
	opts := celltools.ConfigOpts{
		NumWorkers: viper.GetInt("numWorkers"),
		S2Lvl:      viper.GetInt("s2Lvl"),
		Stat:       stat,
		Band:       viper.GetInt("band"),
	}
	cells, err := celltools.RasterToS2(src, opts)
	if err != nil {
		return err
	}
	return statsio.WriteCells(cells, dst)
}

func init() {
	rootCmd.AddCommand(indexrasterCmd)

	indexrasterCmd.Flags().IntP("numWorkers", "n", 8, "Number of workers to spawn for parallel processing")
	indexrasterCmd.Flags().IntP("s2Lvl", "l", 11, "S2 cell level to generate results for. Essentially output resolution")
	indexrasterCmd.Flags().StringP("aggFunc", "a", "mean", "Function to use when aggregating to S2 cell, choose from: mean, sum, max, min")
	indexrasterCmd.Flags().IntP("band", "b", 1, "1-based band to index")
}
