package cmd

import (
	"ndvi-tools/rastertools"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var ndviFlags = []string{"nir", "red"}

// ndviCmd represents the ndvi command
var ndviCmd = &cobra.Command{
	Use:   "ndvi [image] [output.tif]",
	Short: "Compute NDVI from the NIR and red bands of a raster",
	Long: `Compute (NIR - Red) / (NIR + Red) for every cell of a multi-band
	raster and write it as a single-band float32 GeoTIFF with the same
	georeferencing.

	Options:
		--nir: 1-based index of the near-infrared band (default 4)
		--red: 1-based index of the red band (default 3)`,
	Args: cobra.ExactArgs(2),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, ndviFlags...)
	},
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevels()
		if err := runNDVI(args[0], args[1]); err != nil {
			logrus.Fatal(err)
		}
	},
}

func runNDVI(src, dst string) error {
	_, err := rastertools.ComputeNDVI(src, dst, viper.GetInt("nir"), viper.GetInt("red"))
	return err
}

func addNDVIFlags(cmd *cobra.Command) {
	cmd.Flags().Int("nir", rastertools.DefaultNIRBand, "1-based index of the near-infrared band")
	cmd.Flags().Int("red", rastertools.DefaultRedBand, "1-based index of the red band")
}

func init() {
	rootCmd.AddCommand(ndviCmd)
	addNDVIFlags(ndviCmd)
}
