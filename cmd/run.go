package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// runCmd chains ndvi and zonal, aggregating band 1 of the new NDVI raster.
var runCmd = &cobra.Command{
	Use:   "run [image] [polygons] [ndvi.tif] [output]",
	Short: "Compute NDVI and attach its zonal statistic to a polygon layer",
	Long: `Run the whole workflow: write the NDVI of [image] to [ndvi.tif],
	then aggregate it per polygon of [polygons] and save the result to
	[output]. Accepts the flags of both the ndvi and zonal commands.`,
	Args: cobra.ExactArgs(4),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, append(ndviFlags, zonalFlags...)...)
	},
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevels()
		if err := runPipeline(args[0], args[1], args[2], args[3]); err != nil {
			logrus.Fatal(err)
		}
	},
}

func runPipeline(image, polygons, ndviPath, out string) error {
	if err := checkZonalOutputs(out); err != nil {
		return err
	}
	if err := runNDVI(image, ndviPath); err != nil {
		return err
	}
	return runZonal(polygons, ndviPath, out)
}

func init() {
	rootCmd.AddCommand(runCmd)
	addNDVIFlags(runCmd)
	addZonalFlags(runCmd)
	// The NDVI raster always has a single band.
	if err := runCmd.Flags().MarkHidden("band"); err != nil {
		logrus.Exit(1)
	}
}
