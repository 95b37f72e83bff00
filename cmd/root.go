// Package cmd holds the cobra commands of ndvi-tools.
package cmd

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string
var Verbose bool
var Debug bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ndvi-tools",
	Short: "Compute NDVI from multi-band imagery and summarise it per parcel",
	Long: `Derive an NDVI raster from the near-infrared and red bands of a
	satellite image, then attach zonal statistics of it to a polygon layer:

	./ndvi-tools ndvi [opts] [image.tif] [ndvi.tif]
	./ndvi-tools zonal [opts] [parcels.shp] [ndvi.tif] [output.gpkg]
	./ndvi-tools run [opts] [image.tif] [parcels.shp] [ndvi.tif] [output.gpkg]
	./ndvi-tools indexraster [opts] [ndvi.tif] [cells.parquet]`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	rootCmd.PersistentFlags().BoolVarP(&Verbose, "verbose", "v", false, "Verbose output")
	err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	if err != nil {
		logrus.Exit(1)
	}
	rootCmd.PersistentFlags().BoolVarP(&Debug, "debug", "d", false, "Debug output")
	err = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	if err != nil {
		logrus.Exit(1)
	}
}

// initConfig reads the config file given with --config, and lets NDVI_*
// environment variables override any setting.
func initConfig() {
	viper.SetEnvPrefix("NDVI")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if cfgFile == "" {
		return
	}
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		logrus.Fatalf("Reading config %s: %v", cfgFile, err)
	}
	logrus.Debugf("Using config file %s", viper.ConfigFileUsed())
}

func setLogLevels() {
	if viper.GetBool("debug") {
		logrus.SetLevel(logrus.DebugLevel)
	} else if viper.GetBool("verbose") {
		logrus.SetLevel(logrus.InfoLevel)
	} else {
		logrus.SetLevel(logrus.WarnLevel)
	}
}

// bindFlags binds the named local flags of cmd to viper. It runs when the
// command is invoked rather than in init, since several commands share keys.
func bindFlags(cmd *cobra.Command, names ...string) error {
	for _, name := range names {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			continue
		}
		if err := viper.BindPFlag(name, flag); err != nil {
			return err
		}
	}
	return nil
}
