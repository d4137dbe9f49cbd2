// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the epaper CLI. It downloads a dated
// Daily Times e-paper issue as a single PDF and keeps a catalog of the
// issues it has archived.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time via ldflags.
var version = "dev"

// appName names the config file and the XDG subdirectories.
const appName = "epaper"

// rootCmd is the base command for the epaper CLI.
var rootCmd = &cobra.Command{
	Use:   "epaper",
	Short: "Download Daily Times e-paper issues as PDF",
	Long: `epaper resolves a dated e-paper issue, downloads its page images in
order and merges them into one PDF in the archive directory.

Settings come from flags, from EPAPER_* environment variables, or from
epaper.yaml in the current directory or the XDG config directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./epaper.yaml or $XDG_CONFIG_HOME/epaper/epaper.yaml)")
}

func initConfig() {
	setDefaults()

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(appName)
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath(filepath.Join(xdg.ConfigHome, appName))
	}

	viper.SetEnvPrefix("EPAPER")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// exitError carries the process exit code of a failed command. Its message
// has already been printed.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// exitCode maps a command error to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		var ee *exitError
		if !errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	os.Exit(exitCode(err))
}
