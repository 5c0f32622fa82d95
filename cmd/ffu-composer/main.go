package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	exitSuccess          = 0
	exitFatal            = 1
	exitValidationFailed = 2
	exitCancelled        = 3
)

var configPath string

// exitError carries a process exit code through cobra's RunE chain.
type exitError struct {
	code    int
	message string
}

func (e exitError) Error() string {
	return e.message
}

var rootCmd = &cobra.Command{
	Use:          "ffu-composer",
	Short:        "Build Windows FFU deployment images",
	Long:         "ffu-composer drives a Windows FFU image build: validation, driver\ndownload, scratch VHDX, build VM, FFU capture and deployment media.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "ffu-composer.toml", "path to the build configuration")
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(preflightCmd)
	rootCmd.AddCommand(cleanupCmd)
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		os.Exit(exitFatal)
	}
}
