package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/meigma/pak"
)

var (
	verbose      bool
	ignoreMagic  bool
	forceVersion uint32

	rootCmd = &cobra.Command{
		Use:           "pak",
		Short:         "Inspect and manipulate pak archives",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug output")
	rootCmd.PersistentFlags().BoolVar(&ignoreMagic, "ignore-magic", false, "skip footer magic validation")
	rootCmd.PersistentFlags().Uint32Var(&forceVersion, "force-version", 0, "override the footer's schema version")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(unpackCmd)
	rootCmd.AddCommand(packCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(mountCmd)
}

// logger builds the CLI logger: debug to stderr when verbose, info
// otherwise.
func logger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openArchive applies the shared open flags.
func openArchive(path string) (*pak.Archive, error) {
	opts := []pak.OpenOption{pak.WithLogger(logger())}
	if ignoreMagic {
		opts = append(opts, pak.WithIgnoreMagic())
	}
	if forceVersion != 0 {
		opts = append(opts, pak.WithForceVersion(pak.Version(forceVersion)))
	}
	return pak.Open(path, opts...)
}
