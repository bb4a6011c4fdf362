package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meigma/pak"
)

var (
	unpackDest    string
	unpackWorkers int

	unpackCmd = &cobra.Command{
		Use:   "unpack <archive> [path...]",
		Short: "Extract entries to a directory",
		Long: "Extract entries to a directory. With no paths, the whole archive\n" +
			"is extracted; otherwise only the named entries and directory\n" +
			"prefixes are.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive(args[0])
			if err != nil {
				return err
			}
			defer a.Close()

			opts := []pak.UnpackOption{
				pak.UnpackWithWorkers(unpackWorkers),
				pak.UnpackWithLogger(logger()),
			}
			if len(args) > 1 {
				opts = append(opts, pak.UnpackWithPaths(args[1:]...))
			}
			if verbose {
				opts = append(opts, pak.UnpackWithProgress(func(name string) {
					fmt.Println(name)
				}))
			}
			return a.Unpack(unpackDest, opts...)
		},
	}
)

func init() {
	unpackCmd.Flags().StringVarP(&unpackDest, "dest", "C", ".", "destination directory")
	unpackCmd.Flags().IntVarP(&unpackWorkers, "workers", "w", 1, "parallel extractions (0 = one per CPU)")
}
