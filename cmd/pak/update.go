package main

import (
	"github.com/spf13/cobra"

	"github.com/meigma/pak"
)

var (
	updateInserts    []string
	updateRemoves    []string
	updateMountPoint string

	updateCmd = &cobra.Command{
		Use:   "update <archive>",
		Short: "Rewrite an archive in place, removing and inserting entries",
		Long: "Rewrite an archive in place, removing and inserting entries with\n" +
			"minimal shifting. The rewrite is destructive: an error mid-commit\n" +
			"leaves the archive corrupted, so keep a copy of anything precious.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []pak.UpdateOption{pak.UpdateWithLogger(logger())}
			if len(updateInserts) > 0 {
				opts = append(opts, pak.UpdateWithInsert(updateInserts...))
			}
			if len(updateRemoves) > 0 {
				opts = append(opts, pak.UpdateWithRemove(updateRemoves...))
			}
			if updateMountPoint != "" {
				opts = append(opts, pak.UpdateWithMountPoint(updateMountPoint))
			}
			if ignoreMagic {
				opts = append(opts, pak.UpdateWithIgnoreMagic())
			}
			if forceVersion != 0 {
				opts = append(opts, pak.UpdateWithForceVersion(pak.Version(forceVersion)))
			}
			return pak.Update(args[0], opts...)
		},
	}
)

func init() {
	updateCmd.Flags().StringArrayVarP(&updateInserts, "insert", "i", nil, "file or directory to insert (repeatable)")
	updateCmd.Flags().StringArrayVarP(&updateRemoves, "remove", "r", nil, "entry to remove (repeatable)")
	updateCmd.Flags().StringVar(&updateMountPoint, "mount-point", "", "replace the stored mount point")
}
