package main

import (
	"github.com/spf13/cobra"

	"github.com/meigma/pak"
)

var (
	packVersion    uint32
	packMountPoint string
	packZlib       bool
	packBlockSize  uint32

	packCmd = &cobra.Command{
		Use:   "pack <archive> <file-or-dir>...",
		Short: "Create an archive from files and directories",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []pak.PackOption{
				pak.PackWithVersion(pak.Version(packVersion)),
				pak.PackWithMountPoint(packMountPoint),
				pak.PackWithLogger(logger()),
			}
			if packZlib {
				opts = append(opts, pak.PackWithCompression(pak.CompressionZlib))
			}
			if packBlockSize != 0 {
				opts = append(opts, pak.PackWithBlockSize(packBlockSize))
			}
			return pak.Pack(args[0], args[1:], opts...)
		},
	}
)

func init() {
	packCmd.Flags().Uint32Var(&packVersion, "version", 3, "schema version to write (1, 2, or 3)")
	packCmd.Flags().StringVar(&packMountPoint, "mount-point", pak.DefaultMountPoint, "mount point prefix to store")
	packCmd.Flags().BoolVarP(&packZlib, "zlib", "z", false, "compress entries with zlib (version 3 only)")
	packCmd.Flags().Uint32Var(&packBlockSize, "block-size", 0, "compression block size (default 64 KiB)")
}
