package main

import (
	"github.com/spf13/cobra"

	"github.com/meigma/pak/fusefs"
)

var (
	mountAllowOther bool

	mountCmd = &cobra.Command{
		Use:   "mount <archive> <mountpoint>",
		Short: "Serve an archive as a read-only FUSE filesystem",
		Long: "Serve an archive as a read-only FUSE filesystem. Blocks until the\n" +
			"filesystem is unmounted; per-entry format metadata is exposed as\n" +
			"user.pak.* extended attributes.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive(args[0])
			if err != nil {
				return err
			}
			defer a.Close()

			server, err := fusefs.Mount(fusefs.Options{
				Mountpoint: args[1],
				Archive:    a,
				AllowOther: mountAllowOther,
				Logger:     logger(),
			})
			if err != nil {
				return err
			}
			server.Wait()
			return nil
		},
	}
)

func init() {
	mountCmd.Flags().BoolVar(&mountAllowOther, "allow-other", false, "permit other users to access the mount")
}
