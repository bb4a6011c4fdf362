package main

import (
	"encoding/hex"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <archive>",
	Short: "Show archive layout and fragmentation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openArchive(args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		info, err := a.Info()
		if err != nil {
			return err
		}

		fmt.Printf("version:        %d\n", uint32(info.Version))
		fmt.Printf("mount point:    %s\n", info.MountPoint)
		fmt.Printf("files:          %d\n", info.FileCount)
		fmt.Printf("file size:      %s (%d bytes)\n", humanize.IBytes(uint64(info.FileSize)), info.FileSize)
		fmt.Printf("index offset:   %d\n", info.IndexOffset)
		fmt.Printf("index size:     %d\n", info.IndexSize)
		fmt.Printf("index checksum: %s\n", hex.EncodeToString(info.IndexChecksum[:]))
		fmt.Printf("used:           %s (%d bytes)\n", humanize.IBytes(uint64(info.UsedBytes)), info.UsedBytes)
		fmt.Printf("free:           %s (%d bytes)\n", humanize.IBytes(uint64(info.FreeBytes)), info.FreeBytes)
		if len(info.FreeRanges) > 0 {
			fmt.Println("gaps:")
			for _, r := range info.FreeRanges {
				fmt.Printf("  [%d, %d) %s\n", r.Start, r.End, humanize.IBytes(uint64(r.Len())))
			}
		}
		return nil
	},
}
