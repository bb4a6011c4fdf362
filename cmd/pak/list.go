package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/meigma/pak"
)

var (
	listDetails bool
	listHuman   bool
	listSort    string
	listReverse bool

	listCmd = &cobra.Command{
		Use:   "list <archive>",
		Short: "List the entries of an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive(args[0])
			if err != nil {
				return err
			}
			defer a.Close()

			records := append([]pak.Record(nil), a.Records()...)
			if err := sortRecords(records, listSort, listReverse); err != nil {
				return err
			}

			if !listDetails {
				for _, rec := range records {
					fmt.Println(rec.Filename)
				}
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "OFFSET\tSIZE\tSTORED\tMETHOD\tSHA1\tNAME")
			for _, rec := range records {
				size := fmt.Sprintf("%d", rec.UncompressedSize)
				stored := fmt.Sprintf("%d", rec.CompressedSize)
				if listHuman {
					size = humanize.IBytes(uint64(rec.UncompressedSize))
					stored = humanize.IBytes(uint64(rec.CompressedSize))
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					rec.Offset, size, stored, rec.Method,
					hex.EncodeToString(rec.Checksum[:]), rec.Filename)
			}
			return w.Flush()
		},
	}
)

// sortRecords orders records by the given key: name (index order),
// offset, size, or zsize (stored size). Ties fall back to filename.
func sortRecords(records []pak.Record, key string, reverse bool) error {
	var less func(a, b *pak.Record) bool
	switch key {
	case "name":
		less = func(a, b *pak.Record) bool { return a.Filename < b.Filename }
	case "offset":
		less = func(a, b *pak.Record) bool { return a.Offset < b.Offset }
	case "size":
		less = func(a, b *pak.Record) bool {
			if a.UncompressedSize != b.UncompressedSize {
				return a.UncompressedSize < b.UncompressedSize
			}
			return a.Filename < b.Filename
		}
	case "zsize":
		less = func(a, b *pak.Record) bool {
			if a.CompressedSize != b.CompressedSize {
				return a.CompressedSize < b.CompressedSize
			}
			return a.Filename < b.Filename
		}
	default:
		return fmt.Errorf("unknown sort key %q (name, offset, size, zsize)", key)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if reverse {
			return less(&records[j], &records[i])
		}
		return less(&records[i], &records[j])
	})
	return nil
}

func init() {
	listCmd.Flags().BoolVarP(&listDetails, "details", "l", false, "show per-entry metadata")
	listCmd.Flags().BoolVarP(&listHuman, "human-readable", "H", false, "print sizes in IEC units")
	listCmd.Flags().StringVar(&listSort, "sort", "name", "sort key: name, offset, size, or zsize")
	listCmd.Flags().BoolVar(&listReverse, "reverse", false, "sort descending")
}
