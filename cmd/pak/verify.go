package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meigma/pak"
)

var (
	verifyIgnoreNull bool

	verifyCmd = &cobra.Command{
		Use:   "verify <archive>",
		Short: "Run every integrity check and report all findings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive(args[0])
			if err != nil {
				return err
			}
			defer a.Close()

			opts := []pak.VerifyOption{
				pak.VerifyWithSink(func(f pak.Finding) {
					name := f.Filename
					if name == "" {
						name = "<index>"
					}
					fmt.Fprintf(os.Stderr, "%s: %v\n", name, f.Err)
				}),
			}
			if verifyIgnoreNull {
				opts = append(opts, pak.VerifyWithIgnoreNullChecksums())
			}

			findings := a.Verify(opts...)
			if len(findings) > 0 {
				return fmt.Errorf("%d integrity problems", len(findings))
			}
			fmt.Println("ok")
			return nil
		},
	}
)

func init() {
	verifyCmd.Flags().BoolVar(&verifyIgnoreNull, "ignore-null-checksums", false, "skip content hashing for all-zero checksums")
}
