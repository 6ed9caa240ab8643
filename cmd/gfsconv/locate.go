package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/gfs-grid-etl/internal/adapter/blobstore"
)

func (c *cli) newLocateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locate <key>",
		Short: "Print the byte range of a variable record from the object's index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucketName, _ := cmd.Flags().GetString("bucket")
			selector := c.cfg.VariableSelector
			stringFlag(cmd, "selector", &selector)

			b, err := blobstore.URLOpener{Query: c.cfg.SourceBucketQuery}.Open(cmd.Context(), bucketName)
			if err != nil {
				return err
			}
			defer b.Close()

			rng, err := b.Locate(cmd.Context(), args[0], selector)
			if err != nil {
				return err
			}

			length := "to end of object"
			if n := rng.Length(); n >= 0 {
				length = fmt.Sprintf("%d bytes", n)
			}
			fmt.Fprintf(c.stdout, "%s\t%s\n", rng, length)
			return nil
		},
	}
	cmd.Flags().String("bucket", DefaultSourceBucket, "Source bucket name or URL")
	cmd.Flags().String("selector", "", "Index line substring (default VARIABLE_SELECTOR)")
	return cmd
}
