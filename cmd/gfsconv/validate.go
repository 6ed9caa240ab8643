package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/gfs-grid-etl/internal/adapter/blobstore"
	"github.com/couchcryptid/gfs-grid-etl/internal/adapter/parquet"
	"github.com/couchcryptid/gfs-grid-etl/internal/domain"
)

func (c *cli) newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file|key>",
		Short: "Check a produced table: schema, one row group, and full (i,j) coverage",
		Long: `Validate reads a Parquet table and checks that it has the expected schema,
a single row group, and exactly one row per grid cell in flattening order.
With --bucket the argument is an object key that is downloaded first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if cmd.Flags().Changed("bucket") {
				bucketName, _ := cmd.Flags().GetString("bucket")
				tmp, err := c.fetchTable(cmd, bucketName, args[0])
				if err != nil {
					return err
				}
				defer os.RemoveAll(filepath.Dir(tmp))
				path = tmp
			}

			contents, err := parquet.ReadFile(cmd.Context(), path)
			if err != nil {
				return &validationError{err}
			}
			if contents.RowGroups != 1 {
				return &validationError{fmt.Errorf("table has %d row groups, expected 1", contents.RowGroups)}
			}
			nx, ny, err := contents.Table.Verify()
			if err != nil {
				return &validationError{err}
			}
			if want, _ := cmd.Flags().GetInt("nx"); want > 0 && want != nx {
				return &validationError{fmt.Errorf("grid has nx=%d, expected %d", nx, want)}
			}
			if want, _ := cmd.Flags().GetInt("ny"); want > 0 && want != ny {
				return &validationError{fmt.Errorf("grid has ny=%d, expected %d", ny, want)}
			}
			if want, _ := cmd.Flags().GetString("name"); want != "" && want != contents.ValueName {
				return &validationError{fmt.Errorf("value column is %q, expected %q", contents.ValueName, want)}
			}

			fmt.Fprintf(c.stdout, "ok\t%d rows\t%dx%d\tcolumn %s\tcodec %s\n",
				contents.Table.Len(), nx, ny, contents.ValueName, contents.Codec)
			return nil
		},
	}
	cmd.Flags().String("bucket", "", "Read the table from this bucket name or URL")
	cmd.Flags().Int("nx", 0, "Expected number of columns (0 skips the check)")
	cmd.Flags().Int("ny", 0, "Expected number of rows (0 skips the check)")
	cmd.Flags().String("name", "", "Expected value column name")
	return cmd
}

// fetchTable downloads key into a new temp directory and returns the file path.
func (c *cli) fetchTable(cmd *cobra.Command, bucketName, key string) (string, error) {
	b, err := blobstore.URLOpener{Query: c.cfg.TargetBucketQuery}.Open(cmd.Context(), bucketName)
	if err != nil {
		return "", err
	}
	defer b.Close()

	dir, err := os.MkdirTemp(c.cfg.WorkDir, "gfsconv-*")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "data."+domain.OutputExt)
	f, err := os.Create(path)
	if err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	_, err = b.DownloadRange(cmd.Context(), key, domain.ByteRange{Start: 0, End: domain.ToEOF}, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	c.logger.Debug("downloaded table", "bucket", bucketName, "key", key, "path", path)
	return path, nil
}
