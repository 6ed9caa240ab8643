package main

import (
	"encoding/json"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/gfs-grid-etl/internal/app"
	"github.com/couchcryptid/gfs-grid-etl/internal/domain"
	"github.com/couchcryptid/gfs-grid-etl/internal/observability"
)

// DefaultSourceBucket is the NOAA open data bucket for GFS.
const DefaultSourceBucket = "noaa-gfs-bdp-pds"

func (c *cli) newConvertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert <key>",
		Short: "Convert one forecast object and print the completion event",
		Example: `  gfsconv convert gfs.20210607/12/atmos/gfs.t12z.pgrb2.0p25.f003 --target file:///tmp/gfs-parquet
  gfsconv convert gfs.20210607/12/atmos/gfs.t12z.pgrb2.0p25.f003 --selector ":UGRD:10 m above ground:" --name u10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *c.cfg
			stringFlag(cmd, "selector", &cfg.VariableSelector)
			stringFlag(cmd, "name", &cfg.VariableName)
			stringFlag(cmd, "compression", &cfg.OutputCompression)
			stringFlag(cmd, "target", &cfg.TargetBucket)
			stringFlag(cmd, "work-dir", &cfg.WorkDir)
			stringFlag(cmd, "wgrib2", &cfg.Wgrib2Path)
			bucket, _ := cmd.Flags().GetString("bucket")
			if err := domain.ValidateValueName(cfg.VariableName); err != nil {
				return &usageError{err}
			}

			conv, err := app.NewConverter(&cfg, c.logger, observability.NewMetricsWith(prometheus.NewRegistry()))
			if err != nil {
				return &usageError{err}
			}

			res, err := conv.Convert(cmd.Context(), domain.ObjectKey{Bucket: bucket, Key: args[0]})
			if err != nil {
				return err
			}
			if res.Skipped {
				c.logger.Warn("key is not a GFS 0.25° forecast file, nothing converted", "key", args[0])
				return nil
			}

			enc := json.NewEncoder(c.stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res.Event)
		},
	}
	cmd.Flags().String("bucket", DefaultSourceBucket, "Source bucket name or URL")
	cmd.Flags().String("selector", "", "Index line substring (default VARIABLE_SELECTOR)")
	cmd.Flags().String("name", "", "Value column name (default VARIABLE_NAME)")
	cmd.Flags().String("compression", "", "gzip|snappy|zstd|brotli|lz4|none (default OUTPUT_COMPRESSION)")
	cmd.Flags().String("target", "", "Destination bucket name or URL (default TARGET_BUCKET)")
	cmd.Flags().String("work-dir", "", "Scratch directory (default WORK_DIR)")
	cmd.Flags().String("wgrib2", "", "wgrib2 executable (default WGRIB2_PATH)")
	return cmd
}

// stringFlag overwrites dst with the flag value when the flag was set.
func stringFlag(cmd *cobra.Command, name string, dst *string) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetString(name)
	}
}
