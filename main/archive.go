package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rtbench/internal/archive"
)

func newArchiveCmd(g *globalFlags) *cobra.Command {
	var bucket, prefix string
	cmd := &cobra.Command{
		Use:   "archive DIR",
		Short: "Upload a data or experiment directory as a .tar.zst to object storage",
		Long: `archive packs DIR into a zstd-compressed tarball and uploads it to an
S3-compatible bucket. The endpoint and credentials come from
RTBENCH_ARCHIVE_ENDPOINT, RTBENCH_ARCHIVE_ACCESS_KEY,
RTBENCH_ARCHIVE_SECRET_KEY, RTBENCH_ARCHIVE_REGION, RTBENCH_ARCHIVE_USE_SSL,
RTBENCH_ARCHIVE_BUCKET and RTBENCH_ARCHIVE_PREFIX.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := g.logger()
			if err != nil {
				return err
			}
			cfg, err := archive.ConfigFromEnv()
			if err != nil {
				return fmt.Errorf("archive config: %w", err)
			}
			if cmd.Flags().Changed("bucket") {
				cfg.Bucket = bucket
			}
			if cmd.Flags().Changed("prefix") {
				cfg.Prefix = prefix
			}
			up, err := archive.NewUploader(cfg, logger)
			if err != nil {
				return err
			}
			key, err := up.Upload(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "s3://%s/%s\n", cfg.Bucket, key)
			return nil
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "override RTBENCH_ARCHIVE_BUCKET")
	cmd.Flags().StringVar(&prefix, "prefix", "", "override RTBENCH_ARCHIVE_PREFIX")
	return cmd
}
