// Package main 是存储检查工具的入口点：列出存储桶及其可见性，
// 确认期望的存储桶是否存在，并展示其中的若干对象。
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"stututor-go/internal/config"
	"stututor-go/pkg/storage"
)

const defaultSample = 5

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		sample     int
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:          "storagecheck",
		Short:        "Check the object storage used for PDF uploads",
		Long:         `Connects to MinIO, lists buckets with their visibility, checks that the configured bucket exists and prints a few sample objects.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			store, err := storage.NewMinioStore(cfg.MinIO)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			report, err := store.Inspect(ctx, sample)
			if err != nil {
				return fmt.Errorf("检查存储失败: %w", err)
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "./configs/config.yaml", "config file path")
	cmd.Flags().IntVarP(&sample, "sample", "n", defaultSample, "number of sample objects to list")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall timeout")
	return cmd
}

func printReport(w io.Writer, r *storage.Report) {
	fmt.Fprintf(w, "Buckets (%d):\n", len(r.Buckets))
	for _, b := range r.Buckets {
		visibility := "private"
		if b.Public {
			visibility = "public"
		}
		fmt.Fprintf(w, "  - %s (%s)\n", b.Name, visibility)
	}

	if !r.ExpectedExists {
		fmt.Fprintf(w, "\nBucket %q does not exist\n", r.ExpectedBucket)
		return
	}
	fmt.Fprintf(w, "\nBucket %q exists\n", r.ExpectedBucket)
	if len(r.Objects) == 0 {
		fmt.Fprintln(w, "  (no objects)")
		return
	}
	fmt.Fprintf(w, "Sample objects (%d):\n", len(r.Objects))
	for _, o := range r.Objects {
		fmt.Fprintf(w, "  - %s  %d bytes  %s\n", o.Key, o.Size, o.LastModified.Format(time.RFC3339))
	}
}
