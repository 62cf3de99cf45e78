package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"analemma/internal/config"
	"analemma/internal/postprocess"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var root string
	var force bool
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert archived FITS files to TIFF",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dir, err := resolveRoot(cfg, root)
			if err != nil {
				return err
			}
			result, err := postprocess.BatchConvert(dir, force || cfg.PostProcess.ForceConvert, ctx.logger(cfg))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Converted: %d\n", len(result.Converted))
			fmt.Fprintf(out, "Skipped:   %d\n", len(result.Skipped))
			fmt.Fprintf(out, "Failed:    %d\n", len(result.Failed))
			for _, path := range result.Failed {
				fmt.Fprintf(out, "  %s\n", path)
			}
			if len(result.Failed) > 0 {
				return fmt.Errorf("%d file(s) failed to convert", len(result.Failed))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "Directory to scan (defaults to storage.base_path)")
	cmd.Flags().BoolVar(&force, "force", false, "Reconvert files that already have a TIFF")
	return cmd
}

func newCompositeCommand(ctx *commandContext) *cobra.Command {
	var root string
	var output string
	cmd := &cobra.Command{
		Use:   "composite",
		Short: "Blend all archived TIFFs into the analemma composite",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dir, err := resolveRoot(cfg, root)
			if err != nil {
				return err
			}
			target := cfg.CompositePath()
			if strings.TrimSpace(output) != "" {
				if target, err = config.ExpandPath(output); err != nil {
					return err
				}
			}
			path, err := postprocess.CreateComposite(dir, target, ctx.logger(cfg))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Composite written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "Directory to scan (defaults to storage.base_path)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Composite TIFF path (defaults to postprocess.composite_path)")
	return cmd
}

func newSyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Copy the archive to the configured remote",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			syncer := postprocess.NewSyncer(cfg.Sync, cfg.SyncBinary(), cfg.Storage.BasePath, ctx.logger(cfg))
			if !syncer.Enabled() {
				return errors.New("sync is disabled; set sync.enabled and sync.remote in the config")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Running %s %s\n", cfg.SyncBinary(), strings.Join(syncer.Args(), " "))
			if !syncer.Sync(cmd.Context()) {
				return errors.New("sync failed; see log output for details")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Sync complete")
			return nil
		},
	}
}

func resolveRoot(cfg *config.Config, root string) (string, error) {
	if strings.TrimSpace(root) == "" {
		return cfg.Storage.BasePath, nil
	}
	return config.ExpandPath(root)
}
