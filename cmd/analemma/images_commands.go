package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"analemma/internal/config"
	"analemma/internal/storage"
)

func newImagesCommand(ctx *commandContext) *cobra.Command {
	imagesCmd := &cobra.Command{
		Use:   "images",
		Short: "Inspect the image archive",
	}

	var month string
	var listJSON bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List archived images",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store := storage.New(cfg.Storage, nil)
			images, err := store.ListImages(month)
			if err != nil {
				return err
			}
			if listJSON {
				return writeJSON(cmd, images)
			}
			out := cmd.OutOrStdout()
			if len(images) == 0 {
				fmt.Fprintln(out, "No images found")
				return nil
			}
			rows := make([][]string, 0, len(images))
			for _, path := range images {
				size := "-"
				if info, err := os.Stat(path); err == nil {
					size = strconv.FormatInt(info.Size()/1024, 10) + " KB"
				}
				rel, err := filepath.Rel(store.BasePath(), path)
				if err != nil {
					rel = path
				}
				rows = append(rows, []string{rel, size})
			}
			fmt.Fprint(out, renderTable([]string{"Image", "Size"}, rows, []columnAlignment{alignLeft, alignRight}))
			fmt.Fprintf(out, "%d image(s) in %s\n", len(images), store.BasePath())
			return nil
		},
	}
	listCmd.Flags().StringVar(&month, "month", "", "Only list images from this month (YYYY-MM)")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")

	var showJSON bool
	showCmd := &cobra.Command{
		Use:   "show <path>",
		Short: "Print the capture metadata of an archived image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, err := resolveImagePath(cfg, args[0])
			if err != nil {
				return err
			}
			meta, err := storage.ReadMetadata(path)
			if err != nil {
				return err
			}
			if showJSON {
				return writeJSON(cmd, meta.Sidecar())
			}
			temperature := "n/a"
			if meta.Temperature != nil {
				temperature = fmt.Sprintf("%.1f °C", *meta.Temperature)
			}
			rows := [][]string{
				{"Image", path},
				{"Capture time", meta.FormatCaptureTime()},
				{"Timezone", meta.Timezone},
				{"Camera", meta.CameraModel},
				{"Exposure", fmt.Sprintf("%d µs (%.6f s)", meta.ExposureUS, meta.ExposureSeconds())},
				{"Gain", strconv.Itoa(meta.Gain)},
				{"Temperature", temperature},
				{"Dimensions", fmt.Sprintf("%dx%d", meta.Width, meta.Height)},
				{"Software", meta.Software()},
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output as JSON")

	imagesCmd.AddCommand(listCmd, showCmd)
	return imagesCmd
}

// resolveImagePath accepts absolute paths, paths relative to the working
// directory, or paths relative to the archive root.
func resolveImagePath(cfg *config.Config, arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	expanded, err := config.ExpandPath(arg)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(expanded); err == nil {
		return expanded, nil
	}
	if !filepath.IsAbs(arg) {
		candidate := filepath.Join(cfg.Storage.BasePath, arg)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("image %q not found", arg)
}
