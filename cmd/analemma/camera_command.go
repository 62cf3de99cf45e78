package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"analemma/internal/camera"
	"analemma/internal/preflight"
)

func newCameraCommand(ctx *commandContext) *cobra.Command {
	cameraCmd := &cobra.Command{
		Use:   "camera",
		Short: "Camera utilities",
	}

	var asJSON bool
	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Connect to the camera and print its properties",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.logger(cfg)
			dev, err := camera.New(cfg.Camera, logger)
			if err != nil {
				return err
			}
			var info camera.Info
			if err := camera.WithSession(cmd.Context(), dev, logger, func(connected camera.Info) error {
				info = connected
				return nil
			}); err != nil {
				return fmt.Errorf("camera unavailable: %w", err)
			}
			probe := preflight.ProbeCamera("", cfg.Camera.USBVendorID)

			if asJSON {
				return writeJSON(cmd, struct {
					Driver string                `json:"driver"`
					Info   camera.Info           `json:"info"`
					USB    preflight.CameraProbe `json:"usb"`
				}{cfg.Camera.Driver, info, probe})
			}

			bins := make([]string, 0, len(info.SupportedBins))
			for _, b := range info.SupportedBins {
				bins = append(bins, strconv.Itoa(b))
			}
			rows := [][]string{
				{"Name", info.Name},
				{"Driver", cfg.Camera.Driver},
				{"Camera ID", strconv.Itoa(info.CameraID)},
				{"Resolution", fmt.Sprintf("%dx%d", info.MaxWidth, info.MaxHeight)},
				{"Color", yesNo(info.IsColor)},
				{"Bayer pattern", info.BayerPattern},
				{"Supported bins", strings.Join(bins, ", ")},
				{"Pixel size", fmt.Sprintf("%.2f µm", info.PixelSize)},
				{"Bit depth", strconv.Itoa(info.BitDepth)},
				{"USB3", yesNo(info.IsUSB3)},
				{"USB device", probe.CameraDetail()},
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Property", "Value"}, rows, nil))
			return nil
		},
	}
	infoCmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	cameraCmd.AddCommand(infoCmd)
	return cameraCmd
}
