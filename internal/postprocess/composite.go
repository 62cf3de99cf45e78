package postprocess

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"analemma/internal/fileutil"
	"analemma/internal/imaging"
	"analemma/internal/logging"
	"analemma/internal/services"
)

// CreateComposite folds every TIFF under root, except output itself, into a
// per-pixel maximum and writes it to output plus a PNG copy beside it.
// Images whose shape differs from the first are skipped. The TIFF and PNG
// writes are both attempted; a failure of either fails the call without
// removing the other.
func CreateComposite(root, output string, logger *slog.Logger) (string, error) {
	logger = logging.NewComponentLogger(logger, "postprocess")

	files, err := collect(root, tiffExt, output)
	if err != nil {
		return "", services.Wrap(services.ErrPostProcess, "compositing", "scan", root, err)
	}
	if len(files) == 0 {
		return "", services.Wrap(services.ErrPostProcess, "compositing", "scan", "no TIFF files found", nil)
	}
	logger.Info("creating composite", logging.Int("images", len(files)), logging.String("output", output))

	acc, err := readTIFF(files[0])
	if err != nil {
		return "", services.Wrap(services.ErrPostProcess, "compositing", "decode", files[0], err)
	}
	blended := 1
	for _, path := range files[1:] {
		frame, err := readTIFF(path)
		if err == nil {
			err = imaging.Lighten(acc, frame)
		}
		if err != nil {
			logging.WarnWithContext(logger, "skipping image in composite", "composite_skip",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "image is missing from the composite"),
			)
			continue
		}
		blended++
	}

	pngPath := fileutil.ReplaceExt(output, pngExt)
	tiffErr := fileutil.WriteAtomic(output, 0o644, func(w io.Writer) error {
		return imaging.WriteTIFF(w, acc)
	})
	pngErr := fileutil.WriteAtomic(pngPath, 0o644, func(w io.Writer) error {
		return imaging.WritePNG(w, acc)
	})
	if err := errors.Join(tiffErr, pngErr); err != nil {
		return "", services.Wrap(services.ErrPostProcess, "compositing", "write", output, err)
	}
	logger.Info("composite saved",
		logging.String("path", output),
		logging.String("png_path", pngPath),
		logging.Int("blended", blended),
	)
	return output, nil
}

func readTIFF(path string) (imaging.Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return imaging.Frame{}, err
	}
	defer file.Close()
	frame, err := imaging.ReadTIFF(file)
	if err != nil {
		return imaging.Frame{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return frame, nil
}
