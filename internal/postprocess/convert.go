package postprocess

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"analemma/internal/fileutil"
	"analemma/internal/imaging"
	"analemma/internal/logging"
	"analemma/internal/services"
)

const (
	fitsExt = ".fits"
	tiffExt = ".tif"
	pngExt  = ".png"
)

// ConvertFITSToTIFF writes a TIFF next to fitsPath with the same stem and
// returns its path. Pixel values are copied verbatim.
func ConvertFITSToTIFF(fitsPath string) (string, error) {
	tiffPath := fileutil.ReplaceExt(fitsPath, tiffExt)

	file, err := os.Open(fitsPath)
	if err != nil {
		return "", services.Wrap(services.ErrPostProcess, "converting", "open", fitsPath, err)
	}
	defer file.Close()

	frame, _, err := imaging.ReadFITS(file)
	if err != nil {
		if errors.Is(err, imaging.ErrNoData) {
			return "", services.Wrap(services.ErrPostProcess, "converting", "decode",
				fmt.Sprintf("no image data in %s", fitsPath), err)
		}
		return "", services.Wrap(services.ErrPostProcess, "converting", "decode",
			fmt.Sprintf("failed to convert %s to TIFF", fitsPath), err)
	}

	err = fileutil.WriteAtomic(tiffPath, 0o644, func(w io.Writer) error {
		return imaging.WriteTIFF(w, frame)
	})
	if err != nil {
		return "", services.Wrap(services.ErrPostProcess, "converting", "write", tiffPath, err)
	}
	return tiffPath, nil
}

// BatchResult summarizes a BatchConvert run.
type BatchResult struct {
	Converted []string `json:"converted"`
	Skipped   []string `json:"skipped"`
	Failed    []string `json:"failed"`
}

// BatchConvert converts every FITS file under root. Files that already have a
// TIFF sibling are skipped unless force is set. Per-file failures are logged
// and the batch continues.
func BatchConvert(root string, force bool, logger *slog.Logger) (BatchResult, error) {
	logger = logging.NewComponentLogger(logger, "postprocess")
	var result BatchResult

	files, err := collect(root, fitsExt, "")
	if err != nil {
		return result, services.Wrap(services.ErrPostProcess, "converting", "scan", root, err)
	}
	for _, fitsPath := range files {
		tiffPath := fileutil.ReplaceExt(fitsPath, tiffExt)
		if !force && fileutil.Exists(tiffPath) {
			logger.Debug("tiff already exists; skipping", logging.String("path", fitsPath))
			result.Skipped = append(result.Skipped, fitsPath)
			continue
		}
		out, err := ConvertFITSToTIFF(fitsPath)
		if err != nil {
			logging.ErrorWithContext(logger, "conversion failed", "conversion_failed",
				logging.String("path", fitsPath),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "inspect the FITS file; re-run convert --force once fixed"),
			)
			result.Failed = append(result.Failed, fitsPath)
			continue
		}
		result.Converted = append(result.Converted, out)
	}
	logger.Info("batch conversion complete",
		logging.Int("converted", len(result.Converted)),
		logging.Int("skipped", len(result.Skipped)),
		logging.Int("failed", len(result.Failed)),
	)
	return result, nil
}

// collect returns sorted files under root with the given extension, leaving
// out exclude when set. A missing root yields no files.
func collect(root, ext, exclude string) ([]string, error) {
	if exclude != "" {
		exclude = filepath.Clean(exclude)
	}
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == root {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ext) {
			return nil
		}
		if exclude != "" && filepath.Clean(path) == exclude {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
