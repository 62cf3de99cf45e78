package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"analemma/internal/config"
	"analemma/internal/fileutil"
	"analemma/internal/imaging"
	"analemma/internal/logging"
	"analemma/internal/metadata"
	"analemma/internal/services"
)

// Supported save formats.
const (
	FormatFITS = "fits"
	FormatPNG  = "png"
)

const (
	filePrefix      = "analemma_"
	fileStampLayout = "20060102_150405"
	monthLayout     = "2006-01"
	sidecarExt      = ".json"
	bytesPerMB      = 1024 * 1024
	stage           = "persisting"
)

// Info describes the archive filesystem. It is recomputed on demand.
// Used plus free need not equal total because of reserved blocks.
type Info struct {
	BasePath   string `json:"base_path"`
	TotalBytes uint64 `json:"total_bytes"`
	UsedBytes  uint64 `json:"used_bytes"`
	FreeBytes  uint64 `json:"free_bytes"`
	ImageCount int    `json:"image_count"`
}

// FreeMB returns free space in mebibytes.
func (i Info) FreeMB() float64 {
	return float64(i.FreeBytes) / bytesPerMB
}

// Storage manages the image archive rooted at a base path.
type Storage struct {
	basePath       string
	monthly        bool
	minFreeSpaceMB int
	logger         *slog.Logger
}

// New builds a Storage from configuration. The base directory is created lazily by Save.
func New(cfg config.Storage, logger *slog.Logger) *Storage {
	return &Storage{
		basePath:       cfg.BasePath,
		monthly:        cfg.MonthlySubfolders,
		minFreeSpaceMB: cfg.MinFreeSpaceMB,
		logger:         logging.NewComponentLogger(logger, "storage"),
	}
}

// BasePath returns the archive root.
func (s *Storage) BasePath() string {
	return s.basePath
}

// MinFreeSpaceMB returns the configured low-space threshold.
func (s *Storage) MinFreeSpaceMB() int {
	return s.minFreeSpaceMB
}

// DerivePath returns where a capture taken at ts is stored.
func (s *Storage) DerivePath(ts time.Time, ext string) string {
	return derivePath(s.basePath, ts, ext, s.monthly)
}

// derivePath is a pure function of its inputs. Timestamps are truncated to
// the second, so two captures within the same second share a path.
func derivePath(base string, ts time.Time, ext string, monthly bool) string {
	name := filePrefix + ts.Format(fileStampLayout) + "." + strings.TrimPrefix(ext, ".")
	if monthly {
		return filepath.Join(base, ts.Format(monthLayout), name)
	}
	return filepath.Join(base, name)
}

// Save persists frame in the requested format and returns the image path.
// Unsupported formats fail before anything is written.
func (s *Storage) Save(frame imaging.Frame, meta metadata.CaptureMetadata, format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case FormatFITS, FormatPNG:
	default:
		return "", services.Wrap(services.ErrStorage, stage, "save", fmt.Sprintf("unsupported image type %q", format), nil)
	}
	if err := frame.Validate(); err != nil {
		return "", services.Wrap(services.ErrStorage, stage, "save", "invalid frame", err)
	}
	if frame.Width != meta.Width || frame.Height != meta.Height {
		return "", services.Wrap(services.ErrStorage, stage, "save",
			fmt.Sprintf("metadata dimensions %dx%d do not match frame %dx%d", meta.Width, meta.Height, frame.Width, frame.Height), nil)
	}

	path := s.DerivePath(meta.CaptureTime, format)
	var err error
	if format == FormatFITS {
		err = s.saveFITS(path, frame, meta)
	} else {
		err = s.savePNG(path, frame, meta)
	}
	if err != nil {
		return "", err
	}
	return path, nil
}

func (s *Storage) saveFITS(path string, frame imaging.Frame, meta metadata.CaptureMetadata) error {
	err := fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		return imaging.WriteFITS(w, frame, meta.FITSCards())
	})
	if err != nil {
		return services.Wrap(services.ErrStorage, stage, "save fits", "failed to save FITS image", err)
	}
	s.logger.Info("fits image saved",
		logging.String("path", path),
		logging.String(logging.FieldEventType, "image_saved"),
	)
	return nil
}

func (s *Storage) savePNG(path string, frame imaging.Frame, meta metadata.CaptureMetadata) error {
	sidecarPath := fileutil.ReplaceExt(path, sidecarExt)
	err := fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		return imaging.WritePNG(w, frame)
	})
	if err != nil {
		return services.Wrap(services.ErrStorage, stage, "save png", "failed to save PNG image", err)
	}
	payload, err := meta.MarshalSidecar()
	if err != nil {
		return services.Wrap(services.ErrStorage, stage, "save png", "encode metadata sidecar", err)
	}
	if err := fileutil.WriteFileAtomic(sidecarPath, payload, 0o644); err != nil {
		return services.Wrap(services.ErrStorage, stage, "save png", "failed to save metadata sidecar", err)
	}
	s.logger.Info("png image saved",
		logging.String("path", path),
		logging.String("sidecar", sidecarPath),
		logging.String(logging.FieldEventType, "image_saved"),
	)
	return nil
}

// ReadSidecar loads the JSON sidecar that accompanies a PNG image.
func ReadSidecar(imagePath string) (metadata.CaptureMetadata, error) {
	data, err := os.ReadFile(fileutil.ReplaceExt(imagePath, sidecarExt))
	if err != nil {
		return metadata.CaptureMetadata{}, services.Wrap(services.ErrStorage, "", "read sidecar", "", err)
	}
	var doc metadata.Sidecar
	if err := json.Unmarshal(data, &doc); err != nil {
		return metadata.CaptureMetadata{}, services.Wrap(services.ErrStorage, "", "read sidecar", "malformed sidecar", err)
	}
	return metadata.FromSidecar(doc)
}

// ReadMetadata returns the capture metadata of an archived image: the FITS
// header for .fits files, the JSON sidecar otherwise.
func ReadMetadata(imagePath string) (metadata.CaptureMetadata, error) {
	if !strings.EqualFold(filepath.Ext(imagePath), "."+FormatFITS) {
		return ReadSidecar(imagePath)
	}
	file, err := os.Open(imagePath)
	if err != nil {
		return metadata.CaptureMetadata{}, services.Wrap(services.ErrStorage, "", "read metadata", "", err)
	}
	defer file.Close()
	frame, cards, err := imaging.ReadFITS(file)
	if err != nil {
		return metadata.CaptureMetadata{}, services.Wrap(services.ErrStorage, "", "read metadata", imagePath, err)
	}
	meta, err := metadata.FromFITSCards(cards, frame.Width, frame.Height)
	if err != nil {
		return metadata.CaptureMetadata{}, services.Wrap(services.ErrStorage, "", "read metadata", imagePath, err)
	}
	return meta, nil
}

// Info reports filesystem usage and the number of archived images. Errors
// yield a zeroed Info so capacity checks never abort a capture.
func (s *Storage) Info() Info {
	var stat unix.Statfs_t
	if err := unix.Statfs(s.basePath, &stat); err != nil {
		s.logger.Debug("storage statfs failed", logging.String("path", s.basePath), logging.Error(err))
		return Info{BasePath: s.basePath}
	}
	count, err := s.countImages()
	if err != nil {
		s.logger.Debug("storage image count failed", logging.String("path", s.basePath), logging.Error(err))
		return Info{BasePath: s.basePath}
	}
	blockSize := uint64(stat.Bsize)
	total := stat.Blocks * blockSize
	free := stat.Bavail * blockSize
	used := total - stat.Bfree*blockSize
	return Info{
		BasePath:   s.basePath,
		TotalBytes: total,
		UsedBytes:  used,
		FreeBytes:  free,
		ImageCount: count,
	}
}

// CheckCapacity compares free space with the configured threshold. It logs
// and returns false when space is low but never blocks a capture.
func (s *Storage) CheckCapacity() bool {
	info := s.Info()
	if s.LowSpace(info) {
		logging.WarnWithContext(s.logger, "low disk space", "storage_low",
			logging.String("free_mb", fmt.Sprintf("%.1f", info.FreeMB())),
			logging.Int("threshold_mb", s.minFreeSpaceMB),
			logging.String(logging.FieldErrorHint, "free space on the archive volume or lower storage.min_free_space_mb"),
			logging.String(logging.FieldImpact, "capture continues; future saves may fail"),
		)
		return false
	}
	return true
}

// LowSpace reports whether info is below the free-space threshold. It does
// not log, so status queries can call it freely.
func (s *Storage) LowSpace(info Info) bool {
	return info.FreeBytes < uint64(s.minFreeSpaceMB)*bytesPerMB
}

// ListImages returns archived .fits and .png files sorted by path. A month
// filter (YYYY-MM) restricts the scan to that subfolder; a missing folder
// yields an empty list.
func (s *Storage) ListImages(month string) ([]string, error) {
	root := s.basePath
	if month = strings.TrimSpace(month); month != "" {
		if _, err := time.Parse(monthLayout, month); err != nil {
			return nil, services.Wrap(services.ErrStorage, "", "list images", fmt.Sprintf("invalid month %q, expected YYYY-MM", month), nil)
		}
		root = filepath.Join(root, month)
	}
	images, err := walkImages(root)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "", "list images", "", err)
	}
	return images, nil
}

func (s *Storage) countImages() (int, error) {
	images, err := walkImages(s.basePath)
	return len(images), err
}

func walkImages(root string) ([]string, error) {
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return []string{}, nil
	}
	images := []string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case "." + FormatFITS, "." + FormatPNG:
			images = append(images, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(images)
	return images, nil
}
