package config

const (
	defaultCameraDriver       = "simulator"
	defaultCameraModel        = "ZWO ASI224MC"
	defaultExposureUS         = 1000
	defaultGain               = 0
	defaultImageType          = "fits"
	defaultWBR                = 52
	defaultWBB                = 95
	defaultFrameWidth         = 1304
	defaultFrameHeight        = 976
	defaultCommandTimeout     = 60
	defaultUSBVendorID        = "03c3"
	defaultCaptureTime        = "12:00"
	defaultTimezone           = "Asia/Tokyo"
	defaultBasePath           = "~/analemma/images"
	defaultMinFreeSpaceMB     = 1024
	defaultSyncFiles          = "tiff"
	defaultSyncBinary         = "rclone"
	defaultSyncTimeoutSeconds = 300
	defaultStateDir           = "~/.local/share/analemma"
	defaultLogDir             = "~/.local/share/analemma/logs"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 30
	defaultNotifyTimeout      = 10
	defaultCompositeFilename  = "composite.tif"
	defaultConfigRelativePath = "~/.config/analemma/config.toml"
	defaultProjectConfigFile  = "analemma.toml"
	defaultEnvFilename        = ".env"
	maxGain                   = 300
	minExposureUS             = 1
	maxExposureUS             = 60_000_000
	ledgerFilename            = "status.json"
	historyFilename           = "history.db"
	daemonLockFilename        = "analemmad.lock"
	captureLockFilename       = "capture.lock"
	socketFilename            = "analemma.sock"
	pidFilename               = "analemma.pid"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Camera: Camera{
			Driver:         defaultCameraDriver,
			Model:          defaultCameraModel,
			ExposureUS:     defaultExposureUS,
			Gain:           defaultGain,
			ImageType:      defaultImageType,
			WBR:            defaultWBR,
			WBB:            defaultWBB,
			Width:          defaultFrameWidth,
			Height:         defaultFrameHeight,
			CommandTimeout: defaultCommandTimeout,
			USBVendorID:    defaultUSBVendorID,
		},
		Schedule: Schedule{
			CaptureTime: defaultCaptureTime,
			Timezone:    defaultTimezone,
		},
		Storage: Storage{
			BasePath:          defaultBasePath,
			MonthlySubfolders: true,
			MinFreeSpaceMB:    defaultMinFreeSpaceMB,
		},
		PostProcess: PostProcess{
			Enabled: true,
		},
		Sync: Sync{
			Files:          defaultSyncFiles,
			Binary:         defaultSyncBinary,
			TimeoutSeconds: defaultSyncTimeoutSeconds,
		},
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			CaptureFailure: true,
			LowStorage:     true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
