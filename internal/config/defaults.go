package config

const (
	defaultLogDir            = "~/.local/share/waggletag/logs"
	defaultFFmpegBinary      = "ffmpeg"
	defaultFFmpegCRF         = 18
	defaultFFmpegPreset      = "medium"
	defaultFFmpegPixelFormat = "yuv420p"
	defaultFFmpegTimeout     = 300
	defaultMinOutputBytes    = 1024
	defaultIngestWorkers     = 4
	defaultAPIBind           = "127.0.0.1:8654"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir: defaultLogDir,
		},
		FFmpeg: FFmpeg{
			Binary:         defaultFFmpegBinary,
			CRF:            defaultFFmpegCRF,
			Preset:         defaultFFmpegPreset,
			PixelFormat:    defaultFFmpegPixelFormat,
			TimeoutSeconds: defaultFFmpegTimeout,
			MinOutputBytes: defaultMinOutputBytes,
		},
		Ingest: Ingest{
			Workers:       defaultIngestWorkers,
			SeedPredicted: true,
			WaggleOnly:    false,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
