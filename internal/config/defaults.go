package config

const (
	defaultEngineBinary           = "yt-dlp"
	defaultEngineRetries          = 10
	defaultEngineFragmentRetries  = 10
	defaultAudioCodec             = "mp3"
	defaultAudioQuality           = "192"
	defaultFixup                  = "detect_or_warn"
	defaultTranscoderBinary       = "ffmpeg"
	defaultMaxThumbnailResolution = 1024
	defaultLockRetryDelayMillis   = 500
	defaultStaleAfterHours        = 24 * 7
	defaultLogFormat              = "auto"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Engine: Engine{
			Binary:          defaultEngineBinary,
			Retries:         defaultEngineRetries,
			FragmentRetries: defaultEngineFragmentRetries,
			AudioCodec:      defaultAudioCodec,
			AudioQuality:    defaultAudioQuality,
			XAttrs:          true,
			Fixup:           defaultFixup,
		},
		Transcoder: Transcoder{
			Binary:                 defaultTranscoderBinary,
			MaxThumbnailResolution: defaultMaxThumbnailResolution,
		},
		Locking: Locking{
			RetryDelayMillis: defaultLockRetryDelayMillis,
		},
		Staging: Staging{
			CleanOnStart:    false,
			StaleAfterHours: defaultStaleAfterHours,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
