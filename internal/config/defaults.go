package config

const (
	BackendS3     = "s3"
	BackendDir    = "dir"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

const (
	defaultConfigPath             = "~/.config/castsync/config.toml"
	defaultStagingDir             = "~/.local/share/castsync/staging"
	defaultLogDir                 = "~/.local/share/castsync/logs"
	defaultStateDir               = "~/.local/share/castsync/state"
	defaultSourcesDir             = "~/.config/castsync/sources"
	defaultStorageDir             = "~/.local/share/castsync/public"
	defaultSQLiteFile             = "objects.db"
	defaultBadgerDir              = "badger"
	defaultS3Region               = "us-east-1"
	defaultLLMBaseURL             = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel               = "google/gemini-3-flash-preview"
	defaultLLMReferer             = "https://github.com/castsync/castsync"
	defaultLLMTitle               = "castsync"
	defaultLLMTimeoutSeconds      = 120
	defaultLLMBreakerFailures     = 3
	defaultLLMBreakerCooldown     = 300
	defaultYTDLPBinary            = "yt-dlp"
	defaultYTDLPAudioFormat       = "bestaudio/best"
	defaultYTDLPRequestsPerMinute = 20
	defaultYTDLPTimeoutSeconds    = 1800
	defaultFFmpegBinary           = "ffmpeg"
	defaultFFprobeBinary          = "ffprobe"
	defaultLoudness               = -19.0
	defaultTruePeak               = -1.5
	defaultLoudnessRange          = 11.0
	defaultSampleRate             = 44100
	defaultChannels               = 1
	defaultBitrate                = "64k"
	defaultFFmpegTimeoutSeconds   = 3600
	defaultThumbnailRPM           = 30
	defaultThumbnailTimeout       = 30
	defaultServerBind             = "0.0.0.0:8000"
	defaultServerRPM              = 30
	defaultNotifyTimeout          = 10
	defaultLogFormat              = "auto"
	defaultLogLevel               = "info"
	defaultStagingMaxAgeHours     = 24
	defaultMinFreeSpaceMB         = 1024
)

var defaultPlayerClients = []string{"android", "ios", "web_embedded"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
			StateDir:   defaultStateDir,
			SourcesDir: defaultSourcesDir,
		},
		Storage: Storage{
			Backend: BackendS3,
			S3: S3{
				Region: defaultS3Region,
				UseSSL: true,
			},
		},
		LLM: LLM{
			BaseURL:                defaultLLMBaseURL,
			Model:                  defaultLLMModel,
			Referer:                defaultLLMReferer,
			Title:                  defaultLLMTitle,
			TimeoutSeconds:         defaultLLMTimeoutSeconds,
			BreakerFailures:        defaultLLMBreakerFailures,
			BreakerCooldownSeconds: defaultLLMBreakerCooldown,
		},
		YTDLP: YTDLP{
			Binary:            defaultYTDLPBinary,
			PlayerClients:     append([]string(nil), defaultPlayerClients...),
			AudioFormat:       defaultYTDLPAudioFormat,
			RequestsPerMinute: defaultYTDLPRequestsPerMinute,
			TimeoutSeconds:    defaultYTDLPTimeoutSeconds,
		},
		FFmpeg: FFmpeg{
			FFmpegBinary:   defaultFFmpegBinary,
			FFprobeBinary:  defaultFFprobeBinary,
			Loudness:       defaultLoudness,
			TruePeak:       defaultTruePeak,
			LoudnessRange:  defaultLoudnessRange,
			SampleRate:     defaultSampleRate,
			Channels:       defaultChannels,
			Bitrate:        defaultBitrate,
			TimeoutSeconds: defaultFFmpegTimeoutSeconds,
		},
		Thumbnails: Thumbnails{
			Enabled:           true,
			RequestsPerMinute: defaultThumbnailRPM,
			TimeoutSeconds:    defaultThumbnailTimeout,
		},
		Server: Server{
			Bind:              defaultServerBind,
			RequestsPerMinute: defaultServerRPM,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			SyncSummary:    true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Workflow: Workflow{
			StagingMaxAgeHours: defaultStagingMaxAgeHours,
			MinFreeSpaceMB:     defaultMinFreeSpaceMB,
		},
	}
}
