package config

const (
	defaultStagingDir = "~/.local/share/subtrans/staging"
	defaultOutputDir  = "~/.local/share/subtrans/output"
	defaultUploadDir  = "~/.local/share/subtrans/uploads"
	defaultLogDir     = "~/.local/share/subtrans/logs"
	defaultAPIBind    = "127.0.0.1:7519"

	defaultFFmpegBinary = "ffmpeg"
	defaultSampleRate   = 16000
	defaultChannels     = 1

	defaultWhisperBinary = "whisperx"
	defaultWhisperModel  = "large-v3"
	defaultWhisperDevice = "cpu"

	defaultTranslatorTimeoutSeconds = 60

	defaultMaxConcurrentTasks = 2
	defaultLanguageWorkers    = 3
	defaultQueuePollInterval  = 2
	defaultErrorRetryInterval = 5
	defaultExtractTimeout     = 600
	defaultTranscribeTimeout  = 3600
	defaultPruneAfterHours    = 72

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			OutputDir:  defaultOutputDir,
			UploadDir:  defaultUploadDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		FFmpeg: FFmpeg{
			Binary:     defaultFFmpegBinary,
			SampleRate: defaultSampleRate,
			Channels:   defaultChannels,
		},
		Whisper: Whisper{
			Binary: defaultWhisperBinary,
			Model:  defaultWhisperModel,
			Device: defaultWhisperDevice,
		},
		Translator: Translator{
			TimeoutSeconds: defaultTranslatorTimeoutSeconds,
		},
		Workflow: Workflow{
			MaxConcurrentTasks: defaultMaxConcurrentTasks,
			LanguageWorkers:    defaultLanguageWorkers,
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			ExtractTimeout:     defaultExtractTimeout,
			TranscribeTimeout:  defaultTranscribeTimeout,
			PruneAfterHours:    defaultPruneAfterHours,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
