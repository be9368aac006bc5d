package config

// Provider names accepted by subtitles.detector and translation providers.
const (
	ProviderLLM            = "llm"
	ProviderGemini         = "gemini"
	ProviderLibreTranslate = "libretranslate"
)

const (
	defaultDataDir                = "~/.local/share/reelscribe"
	defaultOutputDir              = "~/.local/share/reelscribe/subtitles"
	defaultWorkDir                = "~/.local/share/reelscribe/work"
	defaultLogDir                 = "~/.local/share/reelscribe/logs"
	defaultTranscriptionWorkers   = 1
	defaultTranslationWorkers     = 2
	defaultEvaluationWorkers      = 1
	defaultClaimBatch             = 1
	defaultPollInterval           = 2
	defaultMaxIdleInterval        = 30
	defaultHeartbeatInterval      = 15
	defaultReclaimInterval        = 60
	defaultReclaimTimeout         = 600
	defaultStageTimeout           = 4 * 60 * 60
	defaultBackendTimeout         = 300
	defaultMaxAttempts            = 3
	defaultRetryBaseDelay         = 5
	defaultRetryMaxDelay          = 600
	defaultJitterFraction         = 0.2
	defaultBatchSize              = 50
	defaultBatchConcurrency       = 2
	defaultWhisperXModel          = "large-v3-turbo"
	defaultWhisperXVADMethod      = "silero"
	defaultMaxDurationMinutes     = 6 * 60
	defaultMaxSizeMB              = 8 * 1024
	defaultLLMBaseURL             = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel               = "google/gemini-2.5-flash"
	defaultLLMReferer             = "https://github.com/reelscribe/reelscribe"
	defaultLLMTitle               = "reelscribe"
	defaultLLMTimeoutSeconds      = 120
	defaultGeminiModel            = "gemini-2.5-flash"
	defaultEvaluationSampleSize   = 40
	defaultEvaluationMinScore     = 70
	defaultAPIBind                = "127.0.0.1:7489"
	defaultNotifyRequestTimeout   = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 30
	defaultLibreTranslateRequests = 2
)

var defaultTargetLanguages = []string{"en", "de", "he"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			OutputDir: defaultOutputDir,
			WorkDir:   defaultWorkDir,
			LogDir:    defaultLogDir,
		},
		Workflow: Workflow{
			TranscriptionWorkers: defaultTranscriptionWorkers,
			TranslationWorkers:   defaultTranslationWorkers,
			EvaluationWorkers:    defaultEvaluationWorkers,
			ClaimBatch:           defaultClaimBatch,
			PollInterval:         defaultPollInterval,
			MaxIdleInterval:      defaultMaxIdleInterval,
			HeartbeatInterval:    defaultHeartbeatInterval,
			ReclaimInterval:      defaultReclaimInterval,
			ReclaimTimeout:       defaultReclaimTimeout,
			StageTimeout:         defaultStageTimeout,
			BackendTimeout:       defaultBackendTimeout,
		},
		Retry: Retry{
			MaxAttempts:    defaultMaxAttempts,
			BaseDelay:      defaultRetryBaseDelay,
			MaxDelay:       defaultRetryMaxDelay,
			JitterFraction: defaultJitterFraction,
		},
		Subtitles: Subtitles{
			TargetLanguages:      append([]string(nil), defaultTargetLanguages...),
			DetectionBatchSize:   defaultBatchSize,
			TranslationBatchSize: defaultBatchSize,
			BatchConcurrency:     defaultBatchConcurrency,
			Detector:             ProviderLLM,
		},
		Translation: Translation{
			DefaultProvider: ProviderLLM,
		},
		Transcription: Transcription{
			Model:              defaultWhisperXModel,
			VADMethod:          defaultWhisperXVADMethod,
			MaxDurationMinutes: defaultMaxDurationMinutes,
			MaxSizeMB:          defaultMaxSizeMB,
			FFmpegBinary:       "ffmpeg",
			FFprobeBinary:      "ffprobe",
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Gemini: Gemini{
			Model: defaultGeminiModel,
		},
		LibreTranslate: LibreTranslate{
			RequestsPerSecond: defaultLibreTranslateRequests,
		},
		Evaluation: Evaluation{
			Enabled:    true,
			UseLLM:     false,
			SampleSize: defaultEvaluationSampleSize,
			MinScore:   defaultEvaluationMinScore,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			FileCompleted:  true,
			StageFailed:    true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
