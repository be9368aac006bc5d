package whisperx

// Config selects how WhisperX runs. Language pins the spoken language and
// is left empty to let WhisperX detect it. HFToken is only passed along
// when VADMethod is pyannote.
type Config struct {
	Model        string
	CUDAEnabled  bool
	VADMethod    string
	HFToken      string
	Language     string
	FFmpegBinary string
}

const (
	UVXCommand    = "uvx"
	FFmpegCommand = "ffmpeg"

	DefaultModel      = "large-v3-turbo"
	VADMethodSilero   = "silero"
	VADMethodPyannote = "pyannote"

	// AudioFileName is the mono 16 kHz track extracted into the work dir.
	AudioFileName = "audio.wav"
)

const (
	PypiIndexURL = "https://pypi.org/simple"
	CUDAIndexURL = "https://download.pytorch.org/whl/cu128"

	CPUDevice      = "cpu"
	CUDADevice     = "cuda"
	CPUComputeType = "float32"
)

// Decoding parameters tuned for dialogue; they are passed verbatim.
const (
	BatchSize         = "8"
	ChunkSize         = "15"
	BeamSize          = "5"
	Temperature       = "0.0"
	VADOnset          = "0.08"
	VADOffset         = "0.07"
	SegmentResolution = "sentence"
	OutputFormat      = "json"
)
