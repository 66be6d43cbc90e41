package common

// Environment variable keys
const (
	EnvConfigFile       = "CONFIG_FILE"
	EnvDotEnvFile       = "DOTENV_FILE"
	EnvModelPath        = "MODEL_PATH"
	EnvModelFormat      = "MODEL_FORMAT"
	EnvModelURL         = "MODEL_URL"
	EnvPythonPath       = "PYTHON_PATH"
	EnvInferenceScript  = "INFERENCE_SCRIPT"
	EnvInferenceTimeout = "INFERENCE_TIMEOUT"
	EnvListenPort       = "LISTEN_PORT"
	EnvDataPath         = "DATA_PATH"
	EnvHistorySize      = "HISTORY_SIZE"
	EnvLogLevel         = "LOG_LEVEL"
	EnvLogFormat        = "LOG_FORMAT"
	EnvRateLimit        = "RATE_LIMIT"
	EnvRateBurst        = "RATE_BURST"
)

// Configuration defaults
const (
	DefaultDotEnvFile       = ".env"
	DefaultModelPath        = "gradient_boosting_model.pkl"
	DefaultModelFormat      = "joblib"
	DefaultInferenceTimeout = "10s"
	DefaultListenPort       = 8501
	DefaultHistorySize      = 20
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
	DefaultRateBurst        = 5
)

// Validation constants
const (
	MinListenPort  = 1024
	MaxListenPort  = 65535
	MaxHistorySize = 1000
)

// Page text
const (
	PageTitle    = "Predictive Maintenance System"
	PageSubtitle = "Machine Failure Prediction using Machine Learning"
	PageFooter   = "Gradient Boosting Model | Predictive Maintenance Project"
)
