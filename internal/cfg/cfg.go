package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Backend selector values for the reasoning and communication stages.
const (
	BackendDeterministic    = "deterministic"
	BackendOpenAICompatible = "openai_compatible"
)

// Config adds application-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	DatabaseURL           string
	SlackWebhookURL       string
	APIToken              string
	PolicyPackPath        string
	PolicyTopK            int
	ReasoningBackend      string
	CommunicationBackend  string
	InferenceBaseURL      string
	InferenceAPIKey       string
	ReasoningModel        string
	CommunicationModel    string
	InferenceTimeoutS     int
	InferenceMaxRetries   int
	PHIGuard              bool
	MaxSummaryChars       int
	NegationWindow        int
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for escalation notices")
	fs.StringVar(&c.APIToken, "api-token", "", "API token required on requests (empty = auth disabled)")
	fs.StringVar(&c.PolicyPackPath, "policy-pack-path", "", "policy pack JSON path (empty = embedded default pack)")
	fs.IntVar(&c.PolicyTopK, "policy-top-k", 2, "matched policies to cite per intake (1..10)")
	fs.StringVar(&c.ReasoningBackend, "reasoning-backend", BackendDeterministic, "reasoning stage backend: deterministic or openai_compatible")
	fs.StringVar(&c.CommunicationBackend, "communication-backend", BackendDeterministic, "communication stage backend: deterministic or openai_compatible")
	fs.StringVar(&c.InferenceBaseURL, "inference-base-url", "", "OpenAI-compatible endpoint base URL")
	fs.StringVar(&c.InferenceAPIKey, "inference-api-key", "", "API key for the OpenAI-compatible endpoint")
	fs.StringVar(&c.ReasoningModel, "reasoning-model", "", "model name for the reasoning backend")
	fs.StringVar(&c.CommunicationModel, "communication-model", "", "model name for the communication backend (empty = reasoning model)")
	fs.IntVar(&c.InferenceTimeoutS, "inference-timeout-seconds", 30, "per-request inference timeout in seconds (1..300)")
	fs.IntVar(&c.InferenceMaxRetries, "inference-max-retries", 1, "inference retries after the first attempt (0..5)")
	fs.BoolVar(&c.PHIGuard, "phi-guard", true, "block external inference calls when PHI is detected in the intake")
	fs.IntVar(&c.MaxSummaryChars, "max-summary-chars", 1200, "normalized summary truncation length (200..20000)")
	fs.IntVar(&c.NegationWindow, "negation-window", 40, "negation lookback window in characters (10..200)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.PolicyTopK <= 0 || c.PolicyTopK > 10 {
		errs = append(errs, fmt.Errorf("invalid POLICY_TOP_K %d (must be 1..10)", c.PolicyTopK))
	}

	errs = append(errs, c.validateBackend("REASONING_BACKEND", c.ReasoningBackend, c.ReasoningModel)...)
	errs = append(errs, c.validateBackend("COMMUNICATION_BACKEND", c.CommunicationBackend, c.communicationModel())...)

	if c.InferenceTimeoutS <= 0 || c.InferenceTimeoutS > 300 {
		errs = append(errs, fmt.Errorf("invalid INFERENCE_TIMEOUT_SECONDS %d (must be 1..300)", c.InferenceTimeoutS))
	}
	if c.InferenceMaxRetries < 0 || c.InferenceMaxRetries > 5 {
		errs = append(errs, fmt.Errorf("invalid INFERENCE_MAX_RETRIES %d (must be 0..5)", c.InferenceMaxRetries))
	}

	if c.MaxSummaryChars < 200 || c.MaxSummaryChars > 20000 {
		errs = append(errs, fmt.Errorf("invalid MAX_SUMMARY_CHARS %d (must be 200..20000)", c.MaxSummaryChars))
	}
	if c.NegationWindow < 10 || c.NegationWindow > 200 {
		errs = append(errs, fmt.Errorf("invalid NEGATION_WINDOW %d (must be 10..200)", c.NegationWindow))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (c *Config) validateBackend(name, backend, model string) []error {
	switch backend {
	case BackendDeterministic:
		return nil
	case BackendOpenAICompatible:
		var errs []error
		if c.InferenceBaseURL == "" {
			errs = append(errs, fmt.Errorf("INFERENCE_BASE_URL is required when %s is %s", name, backend))
		}
		if model == "" {
			errs = append(errs, fmt.Errorf("model is required when %s is %s", name, backend))
		}
		return errs
	default:
		return []error{fmt.Errorf("invalid %s %q (must be %s or %s)", name, backend, BackendDeterministic, BackendOpenAICompatible)}
	}
}

// communicationModel resolves the communication model, falling back to the
// reasoning model.
func (c *Config) communicationModel() string {
	if c.CommunicationModel != "" {
		return c.CommunicationModel
	}
	return c.ReasoningModel
}

// ResolvedCommunicationModel is the model the communication backend will
// actually use.
func (c *Config) ResolvedCommunicationModel() string { return c.communicationModel() }
