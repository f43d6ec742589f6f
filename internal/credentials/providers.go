// Package credentials implements priority-ordered credential resolution for
// LLM providers and website logins. Resolution is deterministic with no
// implicit fallback: explicit parameters win over the encrypted vault, the
// vault wins over environment variables, and when every source misses the
// caller gets an error carrying remediation text instead of a silently
// chosen default. Keys are resolved just in time, never cached, never
// logged.
package credentials

import "strings"

// Provider names. The vault stores one record per provider under the bare
// provider name with a single "api_key" field.
const (
	ProviderAnthropic   = "anthropic"
	ProviderOpenAI      = "openai"
	ProviderGroq        = "groq"
	ProviderAzureOpenAI = "azure_openai"
)

// APIKeyField is the vault field name holding a provider API key.
const APIKeyField = "api_key"

// Global model fallbacks for unknown providers. Normally unreachable (an
// unknown provider fails resolution first) but kept so a model lookup can
// never come back empty.
const (
	fallbackTextModel   = "gpt-4o-mini"
	fallbackVisionModel = "gpt-4o"
)

// detectionOrder is the fixed auto-detection priority. The order is part of
// the contract: when several providers have credentials available at once,
// the earliest entry here wins, so reordering changes behavior.
var detectionOrder = []string{
	ProviderAnthropic,
	ProviderOpenAI,
	ProviderGroq,
	ProviderAzureOpenAI,
}

// ProviderSpec is the static per-provider configuration. Nothing in here is
// secret or persisted.
type ProviderSpec struct {
	EnvVar             string // environment variable holding the API key
	DefaultTextModel   string
	DefaultVisionModel string
	HelpURL            string // where to create a key
	KeyInstructions    string // shown by the CLI when a key is missing
	HealthEndpoint     string // endpoint probed by "credential verify"; empty = not probeable
	HealthMethod       string
}

var providerSpecs = map[string]ProviderSpec{
	ProviderAnthropic: {
		EnvVar:             "ANTHROPIC_API_KEY",
		DefaultTextModel:   "claude-3-5-sonnet-20241022",
		DefaultVisionModel: "claude-3-5-sonnet-20241022",
		HelpURL:            "https://console.anthropic.com/settings/keys",
		KeyInstructions: `To get an Anthropic API key:
1. Go to https://console.anthropic.com/settings/keys
2. Sign in or create an Anthropic account
3. Click "Create Key" and give it a descriptive name
4. Copy the API key (starts with sk-ant-)
5. Store it securely - you won't be able to see the full key again`,
		HealthEndpoint: "https://api.anthropic.com/v1/messages",
		HealthMethod:   "POST",
	},
	ProviderOpenAI: {
		EnvVar:             "OPENAI_API_KEY",
		DefaultTextModel:   "gpt-4o-mini",
		DefaultVisionModel: "gpt-4o",
		HelpURL:            "https://platform.openai.com/api-keys",
		KeyInstructions: `To get an OpenAI API key:
1. Go to https://platform.openai.com/api-keys
2. Sign in or create an OpenAI account
3. Click "Create new secret key" and give it a name
4. Copy the API key (starts with sk-)
5. Store it securely - you won't be able to see it again`,
		HealthEndpoint: "https://api.openai.com/v1/models",
		HealthMethod:   "GET",
	},
	ProviderGroq: {
		EnvVar:             "GROQ_API_KEY",
		DefaultTextModel:   "llama-3.1-70b-versatile",
		DefaultVisionModel: "llama-3.2-90b-vision-preview",
		HelpURL:            "https://console.groq.com/keys",
		KeyInstructions: `To get a Groq API key:
1. Go to https://console.groq.com/keys
2. Sign in or create a Groq account
3. Click "Create API Key" and give it a name
4. Copy the API key (starts with gsk_)
5. Store it securely`,
		HealthEndpoint: "https://api.groq.com/openai/v1/models",
		HealthMethod:   "GET",
	},
	ProviderAzureOpenAI: {
		EnvVar:             "AZURE_OPENAI_API_KEY",
		DefaultTextModel:   "gpt-4",
		DefaultVisionModel: "gpt-4o",
		HelpURL:            "https://portal.azure.com/",
		KeyInstructions: `To get an Azure OpenAI API key:
1. Go to the Azure Portal (https://portal.azure.com/)
2. Navigate to your Azure OpenAI resource
3. Open "Keys and Endpoint" and copy KEY 1 or KEY 2
4. Also set AZURE_OPENAI_ENDPOINT to your resource endpoint URL
5. Use your deployment name as the model parameter`,
		// Health endpoint varies by deployment; not probeable generically.
		HealthEndpoint: "",
		HealthMethod:   "GET",
	},
}

// Normalize lowercases and trims a provider name.
func Normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

// Providers returns the known provider names in detection order.
func Providers() []string {
	out := make([]string, len(detectionOrder))
	copy(out, detectionOrder)
	return out
}

// Spec returns the static configuration for a normalized provider name.
func Spec(provider string) (ProviderSpec, bool) {
	spec, ok := providerSpecs[Normalize(provider)]
	return spec, ok
}

// EnvVarFor returns the API key environment variable for a provider. For
// unknown providers it suggests the conventional <PROVIDER>_API_KEY name.
func EnvVarFor(provider string) string {
	if spec, ok := providerSpecs[Normalize(provider)]; ok {
		return spec.EnvVar
	}
	return strings.ToUpper(Normalize(provider)) + "_API_KEY"
}

// DefaultModel picks the default model for a provider and modality. Unknown
// providers fall back to the global defaults rather than failing: model
// lookup never validates provider availability.
func DefaultModel(provider string, useVision bool) string {
	spec, ok := providerSpecs[Normalize(provider)]
	if !ok {
		if useVision {
			return fallbackVisionModel
		}
		return fallbackTextModel
	}
	if useVision {
		return spec.DefaultVisionModel
	}
	return spec.DefaultTextModel
}

// availableProviders renders the provider list for remediation messages.
func availableProviders() string {
	return strings.Join(detectionOrder, ", ")
}
