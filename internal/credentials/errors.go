package credentials

import (
	"errors"
	"fmt"
)

// ErrProviderRequired is returned by ResolveAPIKey when called without a
// provider name.
var ErrProviderRequired = errors.New("provider must be specified for API key resolution")

// NoKeyError reports that no source (explicit parameter, vault, environment)
// produced an API key for a provider. The message carries remediation steps
// because it is surfaced directly to tool callers.
type NoKeyError struct {
	Provider string
}

func (e *NoKeyError) Error() string {
	return fmt.Sprintf(`No API key found for provider '%s'.

Available providers: %s

To configure:
1. export %s=your-key
2. Save the key to the encrypted credential store
3. Pass the api_key parameter explicitly`,
		e.Provider, availableProviders(), EnvVarFor(e.Provider))
}

// NoProviderError reports that provider auto-detection found no credentials
// in either the vault or the environment.
type NoProviderError struct{}

func (e *NoProviderError) Error() string {
	return fmt.Sprintf(`No LLM provider configured.

Available providers: %s

To configure:
1. Pass provider and model explicitly
2. Set the provider API key in an environment variable
3. Save credentials to the encrypted store`,
		availableProviders())
}
