package credentials

import (
	"context"
	"log/slog"
	"strings"
)

// AuthReader is the slice of the auth credential store the resolver needs.
type AuthReader interface {
	GetAuthCredential(ctx context.Context, refID string) (map[string]string, error)
}

// AuthResolver resolves login credentials for browser tasks from either a
// stored credential reference or explicit caller-supplied values, and
// injects them into task templates. It never persists, caches, or logs
// credential values; failed resolution reports not-resolved rather than
// erroring so the caller decides how to surface it.
type AuthResolver struct {
	store  AuthReader
	logger *slog.Logger
}

func NewAuthResolver(store AuthReader, logger *slog.Logger) *AuthResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthResolver{store: store, logger: logger}
}

// ResolveCredentials resolves a credential field mapping. A non-empty
// credentialRef is authoritative: it resolves from the store or not at all,
// never falling through to the explicit mapping (callers reject ambiguous
// input before this point). With no ref, a non-empty explicit mapping is
// returned verbatim. The second return is false when nothing resolved.
func (r *AuthResolver) ResolveCredentials(ctx context.Context, credentialRef string, explicit map[string]string) (map[string]string, bool) {
	if credentialRef != "" {
		if r.store == nil {
			return nil, false
		}
		fields, err := r.store.GetAuthCredential(ctx, credentialRef)
		if err != nil {
			r.logger.Debug("credential reference did not resolve", "ref_id", credentialRef, "error", err)
			return nil, false
		}
		return fields, true
	}
	if len(explicit) > 0 {
		return explicit, true
	}
	return nil, false
}

// ResolveLoginCredentials is the two-field variant over exactly username and
// password. Both must be present and non-empty or the result is
// not-resolved; partial credentials are never returned.
func (r *AuthResolver) ResolveLoginCredentials(ctx context.Context, credentialRef, username, password string) (string, string, bool) {
	if credentialRef != "" {
		fields, ok := r.ResolveCredentials(ctx, credentialRef, nil)
		if !ok {
			return "", "", false
		}
		u, p := fields["username"], fields["password"]
		if u == "" || p == "" {
			return "", "", false
		}
		return u, p, true
	}
	if username != "" && password != "" {
		return username, password, true
	}
	return "", "", false
}

// InjectCredentials replaces every {field_name} placeholder in task with the
// matching field's value. Fields without a placeholder are silently unused;
// an empty task or empty mapping returns the task unchanged. The injected
// result must not be logged by callers.
func (r *AuthResolver) InjectCredentials(task string, data map[string]string) string {
	if task == "" || len(data) == 0 {
		return task
	}
	for name, value := range data {
		task = strings.ReplaceAll(task, "{"+name+"}", value)
	}
	return task
}
