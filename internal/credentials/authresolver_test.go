package credentials

import (
	"context"
	"testing"

	"github.com/zanatools/zana/internal/vault"
)

func newTestAuthResolver(t *testing.T) (*AuthResolver, *vault.AuthStore) {
	t.Helper()
	store := newTestStore(t)
	auth := vault.NewAuthStore(store, store.Dir(), testLogger())
	return NewAuthResolver(auth, testLogger()), auth
}

func TestResolveCredentialsFromRef(t *testing.T) {
	r, auth := newTestAuthResolver(t)
	ctx := context.Background()
	err := auth.SaveAuthCredential(ctx, "github-bot", "octocat", "hunter2", map[string]string{"totp_secret": "JBSWY3DP"})
	if err != nil {
		t.Fatalf("SaveAuthCredential: %v", err)
	}

	fields, ok := r.ResolveCredentials(ctx, "github-bot", nil)
	if !ok {
		t.Fatal("expected credentials to resolve")
	}
	if fields["username"] != "octocat" || fields["password"] != "hunter2" {
		t.Errorf("unexpected fields: %v", mapKeys(fields))
	}
	if fields["totp_secret"] != "JBSWY3DP" {
		t.Errorf("metadata field missing from resolved mapping")
	}
}

func TestResolveCredentialsRefDoesNotFallThrough(t *testing.T) {
	r, _ := newTestAuthResolver(t)
	explicit := map[string]string{"username": "u", "password": "p"}

	if _, ok := r.ResolveCredentials(context.Background(), "missing-ref", explicit); ok {
		t.Fatal("unresolvable ref must not fall through to explicit credentials")
	}
}

func TestResolveCredentialsExplicit(t *testing.T) {
	r, _ := newTestAuthResolver(t)
	explicit := map[string]string{"username": "u", "password": "p"}

	fields, ok := r.ResolveCredentials(context.Background(), "", explicit)
	if !ok {
		t.Fatal("expected explicit credentials to resolve")
	}
	if fields["username"] != "u" || fields["password"] != "p" {
		t.Errorf("explicit mapping not returned verbatim")
	}
}

func TestResolveCredentialsNothingProvided(t *testing.T) {
	r, _ := newTestAuthResolver(t)
	if _, ok := r.ResolveCredentials(context.Background(), "", nil); ok {
		t.Fatal("expected not-resolved with no inputs")
	}
}

func TestResolveCredentialsNilStore(t *testing.T) {
	r := NewAuthResolver(nil, testLogger())
	if _, ok := r.ResolveCredentials(context.Background(), "some-ref", nil); ok {
		t.Fatal("expected not-resolved when no store is configured")
	}
}

func TestResolveLoginCredentialsFromRef(t *testing.T) {
	r, auth := newTestAuthResolver(t)
	ctx := context.Background()
	if err := auth.SaveAuthCredential(ctx, "portal", "alice", "s3cret", nil); err != nil {
		t.Fatalf("SaveAuthCredential: %v", err)
	}

	username, password, ok := r.ResolveLoginCredentials(ctx, "portal", "", "")
	if !ok {
		t.Fatal("expected login credentials to resolve")
	}
	if username != "alice" || password != "s3cret" {
		t.Errorf("got (%q, <password>), want (alice, <password>)", username)
	}
}

func TestResolveLoginCredentialsRejectsIncompleteStored(t *testing.T) {
	r, auth := newTestAuthResolver(t)
	ctx := context.Background()
	if err := auth.SaveAuthCredential(ctx, "half", "alice", "", nil); err != nil {
		t.Fatalf("SaveAuthCredential: %v", err)
	}

	if _, _, ok := r.ResolveLoginCredentials(ctx, "half", "", ""); ok {
		t.Fatal("stored credential with empty password must not resolve")
	}
}

func TestResolveLoginCredentialsExplicit(t *testing.T) {
	r, _ := newTestAuthResolver(t)

	username, password, ok := r.ResolveLoginCredentials(context.Background(), "", "bob", "pw")
	if !ok || username != "bob" || password != "pw" {
		t.Fatalf("explicit pair did not resolve: ok=%v username=%q", ok, username)
	}

	if _, _, ok := r.ResolveLoginCredentials(context.Background(), "", "bob", ""); ok {
		t.Fatal("partial explicit credentials must not resolve")
	}
	if _, _, ok := r.ResolveLoginCredentials(context.Background(), "", "", "pw"); ok {
		t.Fatal("partial explicit credentials must not resolve")
	}
}

func TestInjectCredentials(t *testing.T) {
	r := NewAuthResolver(nil, testLogger())
	data := map[string]string{"username": "a", "password": "b"}

	got := r.InjectCredentials("login as {username}/{password}", data)
	if got != "login as a/b" {
		t.Errorf("got %q, want %q", got, "login as a/b")
	}

	// Repeated placeholders are all replaced.
	got = r.InjectCredentials("{username} then {username}", data)
	if got != "a then a" {
		t.Errorf("got %q, want %q", got, "a then a")
	}

	// No placeholders: unchanged.
	task := "visit the dashboard"
	if got := r.InjectCredentials(task, data); got != task {
		t.Errorf("task without placeholders changed: %q", got)
	}

	// Unused fields are silently ignored.
	data["totp_secret"] = "123456"
	got = r.InjectCredentials("use {username}", data)
	if got != "use a" {
		t.Errorf("got %q, want %q", got, "use a")
	}
}

func TestInjectCredentialsEmptyInputs(t *testing.T) {
	r := NewAuthResolver(nil, testLogger())

	if got := r.InjectCredentials("", map[string]string{"username": "a"}); got != "" {
		t.Errorf("empty task changed: %q", got)
	}
	task := "login as {username}"
	if got := r.InjectCredentials(task, nil); got != task {
		t.Errorf("empty mapping changed task: %q", got)
	}
}

func mapKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
