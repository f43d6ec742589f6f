package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/zanatools/zana/internal/vault"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStore(t *testing.T) *vault.FileStore {
	t.Helper()
	cipher, err := vault.NewCipher([]byte(strings.Repeat("k", 32)))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	store, err := vault.NewFileStore(t.TempDir(), cipher, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return store
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var request mcp.CallToolRequest
	request.Params.Arguments = args
	return request
}

func invoke(t *testing.T, handler server.ToolHandlerFunc, args map[string]any) map[string]any {
	t.Helper()
	result, err := handler(context.Background(), callRequest(args))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if len(result.Content) == 0 {
		t.Fatal("empty result content")
	}
	tc, ok := mcp.AsTextContent(result.Content[0])
	if !ok {
		t.Fatalf("content is not text: %T", result.Content[0])
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(tc.Text), &decoded); err != nil {
		t.Fatalf("decoding result %q: %v", tc.Text, err)
	}
	return decoded
}

// --- SQL guard ---

func TestValidateSQLAcceptsSelect(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "SELECT 1", "SELECT 1"},
		{"lowercase", "select id from users", "select id from users"},
		{"trailing semicolon", "SELECT 1;", "SELECT 1"},
		{"surrounding whitespace", "  SELECT 2  ", "SELECT 2"},
		{"semicolon then whitespace", " select * from users ; ", "select * from users"},
		{"keyword inside identifier", "select * from insert_log", "select * from insert_log"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateSQL(tc.input)
			if err != nil {
				t.Fatalf("ValidateSQL(%q) error: %v", tc.input, err)
			}
			if got != tc.want {
				t.Errorf("ValidateSQL(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestValidateSQLRejects(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  error
	}{
		{"empty", "", ErrNotSelect},
		{"insert", "INSERT INTO users VALUES (1)", ErrNotSelect},
		{"drop", "DROP TABLE users", ErrNotSelect},
		{"cte", "WITH x AS (SELECT 1) SELECT * FROM x", ErrNotSelect},
		{"multiple statements", "SELECT 1; SELECT 2", ErrMultipleStatements},
		{"piggybacked drop", "SELECT * FROM users; DROP TABLE users", ErrMultipleStatements},
		{"embedded delete", "SELECT * FROM (DELETE FROM users RETURNING *) x", ErrForbiddenKeyword},
		{"keyword in literal", "SELECT * FROM users WHERE name = 'delete'", ErrForbiddenKeyword},
		{"execute", "SELECT 1 WHERE EXISTS (SELECT EXECUTE)", ErrForbiddenKeyword},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateSQL(tc.input)
			if !errors.Is(err, tc.want) {
				t.Errorf("ValidateSQL(%q) error = %v, want %v", tc.input, err, tc.want)
			}
		})
	}
}

func TestHashSQLRedactsQueryText(t *testing.T) {
	h := hashSQL("SELECT secret_column FROM secret_table")
	if len(h) != 12 {
		t.Errorf("hash length = %d, want 12", len(h))
	}
	if strings.Contains(h, "secret") {
		t.Error("hash must not contain query text")
	}
	if h != hashSQL("SELECT secret_column FROM secret_table") {
		t.Error("hash must be deterministic")
	}
	if h == hashSQL("SELECT 1") {
		t.Error("different queries must hash differently")
	}
}

// --- Connection string resolution ---

func TestDatabaseURLExplicitWins(t *testing.T) {
	t.Setenv(envDatabaseURL, "postgres://env/db")
	tools := NewTools(nil, Config{DSN: "postgres://config/db"}, testLogger())

	got := tools.databaseURL(context.Background(), "postgres://explicit/db")
	if got != "postgres://explicit/db" {
		t.Errorf("dsn = %q, want explicit", got)
	}
}

func TestDatabaseURLVaultBeatsEnv(t *testing.T) {
	t.Setenv(envDatabaseURL, "postgres://env/db")
	store := testStore(t)
	cred := vault.NewCredential(credentialID, map[string]string{credentialField: "postgres://vault/db"})
	if err := store.Save(context.Background(), cred); err != nil {
		t.Fatalf("Save: %v", err)
	}
	tools := NewTools(store, Config{}, testLogger())

	got := tools.databaseURL(context.Background(), "")
	if got != "postgres://vault/db" {
		t.Errorf("dsn = %q, want vault value", got)
	}
}

func TestDatabaseURLEnvBeatsConfig(t *testing.T) {
	t.Setenv(envDatabaseURL, "postgres://env/db")
	tools := NewTools(testStore(t), Config{DSN: "postgres://config/db"}, testLogger())

	got := tools.databaseURL(context.Background(), "")
	if got != "postgres://env/db" {
		t.Errorf("dsn = %q, want env value", got)
	}
}

func TestDatabaseURLConfigFallback(t *testing.T) {
	t.Setenv(envDatabaseURL, "")
	tools := NewTools(testStore(t), Config{DSN: "postgres://config/db"}, testLogger())

	got := tools.databaseURL(context.Background(), "")
	if got != "postgres://config/db" {
		t.Errorf("dsn = %q, want config value", got)
	}
}

func TestDatabaseURLNothingConfigured(t *testing.T) {
	t.Setenv(envDatabaseURL, "")
	tools := NewTools(nil, Config{}, testLogger())

	if got := tools.databaseURL(context.Background(), ""); got != "" {
		t.Errorf("dsn = %q, want empty", got)
	}
}

// --- Tool handlers ---

func TestQueryMissingCredential(t *testing.T) {
	t.Setenv(envDatabaseURL, "")
	tools := NewTools(nil, Config{}, testLogger())
	_, handler := tools.queryTool()

	result := invoke(t, handler, map[string]any{"sql": "SELECT 1"})
	if result["success"] != false {
		t.Error("expected success = false")
	}
	if result["error"] != "Missing required credential: PostgreSQL connection string" {
		t.Errorf("error = %q", result["error"])
	}
	help, _ := result["help"].(string)
	if !strings.Contains(help, "DATABASE_URL") {
		t.Errorf("help = %q, want DATABASE_URL mention", help)
	}
}

func TestQueryRejectsWriteBeforeConnecting(t *testing.T) {
	// The DSN points nowhere; validation must fail before any connection
	// attempt is made.
	t.Setenv(envDatabaseURL, "")
	tools := NewTools(nil, Config{DSN: "postgres://127.0.0.1:1/unreachable"}, testLogger())
	_, handler := tools.queryTool()

	result := invoke(t, handler, map[string]any{"sql": "DROP TABLE users"})
	if result["success"] != false {
		t.Error("expected success = false")
	}
	if result["error"] != "Only SELECT queries are allowed" {
		t.Errorf("error = %q", result["error"])
	}
}

func TestQueryRejectsMultipleStatements(t *testing.T) {
	t.Setenv(envDatabaseURL, "")
	tools := NewTools(nil, Config{DSN: "postgres://127.0.0.1:1/unreachable"}, testLogger())
	_, handler := tools.queryTool()

	result := invoke(t, handler, map[string]any{"sql": "SELECT 1; DELETE FROM users"})
	if result["error"] != "Multiple statements are not allowed" {
		t.Errorf("error = %q", result["error"])
	}
}

func TestExplainRejectsInvalidSQL(t *testing.T) {
	t.Setenv(envDatabaseURL, "")
	tools := NewTools(nil, Config{DSN: "postgres://127.0.0.1:1/unreachable"}, testLogger())
	_, handler := tools.explainTool()

	result := invoke(t, handler, map[string]any{"sql": "DELETE FROM users"})
	if result["success"] != false {
		t.Error("expected success = false")
	}
	if result["error"] != "Only SELECT queries are allowed" {
		t.Errorf("error = %q", result["error"])
	}
}

func TestListSchemasMissingCredential(t *testing.T) {
	t.Setenv(envDatabaseURL, "")
	tools := NewTools(nil, Config{}, testLogger())
	_, handler := tools.listSchemasTool()

	result := invoke(t, handler, nil)
	if result["success"] != false {
		t.Error("expected success = false")
	}
	if _, ok := result["error"]; !ok {
		t.Error("expected error field")
	}
}

// --- Pool registry ---

func TestPoolRegistryReusesPools(t *testing.T) {
	registry := NewPoolRegistry(testLogger())
	defer registry.Close()

	first, err := registry.Get("postgres://localhost:5432/one")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	second, err := registry.Get("postgres://localhost:5432/one")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if first != second {
		t.Error("same DSN must reuse the pool")
	}

	other, err := registry.Get("postgres://localhost:5432/two")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if other == first {
		t.Error("different DSNs must get distinct pools")
	}
}

func TestPoolRegistryClose(t *testing.T) {
	registry := NewPoolRegistry(testLogger())
	if _, err := registry.Get("postgres://localhost:5432/one"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := registry.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(registry.pools) != 0 {
		t.Errorf("pools remaining after Close: %d", len(registry.pools))
	}
}

// --- Registration ---

func TestToolRegistration(t *testing.T) {
	tools := NewTools(nil, Config{}, testLogger())

	builders := []func() (mcp.Tool, server.ToolHandlerFunc){
		tools.queryTool,
		tools.listSchemasTool,
		tools.listTablesTool,
		tools.describeTableTool,
		tools.explainTool,
	}
	want := []string{"pg_query", "pg_list_schemas", "pg_list_tables", "pg_describe_table", "pg_explain"}

	for i, build := range builders {
		tool, handler := build()
		if tool.Name != want[i] {
			t.Errorf("tool %d = %q, want %q", i, tool.Name, want[i])
		}
		if handler == nil {
			t.Fatalf("nil handler for %s", tool.Name)
		}
	}

	s := server.NewMCPServer("zana-test", "0.0.1", server.WithToolCapabilities(true))
	tools.Register(s)
}
