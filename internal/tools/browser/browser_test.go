package browser

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/zanatools/zana/internal/credentials"
	"github.com/zanatools/zana/internal/vault"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEngine records the TaskSpec it was handed and replies with a canned
// report or error.
type fakeEngine struct {
	report   *TaskReport
	err      error
	lastSpec TaskSpec
	calls    int
}

func (f *fakeEngine) Run(_ context.Context, spec TaskSpec) (*TaskReport, error) {
	f.calls++
	f.lastSpec = spec
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

func (f *fakeEngine) Ping(context.Context) error { return nil }

// newTestTools wires a Tools instance against a real file vault in a
// temp directory, so resolution and credential management run the same
// code paths as production.
func newTestTools(t *testing.T, engine Engine) (*Tools, *vault.AuthStore) {
	t.Helper()

	cipher, err := vault.NewCipher([]byte(strings.Repeat("k", 32)))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	store, err := vault.NewFileStore(t.TempDir(), cipher, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	authStore := vault.NewAuthStore(store, store.Dir(), testLogger())

	resolver := credentials.NewResolver(store, testLogger())
	logins := credentials.NewAuthResolver(authStore, testLogger())

	return NewTools(engine, resolver, logins, authStore, nil, testLogger()), authStore
}

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, provider := range credentials.Providers() {
		t.Setenv(credentials.EnvVarFor(provider), "")
	}
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var request mcp.CallToolRequest
	request.Params.Arguments = args
	return request
}

func rawInvoke(t *testing.T, handler server.ToolHandlerFunc, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := handler(context.Background(), callRequest(args))
	if err != nil {
		t.Fatalf("handler returned transport error: %v", err)
	}
	return res
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("result has no content")
	}
	tc, ok := mcp.AsTextContent(res.Content[0])
	if !ok {
		t.Fatalf("result content is not text: %T", res.Content[0])
	}
	return tc.Text
}

func invoke(t *testing.T, handler server.ToolHandlerFunc, args map[string]any) map[string]any {
	t.Helper()
	text := resultText(t, rawInvoke(t, handler, args))
	var decoded map[string]any
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		t.Fatalf("result is not JSON: %v\n%s", err, text)
	}
	return decoded
}

func TestBrowserTaskSuccess(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test-key")

	engine := &fakeEngine{report: &TaskReport{Success: true, Result: "found it", StepsTaken: 3}}
	tools, _ := newTestTools(t, engine)
	_, handler := tools.taskTool()

	result := invoke(t, handler, map[string]any{
		"task": "Find the pricing page on example.com",
	})

	if result["success"] != true {
		t.Fatalf("expected success, got %v", result)
	}
	if result["provider_used"] != "anthropic" {
		t.Errorf("provider_used = %v", result["provider_used"])
	}
	if result["model_used"] != "claude-3-5-sonnet-20241022" {
		t.Errorf("model_used = %v", result["model_used"])
	}
	if result["result"] != "found it" {
		t.Errorf("result = %v", result["result"])
	}
	if result["steps_taken"] != float64(3) {
		t.Errorf("steps_taken = %v", result["steps_taken"])
	}
	if result["max_steps"] != float64(15) {
		t.Errorf("max_steps = %v", result["max_steps"])
	}
	if result["vision_enabled"] != false {
		t.Errorf("vision_enabled = %v", result["vision_enabled"])
	}
	if result["task"] != "Find the pricing page on example.com" {
		t.Errorf("task preview = %v", result["task"])
	}
	if result["run_id"] == "" {
		t.Error("run_id is empty")
	}

	if engine.lastSpec.APIKey != "sk-ant-test-key" {
		t.Errorf("engine api key = %q", engine.lastSpec.APIKey)
	}
	if engine.lastSpec.MaxSteps != 15 || engine.lastSpec.TimeoutMS != 300000 {
		t.Errorf("engine defaults = %d steps, %d ms", engine.lastSpec.MaxSteps, engine.lastSpec.TimeoutMS)
	}
	if !engine.lastSpec.Headless {
		t.Error("headless should default to true")
	}
}

func TestBrowserTaskEmptyTask(t *testing.T) {
	engine := &fakeEngine{}
	tools, _ := newTestTools(t, engine)
	_, handler := tools.taskTool()

	result := invoke(t, handler, map[string]any{"task": "   "})

	if result["success"] != false || result["status"] != statusConfigurationError {
		t.Fatalf("unexpected result: %v", result)
	}
	if !strings.Contains(result["error"].(string), "task cannot be empty") {
		t.Errorf("error = %v", result["error"])
	}
	if engine.calls != 0 {
		t.Error("engine should not run for empty task")
	}
}

func TestBrowserTaskStepBounds(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test-key")

	engine := &fakeEngine{report: &TaskReport{Success: true}}
	tools, _ := newTestTools(t, engine)
	_, handler := tools.taskTool()

	for _, steps := range []int{0, 51} {
		result := invoke(t, handler, map[string]any{"task": "browse", "max_steps": steps})
		if result["status"] != statusConfigurationError {
			t.Fatalf("max_steps=%d: status = %v", steps, result["status"])
		}
		if !strings.Contains(result["error"].(string), "max_steps must be between 1 and 50") {
			t.Errorf("max_steps=%d: error = %v", steps, result["error"])
		}
	}
	if engine.calls != 0 {
		t.Error("engine should not run for out-of-range max_steps")
	}

	result := invoke(t, handler, map[string]any{"task": "browse", "max_steps": 50})
	if result["success"] != true {
		t.Fatalf("max_steps=50 should be accepted: %v", result)
	}
}

func TestBrowserTaskTimeoutBounds(t *testing.T) {
	engine := &fakeEngine{}
	tools, _ := newTestTools(t, engine)
	_, handler := tools.taskTool()

	for _, timeout := range []int{4999, 300001} {
		result := invoke(t, handler, map[string]any{"task": "browse", "timeout_ms": timeout})
		if result["status"] != statusConfigurationError {
			t.Fatalf("timeout_ms=%d: status = %v", timeout, result["status"])
		}
		if !strings.Contains(result["error"].(string), "timeout_ms must be between 5000 and 300000") {
			t.Errorf("timeout_ms=%d: error = %v", timeout, result["error"])
		}
	}
}

func TestBrowserTaskBlocksPrivateAddress(t *testing.T) {
	// No credentials are configured on purpose: the security check must
	// fire before resolution ever runs.
	clearProviderEnv(t)

	engine := &fakeEngine{}
	tools, _ := newTestTools(t, engine)
	_, handler := tools.taskTool()

	result := invoke(t, handler, map[string]any{
		"task": "Fetch http://169.254.169.254/latest/meta-data",
	})

	if result["status"] != statusSecurityBlocked {
		t.Fatalf("status = %v, want security_blocked", result["status"])
	}
	if !strings.Contains(result["error"].(string), "private/loopback") {
		t.Errorf("error = %v", result["error"])
	}
	if engine.calls != 0 {
		t.Error("engine should not run for blocked task")
	}
}

func TestBrowserTaskEnforcesAllowlist(t *testing.T) {
	engine := &fakeEngine{}
	tools, _ := newTestTools(t, engine)
	_, handler := tools.taskTool()

	result := invoke(t, handler, map[string]any{
		"task":            "Open evil.com and download everything",
		"allowed_domains": []string{"example.com"},
	})

	if result["status"] != statusSecurityBlocked {
		t.Fatalf("status = %v, want security_blocked", result["status"])
	}
	if !strings.Contains(result["error"].(string), "allowed_domains") {
		t.Errorf("error = %v", result["error"])
	}
}

func TestBrowserTaskNoProviderConfigured(t *testing.T) {
	clearProviderEnv(t)

	tools, _ := newTestTools(t, &fakeEngine{})
	_, handler := tools.taskTool()

	result := invoke(t, handler, map[string]any{"task": "browse the docs"})

	if result["status"] != statusConfigurationError {
		t.Fatalf("status = %v", result["status"])
	}
	if !strings.Contains(result["error"].(string), "No LLM provider configured") {
		t.Errorf("error = %v", result["error"])
	}
	if !strings.Contains(result["help"].(string), "Provide provider and model explicitly") {
		t.Errorf("help = %v", result["help"])
	}
}

func TestBrowserTaskMissingKeyForProvider(t *testing.T) {
	clearProviderEnv(t)

	tools, _ := newTestTools(t, &fakeEngine{})
	_, handler := tools.taskTool()

	result := invoke(t, handler, map[string]any{
		"task":     "browse the docs",
		"provider": "anthropic",
		"model":    "claude-3-5-sonnet-20241022",
	})

	if result["status"] != statusConfigurationError {
		t.Fatalf("status = %v", result["status"])
	}
	errText := result["error"].(string)
	if !strings.Contains(errText, "No API key found for provider 'anthropic'") {
		t.Errorf("error = %v", errText)
	}
	if !strings.Contains(errText, "ANTHROPIC_API_KEY") {
		t.Errorf("error should name the env var: %v", errText)
	}
}

func TestBrowserTaskUnknownProvider(t *testing.T) {
	tools, _ := newTestTools(t, &fakeEngine{})
	_, handler := tools.taskTool()

	result := invoke(t, handler, map[string]any{
		"task":     "browse",
		"provider": "mystery",
		"model":    "some-model",
		"api_key":  "sk-explicit",
	})

	if result["status"] != statusConfigurationError {
		t.Fatalf("status = %v", result["status"])
	}
	if result["error"] != "Unknown provider 'mystery'. Valid options: openai, anthropic, azure_openai, groq." {
		t.Errorf("error = %v", result["error"])
	}
}

func TestBrowserTaskAzureRequiresEndpoint(t *testing.T) {
	t.Setenv("AZURE_OPENAI_ENDPOINT", "")

	engine := &fakeEngine{report: &TaskReport{Success: true}}
	tools, _ := newTestTools(t, engine)
	_, handler := tools.taskTool()

	args := map[string]any{
		"task":     "browse",
		"provider": "azure_openai",
		"model":    "gpt-4",
		"api_key":  "sk-azure",
	}

	result := invoke(t, handler, args)
	if result["error"] != "AZURE_OPENAI_ENDPOINT is required for Azure OpenAI." {
		t.Fatalf("error = %v", result["error"])
	}

	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://unit.openai.azure.com")
	result = invoke(t, handler, args)
	if result["success"] != true {
		t.Fatalf("expected success with endpoint set: %v", result)
	}
}

func TestBrowserTaskTimeoutStatus(t *testing.T) {
	engine := &fakeEngine{err: context.DeadlineExceeded}
	tools, _ := newTestTools(t, engine)
	_, handler := tools.taskTool()

	result := invoke(t, handler, map[string]any{
		"task":     "browse",
		"provider": "openai",
		"model":    "gpt-4o-mini",
		"api_key":  "sk-explicit",
	})

	if result["status"] != statusTimeout {
		t.Fatalf("status = %v", result["status"])
	}
	if result["error"] != "Task timed out after 300000 ms" {
		t.Errorf("error = %v", result["error"])
	}
}

func TestBrowserTaskEngineError(t *testing.T) {
	engine := &fakeEngine{err: &EngineError{Code: "browser_crash", Message: "chromium exited"}}
	tools, _ := newTestTools(t, engine)
	_, handler := tools.taskTool()

	result := invoke(t, handler, map[string]any{
		"task":     "browse",
		"provider": "openai",
		"model":    "gpt-4o-mini",
		"api_key":  "sk-explicit",
	})

	if result["status"] != statusExecutionError {
		t.Fatalf("status = %v", result["status"])
	}
	errText := result["error"].(string)
	if !strings.Contains(errText, "Browser task failed:") || !strings.Contains(errText, "chromium exited") {
		t.Errorf("error = %v", errText)
	}
}

func TestBrowserTaskReportedFailure(t *testing.T) {
	engine := &fakeEngine{report: &TaskReport{Success: false, Error: "could not find element"}}
	tools, _ := newTestTools(t, engine)
	_, handler := tools.taskTool()

	result := invoke(t, handler, map[string]any{
		"task":     "browse",
		"provider": "openai",
		"model":    "gpt-4o-mini",
		"api_key":  "sk-explicit",
	})

	if result["status"] != statusExecutionError {
		t.Fatalf("status = %v", result["status"])
	}
	if !strings.Contains(result["error"].(string), "could not find element") {
		t.Errorf("error = %v", result["error"])
	}
}

func TestBrowserTaskWithoutEngine(t *testing.T) {
	tools, _ := newTestTools(t, nil)
	_, handler := tools.taskTool()

	result := invoke(t, handler, map[string]any{
		"task":     "browse",
		"provider": "openai",
		"model":    "gpt-4o-mini",
		"api_key":  "sk-explicit",
	})

	if result["status"] != statusConfigurationError {
		t.Fatalf("status = %v", result["status"])
	}
	if !strings.Contains(result["error"].(string), "engine is not configured") {
		t.Errorf("error = %v", result["error"])
	}
}

func TestBrowserTaskPreviewTruncation(t *testing.T) {
	engine := &fakeEngine{report: &TaskReport{Success: true}}
	tools, _ := newTestTools(t, engine)
	_, handler := tools.taskTool()

	longTask := strings.Repeat("a", 300)
	result := invoke(t, handler, map[string]any{
		"task":     longTask,
		"provider": "openai",
		"model":    "gpt-4o-mini",
		"api_key":  "sk-explicit",
	})

	preview := result["task"].(string)
	if preview != strings.Repeat("a", 200)+"..." {
		t.Errorf("preview = %q", preview)
	}
	if engine.lastSpec.Task != longTask {
		t.Error("engine should receive the untruncated task")
	}
}

func TestAuthTaskInjectsStoredCredentials(t *testing.T) {
	engine := &fakeEngine{report: &TaskReport{Success: true, StepsTaken: 5}}
	tools, authStore := newTestTools(t, engine)

	err := authStore.SaveAuthCredential(context.Background(), "gmail_work", "test@company.com", "TestPass123!", nil)
	if err != nil {
		t.Fatalf("SaveAuthCredential: %v", err)
	}

	_, handler := tools.authTaskTool()
	result := invoke(t, handler, map[string]any{
		"task":           "Log in as {username} with {password} on example.com",
		"credential_ref": "gmail_work",
		"provider":       "anthropic",
		"model":          "claude-3-5-sonnet-20241022",
		"api_key":        "sk-explicit",
	})

	if result["success"] != true {
		t.Fatalf("expected success: %v", result)
	}

	if !strings.Contains(engine.lastSpec.Task, "test@company.com") || !strings.Contains(engine.lastSpec.Task, "TestPass123!") {
		t.Error("engine task should carry injected credentials")
	}
	if engine.lastSpec.MaxSteps != 20 || engine.lastSpec.TimeoutMS != 90000 {
		t.Errorf("auth defaults = %d steps, %d ms", engine.lastSpec.MaxSteps, engine.lastSpec.TimeoutMS)
	}
	if engine.lastSpec.UseVision {
		t.Error("auth task must not enable vision")
	}

	// The echoed task is the raw one: placeholders intact, secrets absent.
	preview := result["task"].(string)
	if !strings.Contains(preview, "{username}") {
		t.Errorf("preview should keep placeholders: %q", preview)
	}
	if strings.Contains(preview, "TestPass123!") {
		t.Error("preview must not contain the injected password")
	}
	if result["vision_enabled"] != false {
		t.Errorf("vision_enabled = %v", result["vision_enabled"])
	}
}

func TestAuthTaskExplicitCredentials(t *testing.T) {
	engine := &fakeEngine{report: &TaskReport{Success: true}}
	tools, _ := newTestTools(t, engine)

	_, handler := tools.authTaskTool()
	result := invoke(t, handler, map[string]any{
		"task": "Log in as {username} with {password}",
		"explicit_credentials": map[string]any{
			"username": "direct@example.com",
			"password": "DirectPass123!",
		},
		"provider": "openai",
		"model":    "gpt-4o-mini",
		"api_key":  "sk-explicit",
	})

	if result["success"] != true {
		t.Fatalf("expected success: %v", result)
	}
	if !strings.Contains(engine.lastSpec.Task, "direct@example.com") || !strings.Contains(engine.lastSpec.Task, "DirectPass123!") {
		t.Error("engine task should carry explicit credentials")
	}
}

func TestAuthTaskRejectsAmbiguousCredentials(t *testing.T) {
	engine := &fakeEngine{}
	tools, authStore := newTestTools(t, engine)

	if err := authStore.SaveAuthCredential(context.Background(), "github", "user", "pass", nil); err != nil {
		t.Fatalf("SaveAuthCredential: %v", err)
	}

	_, handler := tools.authTaskTool()
	result := invoke(t, handler, map[string]any{
		"task":                 "Log in",
		"credential_ref":       "github",
		"explicit_credentials": map[string]any{"username": "u", "password": "p"},
	})

	if result["success"] != false {
		t.Fatalf("expected failure: %v", result)
	}
	if !strings.Contains(strings.ToLower(result["error"].(string)), "not both") {
		t.Errorf("error = %v", result["error"])
	}
	if engine.calls != 0 {
		t.Error("engine should not run for ambiguous credentials")
	}
}

func TestAuthTaskNoCredentials(t *testing.T) {
	tools, _ := newTestTools(t, &fakeEngine{})
	_, handler := tools.authTaskTool()

	result := invoke(t, handler, map[string]any{"task": "Log in"})

	if result["status"] != statusConfigurationError {
		t.Fatalf("status = %v", result["status"])
	}
	if !strings.Contains(result["error"].(string), "No credentials provided") {
		t.Errorf("error = %v", result["error"])
	}
	if !strings.Contains(result["help"].(string), "credential_ref") {
		t.Errorf("help = %v", result["help"])
	}
}

func TestAuthTaskUnknownRefDoesNotFallThrough(t *testing.T) {
	tools, _ := newTestTools(t, &fakeEngine{})
	_, handler := tools.authTaskTool()

	result := invoke(t, handler, map[string]any{
		"task":           "Log in",
		"credential_ref": "missing",
	})

	if result["status"] != statusConfigurationError {
		t.Fatalf("status = %v", result["status"])
	}
	if !strings.Contains(result["error"].(string), "No credentials provided") {
		t.Errorf("error = %v", result["error"])
	}
}

func TestVisionTaskSelectsVisionModel(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-openai-test")

	engine := &fakeEngine{report: &TaskReport{Success: true}}
	tools, _ := newTestTools(t, engine)
	_, handler := tools.visionTaskTool()

	result := invoke(t, handler, map[string]any{"task": "Describe the page layout"})

	if result["success"] != true {
		t.Fatalf("expected success: %v", result)
	}
	if result["model_used"] != "gpt-4o" {
		t.Errorf("model_used = %v", result["model_used"])
	}
	if result["vision_enabled"] != true {
		t.Errorf("vision_enabled = %v", result["vision_enabled"])
	}
	if !engine.lastSpec.UseVision {
		t.Error("engine spec should enable vision")
	}
	if engine.lastSpec.TimeoutMS != 120000 {
		t.Errorf("vision timeout default = %d", engine.lastSpec.TimeoutMS)
	}
}

func TestSaveAndListCredentials(t *testing.T) {
	tools, _ := newTestTools(t, &fakeEngine{})

	_, save := tools.saveCredentialTool()
	result := invoke(t, save, map[string]any{
		"ref_id":            "new_service",
		"username":          "newuser@example.com",
		"password":          "NewPass789!",
		"two_factor_secret": "TOTP123",
		"notes":             "Test account",
	})
	if result["success"] != true || result["ref_id"] != "new_service" {
		t.Fatalf("save result: %v", result)
	}

	_, list := tools.listCredentialsTool()
	listed := invoke(t, list, nil)
	if listed["success"] != true || listed["count"] != float64(1) {
		t.Fatalf("list result: %v", listed)
	}
	refs := listed["credentials"].([]any)
	if len(refs) != 1 || refs[0] != "new_service" {
		t.Errorf("credentials = %v", refs)
	}
}

func TestSaveCredentialRejectsBadRef(t *testing.T) {
	tools, _ := newTestTools(t, &fakeEngine{})
	_, save := tools.saveCredentialTool()

	result := invoke(t, save, map[string]any{
		"ref_id":   "bad:ref",
		"username": "u",
		"password": "p",
	})
	if result["success"] != false {
		t.Fatalf("expected failure: %v", result)
	}
	if !strings.Contains(result["error"].(string), "must not contain ':'") {
		t.Errorf("error = %v", result["error"])
	}
}

func TestDeleteCredential(t *testing.T) {
	tools, authStore := newTestTools(t, &fakeEngine{})
	if err := authStore.SaveAuthCredential(context.Background(), "gmail_work", "u", "p", nil); err != nil {
		t.Fatalf("SaveAuthCredential: %v", err)
	}

	_, del := tools.deleteCredentialTool()
	result := invoke(t, del, map[string]any{"ref_id": "gmail_work"})
	if result["success"] != true {
		t.Fatalf("delete result: %v", result)
	}
	if !strings.Contains(strings.ToLower(result["message"].(string)), "deleted") {
		t.Errorf("message = %v", result["message"])
	}

	result = invoke(t, del, map[string]any{"ref_id": "gmail_work"})
	if result["success"] != false {
		t.Fatalf("second delete should fail: %v", result)
	}
	if !strings.Contains(result["error"].(string), "No credential found") {
		t.Errorf("error = %v", result["error"])
	}
}

func TestCredentialInfoHidesSecrets(t *testing.T) {
	tools, authStore := newTestTools(t, &fakeEngine{})
	metadata := map[string]string{"two_factor_secret": "TOTP123", "notes": "Work account"}
	if err := authStore.SaveAuthCredential(context.Background(), "gmail_work", "test@company.com", "TestPass123!", metadata); err != nil {
		t.Fatalf("SaveAuthCredential: %v", err)
	}

	_, infoTool := tools.credentialInfoTool()
	raw := rawInvoke(t, infoTool, map[string]any{"ref_id": "gmail_work"})
	text := resultText(t, raw)

	if strings.Contains(text, "TestPass123!") || strings.Contains(text, "TOTP123") {
		t.Fatalf("info leaked secret values: %s", text)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	info := decoded["info"].(map[string]any)
	if info["username"] != "test@company.com" {
		t.Errorf("username = %v", info["username"])
	}
	if info["notes"] != "Work account" {
		t.Errorf("notes = %v", info["notes"])
	}
	if info["has_two_factor"] != true {
		t.Errorf("has_two_factor = %v", info["has_two_factor"])
	}
	if _, ok := info["password"]; ok {
		t.Error("info must not contain a password key")
	}

	fields := info["fields"].([]any)
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.(string))
	}
	joined := strings.Join(names, ",")
	if !strings.Contains(joined, "password") || !strings.Contains(joined, "two_factor_secret") {
		t.Errorf("fields should list names: %v", names)
	}
}

func TestCredentialInfoNotFound(t *testing.T) {
	tools, _ := newTestTools(t, &fakeEngine{})
	_, infoTool := tools.credentialInfoTool()

	result := invoke(t, infoTool, map[string]any{"ref_id": "missing"})
	if result["success"] != false {
		t.Fatalf("expected failure: %v", result)
	}
	if !strings.Contains(result["error"].(string), "No credential found") {
		t.Errorf("error = %v", result["error"])
	}
}

func TestToolRegistration(t *testing.T) {
	tools, _ := newTestTools(t, &fakeEngine{})

	builders := []func() (mcp.Tool, server.ToolHandlerFunc){
		tools.taskTool,
		tools.authTaskTool,
		tools.visionTaskTool,
		tools.saveCredentialTool,
		tools.listCredentialsTool,
		tools.deleteCredentialTool,
		tools.credentialInfoTool,
	}
	want := []string{
		"browser_use_task",
		"browser_use_auth_task",
		"browser_use_vision_task",
		"save_auth_credential",
		"list_auth_credentials",
		"delete_auth_credential",
		"get_auth_credential_info",
	}

	for i, build := range builders {
		tool, handler := build()
		if tool.Name != want[i] {
			t.Errorf("tool %d name = %q, want %q", i, tool.Name, want[i])
		}
		if handler == nil {
			t.Errorf("tool %q has no handler", want[i])
		}
	}

	s := server.NewMCPServer("zana-test", "0.0.1", server.WithToolCapabilities(true))
	tools.Register(s)
}
