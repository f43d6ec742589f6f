// Package browser exposes natural-language browser automation as MCP
// tools. Tasks execute on a remote engine process; this package owns
// everything that happens before a task reaches the engine: input
// bounds, outbound-target security checks, credential resolution,
// placeholder injection, and result shaping.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/zanatools/zana/internal/credentials"
	"github.com/zanatools/zana/internal/security"
	"github.com/zanatools/zana/internal/tools"
	"github.com/zanatools/zana/internal/vault"
)

// Input bounds and per-tool defaults.
const (
	maxStepsMin = 1
	maxStepsMax = 50

	timeoutMinMS = 5000
	timeoutMaxMS = 300000

	defaultMaxSteps  = 15
	defaultTimeoutMS = 300000

	defaultAuthMaxSteps  = 20
	defaultAuthTimeoutMS = 90000

	defaultVisionTimeoutMS = 120000
)

// taskPreviewLimit caps how much task text is echoed back in results.
// Previews are always cut from the pre-injection task, so resolved
// secrets never round-trip through tool output.
const taskPreviewLimit = 200

// Status values carried by failed task results.
const (
	statusConfigurationError = "configuration_error"
	statusTimeout            = "timeout"
	statusSecurityBlocked    = "security_blocked"
	statusExecutionError     = "execution_error"
)

// APIKeyResolver resolves LLM provider API keys and provider/model
// pairs. Implemented by credentials.Resolver.
type APIKeyResolver interface {
	ResolveAPIKey(ctx context.Context, provider, explicitKey string) (string, error)
	ResolveProviderAndModel(ctx context.Context, provider, model string, useVision bool) (string, string, error)
}

// LoginResolver resolves website login credentials for authenticated
// tasks and injects them into task placeholders. Implemented by
// credentials.AuthResolver.
type LoginResolver interface {
	ResolveCredentials(ctx context.Context, credentialRef string, explicit map[string]string) (map[string]string, bool)
	InjectCredentials(task string, data map[string]string) string
}

// AuthAdmin manages stored website login credentials. Implemented by
// vault.AuthStore.
type AuthAdmin interface {
	SaveAuthCredential(ctx context.Context, refID, username, password string, metadata map[string]string) error
	GetAuthCredential(ctx context.Context, refID string) (map[string]string, error)
	ListAuthCredentials(ctx context.Context) ([]string, error)
	DeleteAuthCredential(ctx context.Context, refID string) (bool, error)
}

// ValidateFunc checks task text against the outbound-target policy.
type ValidateFunc func(task string, allowedDomains []string) error

// Tools bundles the browser automation tools and their collaborators.
type Tools struct {
	engine   Engine
	resolver APIKeyResolver
	logins   LoginResolver
	store    AuthAdmin
	validate ValidateFunc
	logger   *slog.Logger
}

// NewTools assembles the browser tool set. A nil validate falls back to
// security.ValidateTaskDomains; a nil engine turns every task run into
// a configuration error while leaving credential management usable.
func NewTools(engine Engine, resolver APIKeyResolver, logins LoginResolver, store AuthAdmin, validate ValidateFunc, logger *slog.Logger) *Tools {
	if validate == nil {
		validate = security.ValidateTaskDomains
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tools{
		engine:   engine,
		resolver: resolver,
		logins:   logins,
		store:    store,
		validate: validate,
		logger:   logger,
	}
}

// Register adds all browser automation and credential management tools
// to the registry.
func (t *Tools) Register(r tools.Registry) {
	r.AddTool(t.taskTool())
	r.AddTool(t.authTaskTool())
	r.AddTool(t.visionTaskTool())
	r.AddTool(t.saveCredentialTool())
	r.AddTool(t.listCredentialsTool())
	r.AddTool(t.deleteCredentialTool())
	r.AddTool(t.credentialInfoTool())
}

type taskArgs struct {
	Task           string   `json:"task"`
	AllowedDomains []string `json:"allowed_domains"`
	MaxSteps       *int     `json:"max_steps"`
	TimeoutMS      *int     `json:"timeout_ms"`
	Headless       *bool    `json:"headless"`
	Provider       string   `json:"provider"`
	Model          string   `json:"model"`
	UseVision      bool     `json:"use_vision"`
	APIKey         string   `json:"api_key"`
}

type authTaskArgs struct {
	Task                string            `json:"task"`
	CredentialRef       string            `json:"credential_ref"`
	ExplicitCredentials map[string]string `json:"explicit_credentials"`
	AllowedDomains      []string          `json:"allowed_domains"`
	MaxSteps            *int              `json:"max_steps"`
	TimeoutMS           *int              `json:"timeout_ms"`
	Headless            *bool             `json:"headless"`
	Provider            string            `json:"provider"`
	Model               string            `json:"model"`
	APIKey              string            `json:"api_key"`
}

func (t *Tools) taskTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("browser_use_task",
		mcp.WithDescription("Run a natural language browser automation task."),
		mcp.WithString("task", mcp.Required(), mcp.Description("Natural language instruction for the browser.")),
		mcp.WithArray("allowed_domains", mcp.Description("Optional domain allowlist; entries may use *.example.com wildcards."), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithNumber("max_steps", mcp.Description("Maximum steps to execute (1-50).")),
		mcp.WithNumber("timeout_ms", mcp.Description("Timeout in milliseconds (5000-300000).")),
		mcp.WithBoolean("headless", mcp.Description("Run the browser without a visible window.")),
		mcp.WithString("provider", mcp.Description("LLM provider override.")),
		mcp.WithString("model", mcp.Description("Model name override.")),
		mcp.WithBoolean("use_vision", mcp.Description("Enable screenshot-based vision mode.")),
		mcp.WithString("api_key", mcp.Description("Explicit API key override.")),
	)

	return tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args taskArgs
		if err := decodeArgs(request, &args); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return t.executeBrowserTask(ctx, runRequest{
			rawTask:        args.Task,
			finalTask:      args.Task,
			allowedDomains: args.AllowedDomains,
			maxSteps:       intOrDefault(args.MaxSteps, defaultMaxSteps),
			timeoutMS:      intOrDefault(args.TimeoutMS, defaultTimeoutMS),
			headless:       boolOrDefault(args.Headless, true),
			provider:       args.Provider,
			model:          args.Model,
			useVision:      args.UseVision,
			apiKey:         args.APIKey,
		}), nil
	}
}

func (t *Tools) authTaskTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("browser_use_auth_task",
		mcp.WithDescription("Run a browser automation task with stored or explicit login credentials injected into {placeholder} slots."),
		mcp.WithString("task", mcp.Required(), mcp.Description("Natural language instruction; may contain {username}, {password} and other field placeholders.")),
		mcp.WithString("credential_ref", mcp.Description("Reference id of a stored credential. Mutually exclusive with explicit_credentials.")),
		mcp.WithObject("explicit_credentials", mcp.Description("Credential fields passed inline. Mutually exclusive with credential_ref.")),
		mcp.WithArray("allowed_domains", mcp.Description("Optional domain allowlist; entries may use *.example.com wildcards."), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithNumber("max_steps", mcp.Description("Maximum steps to execute (1-50).")),
		mcp.WithNumber("timeout_ms", mcp.Description("Timeout in milliseconds (5000-300000).")),
		mcp.WithBoolean("headless", mcp.Description("Run the browser without a visible window.")),
		mcp.WithString("provider", mcp.Description("LLM provider override.")),
		mcp.WithString("model", mcp.Description("Model name override.")),
		mcp.WithString("api_key", mcp.Description("Explicit API key override.")),
	)

	return tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args authTaskArgs
		if err := decodeArgs(request, &args); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		if args.CredentialRef != "" && len(args.ExplicitCredentials) > 0 {
			return jsonResult(taskFailure{
				Status: statusConfigurationError,
				Error:  "Provide either credential_ref OR explicit_credentials, not both.",
			}), nil
		}

		creds, ok := t.logins.ResolveCredentials(ctx, args.CredentialRef, args.ExplicitCredentials)
		if !ok {
			t.logger.Info("auth task has no usable credentials")
			return jsonResult(taskFailure{
				Status: statusConfigurationError,
				Error:  "No credentials provided.",
				Help:   "Provide either a valid credential_ref pointing to a stored credential or explicit_credentials dictionary.",
			}), nil
		}

		finalTask := t.logins.InjectCredentials(args.Task, creds)

		// Vision stays off for authenticated runs.
		return t.executeBrowserTask(ctx, runRequest{
			rawTask:        args.Task,
			finalTask:      finalTask,
			allowedDomains: args.AllowedDomains,
			maxSteps:       intOrDefault(args.MaxSteps, defaultAuthMaxSteps),
			timeoutMS:      intOrDefault(args.TimeoutMS, defaultAuthTimeoutMS),
			headless:       boolOrDefault(args.Headless, true),
			provider:       args.Provider,
			model:          args.Model,
			useVision:      false,
			apiKey:         args.APIKey,
		}), nil
	}
}

func (t *Tools) visionTaskTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("browser_use_vision_task",
		mcp.WithDescription("Run a browser automation task with screenshot-based vision enabled, using a vision-capable model."),
		mcp.WithString("task", mcp.Required(), mcp.Description("Natural language instruction for the browser.")),
		mcp.WithArray("allowed_domains", mcp.Description("Optional domain allowlist; entries may use *.example.com wildcards."), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithNumber("max_steps", mcp.Description("Maximum steps to execute (1-50).")),
		mcp.WithNumber("timeout_ms", mcp.Description("Timeout in milliseconds (5000-300000).")),
		mcp.WithBoolean("headless", mcp.Description("Run the browser without a visible window.")),
		mcp.WithString("provider", mcp.Description("LLM provider override.")),
		mcp.WithString("model", mcp.Description("Model name override.")),
		mcp.WithString("api_key", mcp.Description("Explicit API key override.")),
	)

	return tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args taskArgs
		if err := decodeArgs(request, &args); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return t.executeBrowserTask(ctx, runRequest{
			rawTask:        args.Task,
			finalTask:      args.Task,
			allowedDomains: args.AllowedDomains,
			maxSteps:       intOrDefault(args.MaxSteps, defaultMaxSteps),
			timeoutMS:      intOrDefault(args.TimeoutMS, defaultVisionTimeoutMS),
			headless:       boolOrDefault(args.Headless, true),
			provider:       args.Provider,
			model:          args.Model,
			useVision:      true,
			apiKey:         args.APIKey,
		}), nil
	}
}

// runRequest carries one browser run through the execution pipeline.
// rawTask is what the caller wrote and is the only text ever echoed
// back; finalTask is what the engine executes and may carry injected
// secrets.
type runRequest struct {
	rawTask        string
	finalTask      string
	allowedDomains []string
	maxSteps       int
	timeoutMS      int
	headless       bool
	provider       string
	model          string
	useVision      bool
	apiKey         string
}

// executeBrowserTask validates a run, resolves its LLM credentials, and
// hands it to the engine. Security validation happens before credential
// resolution, so a blocked task never touches the vault.
func (t *Tools) executeBrowserTask(ctx context.Context, req runRequest) *mcp.CallToolResult {
	started := time.Now()

	fail := func(status, message string) *mcp.CallToolResult {
		return jsonResult(taskFailure{
			Status:          status,
			Error:           message,
			ExecutionTimeMS: time.Since(started).Milliseconds(),
		})
	}

	if strings.TrimSpace(req.rawTask) == "" {
		return fail(statusConfigurationError, "task cannot be empty")
	}
	if req.maxSteps < maxStepsMin || req.maxSteps > maxStepsMax {
		return fail(statusConfigurationError, fmt.Sprintf("max_steps must be between %d and %d", maxStepsMin, maxStepsMax))
	}
	if req.timeoutMS < timeoutMinMS || req.timeoutMS > timeoutMaxMS {
		return fail(statusConfigurationError, fmt.Sprintf("timeout_ms must be between %d and %d", timeoutMinMS, timeoutMaxMS))
	}

	if err := t.validate(req.rawTask, req.allowedDomains); err != nil {
		t.logger.Warn("browser task blocked", slog.String("reason", err.Error()))
		return fail(statusSecurityBlocked, err.Error())
	}

	failConfig := func(message string) *mcp.CallToolResult {
		return jsonResult(taskFailure{
			Status:          statusConfigurationError,
			Error:           message,
			Help:            "Provide provider and model explicitly, or configure an API key via environment variable or credential store.",
			ExecutionTimeMS: time.Since(started).Milliseconds(),
		})
	}

	provider, model, err := t.resolver.ResolveProviderAndModel(ctx, req.provider, req.model, req.useVision)
	if err != nil {
		t.logger.Info("browser task configuration error")
		return failConfig(err.Error())
	}
	if _, known := credentials.Spec(provider); !known {
		return fail(statusConfigurationError, fmt.Sprintf("Unknown provider '%s'. Valid options: openai, anthropic, azure_openai, groq.", provider))
	}
	if provider == credentials.ProviderAzureOpenAI && os.Getenv("AZURE_OPENAI_ENDPOINT") == "" {
		return fail(statusConfigurationError, "AZURE_OPENAI_ENDPOINT is required for Azure OpenAI.")
	}

	apiKey, err := t.resolver.ResolveAPIKey(ctx, provider, req.apiKey)
	if err != nil {
		t.logger.Info("browser task configuration error")
		return failConfig(err.Error())
	}

	if t.engine == nil {
		return fail(statusConfigurationError, "browser engine is not configured")
	}

	runID := uuid.NewString()
	spec := TaskSpec{
		RunID:          runID,
		Task:           req.finalTask,
		Provider:       provider,
		Model:          model,
		APIKey:         apiKey,
		AllowedDomains: req.allowedDomains,
		MaxSteps:       req.maxSteps,
		TimeoutMS:      req.timeoutMS,
		Headless:       req.headless,
		UseVision:      req.useVision,
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(req.timeoutMS)*time.Millisecond)
	defer cancel()

	t.logger.Info("browser task started",
		slog.String("run_id", runID),
		slog.String("provider", provider),
		slog.String("model", model),
		slog.Bool("vision", req.useVision),
		slog.Int("max_steps", req.maxSteps),
	)

	report, err := t.engine.Run(runCtx, spec)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			t.logger.Warn("browser task timed out", slog.String("run_id", runID))
			return fail(statusTimeout, fmt.Sprintf("Task timed out after %d ms", req.timeoutMS))
		}
		t.logger.Error("browser task failed", slog.String("run_id", runID), slog.String("error", err.Error()))
		return fail(statusExecutionError, fmt.Sprintf("Browser task failed: %v", err))
	}
	if !report.Success {
		message := report.Error
		if message == "" {
			message = "engine reported failure without detail"
		}
		t.logger.Error("browser task failed", slog.String("run_id", runID), slog.String("error", message))
		return fail(statusExecutionError, fmt.Sprintf("Browser task failed: %s", message))
	}

	elapsed := time.Since(started).Milliseconds()
	t.logger.Info("browser task finished",
		slog.String("run_id", runID),
		slog.Int("steps", report.StepsTaken),
		slog.Int64("duration_ms", elapsed),
	)

	return jsonResult(taskSuccess{
		Success:         true,
		RunID:           runID,
		Task:            taskPreview(req.rawTask),
		Result:          report.Result,
		StepsTaken:      report.StepsTaken,
		MaxSteps:        req.maxSteps,
		ExecutionTimeMS: elapsed,
		ModelUsed:       model,
		ProviderUsed:    provider,
		VisionEnabled:   req.useVision,
	})
}

type saveCredentialArgs struct {
	RefID           string `json:"ref_id"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	TwoFactorSecret string `json:"two_factor_secret"`
	Notes           string `json:"notes"`
}

func (t *Tools) saveCredentialTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("save_auth_credential",
		mcp.WithDescription("Save a website login credential to the encrypted store."),
		mcp.WithString("ref_id", mcp.Required(), mcp.Description("Unique reference id, without namespace prefix.")),
		mcp.WithString("username", mcp.Required(), mcp.Description("Username or email.")),
		mcp.WithString("password", mcp.Required(), mcp.Description("Password.")),
		mcp.WithString("two_factor_secret", mcp.Description("Optional TOTP secret.")),
		mcp.WithString("notes", mcp.Description("Optional free-form notes.")),
	)

	return tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if t.store == nil {
			return jsonResult(toolError{Error: "credential store is not configured"}), nil
		}
		var args saveCredentialArgs
		if err := decodeArgs(request, &args); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		metadata := map[string]string{
			"two_factor_secret": args.TwoFactorSecret,
			"notes":             args.Notes,
		}
		if err := t.store.SaveAuthCredential(ctx, args.RefID, args.Username, args.Password, metadata); err != nil {
			return jsonResult(toolError{Error: err.Error()}), nil
		}
		return jsonResult(saveCredentialResult{Success: true, RefID: args.RefID}), nil
	}
}

func (t *Tools) listCredentialsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("list_auth_credentials",
		mcp.WithDescription("List saved credential reference ids. Never returns secret values."),
	)

	return tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if t.store == nil {
			return jsonResult(toolError{Error: "credential store is not configured"}), nil
		}
		refs, err := t.store.ListAuthCredentials(ctx)
		if err != nil {
			return jsonResult(toolError{Error: err.Error()}), nil
		}
		sort.Strings(refs)
		return jsonResult(listCredentialsResult{Success: true, Count: len(refs), Credentials: refs}), nil
	}
}

type refIDArgs struct {
	RefID string `json:"ref_id"`
}

func (t *Tools) deleteCredentialTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("delete_auth_credential",
		mcp.WithDescription("Delete a saved credential."),
		mcp.WithString("ref_id", mcp.Required(), mcp.Description("Reference id of the credential to delete.")),
	)

	return tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if t.store == nil {
			return jsonResult(toolError{Error: "credential store is not configured"}), nil
		}
		var args refIDArgs
		if err := decodeArgs(request, &args); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		deleted, err := t.store.DeleteAuthCredential(ctx, args.RefID)
		if err != nil {
			return jsonResult(toolError{Error: err.Error()}), nil
		}
		if !deleted {
			return jsonResult(toolError{Error: fmt.Sprintf("No credential found for ref_id '%s'.", args.RefID)}), nil
		}
		t.logger.Info("auth credential deleted", slog.String("ref", args.RefID))
		return jsonResult(deleteCredentialResult{Success: true, Message: fmt.Sprintf("Credential '%s' deleted.", args.RefID)}), nil
	}
}

func (t *Tools) credentialInfoTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("get_auth_credential_info",
		mcp.WithDescription("Show non-secret metadata for a saved credential."),
		mcp.WithString("ref_id", mcp.Required(), mcp.Description("Reference id of the credential.")),
	)

	return tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if t.store == nil {
			return jsonResult(toolError{Error: "credential store is not configured"}), nil
		}
		var args refIDArgs
		if err := decodeArgs(request, &args); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		fields, err := t.store.GetAuthCredential(ctx, args.RefID)
		if err != nil {
			if errors.Is(err, vault.ErrNotFound) {
				return jsonResult(toolError{Error: fmt.Sprintf("No credential found for ref_id '%s'.", args.RefID)}), nil
			}
			return jsonResult(toolError{Error: err.Error()}), nil
		}

		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)

		_, hasTwoFactor := fields["two_factor_secret"]
		return jsonResult(credentialInfoResult{
			Success: true,
			Info: credentialInfo{
				RefID:        args.RefID,
				Username:     fields["username"],
				Notes:        fields["notes"],
				HasTwoFactor: hasTwoFactor,
				Fields:       names,
			},
		}), nil
	}
}

// taskFailure is the result body for failed runs.
type taskFailure struct {
	Success         bool   `json:"success"`
	Status          string `json:"status"`
	Error           string `json:"error"`
	Help            string `json:"help,omitempty"`
	ExecutionTimeMS int64  `json:"execution_time_ms"`
}

// taskSuccess mirrors the engine report plus run metadata.
type taskSuccess struct {
	Success         bool   `json:"success"`
	RunID           string `json:"run_id"`
	Task            string `json:"task"`
	Result          string `json:"result"`
	StepsTaken      int    `json:"steps_taken"`
	MaxSteps        int    `json:"max_steps"`
	ExecutionTimeMS int64  `json:"execution_time_ms"`
	ModelUsed       string `json:"model_used"`
	ProviderUsed    string `json:"provider_used"`
	VisionEnabled   bool   `json:"vision_enabled"`
}

type toolError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type saveCredentialResult struct {
	Success bool   `json:"success"`
	RefID   string `json:"ref_id"`
}

type listCredentialsResult struct {
	Success     bool     `json:"success"`
	Count       int      `json:"count"`
	Credentials []string `json:"credentials"`
}

type deleteCredentialResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// credentialInfoResult wraps the non-secret view of a stored credential.
// Only the username and notes values are included; every other field
// contributes its name alone.
type credentialInfoResult struct {
	Success bool           `json:"success"`
	Info    credentialInfo `json:"info"`
}

type credentialInfo struct {
	RefID        string   `json:"ref_id"`
	Username     string   `json:"username"`
	Notes        string   `json:"notes,omitempty"`
	HasTwoFactor bool     `json:"has_two_factor"`
	Fields       []string `json:"fields"`
}

func decodeArgs(request mcp.CallToolRequest, out any) error {
	data, err := json.Marshal(request.GetArguments())
	if err != nil {
		return fmt.Errorf("reading arguments: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

// taskPreview truncates task text for result echoing, counting runes so
// multi-byte text is never cut mid-character.
func taskPreview(task string) string {
	runes := []rune(task)
	if len(runes) <= taskPreviewLimit {
		return task
	}
	return string(runes[:taskPreviewLimit]) + "..."
}

func intOrDefault(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}

func boolOrDefault(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
