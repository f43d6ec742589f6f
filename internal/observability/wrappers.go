package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zanatools/zana/internal/credentials"
	"github.com/zanatools/zana/internal/security"
	"github.com/zanatools/zana/internal/tools/browser"
	"github.com/zanatools/zana/internal/vault"
)

// --- InstrumentedEngine ---

// InstrumentedEngine wraps a browser.Engine with metrics, tracing, and
// anomaly detection.
type InstrumentedEngine struct {
	inner   browser.Engine
	metrics *MetricsCollector
	tracer  trace.Tracer
	anomaly *AnomalyDetector
}

// NewInstrumentedEngine wraps a browser engine with observability.
func NewInstrumentedEngine(inner browser.Engine, metrics *MetricsCollector, ts *TracerSetup, anomaly *AnomalyDetector) *InstrumentedEngine {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &InstrumentedEngine{
		inner:   inner,
		metrics: metrics,
		tracer:  tracer,
		anomaly: anomaly,
	}
}

// Run forwards to the inner engine. Only run identifiers reach the span;
// task text and the API key never do.
func (e *InstrumentedEngine) Run(ctx context.Context, spec browser.TaskSpec) (*browser.TaskReport, error) {
	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.Start(ctx, "engine.run",
			trace.WithAttributes(
				attribute.String("engine.run_id", spec.RunID),
				attribute.String("llm.provider", spec.Provider),
				attribute.String("llm.model", spec.Model),
				attribute.Bool("engine.vision", spec.UseVision),
				attribute.Int("engine.max_steps", spec.MaxSteps),
			))
		defer span.End()
	}

	start := time.Now()
	report, err := e.inner.Run(ctx, spec)
	duration := time.Since(start).Seconds()

	status := "success"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = "timeout"
	case err != nil:
		status = "error"
	case report != nil && !report.Success:
		status = "task_failed"
	}

	if err != nil && e.tracer != nil {
		span := trace.SpanFromContext(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	if e.metrics != nil {
		e.metrics.EngineRequestsTotal.WithLabelValues(status).Inc()
		e.metrics.EngineRequestDuration.Observe(duration)
	}

	if e.anomaly != nil {
		if err != nil {
			e.anomaly.RecordError("engine_run")
		} else {
			e.anomaly.RecordSuccess("engine_run")
		}
	}

	return report, err
}

func (e *InstrumentedEngine) Ping(ctx context.Context) error {
	return e.inner.Ping(ctx)
}

// --- InstrumentedStore ---

// InstrumentedStore wraps a vault.Store with metrics and tracing. Wrapping
// the backing store rather than the auth facade counts every vault touch,
// including the ones the facade makes internally.
type InstrumentedStore struct {
	inner   vault.Store
	metrics *MetricsCollector
	tracer  trace.Tracer
}

// NewInstrumentedStore wraps a vault store with observability.
func NewInstrumentedStore(inner vault.Store, metrics *MetricsCollector, ts *TracerSetup) *InstrumentedStore {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &InstrumentedStore{
		inner:   inner,
		metrics: metrics,
		tracer:  tracer,
	}
}

func (s *InstrumentedStore) Save(ctx context.Context, credential *vault.CredentialObject) error {
	if s.tracer != nil {
		var span trace.Span
		ctx, span = s.tracer.Start(ctx, "vault.save",
			trace.WithAttributes(attribute.String("vault.id", credential.ID)))
		defer span.End()
	}

	err := s.inner.Save(ctx, credential)
	s.recordOp("save", errStatus(err))
	return err
}

func (s *InstrumentedStore) Get(ctx context.Context, id string) (*vault.CredentialObject, error) {
	if s.tracer != nil {
		var span trace.Span
		ctx, span = s.tracer.Start(ctx, "vault.get",
			trace.WithAttributes(attribute.String("vault.id", id)))
		defer span.End()
	}

	credential, err := s.inner.Get(ctx, id)
	switch {
	case errors.Is(err, vault.ErrNotFound):
		s.recordOp("get", "miss")
	default:
		s.recordOp("get", errStatus(err))
	}
	return credential, err
}

func (s *InstrumentedStore) List(ctx context.Context) ([]string, error) {
	if s.tracer != nil {
		var span trace.Span
		ctx, span = s.tracer.Start(ctx, "vault.list")
		defer span.End()
	}

	ids, err := s.inner.List(ctx)
	s.recordOp("list", errStatus(err))
	return ids, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, id string) (bool, error) {
	if s.tracer != nil {
		var span trace.Span
		ctx, span = s.tracer.Start(ctx, "vault.delete",
			trace.WithAttributes(attribute.String("vault.id", id)))
		defer span.End()
	}

	deleted, err := s.inner.Delete(ctx, id)
	switch {
	case err != nil:
		s.recordOp("delete", "error")
	case !deleted:
		s.recordOp("delete", "miss")
	default:
		s.recordOp("delete", "success")
	}
	return deleted, err
}

func (s *InstrumentedStore) IsAvailable(ctx context.Context, id string) bool {
	return s.inner.IsAvailable(ctx, id)
}

func (s *InstrumentedStore) recordOp(operation, status string) {
	if s.metrics == nil {
		return
	}
	s.metrics.VaultOperationsTotal.WithLabelValues(operation, status).Inc()
}

// --- InstrumentedResolver ---

// InstrumentedResolver wraps an API key resolver with metrics and tracing.
// Resolved keys pass straight through; only outcomes are recorded.
type InstrumentedResolver struct {
	inner   browser.APIKeyResolver
	metrics *MetricsCollector
	tracer  trace.Tracer
}

// NewInstrumentedResolver wraps a credential resolver with observability.
func NewInstrumentedResolver(inner browser.APIKeyResolver, metrics *MetricsCollector, ts *TracerSetup) *InstrumentedResolver {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &InstrumentedResolver{
		inner:   inner,
		metrics: metrics,
		tracer:  tracer,
	}
}

func (r *InstrumentedResolver) ResolveAPIKey(ctx context.Context, provider, explicitKey string) (string, error) {
	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.Start(ctx, "credentials.resolve_api_key",
			trace.WithAttributes(attribute.String("llm.provider", provider)))
		defer span.End()
	}

	key, err := r.inner.ResolveAPIKey(ctx, provider, explicitKey)
	r.recordResolution("api_key", err)
	return key, err
}

func (r *InstrumentedResolver) ResolveProviderAndModel(ctx context.Context, provider, model string, useVision bool) (string, string, error) {
	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.Start(ctx, "credentials.resolve_provider_model",
			trace.WithAttributes(attribute.Bool("llm.vision", useVision)))
		defer span.End()
	}

	resolvedProvider, resolvedModel, err := r.inner.ResolveProviderAndModel(ctx, provider, model, useVision)
	if err == nil && r.tracer != nil {
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.String("llm.provider", resolvedProvider),
			attribute.String("llm.model", resolvedModel),
		)
	}
	r.recordResolution("provider_model", err)
	return resolvedProvider, resolvedModel, err
}

func (r *InstrumentedResolver) recordResolution(kind string, err error) {
	if r.metrics == nil {
		return
	}
	outcome := "resolved"

	var noKey *credentials.NoKeyError
	var noProvider *credentials.NoProviderError
	switch {
	case err == nil:
	case errors.As(err, &noKey), errors.As(err, &noProvider):
		outcome = "miss"
	default:
		outcome = "error"
	}
	r.metrics.ResolutionsTotal.WithLabelValues(kind, outcome).Inc()
}

// --- InstrumentedLoginResolver ---

// InstrumentedLoginResolver wraps a login resolver with metrics. Injection
// is a pure pass-through: it handles secret values and records nothing.
type InstrumentedLoginResolver struct {
	inner   browser.LoginResolver
	metrics *MetricsCollector
}

// NewInstrumentedLoginResolver wraps a login resolver with observability.
func NewInstrumentedLoginResolver(inner browser.LoginResolver, metrics *MetricsCollector) *InstrumentedLoginResolver {
	return &InstrumentedLoginResolver{inner: inner, metrics: metrics}
}

func (r *InstrumentedLoginResolver) ResolveCredentials(ctx context.Context, credentialRef string, explicit map[string]string) (map[string]string, bool) {
	fields, ok := r.inner.ResolveCredentials(ctx, credentialRef, explicit)
	if r.metrics != nil {
		outcome := "resolved"
		if !ok {
			outcome = "miss"
		}
		r.metrics.ResolutionsTotal.WithLabelValues("login", outcome).Inc()
	}
	return fields, ok
}

func (r *InstrumentedLoginResolver) InjectCredentials(task string, data map[string]string) string {
	return r.inner.InjectCredentials(task, data)
}

// --- Validator instrumentation ---

// NewInstrumentedValidator wraps a task validator with security check
// metrics. A nil inner validator wraps the default one.
func NewInstrumentedValidator(inner browser.ValidateFunc, metrics *MetricsCollector) browser.ValidateFunc {
	if inner == nil {
		inner = security.ValidateTaskDomains
	}
	return func(task string, allowedDomains []string) error {
		err := inner(task, allowedDomains)
		if metrics != nil {
			if err != nil {
				metrics.SecurityChecksTotal.WithLabelValues(violationCheckType(err), "blocked").Inc()
			} else {
				metrics.SecurityChecksTotal.WithLabelValues("task_domains", "allowed").Inc()
			}
		}
		return err
	}
}

// violationCheckType names the check that fired for a validation error.
func violationCheckType(err error) string {
	var schemeErr *security.SchemeError
	var privateErr *security.PrivateAddressError
	var domainErr *security.DomainError
	switch {
	case errors.As(err, &schemeErr):
		return "scheme"
	case errors.As(err, &privateErr):
		return "private_address"
	case errors.As(err, &domainErr):
		return "domain_allowlist"
	default:
		return "task_domains"
	}
}

func errStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// --- Compile-time interface checks ---

var (
	_ browser.Engine         = (*InstrumentedEngine)(nil)
	_ vault.Store            = (*InstrumentedStore)(nil)
	_ browser.APIKeyResolver = (*InstrumentedResolver)(nil)
	_ browser.LoginResolver  = (*InstrumentedLoginResolver)(nil)
)
