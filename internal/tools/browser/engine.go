package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/coder/websocket"
)

// TaskSpec describes one automation run handed to the engine. The task text
// may carry injected credentials and APIKey holds the resolved key, so a
// TaskSpec must never be logged.
type TaskSpec struct {
	RunID          string   `json:"run_id"`
	Task           string   `json:"task"`
	Provider       string   `json:"provider"`
	Model          string   `json:"model"`
	APIKey         string   `json:"api_key"`
	AllowedDomains []string `json:"allowed_domains,omitempty"`
	MaxSteps       int      `json:"max_steps"`
	TimeoutMS      int      `json:"timeout_ms"`
	Headless       bool     `json:"headless"`
	UseVision      bool     `json:"use_vision"`
}

// TaskReport is the engine's terminal reply for a run.
type TaskReport struct {
	Success    bool   `json:"success"`
	Result     string `json:"result,omitempty"`
	StepsTaken int    `json:"steps_taken"`
	Error      string `json:"error,omitempty"`
}

// Engine executes browser automation tasks. Implementations own transport
// and retries; the caller owns input validation, security checks, and
// credential resolution, all of which happen before a spec reaches the
// engine.
type Engine interface {
	Run(ctx context.Context, spec TaskSpec) (*TaskReport, error)
	Ping(ctx context.Context) error
}

// EngineError is a protocol-level failure reported by the engine itself.
type EngineError struct {
	Code    string
	Message string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error %s: %s", e.Code, e.Message)
}

// Engine protocol message types.
const (
	msgTaskRun      = "task.run"
	msgTaskProgress = "task.progress"
	msgTaskResult   = "task.result"
	msgTaskError    = "task.error"
	msgPing         = "ping"
	msgPong         = "pong"
)

type envelope struct {
	Type    string          `json:"type"`
	RunID   string          `json:"run_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func newEnvelope(msgType, runID string, payload any) (*envelope, error) {
	env := &envelope{Type: msgType, RunID: runID}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = data
	}
	return env, nil
}

type progressPayload struct {
	Step   int    `json:"step"`
	Action string `json:"action,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WSEngine talks to a browser-agent sidecar over WebSocket. Each run is a
// single connection: dial, send the task, consume progress frames until the
// terminal result arrives or the context expires.
type WSEngine struct {
	url    string
	logger *slog.Logger
}

// NewWSEngine creates a WebSocket engine client for the given endpoint URL.
func NewWSEngine(url string, logger *slog.Logger) *WSEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSEngine{url: url, logger: logger}
}

var _ Engine = (*WSEngine)(nil)

// Run executes one task on the engine. The context deadline bounds the whole
// round trip including the dial. Progress frames are logged at debug level
// by step number only; frame contents may echo task text and are not logged.
func (e *WSEngine) Run(ctx context.Context, spec TaskSpec) (*TaskReport, error) {
	conn, _, err := websocket.Dial(ctx, e.url, &websocket.DialOptions{
		Subprotocols: []string{"zana-engine-v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("dialing engine: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "run complete")

	env, err := newEnvelope(msgTaskRun, spec.RunID, spec)
	if err != nil {
		return nil, fmt.Errorf("encoding task: %w", err)
	}
	if err := e.writeEnvelope(ctx, conn, env); err != nil {
		return nil, fmt.Errorf("sending task: %w", err)
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading from engine: %w", err)
		}

		var reply envelope
		if err := json.Unmarshal(data, &reply); err != nil {
			e.logger.Warn("invalid message from engine", slog.String("error", err.Error()))
			continue
		}

		switch reply.Type {
		case msgTaskProgress:
			var progress progressPayload
			if err := json.Unmarshal(reply.Payload, &progress); err == nil {
				e.logger.Debug("engine progress",
					slog.String("run_id", spec.RunID),
					slog.Int("step", progress.Step),
				)
			}

		case msgTaskResult:
			var report TaskReport
			if err := json.Unmarshal(reply.Payload, &report); err != nil {
				return nil, fmt.Errorf("decoding result: %w", err)
			}
			return &report, nil

		case msgTaskError:
			var ep errorPayload
			if err := json.Unmarshal(reply.Payload, &ep); err != nil {
				return nil, fmt.Errorf("decoding engine error: %w", err)
			}
			return nil, &EngineError{Code: ep.Code, Message: ep.Message}

		default:
			e.logger.Debug("unknown message from engine", slog.String("type", reply.Type))
		}
	}
}

// Ping checks engine reachability with a ping/pong round trip.
func (e *WSEngine) Ping(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, e.url, &websocket.DialOptions{
		Subprotocols: []string{"zana-engine-v1"},
	})
	if err != nil {
		return fmt.Errorf("dialing engine: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "ping complete")

	env, _ := newEnvelope(msgPing, "", nil)
	if err := e.writeEnvelope(ctx, conn, env); err != nil {
		return fmt.Errorf("sending ping: %w", err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading pong: %w", err)
	}
	var reply envelope
	if err := json.Unmarshal(data, &reply); err != nil {
		return fmt.Errorf("parsing pong: %w", err)
	}
	if reply.Type != msgPong {
		return fmt.Errorf("expected pong, got %s", reply.Type)
	}
	return nil
}

func (e *WSEngine) writeEnvelope(ctx context.Context, conn *websocket.Conn, env *envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
