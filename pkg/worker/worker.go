// Package worker runs one LLM-driven browser task against one pooled
// session. A Worker is built per task by the pool's worker factory and
// discarded afterwards; the browser session it drives outlives it.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/okanya/webagentd/internal/observability"
)

const defaultSystemPrompt = `You are a browser automation agent. You control a real web browser through the provided tools.

Work toward the user's task one step at a time:
1. Use browser_navigate to open pages and browser_extract_text to read them.
2. Interact with elements via CSS selectors using browser_click and browser_type.
3. When the task is finished, call task_complete with a concise summary of the outcome.

Prefer extracting text over screenshots. If a selector does not match, extract the page text and look for a better one. Report failures honestly in task_complete instead of guessing.`

// Config configures worker behavior.
type Config struct {
	Model        string           `json:"model"`
	Temperature  float64          `json:"temperature,omitempty"`
	MaxTokens    int              `json:"max_tokens,omitempty"`
	MaxSteps     int              `json:"max_steps,omitempty"`
	MaxRetries   int              `json:"max_retries,omitempty"`
	SystemPrompt string           `json:"system_prompt,omitempty"`
	Navigation   NavigationPolicy `json:"navigation,omitempty"`
}

// DefaultConfig returns the default worker configuration.
func DefaultConfig() Config {
	return Config{
		Model:       "claude-3-5-sonnet-20241022",
		Temperature: 0.1,
		MaxTokens:   4096,
		MaxSteps:    25,
		MaxRetries:  3,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Model == "" {
		c.Model = def.Model
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = def.MaxTokens
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = def.MaxSteps
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = defaultSystemPrompt
	}
	return c
}

// StopReason says why a run ended.
type StopReason string

const (
	// StopCompleted means the model finished, either via task_complete
	// or with a plain final answer.
	StopCompleted StopReason = "completed"
	// StopMaxSteps means the step budget ran out before the model
	// declared the task done.
	StopMaxSteps StopReason = "max_steps"
)

// RunResult is the outcome of one task run.
type RunResult struct {
	Output     string     `json:"output"`
	Steps      int        `json:"steps"`
	StopReason StopReason `json:"stop_reason"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	Usage      TokenUsage `json:"usage"`
}

// Worker executes one task as a bounded conversation between the model
// and the browser tools.
type Worker struct {
	provider Provider
	registry *Registry
	task     string
	cfg      Config
}

// New creates a worker bound to one task.
func New(provider Provider, registry *Registry, task string, cfg Config) *Worker {
	return &Worker{
		provider: provider,
		registry: registry,
		task:     task,
		cfg:      cfg.withDefaults(),
	}
}

// Task returns the instruction this worker was built for.
func (w *Worker) Task() string {
	return w.task
}

// Run executes the tool loop until the model completes the task, the
// step budget runs out, or ctx is canceled.
func (w *Worker) Run(ctx context.Context) (*RunResult, error) {
	messages := []Message{{Role: "user", Content: w.task}}
	specs := w.registry.Specs()

	allToolCalls := []ToolCall{}
	usage := TokenUsage{}
	lastContent := ""

	for step := 1; step <= w.cfg.MaxSteps; step++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		response, err := w.completeWithRetry(ctx, messages, specs)
		if err != nil {
			return nil, err
		}
		usage.add(response.Usage)
		lastContent = response.Content

		// No tool calls means the model gave its final answer directly.
		if len(response.ToolCalls) == 0 {
			return &RunResult{
				Output:     response.Content,
				Steps:      step,
				StopReason: StopCompleted,
				ToolCalls:  allToolCalls,
				Usage:      usage,
			}, nil
		}

		messages = append(messages, Message{
			Role:      "assistant",
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})

		for _, toolCall := range response.ToolCalls {
			allToolCalls = append(allToolCalls, toolCall)

			log.Debug().
				Str("tool", toolCall.Name).
				Int("step", step).
				Msg("Executing tool call")

			outcome := w.registry.Execute(ctx, toolCall.Name, toolCall.Parameters)

			if toolCall.Name == ToolTaskComplete && outcome.Error == "" {
				return &RunResult{
					Output:     outcome.Output,
					Steps:      step,
					StopReason: StopCompleted,
					ToolCalls:  allToolCalls,
					Usage:      usage,
				}, nil
			}

			messages = append(messages, Message{
				Role:       "tool",
				Content:    outcome.Content(),
				ToolCallID: toolCall.ID,
			})
		}
	}

	log.Warn().
		Int("max_steps", w.cfg.MaxSteps).
		Msg("Worker stopped after exhausting step budget")

	return &RunResult{
		Output:     lastContent,
		Steps:      w.cfg.MaxSteps,
		StopReason: StopMaxSteps,
		ToolCalls:  allToolCalls,
		Usage:      usage,
	}, nil
}

// completeWithRetry calls the provider with exponential backoff on
// transient failures.
func (w *Worker) completeWithRetry(ctx context.Context, messages []Message, specs []ToolSpec) (*CompletionResponse, error) {
	request := CompletionRequest{
		Model:        w.cfg.Model,
		Messages:     messages,
		Tools:        specs,
		Temperature:  w.cfg.Temperature,
		MaxTokens:    w.cfg.MaxTokens,
		SystemPrompt: w.cfg.SystemPrompt,
	}

	var lastErr error

	for attempt := 0; attempt < w.cfg.MaxRetries; attempt++ {
		start := time.Now()
		response, err := w.provider.CreateCompletion(ctx, request)
		observability.RecordProviderRequest(w.provider.Name(), time.Since(start), err == nil)
		if err == nil {
			return response, nil
		}

		lastErr = err

		if !IsRetryableError(err) {
			return nil, err
		}

		if attempt == w.cfg.MaxRetries-1 {
			break
		}

		// Exponential backoff: 1s, 2s, 4s
		delay := time.Duration(1000*(1<<attempt)) * time.Millisecond
		log.Info().
			Str("provider", w.provider.Name()).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Retrying provider call after error")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", w.cfg.MaxRetries, lastErr)
}
