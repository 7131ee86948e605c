// Package event provides the automation dispatcher for the practice
// platform. Handlers are server-side routines that execute in response to
// resource events (create, update, delete) emitted by the identity platform
// or posted by internal services. The dispatcher matches events to
// registered handlers, runs them concurrently, and keeps a bounded
// execution log for audit.
package event

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// Event is a single resource event flowing through the dispatcher.
type Event struct {
	ID           string                 `json:"id"`
	ResourceType string                 `json:"resource_type"`
	Action       string                 `json:"action"`
	Resource     map[string]interface{} `json:"resource"`
	ReceivedAt   time.Time              `json:"received_at"`
}

// Result is the outcome a handler reports for one event.
type Result struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// HandlerFunc processes one event. A returned error marks the execution
// failed; the Result carries the handler's own outcome classification.
type HandlerFunc func(ctx context.Context, evt Event) (Result, error)

// Registration binds a handler to the events it should receive. Action "*"
// matches every action on the resource type.
type Registration struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	ResourceType string     `json:"resource_type"`
	Action       string     `json:"action"`
	Enabled      bool       `json:"enabled"`
	CreatedAt    time.Time  `json:"created_at"`
	LastRunAt    *time.Time `json:"last_run_at,omitempty"`
	LastStatus   string     `json:"last_status,omitempty"`
	RunCount     int        `json:"run_count"`

	handler HandlerFunc
}

// Execution records one handler run for audit.
type Execution struct {
	ID           string        `json:"id"`
	HandlerID    string        `json:"handler_id"`
	HandlerName  string        `json:"handler_name"`
	EventID      string        `json:"event_id"`
	ResourceType string        `json:"resource_type"`
	Action       string        `json:"action"`
	Status       string        `json:"status"`
	Detail       string        `json:"detail,omitempty"`
	Error        string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration_ms"`
	Timestamp    time.Time     `json:"timestamp"`
}

const (
	defaultMaxExecutions = 1000
	defaultTimeout       = 30 * time.Second
)

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	mu         sync.RWMutex
	handlers   map[string]*Registration
	order      []string
	executions []Execution
	maxExecs   int
	timeout    time.Duration
	logger     zerolog.Logger
}

// NewDispatcher creates a Dispatcher with default limits.
func NewDispatcher(logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]*Registration),
		maxExecs: defaultMaxExecutions,
		timeout:  defaultTimeout,
		logger:   logger,
	}
}

// Register adds or replaces a handler registration.
func (d *Dispatcher) Register(reg Registration, fn HandlerFunc) error {
	if reg.ID == "" {
		return fmt.Errorf("handler id is required")
	}
	if reg.ResourceType == "" {
		return fmt.Errorf("handler resource type is required")
	}
	if reg.Action == "" {
		return fmt.Errorf("handler action is required")
	}
	if fn == nil {
		return fmt.Errorf("handler function is required")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	existing, exists := d.handlers[reg.ID]
	if exists {
		reg.CreatedAt = existing.CreatedAt
		reg.RunCount = existing.RunCount
		reg.LastRunAt = existing.LastRunAt
		reg.LastStatus = existing.LastStatus
	} else {
		reg.CreatedAt = now
		d.order = append(d.order, reg.ID)
	}
	reg.handler = fn

	stored := reg
	d.handlers[reg.ID] = &stored
	return nil
}

// SetEnabled toggles a handler without losing its stats.
func (d *Dispatcher) SetEnabled(id string, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	reg, ok := d.handlers[id]
	if !ok {
		return fmt.Errorf("handler %s not found", id)
	}
	reg.Enabled = enabled
	return nil
}

// Handlers returns all registrations in insertion order.
func (d *Dispatcher) Handlers() []Registration {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]Registration, 0, len(d.handlers))
	for _, id := range d.order {
		if reg, ok := d.handlers[id]; ok {
			result = append(result, *reg)
		}
	}
	return result
}

// Dispatch runs every enabled handler matching the event's resource type and
// action, concurrently, and returns their executions in registration order.
func (d *Dispatcher) Dispatch(ctx context.Context, evt Event) []Execution {
	if evt.ID == "" {
		evt.ID = newExecutionID()
	}
	if evt.ReceivedAt.IsZero() {
		evt.ReceivedAt = time.Now().UTC()
	}

	d.mu.RLock()
	var matching []*Registration
	for _, id := range d.order {
		reg := d.handlers[id]
		if reg == nil || !reg.Enabled {
			continue
		}
		if reg.ResourceType != evt.ResourceType {
			continue
		}
		if reg.Action != "*" && reg.Action != evt.Action {
			continue
		}
		copied := *reg
		matching = append(matching, &copied)
	}
	d.mu.RUnlock()

	results := make([]Execution, len(matching))
	var wg sync.WaitGroup
	for i, reg := range matching {
		wg.Add(1)
		go func(idx int, r *Registration) {
			defer wg.Done()
			results[idx] = d.run(ctx, r, evt)
		}(i, reg)
	}
	wg.Wait()

	for _, exec := range results {
		d.record(exec)
	}
	return results
}

func (d *Dispatcher) run(ctx context.Context, reg *Registration, evt Event) Execution {
	execCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	exec := Execution{
		ID:           newExecutionID(),
		HandlerID:    reg.ID,
		HandlerName:  reg.Name,
		EventID:      evt.ID,
		ResourceType: evt.ResourceType,
		Action:       evt.Action,
		Timestamp:    time.Now().UTC(),
	}

	start := time.Now()
	result, err := func() (res Result, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("handler panic: %v", r)
			}
		}()
		return reg.handler(execCtx, evt)
	}()
	exec.Duration = time.Since(start)

	if err != nil {
		exec.Status = "error"
		exec.Error = err.Error()
		d.logger.Error().
			Err(err).
			Str("handler", reg.ID).
			Str("event_id", evt.ID).
			Str("resource_type", evt.ResourceType).
			Str("action", evt.Action).
			Msg("handler failed")
	} else {
		exec.Status = "success"
		exec.Detail = result.Detail
		if result.Status != "" {
			exec.Status = result.Status
		}
		d.logger.Info().
			Str("handler", reg.ID).
			Str("event_id", evt.ID).
			Str("status", exec.Status).
			Dur("duration", exec.Duration).
			Msg("handler executed")
	}
	return exec
}

// record appends to the bounded execution log and updates handler stats.
func (d *Dispatcher) record(exec Execution) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if reg, ok := d.handlers[exec.HandlerID]; ok {
		now := time.Now()
		reg.LastRunAt = &now
		reg.LastStatus = exec.Status
		reg.RunCount++
	}

	if len(d.executions) >= d.maxExecs {
		// Ring buffer: drop oldest
		d.executions = d.executions[1:]
	}
	d.executions = append(d.executions, exec)
}

// Executions returns executions for one handler, newest last.
func (d *Dispatcher) Executions(handlerID string) []Execution {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []Execution
	for _, exec := range d.executions {
		if exec.HandlerID == handlerID {
			result = append(result, exec)
		}
	}
	return result
}

// AllExecutions returns a copy of the full execution log.
func (d *Dispatcher) AllExecutions() []Execution {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]Execution, len(d.executions))
	copy(result, d.executions)
	return result
}

func newExecutionID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}
