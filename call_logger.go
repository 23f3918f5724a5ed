package luastack

import (
	"context"
	"time"

	"go.jetify.com/typeid"
)

// CallLogEntry represents a single protected call log entry
type CallLogEntry struct {
	ID        string    `json:"id"`
	RuntimeID string    `json:"runtime_id"`
	Function  string    `json:"function"`
	NArgs     int       `json:"nargs"`
	NResults  int       `json:"nresults"`
	Error     string    `json:"error,omitempty"`
	ErrorType string    `json:"error_type,omitempty"`
	StartTime time.Time `json:"start_time"`
	Duration  float64   `json:"duration"`
}

// CallLogger defines simple call logging interface
type CallLogger interface {
	// LogCall logs a completed call
	LogCall(ctx context.Context, entry *CallLogEntry) error

	// GetCallHistory retrieves the call log for a runtime
	GetCallHistory(ctx context.Context, runtimeID string) ([]*CallLogEntry, error)
}

func (rt *Runtime) logCall(ctx context.Context, event *CallEvent) {
	id, err := typeid.WithPrefix("call")
	if err != nil {
		rt.logger.Warn("failed to generate call id", "error", err)
		return
	}
	entry := &CallLogEntry{
		ID:        id.String(),
		RuntimeID: rt.id,
		Function:  event.Function,
		NArgs:     event.NArgs,
		NResults:  event.NResults,
		StartTime: event.StartTime,
		Duration:  event.Duration.Seconds(),
	}
	if event.Error != nil {
		callErr := ClassifyError(event.Error)
		entry.Error = callErr.Cause
		entry.ErrorType = callErr.Type
		rt.logger.Debug("call failed", "function", event.Function, "error_type", callErr.Type, "error", callErr.Cause)
	} else {
		rt.logger.Debug("call returned", "function", event.Function, "nresults", event.NResults)
	}
	if err := rt.callLogger.LogCall(ctx, entry); err != nil {
		rt.logger.Warn("failed to log call", "error", err)
	}
}
