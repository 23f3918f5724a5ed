package luastack

import "context"

// NullCallLogger is a no-op implementation of CallLogger.
type NullCallLogger struct{}

func NewNullCallLogger() *NullCallLogger {
	return &NullCallLogger{}
}

func (l *NullCallLogger) LogCall(ctx context.Context, entry *CallLogEntry) error {
	return nil
}

func (l *NullCallLogger) GetCallHistory(ctx context.Context, runtimeID string) ([]*CallLogEntry, error) {
	return nil, nil
}
