package luastack

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileCallLogger is an implementation of CallLogger that logs to a file.
// A file is created per runtime. The file is formatted as newline-delimited JSON.
type FileCallLogger struct {
	directory string
}

func NewFileCallLogger(directory string) *FileCallLogger {
	return &FileCallLogger{directory: directory}
}

func (l *FileCallLogger) runtimeCallLogPath(runtimeID string) string {
	return filepath.Join(l.directory, fmt.Sprintf("%s.jsonl", runtimeID))
}

func (l *FileCallLogger) GetCallHistory(ctx context.Context, runtimeID string) ([]*CallLogEntry, error) {
	data, err := os.ReadFile(l.runtimeCallLogPath(runtimeID))
	if err != nil {
		return nil, err
	}
	var entries []*CallLogEntry
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		var entry CallLogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

func (l *FileCallLogger) LogCall(ctx context.Context, entry *CallLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(l.directory, 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.runtimeCallLogPath(entry.RuntimeID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}
