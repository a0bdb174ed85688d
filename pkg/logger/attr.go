package logger

import (
	"log/slog"
	"strconv"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// TrID records the invocation identifier under the key "tr_id".
// If id is nil, it returns an empty Attr.
func TrID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("tr_id", id)
}

// RootID records the causal tree root under the key "root_id".
// If id is nil, it returns an empty Attr.
func RootID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("root_id", id)
}

// ParentID records the triggering invocation under the key "parent_id".
// If id is nil, it returns an empty Attr.
func ParentID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("parent_id", id)
}

// CallerID records the caller identity under the key "caller_id".
// Empty identities (anonymous callers) produce an empty Attr.
func CallerID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("caller_id", id)
}

// Action records the action name under the key "action".
func Action(name string) slog.Attr {
	return slog.String("action", name)
}

// Process records the process name under the key "process".
func Process(name string) slog.Attr {
	return slog.String("process", name)
}

// EntityKey records the lock key of an entity state field under the key "entity".
func EntityKey(key string) slog.Attr {
	return slog.String("entity", key)
}

// State records a state value under the key "state".
func State(value string) slog.Attr {
	return slog.String("state", value)
}

// TaskID records the queue task identifier under the key "task_id".
// If id is nil, it returns an empty Attr.
func TaskID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("task_id", id)
}

// RetryCount records the retry count under the key "retry_count".
func RetryCount(count int) slog.Attr {
	return slog.Int("retry_count", count)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event records the event name under the key "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}
