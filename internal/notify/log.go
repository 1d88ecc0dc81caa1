// Package notify implements the capped, newest-first notification log.
//
// A Log is an immutable value: Append and Clear return a new Log and never
// modify the receiver's backing array, so a state snapshot holding a Log can
// be shared freely.
package notify

import "github.com/roach88/carta/internal/model"

// Capacity is the maximum number of retained notifications.
// When full, the oldest entry (by insertion order) is evicted.
const Capacity = 50

// Log is a newest-first list of notifications, at most Capacity long.
type Log []model.Notification

// Append returns a new Log with n prepended, truncated to Capacity.
func (l Log) Append(n model.Notification) Log {
	size := len(l) + 1
	if size > Capacity {
		size = Capacity
	}
	out := make(Log, size)
	out[0] = n
	copy(out[1:], l)
	return out
}

// Clear returns a Log holding only audit, the record of the clear itself.
func (l Log) Clear(audit model.Notification) Log {
	return Log{audit}
}

// Latest returns the newest entry.
func (l Log) Latest() (model.Notification, bool) {
	if len(l) == 0 {
		return model.Notification{}, false
	}
	return l[0], true
}

// Filter returns the entries with the given severity, newest first.
func (l Log) Filter(severity model.Severity) Log {
	var out Log
	for _, n := range l {
		if n.Severity == severity {
			out = append(out, n)
		}
	}
	return out
}

// Truncate returns l limited to Capacity entries. Used when adopting a log
// written by another instance.
func (l Log) Truncate() Log {
	if len(l) <= Capacity {
		return l
	}
	out := make(Log, Capacity)
	copy(out, l)
	return out
}
