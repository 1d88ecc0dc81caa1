package notify

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/carta/internal/model"
)

func entry(i int) model.Notification {
	return model.Notification{
		ID:        fmt.Sprintf("n-%d", i),
		Severity:  model.SeverityInfo,
		Title:     fmt.Sprintf("event %d", i),
		Timestamp: time.Date(2024, 1, 1, 0, 0, i, 0, time.UTC),
	}
}

func TestLog_AppendPrependsNewest(t *testing.T) {
	var l Log
	l = l.Append(entry(1))
	l = l.Append(entry(2))

	require.Len(t, l, 2)
	assert.Equal(t, "n-2", l[0].ID)
	assert.Equal(t, "n-1", l[1].ID)

	latest, ok := l.Latest()
	require.True(t, ok)
	assert.Equal(t, "n-2", latest.ID)
}

func TestLog_EvictsOldestBeyondCapacity(t *testing.T) {
	var l Log
	for i := 1; i <= Capacity+1; i++ {
		l = l.Append(entry(i))
	}

	require.Len(t, l, Capacity)
	assert.Equal(t, fmt.Sprintf("n-%d", Capacity+1), l[0].ID)
	assert.Equal(t, "n-2", l[Capacity-1].ID, "entry 1 should have been evicted")
	for _, n := range l {
		assert.NotEqual(t, "n-1", n.ID)
	}
}

func TestLog_AppendDoesNotMutateReceiver(t *testing.T) {
	var base Log
	for i := 1; i <= Capacity; i++ {
		base = base.Append(entry(i))
	}
	before := append(Log(nil), base...)

	_ = base.Append(entry(99))

	assert.Equal(t, before, base)
}

func TestLog_ClearKeepsOnlyAudit(t *testing.T) {
	l := Log{}.Append(entry(1)).Append(entry(2))

	audit := entry(3)
	audit.Action = "Clear Notifications"
	cleared := l.Clear(audit)

	require.Len(t, cleared, 1)
	assert.Equal(t, "Clear Notifications", cleared[0].Action)
	assert.Len(t, l, 2, "receiver unchanged")
}

func TestLog_Filter(t *testing.T) {
	warn := entry(2)
	warn.Severity = model.SeverityWarning
	l := Log{}.Append(entry(1)).Append(warn).Append(entry(3))

	got := l.Filter(model.SeverityWarning)
	require.Len(t, got, 1)
	assert.Equal(t, "n-2", got[0].ID)
}

func TestLog_Truncate(t *testing.T) {
	long := make(Log, Capacity+10)
	for i := range long {
		long[i] = entry(i)
	}

	got := long.Truncate()
	require.Len(t, got, Capacity)
	assert.Equal(t, "n-0", got[0].ID)

	short := Log{entry(1)}
	assert.Equal(t, short, short.Truncate())
}
