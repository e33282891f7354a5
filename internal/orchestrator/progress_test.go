package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressReporter_DropsWhenFull(t *testing.T) {
	pr := NewProgressReporter(0)
	for range 100 {
		pr.Emit(ProgressEvent{Agent: "a"})
	}
	pr.Close()

	n := 0
	for range pr.Events() {
		n++
	}
	assert.Equal(t, DefaultProgressBuffer, n)
	assert.Equal(t, int64(100-DefaultProgressBuffer), pr.Dropped())
}

func TestProgressReporter_KeepsOrder(t *testing.T) {
	pr := NewProgressReporter(4)
	pr.Emit(ProgressEvent{Agent: "a", Status: ProgressWorking})
	pr.Emit(ProgressEvent{Agent: "a", Status: ProgressComplete})
	pr.Close()

	var got []ProgressStatus
	for ev := range pr.Events() {
		got = append(got, ev.Status)
	}
	assert.Equal(t, []ProgressStatus{ProgressWorking, ProgressComplete}, got)
	assert.Zero(t, pr.Dropped())
}

func TestFormatProgress(t *testing.T) {
	tests := []struct {
		event ProgressEvent
		want  string
	}{
		{ProgressEvent{Agent: "security-auditor", Status: ProgressPending}, "  ○ security-auditor (pending)"},
		{ProgressEvent{Agent: "security-auditor", Status: ProgressWorking}, "  ● security-auditor..."},
		{ProgressEvent{Agent: "security-auditor", Status: ProgressComplete, Message: "PASS", Elapsed: 1500 * time.Millisecond}, "  ✓ security-auditor PASS (1.5s)"},
		{ProgressEvent{Agent: "security-auditor", Status: ProgressFailed, Message: "boom"}, "  ✗ security-auditor failed: boom"},
		{ProgressEvent{Agent: "x", Status: "weird"}, "  ? x (unknown status)"},
		{ProgressEvent{State: StateWaveRunning, Wave: 2, Message: "2 agent(s)"}, "[wave-running] Wave 2: 2 agent(s)"},
		{ProgressEvent{State: StateDoneSuccess, Wave: 2}, "[done-success] Wave 2"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatProgress(tt.event))
	}
}
