package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverity_OrderAndNames(t *testing.T) {
	assert.True(t, SeverityCritical > SeverityHigh)
	assert.True(t, SeverityHigh > SeverityMedium)
	assert.True(t, SeverityMedium > SeverityLow)
	assert.Equal(t, "CRITICAL", SeverityCritical.String())
	assert.Equal(t, "UNKNOWN", Severity(42).String())

	assert.True(t, SeverityCritical.Blocking())
	assert.True(t, SeverityHigh.Blocking())
	assert.False(t, SeverityMedium.Blocking())
	assert.False(t, SeverityLow.Blocking())
}

func TestParseSeverity(t *testing.T) {
	s, err := ParseSeverity(" high ")
	require.NoError(t, err)
	assert.Equal(t, SeverityHigh, s)

	_, err = ParseSeverity("severe")
	assert.Error(t, err)
}

func TestSeverity_JSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(map[string]Severity{"s": SeverityMedium})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"MEDIUM"}`, string(data))

	var out map[string]Severity
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, SeverityMedium, out["s"])
}

func TestNewFlaggedSection_RejectsInvertedRange(t *testing.T) {
	_, err := NewFlaggedSection("a", "f.py", 10, 9, SeverityLow, "r", "")
	assert.Error(t, err)
	_, err = NewFlaggedSection("a", "f.py", 0, 3, SeverityLow, "r", "")
	assert.Error(t, err)

	f, err := NewFlaggedSection("a", "f.py", 4, 4, SeverityLow, "r", "")
	require.NoError(t, err)
	assert.Equal(t, 1, f.Lines())
}

func section(sev Severity) FlaggedSection {
	return FlaggedSection{File: "x.py", StartLine: 1, EndLine: 2, Severity: sev, AgentID: "a"}
}

func TestNewHybridResult_Aggregates(t *testing.T) {
	scan := ScanResult{AgentID: "a", Cost: 0.01, Duration: time.Second}
	dives := []DeepDiveResult{
		{Section: section(SeverityCritical), Confirmed: false, Cost: 0.1, Duration: time.Second},
		{Section: section(SeverityMedium), Confirmed: true, Cost: 0.2, Duration: 2 * time.Second},
		{Section: section(SeverityHigh), Confirmed: true, AdjustedSeverity: SeverityLow, Cost: 0.3, Duration: time.Second},
	}

	h := NewHybridResult(scan, dives)

	assert.Equal(t, StatusPass, h.Status, "confirmed findings below HIGH never fail")
	assert.Equal(t, 2, h.Confirmed)
	assert.Equal(t, 1, h.FalsePositives)
	assert.Equal(t, len(h.DeepDives), h.Confirmed+h.FalsePositives)
	assert.InDelta(t, 0.61, h.TotalCost, 1e-9)
	assert.Equal(t, 5*time.Second, h.TotalDuration)

	counts := h.ConfirmedCounts()
	assert.Equal(t, 1, counts.Medium)
	assert.Equal(t, 1, counts.Low)
}

func TestNewHybridResult_FailsOnConfirmedBlocking(t *testing.T) {
	dives := []DeepDiveResult{
		{Section: section(SeverityMedium), Confirmed: true, AdjustedSeverity: SeverityHigh},
	}
	h := NewHybridResult(ScanResult{AgentID: "a"}, dives)
	assert.Equal(t, StatusFail, h.Status)
}

func TestNewHybridResult_NoFlags(t *testing.T) {
	h := NewHybridResult(ScanResult{AgentID: "a", Cost: 0.002}, nil)
	assert.Equal(t, StatusPass, h.Status)
	assert.Equal(t, 0.002, h.TotalCost)
	assert.Zero(t, h.Confirmed+h.FalsePositives)
}

func TestNewWaveResult_AllPassed(t *testing.T) {
	pass := AgentResult{AgentID: "a", Status: StatusPass, Cost: 1}
	fail := AgentResult{AgentID: "b", Status: StatusFail, Cost: 2}

	w := NewWaveResult(1, []AgentResult{pass, pass}, 0)
	assert.True(t, w.AllPassed)

	w = NewWaveResult(1, []AgentResult{pass, fail}, 0)
	assert.False(t, w.AllPassed)
	assert.Len(t, w.Failed(), 1)
	assert.Equal(t, 3.0, w.Cost())

	w = NewWaveResult(1, nil, 0)
	assert.True(t, w.AllPassed, "an empty wave is vacuously passing")
}
