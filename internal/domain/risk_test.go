package domain

import "testing"

func TestClassifyRiskLevel(t *testing.T) {
	thresholds := RiskThresholds{Medium: 200, High: 400, Critical: 600}

	tests := []struct {
		score    int
		expected RiskLevel
	}{
		{0, RiskLow},
		{199, RiskLow},
		{200, RiskMedium},
		{399, RiskMedium},
		{400, RiskHigh},
		{599, RiskHigh},
		{600, RiskCritical},
		{700, RiskCritical},
	}

	for _, tt := range tests {
		if got := ClassifyRiskLevel(tt.score, thresholds); got != tt.expected {
			t.Errorf("ClassifyRiskLevel(%d) = %s, want %s", tt.score, got, tt.expected)
		}
	}
}

func TestClassifyRiskLevelAlternateProfile(t *testing.T) {
	thresholds := RiskThresholds{Medium: 300, High: 500, Critical: 700}

	if got := ClassifyRiskLevel(250, thresholds); got != RiskLow {
		t.Errorf("expected LOW, got %s", got)
	}
	if got := ClassifyRiskLevel(500, thresholds); got != RiskHigh {
		t.Errorf("expected HIGH, got %s", got)
	}
}

func TestRiskThresholdsMonotonic(t *testing.T) {
	tests := []struct {
		name       string
		thresholds RiskThresholds
		expected   bool
	}{
		{"Default", RiskThresholds{200, 400, 600}, true},
		{"Equal", RiskThresholds{200, 200, 600}, false},
		{"Descending", RiskThresholds{600, 400, 200}, false},
		{"Negative", RiskThresholds{-1, 400, 600}, false},
		{"ZeroMedium", RiskThresholds{0, 1, 2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.thresholds.Monotonic(); got != tt.expected {
				t.Errorf("Monotonic() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestSystemUnavailableScore(t *testing.T) {
	thresholds := RiskThresholds{Medium: 200, High: 400, Critical: 600}
	score := SystemUnavailableScore("tx-001", thresholds)

	if score.Level != RiskHigh {
		t.Errorf("expected HIGH, got %s", score.Level)
	}
	if score.Score != 400 {
		t.Errorf("expected score 400, got %d", score.Score)
	}
	if len(score.ReasonCodes) != 1 || score.ReasonCodes[0] != ReasonSystemUnavailable {
		t.Errorf("expected [SYSTEM_UNAVAILABLE], got %v", score.ReasonCodes)
	}
}

func TestRiskScoreClone(t *testing.T) {
	original := RiskScore{TransactionID: "tx-001", ReasonCodes: []string{"A", "B"}}
	clone := original.Clone()
	clone.ReasonCodes[0] = "Z"

	if original.ReasonCodes[0] != "A" {
		t.Error("clone shares reason codes with original")
	}
}
