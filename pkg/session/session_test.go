package session

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"confirmed", LevelConfirmed},
		{"SUSPECTED", LevelSuspected},
		{"safe", LevelSafe},
		{"  Confirmed ", LevelConfirmed},
		{"garbage", LevelSafe},
		{"", LevelSafe},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLevel_JSONRoundtrip(t *testing.T) {
	raw, err := json.Marshal(LevelSuspected)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(raw) != `"suspected"` {
		t.Errorf("Marshal = %s, want \"suspected\"", raw)
	}

	var l Level
	if err := json.Unmarshal([]byte(`"confirmed"`), &l); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if l != LevelConfirmed {
		t.Errorf("Unmarshal = %v, want LevelConfirmed", l)
	}
}

func TestSession_RaiseLevel_Monotonic(t *testing.T) {
	s := New("s1")

	s.RaiseLevel(LevelSuspected, 0.6)
	if s.Level != LevelSuspected || s.ScamConfidence != 0.6 {
		t.Fatalf("after raise to suspected: level=%v conf=%v", s.Level, s.ScamConfidence)
	}

	// A lower verdict never downgrades.
	s.RaiseLevel(LevelSafe, 0.1)
	if s.Level != LevelSuspected || s.ScamConfidence != 0.6 {
		t.Errorf("safe verdict downgraded session: level=%v conf=%v", s.Level, s.ScamConfidence)
	}

	s.RaiseLevel(LevelConfirmed, 0.9)
	if s.Level != LevelConfirmed || s.ScamConfidence != 0.9 {
		t.Errorf("after raise to confirmed: level=%v conf=%v", s.Level, s.ScamConfidence)
	}

	// Same level with higher confidence keeps the higher confidence.
	s.RaiseLevel(LevelConfirmed, 0.95)
	if s.ScamConfidence != 0.95 {
		t.Errorf("confidence = %v, want 0.95", s.ScamConfidence)
	}
	s.RaiseLevel(LevelConfirmed, 0.5)
	if s.ScamConfidence != 0.95 {
		t.Errorf("lower confidence overwrote: %v", s.ScamConfidence)
	}
}

func TestSession_Append_WindowAndTotal(t *testing.T) {
	s := New("s1")
	ts := time.Now()

	for i := 0; i < 10; i++ {
		s.Append(SenderScammer, "msg", ts)
	}

	if s.TotalMessages != 10 {
		t.Errorf("TotalMessages = %d, want 10", s.TotalMessages)
	}
	if len(s.Messages) != messageWindow {
		t.Errorf("retained window = %d, want %d", len(s.Messages), messageWindow)
	}
}

func TestIntelligence_MergeIdempotent(t *testing.T) {
	var a Intelligence
	a.AddUPIID("scammer@ybl")
	a.AddPhoneNumber("9876543210")
	a.AddKeyword("otp")

	var b Intelligence
	b.AddUPIID("Scammer@YBL") // same value, different case
	b.AddUPIID("other@paytm")
	b.AddPhishingLink("http://fake-bank.example")

	merged := a.Merge(b)
	again := merged.Merge(b)

	if !merged.Equal(again) {
		t.Errorf("second merge grew the sets: %+v vs %+v", merged, again)
	}
	if len(merged.UPIIDs) != 2 {
		t.Errorf("UPIIDs = %v, want 2 entries", merged.UPIIDs)
	}
	if merged.UPIIDs[0] != "scammer@ybl" || merged.UPIIDs[1] != "other@paytm" {
		t.Errorf("first-appearance order lost: %v", merged.UPIIDs)
	}
}

func TestIntelligence_MergeDoesNotMutateReceiver(t *testing.T) {
	var a Intelligence
	a.AddUPIID("one@ybl")

	var b Intelligence
	b.AddUPIID("two@ybl")

	_ = a.Merge(b)
	if len(a.UPIIDs) != 1 {
		t.Errorf("Merge mutated receiver: %v", a.UPIIDs)
	}
}

func TestNormalizeValue(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Scammer@YBL  ", "scammer@ybl"},
		{"HTTP://Fake.COM", "http://fake.com"},
		{"９876543210", "9876543210"}, // fullwidth digit folds under NFKC
	}
	for _, tt := range tests {
		if got := NormalizeValue(tt.in); got != tt.want {
			t.Errorf("NormalizeValue(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIntelligence_HardFieldCount(t *testing.T) {
	var in Intelligence
	if in.HardFieldCount() != 0 {
		t.Errorf("empty HardFieldCount = %d, want 0", in.HardFieldCount())
	}

	in.AddKeyword("otp")
	if in.HardFieldCount() != 0 {
		t.Errorf("keywords counted as hard field")
	}

	in.AddUPIID("x@ybl")
	in.AddPhoneNumber("9876543210")
	if in.HardFieldCount() != 2 {
		t.Errorf("HardFieldCount = %d, want 2", in.HardFieldCount())
	}
}

func TestSession_JSONShape(t *testing.T) {
	s := New("abc")
	s.Append(SenderScammer, "hello", time.Now())
	s.RaiseLevel(LevelConfirmed, 0.9)
	s.Intel.AddUPIID("x@ybl")
	s.TerminationReason = TermExtracted

	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if m["sessionId"] != "abc" {
		t.Errorf("sessionId = %v", m["sessionId"])
	}
	if m["scamLevel"] != "confirmed" {
		t.Errorf("scamLevel = %v, want confirmed", m["scamLevel"])
	}
	if m["terminationReason"] != "extracted_success" {
		t.Errorf("terminationReason = %v", m["terminationReason"])
	}

	var back Session
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("round-trip failed: %v", err)
	}
	if back.Level != LevelConfirmed || back.TotalMessages != 1 {
		t.Errorf("round-trip lost state: %+v", back)
	}
}
