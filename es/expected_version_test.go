package es

import (
	"fmt"
	"testing"
)

func TestExpectedVersion_Any(t *testing.T) {
	ev := Any()

	if !ev.IsAny() {
		t.Error("Expected IsAny() to be true")
	}
	if ev.IsNone() || ev.IsAuto() || ev.IsExact() {
		t.Error("Expected Any() to report only IsAny()")
	}
	if !ev.IsValid() {
		t.Error("Expected Any() to be valid")
	}
	if ev.Value() != 0 {
		t.Errorf("Expected Value() to be 0, got %d", ev.Value())
	}
	if ev.String() != "Any" {
		t.Errorf("Expected String() to be 'Any', got '%s'", ev.String())
	}
}

func TestExpectedVersion_None(t *testing.T) {
	ev := None()

	if !ev.IsNone() {
		t.Error("Expected IsNone() to be true")
	}
	if ev.IsAny() || ev.IsAuto() || ev.IsExact() {
		t.Error("Expected None() to report only IsNone()")
	}
	if ev.String() != "None" {
		t.Errorf("Expected String() to be 'None', got '%s'", ev.String())
	}
}

func TestExpectedVersion_Auto(t *testing.T) {
	ev := Auto()

	if !ev.IsAuto() {
		t.Error("Expected IsAuto() to be true")
	}
	if ev.IsAny() || ev.IsNone() || ev.IsExact() {
		t.Error("Expected Auto() to report only IsAuto()")
	}
	if ev.String() != "Auto" {
		t.Errorf("Expected String() to be 'Auto', got '%s'", ev.String())
	}
}

func TestExpectedVersion_Exact(t *testing.T) {
	tests := []struct {
		name    string
		version int64
	}{
		{"version 0", 0},
		{"version 5", 5},
		{"version 100", 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Exact(tt.version)

			if !ev.IsExact() {
				t.Error("Expected IsExact() to be true")
			}
			if !ev.IsValid() {
				t.Error("Expected IsValid() to be true")
			}
			if ev.Value() != tt.version {
				t.Errorf("Expected Value() to be %d, got %d", tt.version, ev.Value())
			}
			expectedStr := fmt.Sprintf("Exact(%d)", tt.version)
			if ev.String() != expectedStr {
				t.Errorf("Expected String() to be '%s', got '%s'", expectedStr, ev.String())
			}
		})
	}
}

func TestExpectedVersion_Invalid(t *testing.T) {
	tests := []struct {
		name string
		ev   ExpectedVersion
	}{
		{"zero value", ExpectedVersion{}},
		{"negative exact", Exact(-1)},
		{"large negative exact", Exact(-100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.ev.IsValid() {
				t.Errorf("Expected %v to be invalid", tt.ev)
			}
			if tt.ev.IsExact() {
				t.Error("Expected IsExact() to be false for invalid version")
			}
			if tt.ev.String() != "Invalid" {
				t.Errorf("Expected String() to be 'Invalid', got '%s'", tt.ev.String())
			}
		})
	}
}

func TestParseExpectedVersion(t *testing.T) {
	tests := []struct {
		input   string
		want    ExpectedVersion
		wantErr bool
	}{
		{input: "any", want: Any()},
		{input: ":any", want: Any()},
		{input: "NONE", want: None()},
		{input: ":none", want: None()},
		{input: " auto ", want: Auto()},
		{input: "0", want: Exact(0)},
		{input: "42", want: Exact(42)},
		{input: "-1", wantErr: true},
		{input: "latest", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseExpectedVersion(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error for %q, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseExpectedVersion(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
