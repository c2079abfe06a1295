package coder

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDecode_Bool(t *testing.T) {
	tests := []struct {
		text     string
		expected interface{}
		wantErr  bool
	}{
		{"true", true, false},
		{"false", false, false},
		{"True", nil, true},
		{"1", nil, true},
	}

	for _, tt := range tests {
		got, err := Decode(tt.text, TypeBool)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Decode(%q, bool): expected error, got %v", tt.text, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Decode(%q, bool) failed: %v", tt.text, err)
		}
		if got != tt.expected {
			t.Errorf("Decode(%q, bool) = %v, want %v", tt.text, got, tt.expected)
		}
	}
}

func TestDecode_Date(t *testing.T) {
	got, err := Decode("2024-01-15", TypeDate)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	if !got.(time.Time).Equal(want) {
		t.Errorf("Decode date = %v, want %v", got, want)
	}
}

func TestDecode_EmptyIsNil(t *testing.T) {
	for _, typ := range []Type{TypeString, TypeBool, TypeDate, TypeDateTime, TypeDecimal, TypeDuration, TypeInt} {
		got, err := Decode("", typ)
		if err != nil {
			t.Fatalf("Decode(\"\", %s) failed: %v", typ, err)
		}
		if got != nil {
			t.Errorf("Decode(\"\", %s) = %v, want nil", typ, got)
		}
	}
}

func TestEncode_NilIsEmpty(t *testing.T) {
	for _, typ := range []Type{TypeString, TypeBool, TypeInt} {
		got, err := Encode(nil, typ)
		if err != nil {
			t.Fatalf("Encode(nil, %s) failed: %v", typ, err)
		}
		if got != "" {
			t.Errorf("Encode(nil, %s) = %q, want \"\"", typ, got)
		}
	}
}

func TestEncode_Bool(t *testing.T) {
	got, err := Encode(true, TypeBool)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if got != "true" {
		t.Errorf("Encode(true, bool) = %q, want \"true\"", got)
	}
}

func TestEncode_WrongType(t *testing.T) {
	if _, err := Encode("yes", TypeBool); err == nil {
		t.Error("expected error encoding string as bool")
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		typ   Type
		value interface{}
	}{
		{"bool true", TypeBool, true},
		{"bool false", TypeBool, false},
		{"date", TypeDate, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"datetime", TypeDateTime, time.Date(2023, 6, 30, 12, 45, 9, 0, time.UTC)},
		{"int", TypeInt, 42},
		{"negative int", TypeInt, -7},
		{"string", TypeString, "CL_FREQ"},
		{"duration", TypeDuration, 26*time.Hour + 30*time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, err := Encode(tt.value, tt.typ)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			got, err := Decode(text, tt.typ)
			if err != nil {
				t.Fatalf("Decode(%q) failed: %v", text, err)
			}
			if eq, ok := got.(time.Time); ok {
				if !eq.Equal(tt.value.(time.Time)) {
					t.Errorf("round trip = %v, want %v", got, tt.value)
				}
				return
			}
			if got != tt.value {
				t.Errorf("round trip = %v, want %v", got, tt.value)
			}
		})
	}
}

func TestRoundTrip_Decimal(t *testing.T) {
	v := decimal.RequireFromString("12.500")
	text, err := Encode(v, TypeDecimal)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Decode(text, TypeDecimal)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !got.(decimal.Decimal).Equal(v) {
		t.Errorf("round trip = %v, want %v", got, v)
	}
}
