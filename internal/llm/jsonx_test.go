package llm

import (
	"errors"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a": 1}`, `{"a": 1}`},
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"fence without tag", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"trailing comma", "```json\n{\"a\": [1, 2,],}\n```", `{"a": [1, 2]}`},
		{"prose around", "Here you go:\n{\"a\": 1}\nHope that helps.", `{"a": 1}`},
		{"two objects", `first {"a": 1} then {"b": 2}`, `{"a": 1}`},
		{"brace in string", `note: {"msg": "use } carefully"} end {`, `{"msg": "use } carefully"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.in)
			if err != nil {
				t.Fatalf("ExtractJSON: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractJSON_None(t *testing.T) {
	for _, in := range []string{"", "no json here", "{broken", "[1, 2]"} {
		if _, err := ExtractJSON(in); !errors.Is(err, ErrNoJSON) {
			t.Errorf("ExtractJSON(%q) err = %v, want ErrNoJSON", in, err)
		}
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Severity string  `json:"severity"`
		Score    float64 `json:"confidence_score"`
	}
	if err := DecodeJSON("```json\n{\"severity\": \"high\", \"confidence_score\": 0.8}\n```", &v); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if v.Severity != "high" || v.Score != 0.8 {
		t.Errorf("decoded %+v", v)
	}
}
