package chunkstore

import "testing"

func TestParseState(t *testing.T) {
	cases := []struct {
		input string
		want  State
		ok    bool
	}{
		{"pending", StatePending, true},
		{"  Uploading ", StateUploading, true},
		{"UPLOADED", StateUploaded, true},
		{"failed", StateFailed, true},
		{"", "", false},
		{"done", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseState(tc.input)
		if ok != tc.ok {
			t.Errorf("ParseState(%q) ok = %v, want %v", tc.input, ok, tc.ok)
			continue
		}
		if ok && got != tc.want {
			t.Errorf("ParseState(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
