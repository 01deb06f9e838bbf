package text

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{
			name:  "passthrough clean text",
			input: "Hello world",
			want:  "Hello world",
		},
		{
			name:  "trims leading and trailing whitespace",
			input: "  Hello world  ",
			want:  "Hello world",
		},
		{
			name:  "trims tabs and newlines from edges",
			input: "\t\n Hello \n\t",
			want:  "Hello",
		},
		{
			name:  "collapses interior whitespace runs",
			input: "Hello   there,\t friend",
			want:  "Hello there, friend",
		},
		{
			name:  "flattens CRLF line breaks",
			input: "line one\r\nline two",
			want:  "line one line two",
		},
		{
			name:  "flattens bare CR line breaks",
			input: "line one\rline two",
			want:  "line one line two",
		},
		{
			name:    "rejects empty input",
			input:   "",
			wantErr: ErrEmptyText,
		},
		{
			name:    "rejects whitespace-only input",
			input:   " \t\r\n ",
			wantErr: ErrEmptyText,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got error %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
