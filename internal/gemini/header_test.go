package gemini

import (
	"strings"
	"testing"
)

func TestParseHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		line    string
		want    Header
		wantErr bool
	}{
		{
			name: "success with mime type",
			line: "20 text/gemini",
			want: Header{Status: 20, Meta: "text/gemini"},
		},
		{
			name: "success with parameters",
			line: "20 text/gemini; charset=utf-8",
			want: Header{Status: 20, Meta: "text/gemini; charset=utf-8"},
		},
		{
			name: "redirect with target",
			line: "31 gemini://example.org/new",
			want: Header{Status: 31, Meta: "gemini://example.org/new"},
		},
		{
			name: "failure with message",
			line: "51 not found",
			want: Header{Status: 51, Meta: "not found"},
		},
		{
			name: "bare status without meta",
			line: "20",
			want: Header{Status: 20, Meta: ""},
		},
		{
			name: "input prompt",
			line: "10 Enter search terms",
			want: Header{Status: 10, Meta: "Enter search terms"},
		},
		{
			name: "cert required",
			line: "60 certificate required",
			want: Header{Status: 60, Meta: "certificate required"},
		},
		{
			name:    "single digit status",
			line:    "2 text/gemini",
			wantErr: true,
		},
		{
			name:    "three digit status",
			line:    "200 text/gemini",
			wantErr: true,
		},
		{
			name:    "non-numeric status",
			line:    "ab text/gemini",
			wantErr: true,
		},
		{
			name:    "status below range",
			line:    "09 too low",
			wantErr: true,
		},
		{
			name:    "status above range",
			line:    "70 too high",
			wantErr: true,
		},
		{
			name:    "empty line",
			line:    "",
			wantErr: true,
		},
		{
			name:    "oversized meta",
			line:    "20 " + strings.Repeat("x", maxMetaLength+1),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseHeader(tt.line)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseHeader(%q) expected error, got %+v", tt.line, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseHeader(%q) error = %v", tt.line, err)
			}
			if got != tt.want {
				t.Errorf("ParseHeader(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestHeaderClass(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   StatusClass
	}{
		{status: 10, want: ClassInput},
		{status: 20, want: ClassSuccess},
		{status: 30, want: ClassRedirect},
		{status: 31, want: ClassRedirect},
		{status: 44, want: ClassTemporaryFailure},
		{status: 51, want: ClassPermanentFailure},
		{status: 62, want: ClassCertRequired},
	}

	for _, tt := range tests {
		h := Header{Status: tt.status}
		if got := h.Class(); got != tt.want {
			t.Errorf("Header{Status: %d}.Class() = %d, want %d", tt.status, got, tt.want)
		}
	}
}
