package auth

import (
	"errors"
	"testing"
)

func TestParseBearer(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{"valid", "Bearer abc.def.ghi", "abc.def.ghi", nil},
		{"lowercase scheme", "bearer abc.def.ghi", "abc.def.ghi", nil},
		{"extra whitespace", "  Bearer   abc.def.ghi  ", "abc.def.ghi", nil},
		{"empty", "", "", ErrMissingCredentials},
		{"only spaces", "   ", "", ErrMissingCredentials},
		{"scheme without token", "Bearer", "", ErrMissingCredentials},
		{"scheme with trailing space", "Bearer ", "", ErrMissingCredentials},
		{"token with spaces", "Bearer abc def", "", ErrMalformedCredentials},
		{"basic scheme", "Basic dXNlcjpwYXNz", "", ErrMalformedCredentials},
		{"token without scheme", "abc.def.ghi", "", ErrMalformedCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBearer(tt.header)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseBearer(%q) error = %v, want %v", tt.header, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBearer(%q): %v", tt.header, err)
			}
			if got != tt.want {
				t.Errorf("ParseBearer(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}
