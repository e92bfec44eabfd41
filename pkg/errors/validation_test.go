package errors

import (
	"testing"
)

func TestValidateFilename(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "photo.png", false},
		{"spaces", "my photo.jpeg", false},
		{"no extension", "scan", false},
		{"unicode", "fotó.tiff", false},

		{"empty", "", true},
		{"too long", string(make([]byte, 300)), true},
		{"path traversal", "../etc/passwd", true},
		{"slash", "dir/photo.png", true},
		{"backslash", "dir\\photo.png", true},
		{"quote", "a\"b.png", true},
		{"null byte", "foo\x00.png", true},
		{"newline", "foo\n.png", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilename(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFilename(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeInvalidFilename) {
				t.Errorf("ValidateFilename(%q) code = %v, want %v", tt.input, GetCode(err), ErrCodeInvalidFilename)
			}
		})
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"uuid", "0b0f6d0e-3a43-4b7e-9a57-0d3c2c1f4e55", false},
		{"hex", "deadbeef", false},

		{"empty", "", true},
		{"too long", string(make([]byte, 65)), true},
		{"non hex", "session-xyz", true},
		{"path", "../x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
