package errors

import (
	"strings"
	"testing"
)

func TestValidateGeneratorID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "model", false},
		{"valid with dash", "rest-handler", false},
		{"valid with underscore", "rest_handler", false},
		{"valid with dot", "model.v2", false},
		{"valid namespaced", "go/model", false},
		{"valid digits", "sqlc2", false},

		{"empty", "", true},
		{"too long", strings.Repeat("a", 129), true},
		{"uppercase", "Model", true},
		{"path traversal", "go/../model", true},
		{"double namespace", "a/b/c", true},
		{"leading slash", "/model", true},
		{"trailing dash", "model-", true},
		{"space", "my model", true},
		{"control char", "mod\x01el", true},
		{"null byte", "mod\x00el", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGeneratorID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateGeneratorID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeValidation) {
				t.Errorf("ValidateGeneratorID(%q) code = %v, want %v", tt.input, GetCode(err), ErrCodeValidation)
			}
		})
	}
}

func TestValidateManifestFilename(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid toml", "generator.toml", false},
		{"valid yaml", "generator.yaml", false},
		{"valid json", "generator.json", false},

		{"empty", "", true},
		{"with path /", "path/to/file", true},
		{"with path \\", "path\\to\\file", true},
		{"hidden file", ".hidden", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateManifestFilename(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateManifestFilename(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "main.go", false},
		{"nested", "internal/models/user.go", false},
		{"dotfile", ".gitignore", false},
		{"dots in name", "a..b.go", false},

		{"empty", "", true},
		{"absolute", "/etc/passwd", true},
		{"traversal", "../outside.go", true},
		{"nested traversal", "a/../../b", true},
		{"backslash", "a\\b.go", true},
		{"null byte", "a\x00.go", true},
		{"too long", strings.Repeat("a", 501), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePath(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
