package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForLanguage_Markers(t *testing.T) {
	tests := []struct {
		language string
		marker   string
	}{
		{"javascript", "console.log"},
		{"python", "def greet"},
		{"java", "public static void main"},
		{"cpp", "#include <iostream>"},
		{"go", "package main"},
		{"typescript", "name: string"},
	}

	for _, tt := range tests {
		t.Run(tt.language, func(t *testing.T) {
			tpl := ForLanguage(tt.language)
			assert.NotEmpty(t, tpl)
			assert.Contains(t, tpl, tt.marker)
			assert.True(t, Known(tt.language))
		})
	}
}

func TestForLanguage_TemplatesDiffer(t *testing.T) {
	assert.NotEqual(t, ForLanguage("javascript"), ForLanguage("python"))
}

func TestForLanguage_Fallback(t *testing.T) {
	assert.Equal(t, Fallback, ForLanguage("brainfuck"))
	assert.Equal(t, Fallback, ForLanguage(""))
	assert.False(t, Known("brainfuck"))
}

func TestLanguages_Sorted(t *testing.T) {
	assert.Equal(t, []string{"cpp", "go", "java", "javascript", "python", "typescript"}, Languages())
}
