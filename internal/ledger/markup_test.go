package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripMarkup(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Blue Mug", "Blue Mug"},
		{"tags", "T-Shirt <strong>Size:</strong> Large", "T-Shirt Size: Large"},
		{"entities", "Salt &amp; Pepper", "Salt & Pepper"},
		{"comment", "Mug <!-- internal --> Red", "Mug Red"},
		{"line breaks", "Poster<br/>\n  A2,\tMatte", "Poster A2, Matte"},
		{"nfc", "Cafe\u0301 Blend", "Caf\u00e9 Blend"},
		{"empty", "", ""},
		{"only tags", "<p></p>", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripMarkup(tt.in))
		})
	}
}
