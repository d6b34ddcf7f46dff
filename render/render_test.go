package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTML(t *testing.T) {
	r := New()

	out, err := r.HTML("# 2025 ZEEKR 7X\n\nThe 7X delivers **435 HP**.")
	require.NoError(t, err)
	assert.Contains(t, out, "<h1")
	assert.Contains(t, out, "2025 ZEEKR 7X")
	assert.Contains(t, out, "<strong>435 HP</strong>")
}

func TestHTMLRendersSpecTable(t *testing.T) {
	r := New()

	md := "| Field | Value |\n|---|---|\n| Horsepower | 435 HP |\n"
	out, err := r.HTML(md)
	require.NoError(t, err)
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, "435 HP")
}
