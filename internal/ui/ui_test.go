package ui

import (
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetColorPrinters(t *testing.T) {
	printers := GetColorPrinters()
	for _, key := range []string{"success", "error", "warning", "info"} {
		require.Contains(t, printers, key)
		assert.NotNil(t, printers[key])
	}
}

func TestDisableColor(t *testing.T) {
	old := color.NoColor
	t.Cleanup(func() { color.NoColor = old })

	DisableColor()
	assert.True(t, color.NoColor)

	// With color off, fatih printers emit plain text.
	out := GetColorPrinters()["success"].Sprint("applied")
	assert.Equal(t, "applied", out)
}
