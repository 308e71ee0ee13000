package tray

import (
	"testing"

	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMenu(t *testing.T) {
	called := 0
	m := Menu("Snappy AI", Item{Label: "Take Screenshot", Action: func() { called++ }})

	require.Len(t, m.Items, 1)
	assert.Equal(t, "Snappy AI", m.Label)
	assert.Equal(t, "Take Screenshot", m.Items[0].Label)
	m.Items[0].Action()
	assert.Equal(t, 1, called)
}

func TestIcon(t *testing.T) {
	assert.Equal(t, "snappy.svg", Icon.Name())
	assert.Contains(t, string(Icon.Content()), "<svg")
}

func TestInstallWithoutTray(t *testing.T) {
	assert.NotPanics(t, func() {
		Install(test.NewTempApp(t), "Snappy AI", Item{Label: "Take Screenshot", Action: func() {}})
	})
}
