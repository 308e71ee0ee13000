package tray

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
)

// SVGContent is the tray and window icon: a dashed selection rectangle with
// a pair of scissors.
const SVGContent = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 16 16" width="16" height="16">
  <rect x="3" y="3" width="8" height="6" fill="none" stroke="#0078d4" stroke-width="1.5" stroke-dasharray="2,1" opacity="0.8"/>
  <g transform="translate(10.5, 11) rotate(-45)">
    <circle cx="0" cy="-1" r="1" fill="none" stroke="#333333" stroke-width="0.8"/>
    <circle cx="0" cy="1" r="1" fill="none" stroke="#333333" stroke-width="0.8"/>
    <line x1="0.7" y1="-0.3" x2="2.5" y2="-0.8" stroke="#333333" stroke-width="1" stroke-linecap="round"/>
    <line x1="0.7" y1="0.3" x2="2.5" y2="0.8" stroke="#333333" stroke-width="1" stroke-linecap="round"/>
    <circle cx="0.5" cy="0" r="0.3" fill="#666666"/>
  </g>
  <line x1="8" y1="9.5" x2="10" y2="11.5" stroke="#666666" stroke-width="1" stroke-dasharray="1,1" opacity="0.6"/>
</svg>`

// Icon is SVGContent as a fyne resource.
var Icon fyne.Resource = fyne.NewStaticResource("snappy.svg", []byte(SVGContent))

// Item is one tray menu entry.
type Item struct {
	Label  string
	Action func()
}

// Menu builds the tray menu. Fyne appends its own Quit entry.
func Menu(title string, items ...Item) *fyne.Menu {
	entries := make([]*fyne.MenuItem, 0, len(items))
	for _, it := range items {
		entries = append(entries, fyne.NewMenuItem(it.Label, it.Action))
	}
	return fyne.NewMenu(title, entries...)
}

// Install sets the tray menu and icon when the driver supports a system tray.
// It reports whether a tray was installed.
func Install(app fyne.App, title string, items ...Item) bool {
	desk, ok := app.(desktop.App)
	if !ok {
		return false
	}
	desk.SetSystemTrayMenu(Menu(title, items...))
	desk.SetSystemTrayIcon(Icon)
	return true
}
