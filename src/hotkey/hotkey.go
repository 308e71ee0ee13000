package hotkey

import (
	"fmt"
	"strings"
	"sync"

	gohook "github.com/robotn/gohook"
	"go.uber.org/zap"
)

var (
	mu      sync.Mutex
	running bool
)

// Listen registers a global hotkey such as "Ctrl+Alt+S" and invokes callback
// from the hook goroutine each time the combination is pressed. The returned
// stop func ends the hook. Only one listener can be active at a time.
func Listen(combo string, callback func()) (func(), error) {
	keys, err := parseHotkey(combo)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	if running {
		return nil, fmt.Errorf("hotkey listener already running")
	}

	gohook.Register(gohook.KeyDown, keys, func(gohook.Event) {
		zap.S().Debugw("hotkey pressed", "combo", combo)
		if callback != nil {
			callback()
		}
	})

	evChan := gohook.Start()
	done := gohook.Process(evChan)
	running = true
	zap.S().Infow("hotkey listener configured", "combo", combo, "keys", keys)

	go func() {
		<-done
		mu.Lock()
		running = false
		mu.Unlock()
		zap.S().Debugw("hotkey event channel closed")
	}()

	var once sync.Once
	return func() { once.Do(gohook.End) }, nil
}

// parseHotkey converts a hotkey string like "Ctrl+Alt+q" to the key names
// gohook expects, rejecting unknown keys and combinations without a
// non-modifier key.
func parseHotkey(hotkeyConfig string) ([]string, error) {
	parts := strings.Split(strings.ToLower(hotkeyConfig), "+")
	var keys []string
	hasKey := false

	for _, part := range parts {
		part = strings.TrimSpace(part)
		switch part {
		case "":
			return nil, fmt.Errorf("invalid hotkey %q: empty key", hotkeyConfig)
		case "ctrl", "control":
			keys = append(keys, "ctrl")
		case "alt", "option":
			keys = append(keys, "alt")
		case "shift":
			keys = append(keys, "shift")
		case "win", "cmd", "super", "meta":
			keys = append(keys, "cmd")
		default:
			name, ok := normalizeKey(part)
			if !ok {
				return nil, fmt.Errorf("invalid hotkey %q: unknown key %q", hotkeyConfig, part)
			}
			keys = append(keys, name)
			hasKey = true
		}
	}

	if !hasKey {
		return nil, fmt.Errorf("invalid hotkey %q: needs a non-modifier key", hotkeyConfig)
	}
	return keys, nil
}

func normalizeKey(name string) (string, bool) {
	if len(name) == 1 {
		c := name[0]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			return name, true
		}
		return "", false
	}
	if len(name) >= 2 && name[0] == 'f' {
		var n int
		if _, err := fmt.Sscanf(name[1:], "%d", &n); err == nil && n >= 1 && n <= 24 && fmt.Sprintf("f%d", n) == name {
			return name, true
		}
	}
	switch name {
	case "space":
		return "space", true
	case "enter", "return":
		return "enter", true
	case "esc", "escape":
		return "esc", true
	case "tab":
		return "tab", true
	case "backspace":
		return "backspace", true
	case "delete", "del":
		return "delete", true
	case "insert", "ins":
		return "insert", true
	case "home", "end", "left", "right", "up", "down":
		return name, true
	case "pageup", "pgup":
		return "pageup", true
	case "pagedown", "pgdn":
		return "pagedown", true
	case "printscreen", "prtsc":
		return "printscreen", true
	}
	return "", false
}
