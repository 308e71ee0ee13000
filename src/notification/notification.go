package notification

import (
	"fyne.io/fyne/v2"
	"go.uber.org/zap"
)

const maxSummaryRunes = 200

// Summary truncates text to 200 runes for a desktop notification.
func Summary(text string) string {
	r := []rune(text)
	if len(r) <= maxSummaryRunes {
		return text
	}
	return string(r[:maxSummaryRunes]) + "..."
}

// ShowOCRResult posts a desktop notification with the recognized text. It is
// used when a capture was triggered while the window may be hidden.
func ShowOCRResult(app fyne.App, text string) {
	body := Summary(text)
	if body == "" {
		body = "No text found"
	}
	show(app, "Snappy AI", body)
}

// ShowError posts a desktop notification for a failed capture.
func ShowError(app fyne.App, err error) {
	show(app, "Snappy AI - capture failed", err.Error())
}

func show(app fyne.App, title, body string) {
	if app == nil {
		zap.S().Infow("notification", "title", title, "body", body)
		return
	}
	app.SendNotification(fyne.NewNotification(title, body))
}
