package gui

import (
	"context"
	"errors"
	"image"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"go.uber.org/zap"

	"snappy-ocr/src/notification"
	"snappy-ocr/src/pipeline"
	"snappy-ocr/src/screenshot"
	"snappy-ocr/src/session"
	"snappy-ocr/src/tray"
)

const Title = "Snappy AI - Screenshot OCR"

// Controller is the part of *session.Session the window drives.
type Controller interface {
	Snapshot() session.Snapshot
	SetText(text string)
	SetQuery(q string)
	Recapture(ctx context.Context, done func(pipeline.Result, error)) error
	Copy() error
	Ask(ctx context.Context) error
}

// Shell is the main window. Build it with New, then Attach a controller once
// the session exists, since the session reports changes through Notify.
type Shell struct {
	app fyne.App
	win fyne.Window
	ctx context.Context
	ctl Controller

	preview    *canvas.Image
	text       *widget.Entry
	query      *widget.Entry
	queryLabel *widget.Label
	status     *widget.Label
	captureBtn *widget.Button
	copyBtn    *widget.Button
	askBtn     *widget.Button

	shownTextVersion int
	loadedCaptures   int
	loadImage        func(path string) (image.Image, error)
}

func New(app fyne.App) *Shell {
	s := &Shell{app: app, ctx: context.Background(), loadImage: screenshot.Load, shownTextVersion: -1}
	s.win = app.NewWindow(Title)
	s.win.SetIcon(tray.Icon)

	s.preview = canvas.NewImageFromImage(nil)
	s.preview.FillMode = canvas.ImageFillContain
	s.preview.SetMinSize(fyne.NewSize(480, 270))

	s.text = widget.NewMultiLineEntry()
	s.text.Wrapping = fyne.TextWrapWord
	s.text.SetMinRowsVisible(8)
	s.text.SetPlaceHolder("Extracted text appears here")
	s.text.OnChanged = func(v string) {
		if s.ctl != nil {
			s.ctl.SetText(v)
		}
	}

	s.queryLabel = widget.NewLabel("💬 Ask AI a Question:")
	s.query = widget.NewEntry()
	s.query.SetPlaceHolder("Ask a question about the text")
	s.query.OnChanged = func(v string) {
		if s.ctl != nil {
			s.ctl.SetQuery(v)
		}
	}

	s.status = widget.NewLabel("")
	s.status.Wrapping = fyne.TextWrapWord

	s.captureBtn = widget.NewButton("📸 Take Screenshot", func() { s.Recapture(false) })
	s.copyBtn = widget.NewButton("📋 Copy Text", s.copyText)
	s.askBtn = widget.NewButton("🤖 Ask AI", s.ask)

	heading := widget.NewLabelWithStyle(Title, fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	top := container.NewVBox(heading, s.captureBtn)
	controls := container.NewVBox(
		widget.NewLabel("📝 Extracted Text:"),
		s.text,
		s.copyBtn,
		widget.NewSeparator(),
		s.queryLabel,
		s.query,
		s.askBtn,
	)
	body := container.NewVSplit(container.NewPadded(s.preview), controls)
	body.SetOffset(0.45)

	s.win.SetContent(container.NewBorder(top, s.status, nil, nil, body))
	s.win.Resize(fyne.NewSize(820, 760))
	return s
}

// Attach binds the controller. ctx is the parent of every capture and ask.
func (s *Shell) Attach(ctx context.Context, ctl Controller) {
	s.ctx = ctx
	s.ctl = ctl
	snap := ctl.Snapshot()
	s.query.SetText(snap.Query)
	s.Render(snap)
}

func (s *Shell) Window() fyne.Window { return s.win }

// InstallTray adds the system-tray menu. Captures from the tray post a
// desktop notification because the window may be hidden.
func (s *Shell) InstallTray() bool {
	return tray.Install(s.app, "Snappy AI",
		tray.Item{Label: "Take Screenshot", Action: func() { s.Recapture(true) }},
		tray.Item{Label: "Show Window", Action: s.win.Show},
	)
}

// Notify is a session.Options.OnChange handler. It may be called from any
// goroutine.
func (s *Shell) Notify(snap session.Snapshot) {
	fyne.Do(func() { s.Render(snap) })
}

// Render updates the widgets from a snapshot. Must run on the fyne goroutine.
// The text entry is only overwritten when a capture or an answer replaced the
// text, so a queued snapshot never reverts what the user typed since.
func (s *Shell) Render(snap session.Snapshot) {
	if snap.TextVersion != s.shownTextVersion {
		s.shownTextVersion = snap.TextVersion
		if s.text.Text != snap.Text {
			s.text.SetText(snap.Text)
		}
	}

	s.status.SetText(snap.Status)
	if snap.Err != nil {
		s.status.Importance = widget.DangerImportance
	} else {
		s.status.Importance = widget.MediumImportance
	}
	s.status.Refresh()

	if snap.Busy {
		s.captureBtn.Disable()
	} else {
		s.captureBtn.Enable()
	}

	if snap.ImagePath != "" && snap.Captures != s.loadedCaptures {
		img, err := s.loadImage(snap.ImagePath)
		if err != nil {
			zap.S().Warnw("failed to load preview", "path", snap.ImagePath, "error", err)
		} else {
			s.preview.Image = img
			s.preview.Refresh()
			s.loadedCaptures = snap.Captures
		}
	}
}

// Recapture starts a capture. With notify set, the outcome is also posted as
// a desktop notification.
func (s *Shell) Recapture(notify bool) {
	if s.ctl == nil {
		return
	}
	var done func(pipeline.Result, error)
	if notify {
		done = func(res pipeline.Result, err error) {
			if err != nil {
				notification.ShowError(s.app, err)
				return
			}
			notification.ShowOCRResult(s.app, res.Text)
		}
	}
	if err := s.ctl.Recapture(s.ctx, done); err != nil {
		if errors.Is(err, session.ErrBusy) {
			zap.S().Debug("capture ignored, previous capture still running")
			return
		}
		zap.S().Warnw("recapture rejected", "error", err)
	}
}

func (s *Shell) copyText() {
	if s.ctl == nil {
		return
	}
	if err := s.ctl.Copy(); err != nil {
		zap.S().Warnw("copy failed", "error", err)
	}
}

// ask runs the responder off the UI goroutine; it may call a remote model.
func (s *Shell) ask() {
	if s.ctl == nil {
		return
	}
	s.askBtn.Disable()
	go func() {
		defer fyne.Do(s.askBtn.Enable)
		if err := s.ctl.Ask(s.ctx); err != nil {
			zap.S().Warnw("ask failed", "error", err)
		}
	}()
}
