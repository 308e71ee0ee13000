package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"snappy-ocr/src/clipboard"
	"snappy-ocr/src/config"
	"snappy-ocr/src/failure"
	"snappy-ocr/src/gui"
	"snappy-ocr/src/hotkey"
	"snappy-ocr/src/logutil"
	"snappy-ocr/src/runtimeinit"
	"snappy-ocr/src/screenshot"
	"snappy-ocr/src/session"
	"snappy-ocr/src/singleinstance"
	"snappy-ocr/src/tray"
	"snappy-ocr/src/worker"
)

const appID = "io.snappy.ocr"

type mainOptions struct {
	apiKeyPath       string
	screenshotPath   string
	display          int
	region           string
	configFile       string
	noInitialCapture bool
	noHotkey         bool
	pingLLM          bool
}

func main() {
	if err := runWithArgs(normalizeLegacyArgs(os.Args)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(failure.KindOf(err).ExitCode())
	}
}

func runWithArgs(args []string) error {
	if len(args) == 0 {
		args = []string{"snappy"}
	}
	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "snappy",
		Short:         "Capture the screen, OCR it and show the text in a window",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), *opts)
		},
	}

	cmd.Flags().StringVar(&opts.apiKeyPath, "api-key-path", "", "Path to API key file (highest precedence)")
	cmd.Flags().StringVar(&opts.screenshotPath, "path", "", "Where to write the captured PNG (default from SCREENSHOT_PATH)")
	cmd.Flags().IntVar(&opts.display, "display", -1, "Display index to capture (default from DISPLAY_INDEX)")
	cmd.Flags().StringVar(&opts.region, "region", "", "Crop x,y,w,h relative to the display (default from CAPTURE_REGION)")
	cmd.Flags().StringVar(&opts.configFile, "config", "", "Optional YAML config file")
	cmd.Flags().BoolVar(&opts.noInitialCapture, "no-initial-capture", false, "Do not capture when the window opens")
	cmd.Flags().BoolVar(&opts.noHotkey, "no-hotkey", false, "Do not register the global hotkey")
	cmd.Flags().BoolVar(&opts.pingLLM, "ping", true, "Verify the LLM at startup when one is configured")
	return cmd
}

// normalizeLegacyArgs maps single-dash long flags (-path, -display=1) to the
// double-dash form cobra expects.
func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}
	normalized := make([]string, len(args))
	copy(normalized, args)

	long := []string{"api-key-path", "path", "display", "region", "config", "no-initial-capture", "no-hotkey", "ping"}
	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		for _, name := range long {
			if arg == "-"+name || strings.HasPrefix(arg, "-"+name+"=") {
				normalized[i] = "-" + arg
				break
			}
		}
	}
	return normalized
}

func (o mainOptions) loadOptions() config.LoadOptions {
	return config.LoadOptions{
		APIKeyPathOverride:     o.apiKeyPath,
		ScreenshotPathOverride: o.screenshotPath,
		DisplayIndexOverride:   o.display,
		CaptureRegionOverride:  o.region,
		ConfigFile:             o.configFile,
	}
}

func run(parent context.Context, opts mainOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	enableDPIAwareness()

	closeLog := func() {}
	rt, err := runtimeinit.Bootstrap(ctx, runtimeinit.Options{
		LoadOptions: opts.loadOptions(),
		SetupLogging: func(cfg *config.Config) {
			closeLog = logutil.Setup(logutil.Options{
				EnableFileLogging: cfg.EnableFileLogging,
				Level:             cfg.LogLevel,
				Console:           os.Stderr,
			})
		},
		PingLLM: opts.pingLLM,
	})
	defer func() { closeLog() }()
	if err != nil {
		return err
	}
	cfg := rt.Config
	logDisplays()

	srv := singleinstance.NewServer()
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("snappy is already running: %w", err)
	}
	defer srv.Close()

	if err := clipboard.Init(); err != nil {
		// Copy reports the failure in the status line; the window still works.
		zap.S().Warnw("clipboard unavailable", "error", err)
	}

	a := app.NewWithID(appID)
	a.SetIcon(tray.Icon)
	shell := gui.New(a)

	pool := worker.New(rt.Pipeline, 1)
	defer pool.Close()

	sess := session.New(session.Options{
		Worker:    pool,
		Responder: rt.Responder,
		Deadline:  rt.Deadline(),
		OnChange:  shell.Notify,
	})
	shell.Attach(ctx, sess)
	go serveResident(ctx, srv, sess, clipboard.System{})

	win := shell.Window()
	if shell.InstallTray() {
		win.SetCloseIntercept(win.Hide)
	}

	if cfg.Hotkey != "" && !opts.noHotkey {
		stopHotkey, err := hotkey.Listen(cfg.Hotkey, func() { shell.Recapture(true) })
		if err != nil {
			zap.S().Warnw("hotkey disabled", "hotkey", cfg.Hotkey, "error", err)
		} else {
			defer stopHotkey()
		}
	}

	exited := make(chan struct{})
	defer close(exited)
	go func() {
		select {
		case <-ctx.Done():
			sess.Cancel()
			fyne.Do(a.Quit)
		case <-exited:
		}
	}()

	if !opts.noInitialCapture {
		shell.Recapture(false)
	}

	zap.S().Infow("Snappy AI started", "hotkey", cfg.Hotkey, "path", cfg.ScreenshotPath, "display", cfg.DisplayIndex)
	win.ShowAndRun()
	zap.S().Info("Snappy AI exiting")
	return nil
}

func logDisplays() {
	for i, b := range screenshot.Displays(screenshot.System()) {
		zap.S().Debugw("display", "index", i, "x", b.Min.X, "y", b.Min.Y, "w", b.Dx(), "h", b.Dy())
	}
}
