package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"snappy-ocr/src/clipboard"
	"snappy-ocr/src/config"
	"snappy-ocr/src/failure"
	"snappy-ocr/src/logutil"
	"snappy-ocr/src/ocr"
	"snappy-ocr/src/pipeline"
	"snappy-ocr/src/runtimeinit"
	"snappy-ocr/src/singleinstance"
)

const (
	maxFileSizeMB = 10
	maxFileSize   = maxFileSizeMB * 1024 * 1024
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

type cliOptions struct {
	verbose    bool
	apiKeyPath string
	configFile string
}

type captureOptions struct {
	copy       bool
	jsonOutput bool
	path       string
	display    int
	region     string
	standalone bool
}

type ocrOptions struct {
	filePath   string
	jsonOutput bool
}

// Runner runs one capture-and-recognize pass; *pipeline.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context) (pipeline.Result, error)
}

// engine is what a command needs after bootstrap.
type engine struct {
	runner     Runner
	recognizer ocr.Recognizer
	deadline   time.Duration
}

// app holds the process seams so commands can run against fakes.
type app struct {
	stdin     io.Reader
	stdout    io.Writer
	stderr    io.Writer
	clipboard clipboard.Writer
	bootstrap func(ctx context.Context, lo config.LoadOptions, verbose bool) (*engine, func(), error)
	// delegate hands a capture to a running GUI; see singleinstance.
	delegate func(ctx context.Context, copy bool) (bool, string, error)
}

func main() {
	a := newApp()
	if err := a.runWithArgs(context.Background(), normalizeLegacyArgs(os.Args)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(failure.KindOf(err).ExitCode())
	}
}

func newApp() *app {
	return &app{
		stdin:     os.Stdin,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		clipboard: clipboard.System{},
		bootstrap: bootstrapEngine,
		delegate:  singleinstance.NewClient().TryCapture,
	}
}

func bootstrapEngine(ctx context.Context, lo config.LoadOptions, verbose bool) (*engine, func(), error) {
	closeLog := func() {}
	rt, err := runtimeinit.Bootstrap(ctx, runtimeinit.Options{
		LoadOptions: lo,
		SetupLogging: func(cfg *config.Config) {
			opts := logutil.Options{EnableFileLogging: cfg.EnableFileLogging, Level: cfg.LogLevel}
			if verbose {
				opts.Console = os.Stderr
				opts.Level = "debug"
			}
			closeLog = logutil.Setup(opts)
		},
	})
	if err != nil {
		closeLog()
		return nil, nil, err
	}
	return &engine{runner: rt.Pipeline, recognizer: rt.Recognizer, deadline: rt.Deadline()}, closeLog, nil
}

func (a *app) runWithArgs(ctx context.Context, args []string) error {
	if len(args) == 0 {
		args = []string{"snappy-cli"}
	}
	cmd := a.newRootCmd()
	cmd.SetArgs(args[1:])
	cmd.SetIn(a.stdin)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)
	return cmd.ExecuteContext(ctx)
}

func (a *app) newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:           "snappy-cli",
		Short:         "Capture the screen and extract its text",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")
	root.PersistentFlags().StringVar(&opts.apiKeyPath, "api-key-path", "", "Path to API key file (highest precedence)")
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "Optional YAML config file")

	root.AddCommand(a.newCaptureCmd(opts), a.newOCRCmd(opts))
	return root
}

func (a *app) newCaptureCmd(root *cliOptions) *cobra.Command {
	opts := &captureOptions{}
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture a display, save it as PNG and print the recognized text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.copy && opts.jsonOutput {
				return errors.New("--copy and --json cannot be combined")
			}
			return a.capture(cmd.Context(), *root, *opts)
		},
	}
	cmd.Flags().BoolVar(&opts.copy, "copy", false, "Copy the text to the clipboard instead of printing it")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().StringVar(&opts.path, "path", "", "Where to write the PNG (default from SCREENSHOT_PATH)")
	cmd.Flags().IntVar(&opts.display, "display", -1, "Display index (default from DISPLAY_INDEX)")
	cmd.Flags().StringVar(&opts.region, "region", "", "Crop x,y,w,h relative to the display (default from CAPTURE_REGION)")
	cmd.Flags().BoolVar(&opts.standalone, "standalone", false, "Capture in this process even if the GUI is running")
	return cmd
}

func (a *app) newOCRCmd(root *cliOptions) *cobra.Command {
	opts := &ocrOptions{}
	cmd := &cobra.Command{
		Use:   "ocr",
		Short: "Recognize text in an existing PNG",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.recognizeFile(cmd.Context(), *root, *opts)
		},
	}
	cmd.Flags().StringVar(&opts.filePath, "file", "", "Path to PNG file (use '-' for stdin)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (a *app) verbosef(on bool, format string, args ...any) {
	if on {
		fmt.Fprintf(a.stderr, "[verbose] "+format+"\n", args...)
	}
}

const delegateGrace = 5 * time.Second

// canDelegate reports whether a running GUI can serve the request. The GUI
// captures with its own settings and returns only text.
func (o captureOptions) canDelegate() bool {
	return !o.standalone && !o.jsonOutput && o.path == "" && o.display < 0 && o.region == ""
}

// CaptureResult is the --json output of capture.
type CaptureResult struct {
	RunID     string  `json:"run_id"`
	Text      string  `json:"text"`
	Path      string  `json:"path"`
	Display   int     `json:"display"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Duration  float64 `json:"duration_seconds"`
	CharCount int     `json:"character_count"`
}

func (a *app) capture(ctx context.Context, root cliOptions, opts captureOptions) error {
	lo := config.LoadOptions{
		APIKeyPathOverride:     root.apiKeyPath,
		ScreenshotPathOverride: opts.path,
		DisplayIndexOverride:   opts.display,
		CaptureRegionOverride:  opts.region,
		ConfigFile:             root.configFile,
	}
	eng, closeLog, err := a.bootstrap(ctx, lo, root.verbose)
	if err != nil {
		return err
	}
	defer closeLog()

	if opts.canDelegate() && a.delegate != nil {
		dctx, cancel := context.WithTimeout(ctx, eng.deadline+delegateGrace)
		delegated, text, err := a.delegate(dctx, opts.copy)
		cancel()
		if delegated {
			a.verbosef(root.verbose, "Capture handled by the running GUI")
			if err != nil {
				return err
			}
			fmt.Fprint(a.stdout, text)
			return nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, eng.deadline)
	defer cancel()

	a.verbosef(root.verbose, "Capturing (deadline %s)", eng.deadline)
	res, err := eng.runner.Run(ctx)
	if err != nil {
		return err
	}
	a.verbosef(root.verbose, "Run %s: %d characters from display %d in %s", res.RunID, len(res.Text), res.Display, res.Duration)

	switch {
	case opts.copy:
		if err := a.clipboard.Write(res.Text); err != nil {
			if failure.KindOf(err) == failure.Unknown {
				err = failure.New(failure.ClipboardUnavailable, "write", err)
			}
			return err
		}
		fmt.Fprintf(a.stdout, "Copied %d characters to clipboard\n", len(res.Text))
		return nil
	case opts.jsonOutput:
		return a.writeJSON(CaptureResult{
			RunID:     res.RunID,
			Text:      res.Text,
			Path:      res.Path,
			Display:   res.Display,
			Width:     res.Width,
			Height:    res.Height,
			Duration:  res.Duration.Seconds(),
			CharCount: len(res.Text),
		})
	default:
		fmt.Fprintln(a.stdout, res.Text)
		return nil
	}
}

// OCRResult is the --json output of ocr.
type OCRResult struct {
	Text      string  `json:"text"`
	Source    string  `json:"source"`
	Timestamp string  `json:"timestamp"`
	Duration  float64 `json:"duration_seconds"`
	CharCount int     `json:"character_count"`
}

func (a *app) recognizeFile(ctx context.Context, root cliOptions, opts ocrOptions) error {
	data, err := a.readInput(opts.filePath, root.verbose)
	if err != nil {
		return err
	}
	if err := validatePNG(data); err != nil {
		return err
	}
	a.verbosef(root.verbose, "PNG validation passed (%d bytes)", len(data))

	lo := config.LoadOptions{APIKeyPathOverride: root.apiKeyPath, DisplayIndexOverride: -1, ConfigFile: root.configFile}
	eng, closeLog, err := a.bootstrap(ctx, lo, root.verbose)
	if err != nil {
		return err
	}
	defer closeLog()

	path := opts.filePath
	if path == "-" {
		tmp, err := writeTemp(data)
		if err != nil {
			return err
		}
		defer os.Remove(tmp)
		path = tmp
	}

	ctx, cancel := context.WithTimeout(ctx, eng.deadline)
	defer cancel()

	start := time.Now()
	text, err := eng.recognizer.Recognize(ctx, path)
	elapsed := time.Since(start)
	if err != nil {
		if failure.KindOf(err) == failure.Unknown {
			err = failure.New(failure.RecognitionFailed, "recognize", err)
		}
		return err
	}
	zap.S().Infow("file recognized", "source", opts.filePath, "chars", len(text), "text", logutil.SanitizeForLog(text))
	a.verbosef(root.verbose, "OCR completed in %v, extracted %d characters", elapsed, len(text))

	if opts.jsonOutput {
		return a.writeJSON(OCRResult{
			Text:      text,
			Source:    opts.filePath,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Duration:  elapsed.Seconds(),
			CharCount: len(text),
		})
	}
	fmt.Fprint(a.stdout, text)
	return nil
}

func (a *app) readInput(filePath string, verbose bool) ([]byte, error) {
	if filePath == "-" {
		a.verbosef(verbose, "Reading image from stdin")
		data, err := io.ReadAll(io.LimitReader(a.stdin, maxFileSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
		return data, nil
	}
	a.verbosef(verbose, "Reading image from file: %s", filePath)
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("input file exceeds maximum size of %d MB", maxFileSizeMB)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
	}
	return data, nil
}

func validatePNG(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("input file is empty")
	}
	if len(data) > maxFileSize {
		return fmt.Errorf("input file exceeds maximum size of %d MB", maxFileSizeMB)
	}
	if len(data) < len(pngMagic) || !bytes.Equal(data[:len(pngMagic)], pngMagic) {
		return fmt.Errorf("input is not a valid PNG file (invalid magic number)")
	}
	return nil
}

func writeTemp(data []byte) (string, error) {
	f, err := os.CreateTemp("", "snappy-stdin-*.png")
	if err != nil {
		return "", fmt.Errorf("failed to buffer stdin: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to buffer stdin: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to buffer stdin: %w", err)
	}
	return filepath.Clean(f.Name()), nil
}

func (a *app) writeJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	return nil
}

// normalizeLegacyArgs maps single-dash long flags (-file, -json=true) to the
// double-dash form cobra expects.
func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}
	normalized := make([]string, len(args))
	copy(normalized, args)

	long := []string{"file", "json", "verbose", "api-key-path", "config", "copy", "path", "display", "region", "standalone"}
	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		if !strings.HasPrefix(arg, "-") || strings.HasPrefix(arg, "--") {
			continue
		}
		for _, name := range long {
			if arg == "-"+name || strings.HasPrefix(arg, "-"+name+"=") {
				normalized[i] = "-" + arg
				break
			}
		}
	}
	return normalized
}
