package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/playwright-community/playwright-go"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"snapshot-render/internal/bitmap"
	"snapshot-render/internal/capture"
	"snapshot-render/internal/codec"
	"snapshot-render/internal/compare"
	diffimage "snapshot-render/internal/diff/image"
	"snapshot-render/internal/env"
	"snapshot-render/internal/logging"
	"snapshot-render/internal/retry"
	"snapshot-render/internal/snapshot"
	"snapshot-render/internal/storage"
)

type Worker struct {
	Render     capture.RenderFunc
	References *storage.ReferenceStore
	Strategy   *snapshot.Strategy
	Size       *capture.Size
	Logger     *slog.Logger
	// UploadStrategy paces retries of attachment uploads.
	UploadStrategy retry.Strategy
}

type WorkerOutput struct {
	Key          storage.Key           `json:"key"`
	Match        bool                  `json:"match"`
	Recorded     bool                  `json:"recorded,omitempty"`
	Kind         compare.Kind          `json:"kind,omitempty"`
	Message      string                `json:"message,omitempty"`
	ReferenceURL string                `json:"referenceURL"`
	Attachments  map[string]string     `json:"attachments,omitempty"`
	Regions      []diffimage.Rectangle `json:"regions,omitempty"`
}

func main() {
	if err := env.Load(); err != nil {
		log.Fatalf("failed to load .env: %v", err)
	}

	var test string
	var name string
	var platform string
	var scale float64
	var format string
	var precision float64
	var perceptualPrecision float64
	var viewportWidth int
	var viewportHeight int
	var chromeDevtoolsProtocolURL string
	var storageBackend string
	var directory string
	var bucket string
	var callbackURL string
	var debug bool
	flag.StringVar(&test, "test", env.OrDefault("TEST", "worker"), "Test the reference belongs to")
	flag.StringVar(&name, "name", env.OrDefault("NAME", ""), "Name of the view within the test")
	flag.StringVar(&platform, "platform", env.OrDefault("PLATFORM", "chromium"), "Platform qualifier of the reference file names")
	flag.Float64Var(&scale, "scale", env.OrDefault("SCALE", 1.0), "Device scale factor")
	flag.StringVar(&format, "format", env.OrDefault("FORMAT", "png"), "Reference codec (png, tiff or bmp)")
	flag.Float64Var(&precision, "precision", env.OrDefault("PRECISION", 1.0), "Fraction of bytes that must match")
	flag.Float64Var(&perceptualPrecision, "perceptual-precision", env.OrDefault("PERCEPTUAL_PRECISION", 1.0), "Per-pixel perceptual precision, 1 disables perceptual matching")
	flag.IntVar(&viewportWidth, "viewport-width", env.OrDefault("VIEWPORT_WIDTH", 1920), "Viewport width in points")
	flag.IntVar(&viewportHeight, "viewport-height", env.OrDefault("VIEWPORT_HEIGHT", 1080), "Viewport height in points")
	flag.StringVar(&chromeDevtoolsProtocolURL, "chrome-devtools-protocol-url", env.OrDefault("CHROME_DEVTOOLS_PROTOCOL_URL", ""), "Connect to existing browser via Chrome DevTools Protocol URL (e.g., http://localhost:9222)")
	flag.StringVar(&storageBackend, "storage-backend", env.OrDefault("STORAGE_BACKEND", "file"), "Storage backend (file or s3)")
	flag.StringVar(&directory, "directory", env.OrDefault("DIRECTORY", "."), "Root directory of the file storage backend")
	flag.StringVar(&bucket, "s3-bucket", env.OrDefault("S3_BUCKET", ""), "Bucket of the s3 storage backend")
	flag.StringVar(&callbackURL, "callback-url", env.OrDefault("CALLBACK_URL", ""), "Callback URL to send results to")
	flag.BoolVar(&debug, "debug", env.OrDefault("DEBUG", false), "Log as text instead of JSON")

	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		log.Fatalf("url not specified")
	}

	logger, err := logging.New(os.Stderr, debug)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}

	ctx := context.Background()

	p := compare.Precision{
		Precision:           precision,
		PerceptualPrecision: perceptualPrecision,
	}
	if err := p.Validate(); err != nil {
		log.Fatalf("invalid precision: %v", err)
	}

	c, err := codec.ByName(format)
	if err != nil {
		log.Fatalf("invalid format: %v", err)
	}

	s, err := storage.New(ctx, storageBackend, storage.FileConfig{Directory: directory}, storage.S3Config{Bucket: bucket})
	if err != nil {
		log.Fatalf("failed to create storage backend: %v", err)
	}

	config := capture.DefaultPlaywrightConfig()
	config.ChromeDevtoolsProtocolURL = chromeDevtoolsProtocolURL
	config.ViewportWidth = viewportWidth
	config.ViewportHeight = viewportHeight

	if chromeDevtoolsProtocolURL == "" {
		if err := playwright.Install(&playwright.RunOptions{
			Browsers: []string{"chromium"},
		}); err != nil {
			log.Fatalf("failed to install playwright browsers: %v", err)
		}
	}

	capturer, err := capture.NewPlaywrightCapturer(ctx, config)
	if err != nil {
		log.Fatalf("failed to initialize capturer: %v", err)
	}

	executor := capture.NewExecutor()
	defer executor.Close()

	strategy := snapshot.NewStrategy(p, scale)
	strategy.Codec = c
	strategy.Comparator = compare.NewComparator(c)

	worker := &Worker{
		Render:         capture.Async(executor, capturer, capture.CaptureOptions{}),
		References:     storage.NewReferenceStore(s, c, scale),
		Strategy:       strategy,
		Size:           &capture.Size{Width: float64(viewportWidth), Height: float64(viewportHeight)},
		Logger:         logger,
		UploadStrategy: retry.NewExponentialBackOff(100*time.Millisecond, 5*time.Second, 3, nil),
	}

	key := storage.Key{Test: test, Name: name, Platform: platform}
	result, err := worker.processSnapshot(ctx, key, capture.View{Name: name, URL: args[0]})
	if err != nil {
		log.Fatalf("failed to process snapshot: %v", err)
	}

	j, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("failed to marshal result: %v", err)
	}

	if callbackURL == "" {
		fmt.Println(string(j))
	} else {
		if err := callback(ctx, callbackURL, j); err != nil {
			log.Fatalf("failed to send callback: %v", err)
		}
	}

	if !result.Match {
		os.Exit(1)
	}
}

func (w *Worker) processSnapshot(ctx context.Context, key storage.Key, view capture.View) (*WorkerOutput, error) {
	// Step 1: Render the candidate and load the reference in parallel
	var candidate *bitmap.Bitmap
	var reference *bitmap.Bitmap
	var referenceErr error
	{
		eg, ctx := errgroup.WithContext(ctx)

		eg.Go(func() error {
			b, err := w.Render(ctx, view, w.Size, w.Strategy.Scale).Await(ctx)
			if err != nil {
				return xerrors.Errorf("failed to capture %s: %w", view.URL, err)
			}
			candidate = b
			return nil
		})

		eg.Go(func() error {
			reference, referenceErr = w.References.Load(ctx, key)
			return nil
		})

		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}

	output := &WorkerOutput{
		Key:          key,
		ReferenceURL: w.References.URL(key),
	}

	// Step 2: Record a missing reference
	if errors.Is(referenceErr, storage.ErrNotFound) {
		if _, err := w.References.Save(ctx, key, candidate); err != nil {
			return nil, xerrors.Errorf("failed to record reference: %w", err)
		}
		w.Logger.Info("recorded reference", "url", output.ReferenceURL)
		output.Recorded = true
		return output, nil
	}
	if referenceErr != nil {
		w.Logger.Warn("failed to load reference", "url", output.ReferenceURL, "error", referenceErr)
	}

	// Step 3: Compare
	report := w.Strategy.Diff(reference, candidate)
	if report == nil {
		output.Match = true
		return output, nil
	}
	output.Kind = report.Kind
	output.Message = report.Message
	output.Regions = report.Regions
	w.Logger.Info("snapshot mismatch", "kind", report.Kind, "message", report.Message)

	// Step 4: Upload all attachments in parallel
	urls := make([]string, len(report.Attachments))
	{
		eg, ctx := errgroup.WithContext(ctx)

		for i, a := range report.Attachments {
			eg.Go(func() error {
				data, err := a.Bytes(w.Strategy.Codec)
				if err != nil {
					return xerrors.Errorf("failed to encode %s: %w", a.Name, err)
				}
				attachmentKey := key.FailurePath(a.Name, a.Extension(w.Strategy.Codec))
				return retry.Do(ctx, w.UploadStrategy, nil, func(ctx context.Context) error {
					url, err := w.References.Storage.Put(ctx, attachmentKey, data)
					if err != nil {
						w.Logger.Warn("failed to upload attachment", "key", attachmentKey, "error", err)
						return xerrors.Errorf("failed to upload %s: %w", a.Name, err)
					}
					urls[i] = url
					return nil
				})
			})
		}

		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}

	output.Attachments = make(map[string]string, len(urls))
	for i, a := range report.Attachments {
		output.Attachments[a.Name] = urls[i]
	}

	return output, nil
}

func callback(ctx context.Context, callbackURL string, data []byte) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodPatch, callbackURL, bytes.NewReader(data))
	if err != nil {
		return xerrors.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &retry.Transport{
			Base:          http.DefaultTransport,
			RetryStrategy: retry.NewExponentialBackOff(10*time.Millisecond, 1*time.Second, 3, nil),
			RetryOn:       retry.NewDefaultRetryOn(),
		},
	}

	response, err := client.Do(request)
	if err != nil {
		return xerrors.Errorf("failed to send request: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode >= 400 {
		return xerrors.Errorf("callback responded %s", response.Status)
	}
	return nil
}
