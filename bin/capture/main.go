package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"golang.org/x/sync/errgroup"

	"snapshot-render/internal/capture"
	"snapshot-render/internal/codec"
	"snapshot-render/internal/env"
	"snapshot-render/internal/storage"
)

type RecordResult struct {
	Name          string  `json:"name"`
	URL           string  `json:"url"`
	ReferencePath string  `json:"referencePath"`
	Width         float64 `json:"width"`
	Height        float64 `json:"height"`
}

type headers []string

func (h *headers) String() string {
	return strings.Join(*h, ", ")
}

func (h *headers) Set(value string) error {
	*h = append(*h, value)
	return nil
}

// parseView accepts "name=url" or a bare url, which is named after its
// position.
func parseView(arg string, i int) capture.View {
	if name, url, ok := strings.Cut(arg, "="); ok && !strings.Contains(name, "/") {
		return capture.View{Name: name, URL: url}
	}
	return capture.View{Name: fmt.Sprint(i + 1), URL: arg}
}

func main() {
	if err := env.Load(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}

	var test string
	var platform string
	var scale float64
	var format string
	var storageBackend string
	var directory string
	var bucket string
	var maskSelectors string
	var delay time.Duration
	var viewportWidth int
	var viewportHeight int
	var fullPage bool
	var userAgent string
	var chromeDevtoolsProtocolURL string
	var headers headers
	flag.StringVar(&test, "test", env.OrDefault("TEST", "capture"), "Test the references belong to")
	flag.StringVar(&platform, "platform", env.OrDefault("PLATFORM", "chromium"), "Platform qualifier of the reference file names")
	flag.Float64Var(&scale, "scale", env.OrDefault("SCALE", 1.0), "Device scale factor")
	flag.StringVar(&format, "format", env.OrDefault("FORMAT", "png"), "Reference codec (png, tiff or bmp)")
	flag.StringVar(&storageBackend, "storage-backend", env.OrDefault("STORAGE_BACKEND", "file"), "Storage backend (file or s3)")
	flag.StringVar(&directory, "directory", env.OrDefault("DIRECTORY", "."), "Root directory of the file storage backend")
	flag.StringVar(&bucket, "s3-bucket", env.OrDefault("S3_BUCKET", ""), "Bucket of the s3 storage backend")
	flag.StringVar(&maskSelectors, "mask-selectors", env.OrDefault("MASK_SELECTORS", ""), "Comma-separated list of CSS selectors to mask during capture")
	flag.DurationVar(&delay, "delay", env.OrDefault("DELAY", 3*time.Second), "Delay before capturing")
	flag.IntVar(&viewportWidth, "viewport-width", env.OrDefault("VIEWPORT_WIDTH", 1920), "Viewport width in points")
	flag.IntVar(&viewportHeight, "viewport-height", env.OrDefault("VIEWPORT_HEIGHT", 1080), "Viewport height in points")
	flag.BoolVar(&fullPage, "full-page", env.OrDefault("FULL_PAGE", false), "Capture the whole scrollable page")
	flag.StringVar(&userAgent, "user-agent", env.OrDefault("USER_AGENT", ""), "User-Agent string to use for requests")
	flag.StringVar(&chromeDevtoolsProtocolURL, "chrome-devtools-protocol-url", env.OrDefault("CHROME_DEVTOOLS_PROTOCOL_URL", ""), "Connect to existing browser via Chrome DevTools Protocol URL (e.g., http://localhost:9222)")
	flag.Var(&headers, "H", "Add HTTP header (can be used multiple times, e.g., -H 'Accept: text/html' -H 'Authorization: Bearer token')")

	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		log.Fatalf("url not specified")
	}

	ctx := context.Background()

	c, err := codec.ByName(format)
	if err != nil {
		log.Fatalf("Invalid format: %v", err)
	}

	s, err := storage.New(ctx, storageBackend, storage.FileConfig{Directory: directory}, storage.S3Config{Bucket: bucket})
	if err != nil {
		log.Fatalf("Failed to create storage backend: %v", err)
	}
	references := storage.NewReferenceStore(s, c, scale)

	config := capture.DefaultPlaywrightConfig()
	config.Delay = delay
	config.FullPage = fullPage
	config.ChromeDevtoolsProtocolURL = chromeDevtoolsProtocolURL
	config.UserAgent = userAgent
	if display := os.Getenv("DISPLAY"); display != "" {
		config.Headless = false
	}
	if viewportWidth > 0 {
		config.ViewportWidth = viewportWidth
	}
	if viewportHeight > 0 {
		config.ViewportHeight = viewportHeight
	}

	if chromeDevtoolsProtocolURL == "" {
		if err := playwright.Install(&playwright.RunOptions{
			Browsers: []string{"chromium"},
		}); err != nil {
			log.Fatalf("Failed to install playwright browsers: %v", err)
		}
	}

	capturer, err := capture.NewPlaywrightCapturer(ctx, config)
	if err != nil {
		log.Fatalf("Failed to create capturer: %v", err)
	}

	captureOptions := capture.CaptureOptions{}
	if maskSelectors != "" {
		captureOptions.MaskSelectors = strings.Split(maskSelectors, ",")
		for i := range captureOptions.MaskSelectors {
			captureOptions.MaskSelectors[i] = strings.TrimSpace(captureOptions.MaskSelectors[i])
		}
	}
	if len(headers) > 0 {
		captureOptions.Headers = make(map[string]string)
		for _, header := range headers {
			if key, value, ok := strings.Cut(header, ":"); ok {
				captureOptions.Headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
			}
		}
	}

	executor := capture.NewExecutor()
	defer executor.Close()
	render := capture.Async(executor, capturer, captureOptions)

	size := &capture.Size{Width: float64(config.ViewportWidth), Height: float64(config.ViewportHeight)}
	views := make([]capture.View, len(args))
	futures := make([]*capture.Future, len(args))
	for i, arg := range args {
		views[i] = parseView(arg, i)
		futures[i] = render(ctx, views[i], size, scale)
	}

	results := make([]RecordResult, len(args))
	{
		eg, ctx := errgroup.WithContext(ctx)

		for i := range futures {
			eg.Go(func() error {
				b, err := futures[i].Await(ctx)
				if err != nil {
					return fmt.Errorf("failed to capture %s: %w", views[i].URL, err)
				}
				key := storage.Key{Test: test, Name: views[i].Name, Platform: platform}
				path, err := references.Save(ctx, key, b)
				if err != nil {
					return fmt.Errorf("failed to save %s: %w", views[i].URL, err)
				}
				size := b.Size()
				results[i] = RecordResult{
					Name:          views[i].Name,
					URL:           views[i].URL,
					ReferencePath: path,
					Width:         size.Width,
					Height:        size.Height,
				}
				return nil
			})
		}

		if err := eg.Wait(); err != nil {
			log.Fatalf("Failed to record: %v", err)
		}
	}

	if err := json.NewEncoder(os.Stdout).Encode(results); err != nil {
		log.Fatalf("Failed to encode result: %v", err)
	}
}
