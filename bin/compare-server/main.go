package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	otelpyroscope "github.com/grafana/otel-profiling-go"
	"github.com/grafana/pyroscope-go"
	pyroscopepprof "github.com/grafana/pyroscope-go/http/pprof"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"golang.org/x/net/netutil"
	"golang.org/x/xerrors"

	"snapshot-render/internal/bitmap"
	"snapshot-render/internal/codec"
	"snapshot-render/internal/compare"
	diffimage "snapshot-render/internal/diff/image"
	"snapshot-render/internal/env"
	"snapshot-render/internal/logging"
	"snapshot-render/internal/myhttp"
)

type Server struct {
	address                string
	terminationGracePeriod time.Duration
	lameduck               time.Duration
	keepAlive              bool
	maxConnections         int
	maxUploadBytes         int64

	comparator  *compare.Comparator
	comparisons metric.Int64Counter
}

func NewServer() *Server {
	return &Server{
		address:                env.OrDefault("ADDRESS", "0.0.0.0:8383"),
		terminationGracePeriod: env.OrDefault("TERMINATION_GRACE_PERIOD", 10*time.Second),
		lameduck:               env.OrDefault("LAMEDUCK", 1*time.Second),
		keepAlive:              env.OrDefault("HTTP_KEEPALIVE", true),
		maxConnections:         env.OrDefault("MAX_CONNECTIONS", 65532),
		maxUploadBytes:         env.OrDefault("MAX_UPLOAD_BYTES", int64(32<<20)),
		comparator:             compare.NewComparator(codec.PNG),
	}
}

var Debug = false

func (s *Server) Start(ctx context.Context) error {
	runtime.SetMutexProfileFraction(1)
	runtime.SetBlockProfileRate(1)

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: "compare-server",
		ServerAddress:   os.Getenv("PYROSCOPE_ENDPOINT"),
		UploadRate:      60 * time.Second,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
			pyroscope.ProfileMutexCount,
			pyroscope.ProfileMutexDuration,
			pyroscope.ProfileBlockCount,
			pyroscope.ProfileBlockDuration,
		},
	})
	if err != nil {
		return xerrors.Errorf("failed to create profiler: %w", err)
	}

	otel.SetTextMapPropagator(propagation.TraceContext{})

	r, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName("compare-server")),
	)
	if err != nil {
		return xerrors.Errorf("failed to create resource: %w", err)
	}
	traceExporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return xerrors.Errorf("failed to create trace exporter: %w", err)
	}
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(r),
		sdktrace.WithBatcher(traceExporter),
	)
	otel.SetTracerProvider(otelpyroscope.NewTracerProvider(traceProvider))

	exporter, err := otelprometheus.New()
	if err != nil {
		return xerrors.Errorf("failed to create exporter: %w", err)
	}
	// NOTE: Gauge(UpDownCounter), Summary or Untyped does not support exemplars
	// https://github.com/prometheus/client_golang/blob/v1.20.4/prometheus/metric.go#L200
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)).Meter("compare-server")
	httpRequestsDurationMicroSeconds, err := meter.Int64Histogram("http_requests_duration_micro_seconds")
	if err != nil {
		return xerrors.Errorf("failed to create histogram: %w", err)
	}
	s.comparisons, err = meter.Int64Counter("snapshot_comparisons")
	if err != nil {
		return xerrors.Errorf("failed to create counter: %w", err)
	}

	logger, err := logging.New(os.Stderr, Debug)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	mux := myhttp.NewServerMux(logger, httpRequestsDurationMicroSeconds)

	mux.HandleFuncWithMiddleware("POST /compare", s.handleCompare)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(http.StatusText(http.StatusOK)))
	})

	mux.Handle("GET /metrics", promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer, promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}),
	))

	if Debug {
		mux.HandleFunc("GET /debug/pprof/", pprof.Index)
		mux.HandleFunc("GET /debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("GET /debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("GET /debug/pprof/trace", pprof.Trace)
		mux.HandleFunc("GET /debug/pprof/profile", pyroscopepprof.Profile)
	}

	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return xerrors.Errorf("failed to listen on address %s: %w", s.address, err)
	}

	server := &http.Server{
		Handler: mux,
	}
	server.SetKeepAlivesEnabled(s.keepAlive)

	go func() {
		if err := server.Serve(netutil.LimitListener(listener, s.maxConnections)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to serve HTTP", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit
	time.Sleep(s.lameduck)

	ctx, cancel := context.WithTimeout(ctx, s.terminationGracePeriod)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return xerrors.Errorf("failed to shutdown server: %w", err)
	}

	if err := traceProvider.Shutdown(ctx); err != nil {
		return xerrors.Errorf("failed to shutdown trace provider: %w", err)
	}

	if err := profiler.Stop(); err != nil {
		return xerrors.Errorf("failed to shutdown profiler: %w", err)
	}

	return nil
}

type CompareResponse struct {
	Match      bool                  `json:"match"`
	Kind       compare.Kind          `json:"kind"`
	Message    string                `json:"message,omitempty"`
	DiffData   string                `json:"diffData,omitempty"`
	DiffAmount float64               `json:"diffAmount"`
	Regions    []diffimage.Rectangle `json:"regions,omitempty"`
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	logger := myhttp.Logger(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	p, err := parsePrecision(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// The comparator already renders the difference image; only the
	// rectangle format needs its own differ.
	var differ diffimage.Differ
	switch format := r.FormValue("format"); format {
	case "", "difference":
	case "rectangle":
		differ = diffimage.NewRectangleDiff()
	default:
		http.Error(w, "unknown format: "+format, http.StatusBadRequest)
		return
	}

	scale := 1.0
	if v := r.FormValue("scale"); v != "" {
		if scale, err = strconv.ParseFloat(v, 64); err != nil || scale <= 0 {
			http.Error(w, "invalid scale: "+v, http.StatusBadRequest)
			return
		}
	}

	referenceData, err := readFormFile(r, "reference")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	candidateData, err := readFormFile(r, "candidate")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	// Undecodable uploads become nil bitmaps so the comparator reports them.
	reference := decodeBitmap(referenceData, scale)
	candidate := decodeBitmap(candidateData, scale)

	result := s.comparator.Compare(reference, candidate, p)
	if s.comparisons != nil {
		s.comparisons.Add(r.Context(), 1, metric.WithAttributes(attribute.Key("kind").String(string(result.Kind))))
	}

	response := CompareResponse{
		Match:   result.Match(),
		Kind:    result.Kind,
		Message: result.Message,
	}
	if !result.Match() {
		logger.Info("snapshot mismatch", "kind", result.Kind, "message", result.Message)

		diffImage, diffAmount := result.Diff, result.DiffAmount
		if differ != nil {
			diffResult := differ.Calculate(reference, candidate)
			diffImage, diffAmount = diffResult.Image, diffResult.DiffAmount
		}
		response.DiffAmount = diffAmount
		if result.Kind == compare.KindContentMismatch {
			response.Regions = diffimage.NewRegionFinder().Find(reference, candidate)
		}
		if diffImage != nil && !diffImage.IsEmpty() {
			data, err := codec.PNG.Encode(diffImage)
			if err != nil {
				logger.Error("failed to encode diff image", "error", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			response.DiffData = base64.StdEncoding.EncodeToString(data)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func parsePrecision(r *http.Request) (compare.Precision, error) {
	p := compare.DefaultPrecision()
	if v := r.FormValue("precision"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, xerrors.Errorf("invalid precision: %s", v)
		}
		p.Precision = f
	}
	if v := r.FormValue("perceptualPrecision"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, xerrors.Errorf("invalid perceptualPrecision: %s", v)
		}
		p.PerceptualPrecision = f
	}
	return p, p.Validate()
}

func readFormFile(r *http.Request, name string) ([]byte, error) {
	file, _, err := r.FormFile(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

func decodeBitmap(data []byte, scale float64) *bitmap.Bitmap {
	for _, c := range []codec.Codec{codec.PNG, codec.TIFF, codec.BMP} {
		if b, err := c.Decode(data, scale); err == nil {
			return b
		}
	}
	return nil
}

func main() {
	if err := env.Load(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}

	ctx := context.Background()

	server := NewServer()
	if err := server.Start(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
