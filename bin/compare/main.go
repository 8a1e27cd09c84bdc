package main

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/xerrors"

	"snapshot-render/internal/bitmap"
	"snapshot-render/internal/codec"
	"snapshot-render/internal/compare"
	diffimage "snapshot-render/internal/diff/image"
	"snapshot-render/internal/env"
	"snapshot-render/internal/storage"
)

type CompareOutput struct {
	Match      bool                  `json:"match"`
	Kind       compare.Kind          `json:"kind"`
	Message    string                `json:"message,omitempty"`
	DiffPath   string                `json:"diffPath,omitempty"`
	DiffAmount float64               `json:"diffAmount"`
	Regions    []diffimage.Rectangle `json:"regions,omitempty"`
}

func main() {
	if err := env.Load(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}

	var directory string
	var format string
	var precision float64
	var perceptualPrecision float64
	var scale float64
	flag.StringVar(&directory, "directory", env.OrDefault("DIRECTORY", "/tmp"), "Output directory")
	flag.StringVar(&format, "format", env.OrDefault("FORMAT", "difference"), "Difference image format (difference or rectangle)")
	flag.Float64Var(&precision, "precision", env.OrDefault("PRECISION", 1.0), "Fraction of bytes that must match")
	flag.Float64Var(&perceptualPrecision, "perceptual-precision", env.OrDefault("PERCEPTUAL_PRECISION", 1.0), "Per-pixel perceptual precision, 1 disables perceptual matching")
	flag.Float64Var(&scale, "scale", env.OrDefault("SCALE", 1.0), "Pixels per point of both images")

	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		log.Fatalf("reference, candidate not specified")
	}

	p := compare.Precision{
		Precision:           precision,
		PerceptualPrecision: perceptualPrecision,
	}
	if err := p.Validate(); err != nil {
		log.Fatalf("Invalid precision: %v", err)
	}

	// The comparator already renders the difference image; only the
	// rectangle format needs its own differ.
	var differ diffimage.Differ
	switch format {
	case "difference":
	case "rectangle":
		differ = diffimage.NewRectangleDiff()
	default:
		log.Fatalf("Unknown diff format: %s", format)
	}

	ctx := context.Background()
	s, err := storage.NewFileStorage(ctx, storage.FileConfig{
		Directory: directory,
	})
	if err != nil {
		log.Fatalf("Failed to create storage backend: %v", err)
	}

	referencePath := args[0]
	candidatePath := args[1]

	reference, err := loadBitmap(referencePath, scale)
	if err != nil {
		log.Printf("Failed to load reference image: %v", err)
	}
	candidate, err := loadBitmap(candidatePath, scale)
	if err != nil {
		log.Printf("Failed to load candidate image: %v", err)
	}

	result := compare.NewComparator(codec.PNG).Compare(reference, candidate, p)
	output := CompareOutput{
		Match:   result.Match(),
		Kind:    result.Kind,
		Message: result.Message,
	}

	if !result.Match() {
		diffImage, diffAmount := result.Diff, result.DiffAmount
		if differ != nil {
			diffResult := differ.Calculate(reference, candidate)
			diffImage, diffAmount = diffResult.Image, diffResult.DiffAmount
		}
		output.DiffAmount = diffAmount
		if result.Kind == compare.KindContentMismatch {
			output.Regions = diffimage.NewRegionFinder().Find(reference, candidate)
		}

		if diffImage != nil && !diffImage.IsEmpty() {
			data, err := codec.PNG.Encode(diffImage)
			if err != nil {
				log.Fatalf("Failed to encode diff image: %v", err)
			}

			h := sha256.New()
			h.Write([]byte(referencePath + candidatePath))
			hash := fmt.Sprintf("%x", h.Sum(nil))[:16]
			key := fmt.Sprintf("%s/compare/%s/%s.difference.png", storage.FailuresDirectory, hash, time.Now().Format("20060102150405"))

			output.DiffPath, err = s.Put(ctx, key, data)
			if err != nil {
				log.Fatalf("Failed to save diff image: %v", err)
			}
		}
	}

	if err := json.NewEncoder(os.Stdout).Encode(output); err != nil {
		log.Fatalf("Failed to encode result: %v", err)
	}

	if !output.Match {
		os.Exit(1)
	}
}

func loadBitmap(path string, scale float64) (*bitmap.Bitmap, error) {
	c, err := codec.ForPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("failed to read %s: %w", path, err)
	}
	b, err := c.Decode(data, scale)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode %s: %w", path, err)
	}
	return b, nil
}
