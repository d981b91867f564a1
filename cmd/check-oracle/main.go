package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"time"

	"github.com/verifyai/verifyai/internal/config"
	"github.com/verifyai/verifyai/internal/detector"
)

// Connectivity probe for the model oracle: sends a small synthetic JPEG
// and reports whether a well-formed score comes back.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Model Oracle Check")
	fmt.Println("==================")

	if cfg.Oracle.Endpoint == "" {
		fmt.Println("No oracle endpoint configured.")
		fmt.Println("Set VERIFYAI_ORACLE_ENDPOINT (and VERIFYAI_ORACLE_APIKEY if the service requires auth).")
		os.Exit(1)
	}

	fmt.Printf("Endpoint: %s\n", cfg.Oracle.Endpoint)
	if cfg.Oracle.APIKey != "" {
		fmt.Println("Auth:     bearer token configured")
	} else {
		fmt.Println("Auth:     none")
	}

	probe, err := probeImage()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build probe image: %v\n", err)
		os.Exit(1)
	}

	oracle := detector.NewHTTPOracle(detector.OracleConfig{
		Endpoint: cfg.Oracle.Endpoint,
		APIKey:   cfg.Oracle.APIKey,
		Timeout:  cfg.Oracle.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Oracle.Timeout)
	defer cancel()

	start := time.Now()
	score, err := oracle.Score(ctx, probe, "image/jpeg")
	elapsed := time.Since(start)

	if err != nil {
		fmt.Printf("\nOracle check FAILED after %s: %v\n", elapsed.Round(time.Millisecond), err)
		os.Exit(1)
	}

	fmt.Printf("\nOracle responded in %s with score %.4f\n", elapsed.Round(time.Millisecond), score)
	fmt.Println("Oracle check passed.")
}

func probeImage() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
