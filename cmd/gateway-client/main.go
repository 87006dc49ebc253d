// Command gateway-client is a small CLI for the tts-gateway: it submits a
// batch of text chunks to the /generate endpoint and writes the decoded
// audio buffers to disk.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/tts-gateway/internal/audio"
	"github.com/book-expert/tts-gateway/internal/core"
)

// Flag descriptions.
const (
	flagURLDesc    = "Base URL of the tts-gateway"
	flagTextDesc   = "Single text chunk to synthesize"
	flagChunksDesc = "JSON file containing an array of text chunks"
	flagVoiceDesc  = "Voice key"
	flagOutputDesc = "Output directory for decoded audio buffers"
	flagHealthDesc = "Check gateway health and exit"
)

// Defaults.
const (
	defaultURL       = "http://localhost:8888"
	defaultOutputDir = "."
	requestTimeout   = 10 * time.Minute
	healthTimeout    = 10 * time.Second

	outputFileFormat = "chunk_%04d.f32"
	dirPermissions   = 0o750
	filePermissions  = 0o600
)

// Static errors.
var (
	errCannotSpecifyBoth  = errors.New("cannot specify both --text and --chunks")
	errEitherTextOrChunks = errors.New("either --text or --chunks must be provided")
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	url    string
	text   string
	chunks string
	voice  string
	output string
	health bool
}

func main() {
	err := run()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	flags := parseFlags()

	if flags.health {
		return checkHealth(flags.url)
	}

	chunks, err := collectChunks(flags)
	if err != nil {
		return err
	}

	resp, err := generate(flags.url, chunks, flags.voice)
	if err != nil {
		return err
	}

	err = writeBuffers(resp, flags.output)
	if err != nil {
		return err
	}

	fmt.Printf(
		"Generated %d buffers at %d Hz in %.2fs -> %s\n",
		resp.BufferCount,
		resp.SamplingRate,
		resp.ProcessingTime,
		flags.output,
	)

	return nil
}

func parseFlags() appFlags {
	var flags appFlags

	flag.StringVar(&flags.url, "url", defaultURL, flagURLDesc)
	flag.StringVar(&flags.text, "text", "", flagTextDesc)
	flag.StringVar(&flags.chunks, "chunks", "", flagChunksDesc)
	flag.StringVar(&flags.voice, "voice", core.DefaultVoice, flagVoiceDesc)
	flag.StringVar(&flags.output, "output", defaultOutputDir, flagOutputDesc)
	flag.BoolVar(&flags.health, "health", false, flagHealthDesc)
	flag.Parse()

	return flags
}

// collectChunks resolves the batch from either --text or --chunks.
func collectChunks(flags appFlags) ([]string, error) {
	if flags.text != "" && flags.chunks != "" {
		return nil, errCannotSpecifyBoth
	}

	if flags.text != "" {
		return []string{flags.text}, nil
	}

	if flags.chunks == "" {
		flag.Usage()

		return nil, errEitherTextOrChunks
	}

	data, err := os.ReadFile(flags.chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunks file: %w", err)
	}

	var chunks []string

	err = json.Unmarshal(data, &chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to parse chunks JSON: %w", err)
	}

	return chunks, nil
}

func checkHealth(baseURL string) error {
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		baseURL+"/health",
		http.NoBody,
	)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway is not healthy: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway health check returned %s", resp.Status)
	}

	fmt.Println("Gateway is healthy")

	return nil
}

func generate(baseURL string, chunks []string, voiceKey string) (*core.SynthesisResponse, error) {
	payload, err := json.Marshal(map[string]any{
		"text_chunks": chunks,
		"voice":       voiceKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		baseURL+"/generate",
		bytes.NewReader(payload),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	httpResp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach gateway at %s: %w", baseURL, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)

		return nil, fmt.Errorf(
			"gateway returned %s: %s",
			httpResp.Status,
			string(body),
		)
	}

	var resp core.SynthesisResponse

	err = json.NewDecoder(httpResp.Body).Decode(&resp)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &resp, nil
}

// writeBuffers decodes each base64 buffer and writes the raw little-endian
// float32 samples to sequentially named files in outputDir.
func writeBuffers(resp *core.SynthesisResponse, outputDir string) error {
	err := os.MkdirAll(outputDir, dirPermissions)
	if err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	for index, encoded := range resp.AudioBuffers {
		samples, decodeErr := audio.DecodeBuffer(encoded)
		if decodeErr != nil {
			return fmt.Errorf("failed to decode buffer %d: %w", index, decodeErr)
		}

		outputPath := filepath.Join(outputDir, fmt.Sprintf(outputFileFormat, index+1))

		writeErr := os.WriteFile(outputPath, audio.Bytes(samples), filePermissions)
		if writeErr != nil {
			return fmt.Errorf("failed to write %s: %w", outputPath, writeErr)
		}
	}

	return nil
}
