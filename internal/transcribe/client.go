// Package transcribe fetches speech-to-text transcripts for videos from a
// local whisper-style transcription server. The server owns audio download
// and model inference; this side only posts the video URL and reads the
// transcript back.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Transcript is one transcription result.
type Transcript struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Transcriber produces a transcript for the video at videoURL.
type Transcriber interface {
	Transcribe(ctx context.Context, videoURL string) (Transcript, error)
}

// Client talks to a transcription server over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ Transcriber = (*Client)(nil)

// New creates a Client targeting the given server base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			// Transcription covers download plus inference; the caller's
			// context bounds each request instead of a fixed timeout.
			Timeout: 0,
		},
	}
}

// IsRunning returns true if the server responds to GET /health with 200.
func (c *Client) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type transcribeRequest struct {
	URL string `json:"url"`
}

type transcribeResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Error    string `json:"error,omitempty"`
}

// Transcribe posts the video URL to the server and returns the transcript.
func (c *Client) Transcribe(ctx context.Context, videoURL string) (Transcript, error) {
	body, err := json.Marshal(transcribeRequest{URL: videoURL})
	if err != nil {
		return Transcript{}, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", bytes.NewReader(body))
	if err != nil {
		return Transcript{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Transcript{}, fmt.Errorf("requesting transcription: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Transcript{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var decoded transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Transcript{}, fmt.Errorf("decoding response: %w", err)
	}
	if decoded.Error != "" {
		return Transcript{}, fmt.Errorf("transcription failed: %s", decoded.Error)
	}
	if decoded.Text == "" {
		return Transcript{}, fmt.Errorf("transcription returned no text")
	}

	return Transcript{Text: decoded.Text, Language: decoded.Language}, nil
}
