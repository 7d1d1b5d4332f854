package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/bobarin/codereel/internal/apperr"
	"github.com/bobarin/codereel/internal/models"
)

const (
	streamBaseURL             = "https://api.cloudflare.com/client/v4"
	DefaultStreamMaxDuration  = 7200
	DefaultStreamPlaybackTmpl = "https://watch.cloudflarestream.com/%s"
)

// StreamService creates one-time direct-upload targets on the video host so
// the renderer can upload without holding account credentials.
type StreamService struct {
	accountID string
	apiToken  string
	baseURL   string
	client    *http.Client
}

func NewStreamService(accountID, apiToken, baseURL string) *StreamService {
	if baseURL == "" {
		baseURL = streamBaseURL
	}
	return &StreamService{
		accountID: accountID,
		apiToken:  apiToken,
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

type directUploadRequest struct {
	MaxDurationSeconds int `json:"maxDurationSeconds"`
}

type directUploadResponse struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Result *struct {
		UploadURL string `json:"uploadURL"`
		UID       string `json:"uid"`
	} `json:"result"`
}

func (s *StreamService) CreateDirectUpload(ctx context.Context) (*models.UploadTarget, error) {
	body, err := json.Marshal(directUploadRequest{MaxDurationSeconds: DefaultStreamMaxDuration})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal direct upload request: %w", err)
	}

	url := fmt.Sprintf("%s/accounts/%s/stream/direct_upload", s.baseURL, s.accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create direct upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("direct upload request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stream returned status %d: %s", resp.StatusCode, apperr.Truncate(string(respBody), 300))
	}

	var parsed directUploadResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse direct upload response: %w", err)
	}
	if !parsed.Success || parsed.Result == nil || parsed.Result.UploadURL == "" {
		msg := "no upload URL"
		if len(parsed.Errors) > 0 {
			msg = parsed.Errors[0].Message
		}
		return nil, fmt.Errorf("stream direct upload failed: %s", msg)
	}

	log.Printf("[Stream] direct upload created (uid=%s)", parsed.Result.UID)
	return &models.UploadTarget{UploadURL: parsed.Result.UploadURL, UID: parsed.Result.UID}, nil
}

// PlaybackURL fills template with uid. Templates without a verb get the uid
// appended.
func PlaybackURL(template, uid string) string {
	if template == "" {
		template = DefaultStreamPlaybackTmpl
	}
	if strings.Contains(template, "%s") {
		return fmt.Sprintf(template, uid)
	}
	return strings.TrimRight(template, "/") + "/" + uid
}
