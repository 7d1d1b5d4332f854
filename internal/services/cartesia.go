package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bobarin/codereel/internal/apperr"
)

const (
	CartesiaAPIVersion     = "2024-06-10"
	CartesiaDefaultURL     = "https://api.cartesia.ai"
	CartesiaDefaultVoiceID = "a0e99841-438c-4a64-b679-ae501e7d6091"

	cartesiaModel      = "sonic-english"
	cartesiaSampleRate = 44100
)

type CartesiaService struct {
	apiKey  string
	apiURL  string
	voiceID string
	client  *http.Client
}

var _ TTSService = (*CartesiaService)(nil)

func NewCartesiaService(apiKey, apiURL, voiceID string) *CartesiaService {
	if apiURL == "" {
		apiURL = CartesiaDefaultURL
	}
	if voiceID == "" {
		voiceID = CartesiaDefaultVoiceID
	}
	return &CartesiaService{
		apiKey:  apiKey,
		apiURL:  strings.TrimRight(apiURL, "/"),
		voiceID: voiceID,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type cartesiaRequest struct {
	ModelID      string                    `json:"model_id"`
	Transcript   string                    `json:"transcript"`
	Voice        cartesiaVoice             `json:"voice"`
	Language     string                    `json:"language,omitempty"`
	OutputFormat cartesiaOutputFormat      `json:"output_format"`
	Config       *cartesiaGenerationConfig `json:"generation_config,omitempty"`
}

type cartesiaVoice struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type cartesiaOutputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding,omitempty"`
	SampleRate int    `json:"sample_rate"`
}

type cartesiaGenerationConfig struct {
	Speed   *float64 `json:"speed,omitempty"`
	Emotion *string  `json:"emotion,omitempty"`
}

// GenerateSpeech returns 16-bit PCM WAV so clips share the silence format.
func (s *CartesiaService) GenerateSpeech(ctx context.Context, text, voiceStyle string) (*TTSResponse, error) {
	emotion := parseEmotionFromStyle(voiceStyle)
	speed := 0.9

	jsonData, err := json.Marshal(cartesiaRequest{
		ModelID:    cartesiaModel,
		Transcript: text,
		Voice:      cartesiaVoice{Mode: "id", ID: s.voiceID},
		Language:   "en",
		OutputFormat: cartesiaOutputFormat{
			Container:  "wav",
			Encoding:   "pcm_s16le",
			SampleRate: cartesiaSampleRate,
		},
		Config: &cartesiaGenerationConfig{Speed: &speed, Emotion: &emotion},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/tts/bytes", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cartesia-Version", CartesiaAPIVersion)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("cartesia returned status %d: %s", resp.StatusCode, apperr.Truncate(string(body), 300))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if len(audioData) == 0 {
		return nil, fmt.Errorf("cartesia returned empty audio")
	}

	return &TTSResponse{
		AudioData:  audioData,
		DurationMs: estimateAudioDuration(text, speed),
		Format:     "wav",
	}, nil
}

// parseEmotionFromStyle maps a free-form delivery description onto one of
// Cartesia's emotion labels.
func parseEmotionFromStyle(style string) string {
	lower := strings.ToLower(style)
	for _, m := range []struct{ keyword, emotion string }{
		{"calm", "calm"},
		{"friendly", "positivity"},
		{"energetic", "excited"},
		{"curious", "curiosity"},
		{"serious", "calm"},
	} {
		if strings.Contains(lower, m.keyword) {
			return m.emotion
		}
	}
	return "neutral"
}

// estimateAudioDuration assumes ~150 words per minute at speed 1.0.
func estimateAudioDuration(text string, speed float64) int {
	words := len(strings.Fields(text))
	if speed <= 0 {
		speed = 1.0
	}
	minutes := float64(words) / (150.0 * speed)
	return int(minutes * 60 * 1000)
}
