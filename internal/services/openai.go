package services

import (
	"context"
	"fmt"
	"io"
	"log"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultOpenAIModel = "gpt-4o-mini"
	defaultOpenAIVoice = "alloy"
)

// OpenAIService generates JSON artifacts through chat completions in JSON mode.
type OpenAIService struct {
	client *openai.Client
	model  string
}

var _ Completer = (*OpenAIService)(nil)

func NewOpenAIService(apiKey, model string) *OpenAIService {
	return NewOpenAIServiceWithConfig(openai.DefaultConfig(apiKey), model)
}

// NewOpenAIServiceWithConfig allows pointing the client at a different base URL.
func NewOpenAIServiceWithConfig(cfg openai.ClientConfig, model string) *OpenAIService {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIService{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (s *OpenAIService) Name() string { return "OpenAI" }

func (s *OpenAIService) Complete(ctx context.Context, p Prompt) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{Role: openai.ChatMessageRoleUser, Content: p.User},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}

	content := resp.Choices[0].Message.Content
	log.Printf("[OpenAI] completion received (model=%s, %d chars)", s.model, len(content))
	return content, nil
}

// OpenAISpeech synthesizes narration through the audio speech endpoint.
type OpenAISpeech struct {
	client *openai.Client
	voice  string
}

var _ TTSService = (*OpenAISpeech)(nil)

func NewOpenAISpeech(apiKey, voice string) *OpenAISpeech {
	return NewOpenAISpeechWithConfig(openai.DefaultConfig(apiKey), voice)
}

func NewOpenAISpeechWithConfig(cfg openai.ClientConfig, voice string) *OpenAISpeech {
	if voice == "" {
		voice = defaultOpenAIVoice
	}
	return &OpenAISpeech{client: openai.NewClientWithConfig(cfg), voice: voice}
}

// GenerateSpeech ignores voiceStyle; the endpoint has no style control.
func (s *OpenAISpeech) GenerateSpeech(ctx context.Context, text, voiceStyle string) (*TTSResponse, error) {
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          openai.SpeechVoice(s.voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech request failed: %w", err)
	}
	defer resp.Close()

	audioData, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read openai speech: %w", err)
	}
	if len(audioData) == 0 {
		return nil, fmt.Errorf("openai returned empty audio")
	}

	return &TTSResponse{
		AudioData:  audioData,
		DurationMs: estimateAudioDuration(text, 1.0),
		Format:     "mp3",
	}, nil
}
