package services

import "context"

// TTSResponse is one synthesized utterance.
type TTSResponse struct {
	AudioData  []byte
	DurationMs int    // estimate; providers do not report it
	Format     string // "mp3" or "wav"
}

// TTSService is implemented by every speech provider (ElevenLabs, Cartesia,
// OpenAI) so the audio stage does not depend on which one is configured.
type TTSService interface {
	// GenerateSpeech converts text to audio. voiceStyle is a free-form
	// delivery description ("calm, friendly teacher"); providers may ignore it.
	GenerateSpeech(ctx context.Context, text, voiceStyle string) (*TTSResponse, error)
}
