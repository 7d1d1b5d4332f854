// Package audio turns per-scene narration into one clip per scene. Provider
// failures never propagate: a scene that cannot be voiced gets a silent clip.
package audio

import (
	"context"
	"fmt"
	"log"
	"time"
	"unicode/utf8"

	"github.com/bobarin/codereel/internal/apperr"
	"github.com/bobarin/codereel/internal/services"
	"golang.org/x/sync/errgroup"
)

const (
	// MaxTextRunes caps the text sent to the provider for one scene.
	MaxTextRunes = 300

	DefaultConcurrency = 4
	DefaultTimeout     = 30 * time.Second

	defaultVoiceStyle = "calm, friendly teacher"
)

// Clip is the audio for one scene.
type Clip struct {
	Data        []byte
	ContentType string
	Ext         string

	// Silent is set when the clip is the substituted silence.
	Silent bool
	// Err is the synthesis failure that caused the substitution, if any.
	Err error
}

type Synthesizer struct {
	tts         services.TTSService
	voiceStyle  string
	concurrency int
	timeout     time.Duration
}

// Option customizes a Synthesizer.
type Option func(*Synthesizer)

func WithConcurrency(n int) Option {
	return func(s *Synthesizer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithVoiceStyle(style string) Option {
	return func(s *Synthesizer) {
		if style != "" {
			s.voiceStyle = style
		}
	}
}

// New creates a Synthesizer. A nil provider yields silence for every scene.
func New(tts services.TTSService, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		tts:         tts,
		voiceStyle:  defaultVoiceStyle,
		concurrency: DefaultConcurrency,
		timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize returns exactly len(texts) clips, clips[i] belonging to scene i
// regardless of completion order. An empty text is sent as a single space.
func (s *Synthesizer) Synthesize(ctx context.Context, jobID string, texts []string) []Clip {
	clips := make([]Clip, len(texts))

	// Workers never return an error, so one scene cannot cancel its siblings.
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, text := range texts {
		g.Go(func() error {
			clip, err := s.one(ctx, text)
			if err != nil {
				log.Printf("[Audio] job %s scene %03d: Warning: synthesis failed, using silence: %v", jobID, i, err)
				clip = Silence()
				clip.Err = err
			}
			clips[i] = clip
			return nil
		})
	}
	_ = g.Wait()

	return clips
}

func (s *Synthesizer) one(ctx context.Context, text string) (Clip, error) {
	if s.tts == nil {
		return Silence(), nil
	}

	text = capRunes(text, MaxTextRunes)
	if text == "" {
		text = " "
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.tts.GenerateSpeech(ctx, text, s.voiceStyle)
	if err != nil {
		return Clip{}, apperr.Wrap(apperr.KindSynthesis, "speech provider failed", err)
	}
	if resp == nil || len(resp.AudioData) == 0 {
		return Clip{}, apperr.New(apperr.KindSynthesis, "speech provider returned no audio")
	}

	contentType, ok := contentTypes[resp.Format]
	if !ok {
		return Clip{}, apperr.New(apperr.KindSynthesis, fmt.Sprintf("unsupported audio format %q", resp.Format))
	}
	return Clip{Data: resp.AudioData, ContentType: contentType, Ext: resp.Format}, nil
}

var contentTypes = map[string]string{
	"mp3": "audio/mpeg",
	"wav": "audio/wav",
}

func capRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
