package ai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

var ErrNotConfigured = errors.New("openai api key not configured")

type Config struct {
	APIKey        string
	Model         string
	MaxTokens     int
	Temperature   float32
	MinSlides     int
	MaxSlides     int
	DefaultSlides int
}

// Service drafts presentation content through the OpenAI chat API.
type Service struct {
	client        *openai.Client
	model         string
	maxTokens     int
	temperature   float32
	minSlides     int
	maxSlides     int
	defaultSlides int
}

func NewService(cfg Config) *Service {
	s := &Service{
		model:         cfg.Model,
		maxTokens:     cfg.MaxTokens,
		temperature:   cfg.Temperature,
		minSlides:     cfg.MinSlides,
		maxSlides:     cfg.MaxSlides,
		defaultSlides: cfg.DefaultSlides,
	}
	if cfg.APIKey != "" {
		s.client = openai.NewClient(cfg.APIKey)
	}
	return s
}

// GenerateOutline asks the model for a slide outline on the topic. The slide
// count is clamped to the configured bounds before prompting.
func (s *Service) GenerateOutline(ctx context.Context, topic string, slideCount int) (*Outline, error) {
	if s.client == nil {
		return nil, ErrNotConfigured
	}
	if slideCount <= 0 {
		slideCount = s.defaultSlides
	}
	if slideCount < s.minSlides {
		slideCount = s.minSlides
	}
	if slideCount > s.maxSlides {
		slideCount = s.maxSlides
	}

	prompt := fmt.Sprintf(
		`Draft a presentation outline on the topic %q with exactly %d slides.
Respond with JSON only, no prose, matching this shape:
{"title": "...", "slides": [{"title": "...", "bullets": ["..."], "notes": "..."}]}`,
		topic, slideCount)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a presentation-writing assistant. You output strict JSON."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	return ParseOutline(resp.Choices[0].Message.Content)
}

// CoachFeedback asks the model for short coaching notes on a practice
// transcript. Callers treat failures as best-effort.
func (s *Service) CoachFeedback(ctx context.Context, transcript string, wordsPerMinute float64, fillerCount int) (string, error) {
	if s.client == nil {
		return "", ErrNotConfigured
	}

	prompt := fmt.Sprintf(
		`A speaker rehearsed a presentation. Pace: %.0f words per minute. Filler words used: %d.
Transcript:
%s

Give three short, concrete coaching tips. Plain text, one tip per line.`,
		wordsPerMinute, fillerCount, transcript)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a public-speaking coach."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}
