package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Roles of a conversation turn
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// PlantProfile is the context a reply is generated for
type PlantProfile struct {
	Name        string
	Description *string
	Size        *string
	PhotoURI    *string
	AIAnalysis  *string
}

// Message is one prior conversation turn
type Message struct {
	Role     string
	Content  string
	ImageURI *string
}

// Request asks for the next assistant turn. An empty System profile means a
// one-off prompt without plant persona.
type Request struct {
	System   *PlantProfile
	Messages []Message
}

// Response is the generated text
type Response struct {
	Text string
}

// Generator produces text. Failures are returned as *ServiceError.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// GeneratorFunc adapts a function to Generator
type GeneratorFunc func(ctx context.Context, req Request) (Response, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// WithTimeout bounds every call of g by d
func WithTimeout(g Generator, d time.Duration) Generator {
	if d <= 0 {
		return g
	}
	return GeneratorFunc(func(ctx context.Context, req Request) (Response, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return g.Generate(ctx, req)
	})
}

// ConfigRequired fails every call with KindNeedsConfiguration. It stands in
// when no api key is configured.
func ConfigRequired() Generator {
	return GeneratorFunc(func(context.Context, Request) (Response, error) {
		return Response{}, &ServiceError{
			Kind: KindNeedsConfiguration,
			Err:  fmt.Errorf("no api key configured"),
		}
	})
}

// SystemPrompt describes the plant the assistant speaks as
func SystemPrompt(p PlantProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a houseplant chatting with the person who cares for you.", p.Name)
	b.WriteString(" Answer in the first person, stay friendly and brief, and give practical care advice when asked.\n")
	if p.Description != nil && *p.Description != "" {
		fmt.Fprintf(&b, "\nDescription: %s", *p.Description)
	}
	if p.Size != nil && *p.Size != "" {
		fmt.Fprintf(&b, "\nSize: %s", *p.Size)
	}
	if p.AIAnalysis != nil && *p.AIAnalysis != "" {
		fmt.Fprintf(&b, "\nPhoto Analysis: %s", *p.AIAnalysis)
	}
	return b.String()
}

// PlantTraits are the inputs of name generation
type PlantTraits struct {
	PlantType        string `json:"plantType" validate:"required,notblank"`
	Appearance       string `json:"appearance" validate:"required,notblank"`
	Personality      string `json:"personality,omitempty"`
	PhotoDescription string `json:"photoDescription,omitempty"`
	Size             string `json:"size" validate:"required,oneof=Small Medium Large"`
}

// NamePrompt asks for a single plant name
func NamePrompt(t PlantTraits) string {
	var b strings.Builder
	b.WriteString("Generate a creative and meaningful name for a plant based on these details:\n\n")
	fmt.Fprintf(&b, "Plant Type: %s\nAppearance: %s\nSize: %s", t.PlantType, t.Appearance, t.Size)
	if t.Personality != "" {
		fmt.Fprintf(&b, "\nPersonality: %s", t.Personality)
	}
	if t.PhotoDescription != "" {
		fmt.Fprintf(&b, "\nPhoto Analysis: %s", t.PhotoDescription)
	}
	b.WriteString("\n\nPlease provide just the plant name, nothing else. The name should be creative, memorable, and reflect the plant's characteristics.")
	return b.String()
}

// PhotoPrompt asks for a botanical description of an attached photo
const PhotoPrompt = "Analyze this plant photo and provide a detailed description of its appearance, including leaf shape, color, texture, size, and any notable characteristics. Focus on botanical features that would help identify or describe the plant."

// DescribePhoto builds the request for a photo description
func DescribePhoto(imageURI string) Request {
	return Request{
		Messages: []Message{{Role: RoleUser, Content: PhotoPrompt, ImageURI: &imageURI}},
	}
}
