// Package ai adapts the Gemini API (google.golang.org/genai) to the
// shapes the chat engine consumes: stateful chat handles, one-shot
// search-grounded generation, image and video generation, and title
// generation. A shared rate limiter paces all outbound calls. The
// adapter never retries; failure policy belongs to the caller.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/hamzamsaid/hamzawi/internal/config"
	"github.com/hamzamsaid/hamzawi/internal/log"
	"github.com/hamzamsaid/hamzawi/internal/store"
)

// Client wraps a genai client configured for the Gemini API backend.
// Safe for concurrent use.
type Client struct {
	genai   *genai.Client
	limiter *rate.Limiter
	logger  log.Logger

	chatModel     string
	titleModel    string
	imageModel    string
	videoModel    string
	maxHistory    int
	imageMIMEType string
	imageAspect   string
}

// New creates a Client from a validated config.
func New(ctx context.Context, cfg *config.Config, logger log.Logger) (*Client, error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = log.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &Client{
		genai:         client,
		limiter:       rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.RequestBurst),
		logger:        logger,
		chatModel:     cfg.ChatModel,
		titleModel:    cfg.TitleModel,
		imageModel:    cfg.ImageModel,
		videoModel:    cfg.VideoModel,
		maxHistory:    cfg.MaxHistoryMessages,
		imageMIMEType: "image/jpeg",
		imageAspect:   "1:1",
	}, nil
}

// Handle is a stateful chat bound to one persona and one conversation.
// It accumulates turns internally; callers do not replay history between
// sends.
type Handle struct {
	chat    *genai.Chat
	limiter *rate.Limiter
}

// Chat creates a chat handle with the persona prompt as system
// instruction. History replays role and text only; media parts in past
// messages are dropped (they are render artifacts, not conversation).
func (c *Client) Chat(ctx context.Context, systemPrompt string, history []store.Message) (*Handle, error) {
	var cfg *genai.GenerateContentConfig
	if systemPrompt != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		}
	}

	chat, err := c.genai.Chats.Create(ctx, c.chatModel, cfg, historyContents(history, c.maxHistory))
	if err != nil {
		return nil, fmt.Errorf("creating chat: %w", err)
	}
	return &Handle{chat: chat, limiter: c.limiter}, nil
}

// SendStream sends parts and streams the reply through onChunk,
// returning the accumulated text. A non-nil error from onChunk aborts
// the stream.
func (h *Handle) SendStream(ctx context.Context, parts []store.Part, onChunk func(text string) error) (string, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return "", err
	}

	var acc strings.Builder
	for resp, err := range h.chat.SendMessageStream(ctx, requestParts(parts)...) {
		if err != nil {
			return "", fmt.Errorf("streaming reply: %w", err)
		}
		chunk := resp.Text()
		if chunk == "" {
			continue
		}
		acc.WriteString(chunk)
		if onChunk != nil {
			if cbErr := onChunk(chunk); cbErr != nil {
				return "", cbErr
			}
		}
	}
	return acc.String(), nil
}

// Send sends parts and waits for the complete reply.
func (h *Handle) Send(ctx context.Context, parts []store.Part) (string, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return "", err
	}

	resp, err := h.chat.SendMessage(ctx, requestParts(parts)...)
	if err != nil {
		return "", fmt.Errorf("sending message: %w", err)
	}
	return resp.Text(), nil
}

// GenerateWithSearch answers one prompt grounded by Google Search.
// Stateless: the search path does not go through a chat handle, so it
// carries no conversation history.
func (c *Client) GenerateWithSearch(ctx context.Context, systemPrompt string, parts []store.Part) (string, []store.Citation, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", nil, err
	}

	cfg := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	resp, err := c.genai.Models.GenerateContent(ctx, c.chatModel, userContent(parts), cfg)
	if err != nil {
		return "", nil, fmt.Errorf("search-grounded generation: %w", err)
	}
	return resp.Text(), extractCitations(resp), nil
}

// GenerateTitle produces a short session title from the first prompt.
func (c *Client) GenerateTitle(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	instruction := fmt.Sprintf(
		"أنشئ عنوانًا قصيرًا وموجزًا (3-5 كلمات) من هذا الطلب: %q. قم بالرد بالعنوان فقط.",
		prompt)

	resp, err := c.genai.Models.GenerateContent(ctx, c.titleModel,
		genai.Text(instruction), nil)
	if err != nil {
		return "", fmt.Errorf("generating title: %w", err)
	}

	title := cleanTitle(resp.Text())
	if title == "" {
		return "", errors.New("model returned an empty title")
	}
	return title, nil
}

// historyContents converts stored messages into genai history, keeping
// role and text only and at most limit most-recent messages.
func historyContents(history []store.Message, limit int) []*genai.Content {
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}

	var contents []*genai.Content
	for _, m := range history {
		text := messageText(m)
		if text == "" {
			continue
		}
		role := genai.Role(genai.RoleModel)
		if m.Role == store.RoleUser {
			role = genai.RoleUser
		}
		contents = append(contents, genai.NewContentFromText(text, role))
	}
	return contents
}

// messageText joins the text parts of a message.
func messageText(m store.Message) string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

// requestParts converts outgoing parts to genai request parts. Part
// order is preserved; callers place inline images before text.
func requestParts(parts []store.Part) []genai.Part {
	out := make([]genai.Part, 0, len(parts))
	for _, p := range parts {
		switch {
		case len(p.ImageData) > 0:
			out = append(out, genai.Part{InlineData: &genai.Blob{
				MIMEType: p.ImageMIME,
				Data:     p.ImageData,
			}})
		case p.Text != "":
			out = append(out, genai.Part{Text: p.Text})
		}
	}
	return out
}

// userContent wraps request parts as a single user content slice.
func userContent(parts []store.Part) []*genai.Content {
	converted := requestParts(parts)
	ptrs := make([]*genai.Part, len(converted))
	for i := range converted {
		ptrs[i] = &converted[i]
	}
	return []*genai.Content{genai.NewContentFromParts(ptrs, genai.RoleUser)}
}

// extractCitations maps grounding chunks to citations, dropping entries
// without a web URI.
func extractCitations(resp *genai.GenerateContentResponse) []store.Citation {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	meta := resp.Candidates[0].GroundingMetadata
	if meta == nil {
		return nil
	}

	var citations []store.Citation
	for _, chunk := range meta.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		citations = append(citations, store.Citation{
			URI:   chunk.Web.URI,
			Title: chunk.Web.Title,
		})
	}
	return citations
}

// cleanTitle strips whitespace, quotes and a trailing period from a
// model-produced title.
func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'«»`)
	s = strings.TrimSuffix(s, ".")
	return strings.TrimSpace(s)
}
