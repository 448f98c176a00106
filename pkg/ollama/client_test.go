package ollama

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/plate-reader/pkg/client"
)

type fakeChat struct {
	reply string
	err   error
	req   *api.ChatRequest
}

func (f *fakeChat) Chat(_ context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error {
	f.req = req
	if f.err != nil {
		return f.err
	}
	return fn(api.ChatResponse{Message: api.Message{Role: "assistant", Content: f.reply}})
}

func newTestClient(chat chatAPI) *Client {
	return &Client{client: chat, model: "llava", seed: 42}
}

func TestNewClient(t *testing.T) {
	c, err := NewClient("http://localhost:11434/api/chat", "llava")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.Name() != "ollama:llava" {
		t.Errorf("Unexpected name %q", c.Name())
	}

	if _, err := NewClient("localhost", "llava"); err == nil {
		t.Error("Expected error for URL without scheme")
	}
	if _, err := NewClient("http://localhost:11434", ""); err == nil {
		t.Error("Expected error for empty model")
	}
}

func TestRecognize(t *testing.T) {
	chat := &fakeChat{reply: "```json\n{\"fragments\":[{\"text\":\"CA\",\"confidence\":0.95},{\"text\":\"1234\",\"confidence\":0.85}]}\n```"}
	c := newTestClient(chat)

	fragments, err := c.Recognize(context.Background(), image.NewNRGBA(image.Rect(0, 0, 80, 20)))
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if len(fragments) != 2 || fragments[0].Text != "CA" || fragments[1].Text != "1234" {
		t.Errorf("Unexpected fragments %+v", fragments)
	}

	if chat.req.Model != "llava" || chat.req.Messages[0].Content != client.PlatePrompt {
		t.Errorf("Unexpected request %+v", chat.req)
	}
	if len(chat.req.Messages[0].Images) != 1 {
		t.Error("Expected the crop to be attached")
	}
	if chat.req.Options["temperature"] != 0 {
		t.Errorf("Expected temperature 0, got %v", chat.req.Options["temperature"])
	}
}

func TestRecognizeErrors(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))

	if _, err := newTestClient(&fakeChat{err: errors.New("connection refused")}).Recognize(context.Background(), img); err == nil {
		t.Error("Expected chat error to propagate")
	}
	if _, err := newTestClient(&fakeChat{}).Recognize(context.Background(), img); err == nil {
		t.Error("Expected error for empty response")
	}
	if _, err := newTestClient(&fakeChat{reply: "no plate here"}).Recognize(context.Background(), img); err == nil {
		t.Error("Expected error for non-JSON response")
	}
}
