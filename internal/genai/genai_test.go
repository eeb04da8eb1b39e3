package genai

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openai/openai-go"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp   openai.ChatCompletion
	err    error
	params openai.ChatCompletionNewParams
}

func (m *mockChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	m.params = params
	return m.resp, m.err
}

func completion(content string) openai.ChatCompletion {
	return openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestComplete_Success(t *testing.T) {
	mock := &mockChatService{resp: completion("Hello World")}
	client := &Client{chat: mock, model: "test-model", temperature: 0.5, maxCompletionTokens: 100}
	out, err := client.Complete(context.Background(), []openai.ChatCompletionMessageParamUnion{openai.UserMessage("hi")})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Hello World" {
		t.Errorf("expected 'Hello World', got '%s'", out)
	}
	if string(mock.params.Model) != "test-model" {
		t.Errorf("expected model test-model, got %s", mock.params.Model)
	}
	if len(mock.params.Messages) != 1 {
		t.Errorf("expected 1 message, got %d", len(mock.params.Messages))
	}
}

func TestComplete_ServiceError(t *testing.T) {
	client := &Client{chat: &mockChatService{err: errors.New("service failure")}}
	_, err := client.Complete(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestComplete_NoChoices(t *testing.T) {
	mockResp := openai.ChatCompletion{Choices: []openai.ChatCompletionChoice{}}
	client := &Client{chat: &mockChatService{resp: mockResp}}
	_, err := client.Complete(context.Background(), nil)
	if !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("expected no choices returned error, got %v", err)
	}
}

func TestComplete_DebugLog(t *testing.T) {
	tempDir := t.TempDir()
	client := &Client{
		chat:      &mockChatService{resp: completion("Test response")},
		model:     "test-model",
		debugMode: true,
		stateDir:  tempDir,
	}
	if _, err := client.Complete(context.Background(), []openai.ChatCompletionMessageParamUnion{openai.UserMessage("hi")}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	files, err := os.ReadDir(filepath.Join(tempDir, "debug"))
	if err != nil {
		t.Fatalf("Failed to read debug directory: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected one debug file, got %d", len(files))
	}
	content, err := os.ReadFile(filepath.Join(tempDir, "debug", files[0].Name()))
	if err != nil {
		t.Fatalf("Failed to read debug file: %v", err)
	}
	var entry map[string]interface{}
	if err := json.Unmarshal(content, &entry); err != nil {
		t.Fatalf("Failed to unmarshal debug log: %v", err)
	}
	for _, field := range []string{"timestamp", "method", "model", "params", "response"} {
		if _, ok := entry[field]; !ok {
			t.Errorf("Required field '%s' missing from debug log", field)
		}
	}
}

func TestComplete_DebugDisabled(t *testing.T) {
	tempDir := t.TempDir()
	client := &Client{chat: &mockChatService{resp: completion("x")}, stateDir: tempDir}
	if _, err := client.Complete(context.Background(), nil); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "debug")); !os.IsNotExist(err) {
		t.Errorf("debug directory should not be created when debug mode is disabled")
	}
}

func TestNewClient_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewClient()
	if err == nil {
		t.Error("expected error when API key not provided, got nil")
	}
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"), WithModel("gpt-test"))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli.model != "gpt-test" {
		t.Errorf("expected model override, got %s", cli.model)
	}
	if cli.maxCompletionTokens != DefaultMaxCompletionTokens {
		t.Errorf("expected default max tokens, got %d", cli.maxCompletionTokens)
	}
}
