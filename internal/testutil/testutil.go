// Package testutil provides common test doubles and helpers for LeadPipe tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/genai"
	"github.com/BTreeMap/LeadPipe/internal/models"
)

// RecordingSender records everything the conversation engine sends.
// It is safe for concurrent use.
type RecordingSender struct {
	mu        sync.Mutex
	next      int
	Sent      []models.OutgoingMessage
	Removed   []string // message refs whose buttons were removed
	Answered  []string // callback ids that were acknowledged
	FailSends bool
}

// NewRecordingSender creates an empty RecordingSender.
func NewRecordingSender() *RecordingSender {
	return &RecordingSender{}
}

// Send records msg and returns a sequential message ref.
func (s *RecordingSender) Send(ctx context.Context, msg models.OutgoingMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSends {
		return "", fmt.Errorf("send to %s failed", msg.To)
	}
	s.next++
	s.Sent = append(s.Sent, msg)
	return strconv.Itoa(s.next), nil
}

// RemoveButtons records the message ref.
func (s *RecordingSender) RemoveButtons(ctx context.Context, to, messageRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Removed = append(s.Removed, messageRef)
	return nil
}

// AnswerCallback records the callback id.
func (s *RecordingSender) AnswerCallback(ctx context.Context, callbackID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Answered = append(s.Answered, callbackID)
	return nil
}

// Messages returns a copy of the sent messages.
func (s *RecordingSender) Messages() []models.OutgoingMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.OutgoingMessage(nil), s.Sent...)
}

// Last returns the last sent message, or the zero value.
func (s *RecordingSender) Last() models.OutgoingMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Sent) == 0 {
		return models.OutgoingMessage{}
	}
	return s.Sent[len(s.Sent)-1]
}

// Reset forgets recorded messages.
func (s *RecordingSender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sent = nil
	s.Removed = nil
	s.Answered = nil
}

// ScriptedAssistant returns canned assistant results.
type ScriptedAssistant struct {
	mu          sync.Mutex
	Decision    genai.Decision
	RespondErr  error
	MeetingTime time.Time
	MeetingErr  error
	Prompts     []string // texts passed to Respond
	Histories   [][]models.ConversationMessage
}

// Respond records the call and returns the scripted decision.
func (a *ScriptedAssistant) Respond(ctx context.Context, p models.Prospect, history []models.ConversationMessage, text string) (genai.Decision, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Prompts = append(a.Prompts, text)
	a.Histories = append(a.Histories, history)
	if a.RespondErr != nil {
		return genai.Decision{}, a.RespondErr
	}
	d := a.Decision
	if d.Tier == "" {
		d.Tier = p.Tier
	}
	if d.Action == "" {
		d.Action = genai.ActionContinue
	}
	return d, nil
}

// ExtractMeetingTime returns the scripted meeting time.
func (a *ScriptedAssistant) ExtractMeetingTime(ctx context.Context, text string, now time.Time, loc *time.Location) (time.Time, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.MeetingErr != nil {
		return time.Time{}, a.MeetingErr
	}
	return a.MeetingTime, nil
}

// Summarize returns a fixed summary.
func (a *ScriptedAssistant) Summarize(ctx context.Context, p models.Prospect) (string, error) {
	return "Резюме: " + p.DisplayName(), nil
}

// TB is the subset of testing.TB the assertion helpers need.
type TB interface {
	Helper()
	Errorf(format string, args ...interface{})
	Error(args ...interface{})
	Fatalf(format string, args ...interface{})
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t TB, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}
