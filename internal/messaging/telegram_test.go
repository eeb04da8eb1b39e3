package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBotAPI serves the Bot API methods the service uses and records their payloads.
type fakeBotAPI struct {
	mu        sync.Mutex
	calls     map[string][]map[string]any
	updates   []tgUpdate
	delivered bool
	failSend  bool
}

func newFakeBotAPI(updates ...tgUpdate) *fakeBotAPI {
	return &fakeBotAPI{calls: make(map[string][]map[string]any), updates: updates}
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	if !strings.HasPrefix(r.URL.Path, "/botTOKEN/") {
		http.NotFound(w, r)
		return
	}
	var payload map[string]any
	_ = json.NewDecoder(r.Body).Decode(&payload)

	f.mu.Lock()
	f.calls[method] = append(f.calls[method], payload)
	var result any = true
	ok := true
	switch method {
	case "getMe":
		result = tgUser{ID: 1, IsBot: true, Username: "lead_bot"}
	case "sendMessage":
		result = tgMessage{MessageID: 42, Chat: tgChat{ID: 7, Type: "private"}}
		ok = !f.failSend
	case "getUpdates":
		if f.delivered {
			f.mu.Unlock()
			select {
			case <-r.Context().Done():
			case <-time.After(20 * time.Millisecond):
			}
			writeEnvelope(w, true, []tgUpdate{})
			return
		}
		f.delivered = true
		result = f.updates
	}
	f.mu.Unlock()
	writeEnvelope(w, ok, result)
}

func writeEnvelope(w http.ResponseWriter, ok bool, result any) {
	w.Header().Set("Content-Type", "application/json")
	if !ok {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "Bad Request: chat not found"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

func (f *fakeBotAPI) payloads(method string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func newTestTelegram(t *testing.T, api *fakeBotAPI) *TelegramService {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	svc, err := NewTelegramService("TOKEN", WithTelegramBaseURL(srv.URL+"/"), WithPollTimeout(1))
	require.NoError(t, err)
	return svc
}

func TestNewTelegramService_RequiresToken(t *testing.T) {
	_, err := NewTelegramService("")
	assert.Error(t, err)
}

func TestTelegramService_Send(t *testing.T) {
	api := newFakeBotAPI()
	svc := newTestTelegram(t, api)

	ref, err := svc.Send(context.Background(), menuMessage("7"))
	require.NoError(t, err)
	assert.Equal(t, "42", ref)

	sent := api.payloads("sendMessage")
	require.Len(t, sent, 1)
	assert.Equal(t, "7", sent[0]["chat_id"])
	assert.Equal(t, "Какой у вас бюджет?", sent[0]["text"])
	assert.NotContains(t, sent[0], "parse_mode")

	markup := sent[0]["reply_markup"].(map[string]any)
	rows := markup["inline_keyboard"].([]any)
	require.Len(t, rows, 2)
	second := rows[1].([]any)
	require.Len(t, second, 2)
	assert.Equal(t, map[string]any{"text": "150 000+ ₽", "callback_data": "budget:7:high"}, second[0])
}

func TestTelegramService_SendPlainAndFailure(t *testing.T) {
	api := newFakeBotAPI()
	svc := newTestTelegram(t, api)

	_, err := svc.Send(context.Background(), models.OutgoingMessage{To: "7", Text: "<b>Привет</b>", HTML: true})
	require.NoError(t, err)
	sent := api.payloads("sendMessage")
	assert.Equal(t, "HTML", sent[0]["parse_mode"])
	assert.NotContains(t, sent[0], "reply_markup")

	api.mu.Lock()
	api.failSend = true
	api.mu.Unlock()
	_, err = svc.Send(context.Background(), models.OutgoingMessage{To: "8", Text: "Привет"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegramService_RemoveButtonsAndAnswer(t *testing.T) {
	api := newFakeBotAPI()
	svc := newTestTelegram(t, api)
	ctx := context.Background()

	require.NoError(t, svc.RemoveButtons(ctx, "7", "42"))
	edits := api.payloads("editMessageReplyMarkup")
	require.Len(t, edits, 1)
	assert.Equal(t, float64(42), edits[0]["message_id"])
	assert.Equal(t, map[string]any{"inline_keyboard": []any{}}, edits[0]["reply_markup"])

	assert.Error(t, svc.RemoveButtons(ctx, "7", "not-a-number"))

	require.NoError(t, svc.AnswerCallback(ctx, "cq1", ""))
	require.NoError(t, svc.AnswerCallback(ctx, "", ""))
	answers := api.payloads("answerCallbackQuery")
	require.Len(t, answers, 1)
	assert.Equal(t, map[string]any{"callback_query_id": "cq1"}, answers[0])
}

func TestTelegramService_PollsEvents(t *testing.T) {
	api := newFakeBotAPI(
		tgUpdate{UpdateID: 10, Message: &tgMessage{
			MessageID: 1, Date: 1766397600, Text: "/start",
			From: &tgUser{ID: 7, Username: "ivan", FirstName: "Иван"},
			Chat: tgChat{ID: 7, Type: "private"},
		}},
		tgUpdate{UpdateID: 11, Message: &tgMessage{
			MessageID: 2, Text: "всем привет",
			From: &tgUser{ID: 8}, Chat: tgChat{ID: -100, Type: "group"},
		}},
		tgUpdate{UpdateID: 12, CallbackQuery: &tgCallbackQuery{
			ID: "cq1", Data: "task:7:website", From: tgUser{ID: 7, FirstName: "Иван"},
			Message: &tgMessage{MessageID: 42, Chat: tgChat{ID: 7, Type: "private"}},
		}},
	)
	svc := newTestTelegram(t, api)

	require.NoError(t, svc.Start(context.Background()))
	text := receive(t, svc.Events())
	press := receive(t, svc.Events())
	require.Eventually(t, func() bool { return len(api.payloads("getUpdates")) >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, svc.Stop())

	assert.Equal(t, "tg:10", text.ID)
	assert.Equal(t, "7", text.From)
	assert.Equal(t, "/start", text.Text)
	assert.Equal(t, models.Contact{Username: "ivan", FirstName: "Иван"}, text.Contact)
	assert.Equal(t, int64(1766397600), text.Time.Unix())

	require.True(t, press.IsCallback())
	assert.Equal(t, "tg:12", press.ID)
	assert.Equal(t, models.Callback{ID: "cq1", Data: "task:7:website", MessageRef: "42"}, *press.Callback)

	_, open := <-svc.Events()
	assert.False(t, open, "group message must not be delivered")

	updates := api.payloads("getUpdates")
	require.GreaterOrEqual(t, len(updates), 2)
	assert.Equal(t, float64(13), updates[1]["offset"])
	assert.Equal(t, []any{"message", "callback_query"}, updates[0]["allowed_updates"])
}

func TestTelegramService_StartFailsOnBadToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, false, nil)
	}))
	defer srv.Close()
	svc, err := NewTelegramService("BAD", WithTelegramBaseURL(srv.URL))
	require.NoError(t, err)

	assert.Error(t, svc.Start(context.Background()))
	require.NoError(t, svc.Stop())
}
