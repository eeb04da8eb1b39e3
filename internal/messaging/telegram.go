package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

const (
	// DefaultTelegramBaseURL is the Telegram Bot API endpoint.
	DefaultTelegramBaseURL = "https://api.telegram.org"
	// DefaultPollTimeout is the getUpdates long-poll timeout in seconds.
	DefaultPollTimeout = 30

	maxPollBackoff = 30 * time.Second
)

// TelegramOption configures a TelegramService.
type TelegramOption func(*TelegramService)

// WithTelegramBaseURL overrides the Bot API endpoint.
func WithTelegramBaseURL(url string) TelegramOption {
	return func(s *TelegramService) { s.baseURL = strings.TrimRight(url, "/") }
}

// WithTelegramHTTPClient overrides the HTTP client.
func WithTelegramHTTPClient(c *http.Client) TelegramOption {
	return func(s *TelegramService) { s.client = c }
}

// WithPollTimeout sets the long-poll timeout in seconds.
func WithPollTimeout(seconds int) TelegramOption {
	return func(s *TelegramService) { s.pollTimeout = seconds }
}

// TelegramService implements Service over the Telegram Bot API with long polling.
type TelegramService struct {
	token       string
	baseURL     string
	client      *http.Client
	pollTimeout int
	logger      *slog.Logger
	inbox       *inbox

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTelegramService creates a TelegramService for the bot token.
func NewTelegramService(token string, opts ...TelegramOption) (*TelegramService, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram: bot token is required")
	}
	s := &TelegramService{
		token:       token,
		baseURL:     DefaultTelegramBaseURL,
		pollTimeout: DefaultPollTimeout,
		logger:      slog.Default().With("component", "telegram"),
		inbox:       newInbox("telegram"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: time.Duration(s.pollTimeout+10) * time.Second}
	}
	return s, nil
}

// Name implements Service.
func (s *TelegramService) Name() string { return "telegram" }

// Start verifies the token and starts the polling loop.
func (s *TelegramService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	if s.inbox.isStopped() {
		return ErrServiceStopped
	}

	me, err := s.getMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram: failed to verify token: %w", err)
	}
	s.logger.Info("TelegramService.Start: connected", "bot", me.Username, "id", me.ID)

	pollCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.pollLoop(pollCtx)
	return nil
}

// Stop stops polling and closes the event channel.
func (s *TelegramService) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	if s.inbox.close() {
		s.logger.Info("TelegramService.Stop: stopped")
	}
	return nil
}

// Send sends a message with an inline keyboard and returns the Telegram message id.
func (s *TelegramService) Send(ctx context.Context, msg models.OutgoingMessage) (string, error) {
	if s.inbox.isStopped() {
		return "", ErrServiceStopped
	}
	payload := map[string]any{
		"chat_id": msg.To,
		"text":    msg.Text,
	}
	if msg.HTML {
		payload["parse_mode"] = "HTML"
	}
	if msg.HasButtons() {
		payload["reply_markup"] = map[string]any{"inline_keyboard": inlineKeyboard(msg.Buttons)}
	}
	data, err := s.apiCall(ctx, "sendMessage", payload)
	if err != nil {
		return "", err
	}
	var sent tgMessage
	if err := json.Unmarshal(data, &sent); err != nil {
		return "", fmt.Errorf("telegram: parsing sendMessage: %w", err)
	}
	return strconv.FormatInt(sent.MessageID, 10), nil
}

// RemoveButtons clears the inline keyboard of a sent message.
func (s *TelegramService) RemoveButtons(ctx context.Context, to, messageRef string) error {
	id, err := strconv.ParseInt(messageRef, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid message ref %q: %w", messageRef, err)
	}
	_, err = s.apiCall(ctx, "editMessageReplyMarkup", map[string]any{
		"chat_id":      to,
		"message_id":   id,
		"reply_markup": map[string]any{"inline_keyboard": [][]tgButton{}},
	})
	return err
}

// AnswerCallback acknowledges a callback query.
func (s *TelegramService) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if callbackID == "" {
		return nil
	}
	payload := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		payload["text"] = text
	}
	_, err := s.apiCall(ctx, "answerCallbackQuery", payload)
	return err
}

// Events implements Service.
func (s *TelegramService) Events() <-chan models.InboundEvent {
	return s.inbox.events
}

func (s *TelegramService) pollLoop(ctx context.Context) {
	defer close(s.done)
	s.logger.Info("TelegramService.pollLoop: polling started")
	backoff := time.Second
	var offset int64

	for {
		if ctx.Err() != nil {
			s.logger.Info("TelegramService.pollLoop: polling stopped")
			return
		}

		updates, err := s.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			s.logger.Warn("TelegramService.pollLoop: getUpdates error", "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxPollBackoff {
				backoff = maxPollBackoff
			}
			continue
		}
		backoff = time.Second

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if evt, ok := toInboundEvent(u); ok {
				s.inbox.emit(evt)
			}
		}
	}
}

// toInboundEvent converts private-chat text messages and callback queries.
func toInboundEvent(u tgUpdate) (models.InboundEvent, bool) {
	id := "tg:" + strconv.FormatInt(u.UpdateID, 10)
	switch {
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		evt := models.InboundEvent{
			ID:       id,
			From:     strconv.FormatInt(cq.From.ID, 10),
			Contact:  cq.From.contact(),
			Callback: &models.Callback{ID: cq.ID, Data: cq.Data},
			Time:     time.Now(),
		}
		if cq.Message != nil {
			if cq.Message.Chat.Type != "private" {
				return models.InboundEvent{}, false
			}
			evt.From = strconv.FormatInt(cq.Message.Chat.ID, 10)
			evt.Callback.MessageRef = strconv.FormatInt(cq.Message.MessageID, 10)
		}
		return evt, true
	case u.Message != nil:
		m := u.Message
		if m.Chat.Type != "private" || m.Text == "" {
			return models.InboundEvent{}, false
		}
		evt := models.InboundEvent{
			ID:   id,
			From: strconv.FormatInt(m.Chat.ID, 10),
			Text: m.Text,
			Time: time.Unix(m.Date, 0),
		}
		if m.From != nil {
			evt.Contact = m.From.contact()
		}
		return evt, true
	default:
		return models.InboundEvent{}, false
	}
}

func inlineKeyboard(rows [][]models.Button) [][]tgButton {
	keyboard := make([][]tgButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		out := make([]tgButton, len(row))
		for i, b := range row {
			out[i] = tgButton{Text: b.Label, CallbackData: b.Token}
		}
		keyboard = append(keyboard, out)
	}
	return keyboard
}

// apiCall posts a JSON payload to a Bot API method and unwraps the response envelope.
func (s *TelegramService) apiCall(ctx context.Context, method string, payload map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("telegram: marshal %s: %w", method, err)
	}
	url := s.baseURL + "/bot" + s.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("telegram: creating request for %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description"`
		Result      json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("telegram: decoding %s response: %w", method, err)
	}
	if !result.OK {
		return nil, fmt.Errorf("telegram: %s: %s", method, result.Description)
	}
	return result.Result, nil
}

func (s *TelegramService) getMe(ctx context.Context) (*tgUser, error) {
	data, err := s.apiCall(ctx, "getMe", map[string]any{})
	if err != nil {
		return nil, err
	}
	var user tgUser
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("telegram: parsing getMe: %w", err)
	}
	return &user, nil
}

func (s *TelegramService) getUpdates(ctx context.Context, offset int64) ([]tgUpdate, error) {
	data, err := s.apiCall(ctx, "getUpdates", map[string]any{
		"offset":          offset,
		"limit":           100,
		"timeout":         s.pollTimeout,
		"allowed_updates": []string{"message", "callback_query"},
	})
	if err != nil {
		return nil, err
	}
	var updates []tgUpdate
	if err := json.Unmarshal(data, &updates); err != nil {
		return nil, fmt.Errorf("telegram: parsing updates: %w", err)
	}
	return updates, nil
}

type tgUpdate struct {
	UpdateID      int64            `json:"update_id"`
	Message       *tgMessage       `json:"message,omitempty"`
	CallbackQuery *tgCallbackQuery `json:"callback_query,omitempty"`
}

type tgMessage struct {
	MessageID int64   `json:"message_id"`
	From      *tgUser `json:"from,omitempty"`
	Chat      tgChat  `json:"chat"`
	Date      int64   `json:"date"`
	Text      string  `json:"text,omitempty"`
}

type tgUser struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
}

func (u tgUser) contact() models.Contact {
	return models.Contact{Username: u.Username, FirstName: u.FirstName, LastName: u.LastName}
}

type tgChat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type tgCallbackQuery struct {
	ID      string     `json:"id"`
	From    tgUser     `json:"from"`
	Message *tgMessage `json:"message,omitempty"`
	Data    string     `json:"data"`
}

type tgButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}
