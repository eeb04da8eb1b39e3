package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/BTreeMap/LeadPipe/internal/twiliowhatsapp"
)

// signingClient is a Twilio client double that accepts one signature.
type signingClient struct {
	*twiliowhatsapp.MockClient
	signature string
	gotURL    string
}

func (c *signingClient) ValidateWebhook(url string, params map[string]string, signature string) bool {
	c.gotURL = url
	return signature == c.signature && params["MessageSid"] != ""
}

func webhookRequest(form url.Values, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/twilio/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if signature != "" {
		req.Header.Set("X-Twilio-Signature", signature)
	}
	return req
}

func inboundForm(body string) url.Values {
	return url.Values{
		"From":        {"whatsapp:+79990001122"},
		"Body":        {body},
		"MessageSid":  {"SM123"},
		"ProfileName": {"Иван"},
	}
}

func TestTwilioService_WebhookEmitsEvent(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	rr := httptest.NewRecorder()

	svc.WebhookHandler(rr, webhookRequest(inboundForm("Хочу сайт"), ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/xml" {
		t.Errorf("Content-Type = %q", ct)
	}
	evt := receive(t, svc.Events())
	if evt.From != "79990001122" || evt.Text != "Хочу сайт" || evt.ID != "SM123" || evt.Contact.FirstName != "Иван" {
		t.Errorf("unexpected event %+v", evt)
	}
}

func TestTwilioService_WebhookMissingFields(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	rr := httptest.NewRecorder()

	svc.WebhookHandler(rr, webhookRequest(url.Values{"From": {"whatsapp:+79990001122"}}, ""))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestTwilioService_WebhookSignature(t *testing.T) {
	client := &signingClient{MockClient: twiliowhatsapp.NewMockClient(), signature: "good"}
	svc := NewTwilioService(client, WithWebhookURL("https://leads.example.com/twilio/webhook"))

	rr := httptest.NewRecorder()
	svc.WebhookHandler(rr, webhookRequest(inboundForm("привет"), "forged"))
	if rr.Code != http.StatusForbidden {
		t.Errorf("forged signature: status = %d, want 403", rr.Code)
	}

	rr = httptest.NewRecorder()
	svc.WebhookHandler(rr, webhookRequest(inboundForm("привет"), "good"))
	if rr.Code != http.StatusOK {
		t.Errorf("valid signature: status = %d, want 200", rr.Code)
	}
	if client.gotURL != "https://leads.example.com/twilio/webhook" {
		t.Errorf("validated against %q", client.gotURL)
	}
	receive(t, svc.Events())
}

func TestTwilioService_NumberedRoundTrip(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock)

	ref, err := svc.Send(context.Background(), menuMessage("79990001122"))
	if err != nil {
		t.Fatal(err)
	}
	if len(mock.SentMessages) != 1 || !strings.HasSuffix(mock.SentMessages[0].Body, "3. Пока не знаю") {
		t.Fatalf("unexpected sent messages %+v", mock.SentMessages)
	}

	svc.WebhookHandler(httptest.NewRecorder(), webhookRequest(inboundForm("2"), ""))
	evt := receive(t, svc.Events())
	if !evt.IsCallback() || evt.Callback.Data != "budget:79990001122:high" || evt.Callback.MessageRef != ref {
		t.Errorf("unexpected event %+v", evt)
	}
}
