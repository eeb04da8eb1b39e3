package flow

import (
	"errors"
	"testing"

	"pgregory.net/rapid"
)

func TestParseToken(t *testing.T) {
	tests := []struct {
		data    string
		want    Token
		wantErr bool
	}{
		{data: "task:42:website", want: Token{Domain: DomainTask, ProspectID: "42", Selector: "website"}},
		{data: "meeting:42:next_week", want: Token{Domain: DomainMeeting, ProspectID: "42", Selector: SelectNextWeek}},
		{data: "action:+79990001122:restart", want: Token{Domain: DomainAction, ProspectID: "+79990001122", Selector: SelectRestart}},
		{data: "meeting:42:a:b", want: Token{Domain: DomainMeeting, ProspectID: "42", Selector: "a:b"}},
		{data: "chat:42:send_materials:3", want: Token{Domain: DomainChat, ProspectID: "42", Selector: "send_materials:3"}},
		{data: "task:website", wantErr: true},
		{data: "poll:42:yes", wantErr: true},
		{data: "task::website", wantErr: true},
		{data: "task:42:", wantErr: true},
		{data: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			got, err := ParseToken(tt.data)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidToken) {
					t.Fatalf("ParseToken(%q) error = %v, want ErrInvalidToken", tt.data, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseToken(%q) unexpected error: %v", tt.data, err)
			}
			if got != tt.want {
				t.Errorf("ParseToken(%q) = %+v, want %+v", tt.data, got, tt.want)
			}
		})
	}
}

func TestToken_RoundTrip(t *testing.T) {
	domains := []Domain{DomainTask, DomainBudget, DomainDeadline, DomainAction, DomainMeeting, DomainChat}
	rapid.Check(t, func(rt *rapid.T) {
		tok := Token{
			Domain:     rapid.SampledFrom(domains).Draw(rt, "domain"),
			ProspectID: rapid.StringMatching(`\+?[0-9]{1,15}`).Draw(rt, "prospect"),
			Selector:   rapid.StringMatching(`[a-z0-9_:]{1,20}`).Draw(rt, "selector"),
		}
		got, err := ParseToken(tok.String())
		if err != nil {
			rt.Fatalf("ParseToken(%q): %v", tok.String(), err)
		}
		if got != tok {
			rt.Fatalf("round trip changed %+v to %+v", tok, got)
		}
	})
}

func TestChatSelector(t *testing.T) {
	sel, menu, ok := splitChatSelector(chatSelector(SelectSendMaterials, 7))
	if !ok || sel != SelectSendMaterials || menu != 7 {
		t.Errorf("splitChatSelector round trip = %q, %d, %v", sel, menu, ok)
	}
	for _, bad := range []string{"send_materials", "send_materials:x", ":3", ""} {
		if _, _, ok := splitChatSelector(bad); ok {
			t.Errorf("splitChatSelector(%q) accepted malformed selector", bad)
		}
	}
}
