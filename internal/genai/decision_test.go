package genai

import (
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

func TestParse_FencedJSON(t *testing.T) {
	d := Parse("```json\n{\"response\":\"Ok\",\"status\":\"WARM\",\"action\":\"continue\"}\n```", models.TierNew)
	if d.Tier != models.TierWarm || d.Action != ActionContinue || d.Reply != "Ok" {
		t.Errorf("unexpected decision %+v", d)
	}
}

func TestParse_NonJSONKeepsRawText(t *testing.T) {
	raw := "<html>error</html>"
	d := Parse(raw, models.TierWarm)
	if d.Reply != raw || d.Tier != models.TierWarm || d.Action != ActionContinue {
		t.Errorf("unexpected decision %+v", d)
	}
}

func TestParse_UnknownTierAndAction(t *testing.T) {
	d := Parse(`{"response":"x","status":"UNKNOWN_TIER","action":"zzz"}`, models.TierNew)
	if d.Tier != models.TierNew || d.Action != ActionContinue || d.Reply != "x" {
		t.Errorf("unexpected decision %+v", d)
	}
}

func TestParse_CaseInsensitiveTier(t *testing.T) {
	d := Parse(`{"response":"hi","status":"hot","action":"schedule_meeting"}`, models.TierNew)
	if d.Tier != models.TierHot || d.Action != ActionScheduleMeeting {
		t.Errorf("unexpected decision %+v", d)
	}
}

func TestParseDecision_Variants(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		malformed bool
	}{
		{"plain object", `{"response":"a","status":"COLD","action":"send_materials"}`, false},
		{"bare fence", "```\n{\"response\":\"a\"}\n```", false},
		{"single line fence", "```json {\"response\":\"a\"}```", false},
		{"missing response", `{"status":"HOT"}`, true},
		{"response not a string", `{"response":42}`, true},
		{"array", `["response"]`, true},
		{"empty", ``, true},
		{"truncated", `{"response":"a"`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, isMalformed := ParseDecision(tt.raw).(Malformed)
			if isMalformed != tt.malformed {
				t.Errorf("ParseDecision(%q) malformed=%v, want %v", tt.raw, isMalformed, tt.malformed)
			}
		})
	}
}

func TestParseAction(t *testing.T) {
	if ParseAction(" Send_Materials ") != ActionSendMaterials {
		t.Error("expected send_materials")
	}
	if ParseAction("") != ActionContinue {
		t.Error("empty action must fall back to continue")
	}
}

func TestParseMeetingTime(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	got, err := ParseMeetingTime("```json\n{\"date\":\"2026-12-28\",\"time\":\"14:00\"}\n```", loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 12, 28, 14, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}

	for _, raw := range []string{`{"error":"no time"}`, `{"date":"2026-12-28"}`, `{"date":"28.12","time":"14:00"}`, "завтра"} {
		if _, err := ParseMeetingTime(raw, loc); !errors.Is(err, ErrUnparseableTime) {
			t.Errorf("ParseMeetingTime(%q) error = %v, want ErrUnparseableTime", raw, err)
		}
	}
}
