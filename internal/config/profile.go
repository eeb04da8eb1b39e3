package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/flow"
	"github.com/BTreeMap/LeadPipe/internal/followup"
	"github.com/BTreeMap/LeadPipe/internal/genai"
	"github.com/spf13/viper"
)

// DefaultBusinessName is used when the profile names no business.
const DefaultBusinessName = "Тестовый Бизнес"

// Profile describes the business the assistant speaks for and its conversation tuning.
type Profile struct {
	BusinessName        string
	BusinessDescription string
	Materials           flow.Materials
	FreeChatThreshold   int
	HistoryLimit        int
	Timezone            string
	FirstFollowUp       time.Duration
	SecondFollowUp      time.Duration
}

func setProfileDefaults(v *viper.Viper) {
	v.SetDefault("business.name", DefaultBusinessName)
	v.SetDefault("business.description", "")
	v.SetDefault("materials.portfolio_url", "")
	v.SetDefault("materials.cases_url", "")
	v.SetDefault("materials.presentation_url", "")
	v.SetDefault("conversation.free_chat_threshold", flow.DefaultFreeChatThreshold)
	v.SetDefault("conversation.history_limit", flow.DefaultHistoryLimit)
	v.SetDefault("conversation.timezone", flow.DefaultTimezone)
	v.SetDefault("followup.first_after", followup.DefaultFirstAfter)
	v.SetDefault("followup.second_after", followup.DefaultSecondAfter)
}

// LoadProfile reads the YAML profile at path. An empty path or a missing file yields the
// defaults. Every key can be overridden by LEADPIPE_<SECTION>_<KEY>, e.g. LEADPIPE_BUSINESS_NAME.
func LoadProfile(path string) (Profile, error) {
	v := viper.New()
	setProfileDefaults(v)
	v.SetEnvPrefix("LEADPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if filepath.Ext(path) == "" {
				v.SetConfigType("yaml")
			}
			if err := v.ReadInConfig(); err != nil {
				return Profile{}, fmt.Errorf("reading profile %s: %w", path, err)
			}
			slog.Debug("config.LoadProfile: profile loaded", "path", path)
		} else if os.IsNotExist(err) {
			slog.Warn("config.LoadProfile: profile not found, using defaults", "path", path)
		} else {
			return Profile{}, fmt.Errorf("stat profile %s: %w", path, err)
		}
	}

	p := Profile{
		BusinessName:        v.GetString("business.name"),
		BusinessDescription: v.GetString("business.description"),
		Materials: flow.Materials{
			PortfolioURL:    v.GetString("materials.portfolio_url"),
			CasesURL:        v.GetString("materials.cases_url"),
			PresentationURL: v.GetString("materials.presentation_url"),
		},
		FreeChatThreshold: v.GetInt("conversation.free_chat_threshold"),
		HistoryLimit:      v.GetInt("conversation.history_limit"),
		Timezone:          v.GetString("conversation.timezone"),
		FirstFollowUp:     v.GetDuration("followup.first_after"),
		SecondFollowUp:    v.GetDuration("followup.second_after"),
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Validate rejects tunings the conversation engine cannot honor.
func (p Profile) Validate() error {
	if p.FreeChatThreshold <= 0 {
		return fmt.Errorf("conversation.free_chat_threshold must be positive, got %d", p.FreeChatThreshold)
	}
	if p.HistoryLimit <= 0 {
		return fmt.Errorf("conversation.history_limit must be positive, got %d", p.HistoryLimit)
	}
	if p.FirstFollowUp <= 0 || p.SecondFollowUp <= p.FirstFollowUp {
		return fmt.Errorf("followup.second_after (%s) must be after followup.first_after (%s)", p.SecondFollowUp, p.FirstFollowUp)
	}
	return nil
}

// FlowConfig returns the conversation engine settings.
func (p Profile) FlowConfig() flow.Config {
	return flow.Config{
		BusinessName:        p.BusinessName,
		BusinessDescription: p.BusinessDescription,
		Materials:           p.Materials,
		FreeChatThreshold:   p.FreeChatThreshold,
		HistoryLimit:        p.HistoryLimit,
		Location:            flow.LoadLocation(p.Timezone),
	}
}

// Business returns the business description used in model prompts.
func (p Profile) Business() genai.Business {
	return genai.Business{Name: p.BusinessName, Description: p.BusinessDescription}
}

// FollowUpConfig returns the reminder delays.
func (p Profile) FollowUpConfig() followup.Config {
	return followup.Config{FirstAfter: p.FirstFollowUp, SecondAfter: p.SecondFollowUp}
}
