// Package audience holds the per-audience campaign settings record, its
// content queue, and the repository that persists both.
package audience

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/campaignsync/internal/schedule"
)

// State is the on/off switch for an audience's recurring campaign.
type State int

const (
	StateInactive State = 0
	StateActive   State = 1
)

// UnmarshalJSON accepts 0/1 as numbers, numeric strings or booleans.
func (s *State) UnmarshalJSON(data []byte) error {
	var f Flag
	if err := f.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("audience: invalid state %s", string(data))
	}
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*s = State(n)
		return nil
	}
	*s = StateInactive
	if f {
		*s = StateActive
	}
	return nil
}

func (s State) String() string {
	if s == StateActive {
		return "ACTIVE"
	}
	return "INACTIVE"
}

// Width types for the email template.
const (
	WidthFixed = "fixed"
	WidthFluid = "fluid"
)

// SettingsVersion is written into new records.
const SettingsVersion = 1.0

// DefaultSectionID names the section every audience starts with.
const DefaultSectionID = "general"

// Settings is everything stored for one audience.
type Settings struct {
	Version               float64           `json:"version"`
	State                 State             `json:"state"`
	ActiveEditorTab       string            `json:"active_editor_tab"`
	LastSendDate          *time.Time        `json:"last_send_date"`
	WebhookConfigured     Flag              `json:"webhook_configured"`
	Timezone              schedule.Timezone `json:"timezone"`
	PreviewEmailAddresses string            `json:"preview_email_addresses"`
	Queue                 Queue             `json:"queue"`
	Campaign              CampaignConfig    `json:"campaign"`
}

// CampaignConfig tracks the single remote campaign that represents an audience.
type CampaignConfig struct {
	RemoteID          string             `json:"mc_id"`
	RemoteFolderID    string             `json:"mc_folder_id"`
	EmailScheduled    *time.Time         `json:"email_scheduled"`
	EmailSubject      string             `json:"email_subject"`
	EmailFrequency    schedule.Frequency `json:"email_frequency"`
	FrequencySettings schedule.Rule      `json:"email_frequency_settings"`
	EmailTemplate     EmailTemplate      `json:"email_template"`
}

// EmailTemplate tracks the remote template and the editor's layout rows.
type EmailTemplate struct {
	RemoteID        string        `json:"mc_id"`
	RemoteName      string        `json:"mc_name"`
	WidthType       string        `json:"width_type"`
	TemplateContent []TemplateRow `json:"template_content"`
}

// Default builds the settings a new audience starts with.
func Default(tz schedule.Timezone, previewEmail string) *Settings {
	return &Settings{
		Version:               SettingsVersion,
		State:                 StateActive,
		ActiveEditorTab:       "content",
		Timezone:              tz,
		PreviewEmailAddresses: previewEmail,
		Queue: Queue{Sections: []Section{
			{ID: DefaultSectionID, Title: "General", Items: []Item{}},
		}},
		Campaign: CampaignConfig{
			EmailFrequency:    schedule.FrequencyWeekly,
			FrequencySettings: schedule.DefaultRule(),
			EmailTemplate: EmailTemplate{
				WidthType:       WidthFixed,
				TemplateContent: []TemplateRow{},
			},
		},
	}
}

// Clone returns a deep copy.
func (s *Settings) Clone() *Settings {
	data, _ := json.Marshal(s)
	var out Settings
	_ = json.Unmarshal(data, &out)
	return &out
}

// Normalize restores the record's invariants: a scheduled send needs a
// remote campaign, and template layout rows never carry queue items.
func (s *Settings) Normalize() {
	if s.Campaign.RemoteID == "" {
		s.Campaign.EmailScheduled = nil
	}
	if s.Queue.Sections == nil {
		s.Queue.Sections = []Section{}
	}
	for i := range s.Queue.Sections {
		if s.Queue.Sections[i].Items == nil {
			s.Queue.Sections[i].Items = []Item{}
		}
	}
	for i := range s.Campaign.EmailTemplate.TemplateContent {
		s.Campaign.EmailTemplate.TemplateContent[i].stripItems()
	}
	if s.Campaign.EmailTemplate.WidthType == "" {
		s.Campaign.EmailTemplate.WidthType = WidthFixed
	}
}

// ErrInvalidSettings wraps every validation failure.
var ErrInvalidSettings = errors.New("audience: invalid settings")

// Validate checks a decoded record before it is accepted.
func (s *Settings) Validate() error {
	var problems []string
	if s.State != StateActive && s.State != StateInactive {
		problems = append(problems, fmt.Sprintf("state %d is not 0 or 1", s.State))
	}
	if f := s.Campaign.EmailFrequency; f != "" && !f.Valid() {
		problems = append(problems, fmt.Sprintf("unknown email_frequency %q", f))
	}
	if w := s.Campaign.EmailTemplate.WidthType; w != "" && w != WidthFixed && w != WidthFluid {
		problems = append(problems, fmt.Sprintf("unknown width_type %q", w))
	}
	for _, d := range s.Campaign.FrequencySettings.Dates {
		if d < 1 || d > 31 {
			problems = append(problems, fmt.Sprintf("date %d out of range", d))
		}
	}
	if err := s.Queue.validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(problems, "; "))
	}
	return nil
}

// TotalContentItems counts queued items across all sections.
func (s *Settings) TotalContentItems() int {
	return s.Queue.Total()
}

// ContentID is a content item identifier. Site post ids arrive as JSON
// numbers or strings; both decode to the same value.
type ContentID string

func (id *ContentID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ContentID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("audience: invalid content id %s", string(data))
	}
	*id = ContentID(n.String())
	return nil
}

// Int returns the numeric form, or 0.
func (id ContentID) Int() int {
	n, _ := strconv.Atoi(string(id))
	return n
}

// Flag is a boolean stored historically as 0/1.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	switch strings.Trim(string(data), `"`) {
	case "1", "true":
		*f = true
	case "0", "false", "", "null":
		*f = false
	default:
		var n int
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("audience: invalid flag %s", string(data))
		}
		*f = n != 0
	}
	return nil
}
