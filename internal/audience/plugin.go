package audience

// PluginSettings is the service-wide settings record.
type PluginSettings struct {
	Version                     float64        `json:"version"`
	IsSetup                     Flag           `json:"is_setup"`
	SetupType                   string         `json:"setup_type"`
	SetupStep                   string         `json:"setup_step"`
	ActiveAudience              *ActiveAudience `json:"active_audience"`
	APIKey                      string         `json:"api_key,omitempty"`
	ToastShowScheduledCampaigns Flag           `json:"toast_show_scheduled_campaigns"`
	ShowDebug                   Flag           `json:"show_debug"`
	DefaultFromName             string         `json:"default_from_name"`
	DefaultFromEmail            string         `json:"default_from_email"`
}

// ActiveAudience is the audience the editor last worked on.
type ActiveAudience struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// DefaultPluginSettings builds a fresh record.
func DefaultPluginSettings(fromName, fromEmail, apiKey string) *PluginSettings {
	return &PluginSettings{
		Version:                     SettingsVersion,
		SetupType:                   "individual",
		SetupStep:                   "step_intro_1",
		APIKey:                      apiKey,
		ToastShowScheduledCampaigns: true,
		DefaultFromName:             fromName,
		DefaultFromEmail:            fromEmail,
	}
}

// PluginPatch is a partial update of PluginSettings.
type PluginPatch struct {
	IsSetup                     *Flag           `json:"is_setup"`
	SetupType                   *string         `json:"setup_type"`
	SetupStep                   *string         `json:"setup_step"`
	ActiveAudience              *ActiveAudience `json:"active_audience"`
	APIKey                      *string         `json:"api_key"`
	ToastShowScheduledCampaigns *Flag           `json:"toast_show_scheduled_campaigns"`
	ShowDebug                   *Flag           `json:"show_debug"`
	DefaultFromName             *string         `json:"default_from_name"`
	DefaultFromEmail            *string         `json:"default_from_email"`
}

// Apply copies every set field of p onto s.
func (p PluginPatch) Apply(s *PluginSettings) {
	if p.IsSetup != nil {
		s.IsSetup = *p.IsSetup
	}
	if p.SetupType != nil {
		s.SetupType = *p.SetupType
	}
	if p.SetupStep != nil {
		s.SetupStep = *p.SetupStep
	}
	if p.ActiveAudience != nil {
		s.ActiveAudience = p.ActiveAudience
	}
	if p.APIKey != nil {
		s.APIKey = *p.APIKey
	}
	if p.ToastShowScheduledCampaigns != nil {
		s.ToastShowScheduledCampaigns = *p.ToastShowScheduledCampaigns
	}
	if p.ShowDebug != nil {
		s.ShowDebug = *p.ShowDebug
	}
	if p.DefaultFromName != nil {
		s.DefaultFromName = *p.DefaultFromName
	}
	if p.DefaultFromEmail != nil {
		s.DefaultFromEmail = *p.DefaultFromEmail
	}
}
