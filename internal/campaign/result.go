package campaign

import (
	"github.com/ignite/campaignsync/internal/audience"
)

// Phase is the lifecycle state derived from an audience's settings.
type Phase string

const (
	PhaseUnmanaged             Phase = "UNMANAGED"
	PhaseDrafting              Phase = "DRAFTING"
	PhaseScheduled             Phase = "SCHEDULED"
	PhaseSentPendingReschedule Phase = "SENT_PENDING_RESCHEDULE"
)

// PhaseOf derives the phase. SENT_PENDING_RESCHEDULE is never derived; it
// only appears on a send confirmation that did not reschedule.
func PhaseOf(s *audience.Settings) Phase {
	switch {
	case s.State != audience.StateActive:
		return PhaseUnmanaged
	case s.Campaign.RemoteID != "" && s.Campaign.EmailScheduled != nil:
		return PhaseScheduled
	default:
		return PhaseDrafting
	}
}

// Action kinds reported in a Result.
const (
	ActionDraftsCleared    = "drafts_cleared"
	ActionFolderEnsured    = "folder_ensured"
	ActionCampaignCreated  = "campaign_created"
	ActionSubjectUpdated   = "subject_updated"
	ActionTemplateCreated  = "template_created"
	ActionTemplateUpdated  = "template_updated"
	ActionTemplateAttached = "template_attached"
	ActionScheduled        = "scheduled"
	ActionUnscheduled      = "unscheduled"
	ActionRotated          = "rotated"
	ActionLinksRefreshed   = "links_refreshed"
	ActionPreviewSent      = "preview_sent"
	ActionCleanedUp        = "cleaned_up"
)

// Action is one thing a reconciler operation did.
type Action struct {
	Kind   string `json:"kind"`
	Target string `json:"target,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Result reports what an operation changed locally and remotely. Error is
// set whenever the operation also returned an error.
type Result struct {
	AudienceID string             `json:"audience_id"`
	Handled    bool               `json:"handled"`
	Phase      Phase              `json:"phase"`
	Settings   *audience.Settings `json:"audience_settings,omitempty"`
	Actions    []Action           `json:"actions"`
	Error      *ProviderError     `json:"error,omitempty"`
}

func newResult(audienceID string) *Result {
	return &Result{AudienceID: audienceID, Actions: []Action{}}
}

func (r *Result) add(kind, target, detail string) {
	r.Actions = append(r.Actions, Action{Kind: kind, Target: target, Detail: detail})
}

// Did reports whether an action of kind was recorded.
func (r *Result) Did(kind string) bool {
	for _, a := range r.Actions {
		if a.Kind == kind {
			return true
		}
	}
	return false
}

func (r *Result) fail(err error) error {
	if err != nil {
		r.Error = AsProviderError(err)
	}
	return err
}

func (r *Result) finish(s *audience.Settings) {
	r.Settings = s
	if r.Phase == "" {
		r.Phase = PhaseOf(s)
	}
}
