package campaign

import "strings"

// Names stamped on remote resources so managed ones can be told apart from
// anything else in the account.
const (
	TitleMarker           = "(CampaignPress)"
	TestTitleMarker       = "(CampaignPress Test)"
	TestSubjectPrefix     = "[CampaignPress] "
	TemplatePrefix        = "CampaignPress-"
	PreviewTemplatePrefix = "CampaignPress-Preview-"
	WebhookPath           = "/campaignpress/mailchimp/webhook/"
)

// TemplateName is the template kept for an audience's recurring campaign.
func TemplateName(audienceID string) string {
	return TemplatePrefix + audienceID
}

// PreviewTemplateName is the throwaway template used for preview sends.
func PreviewTemplateName(audienceID string) string {
	return PreviewTemplatePrefix + audienceID
}

// CampaignTitle is the internal campaign title for subject.
func CampaignTitle(subject string, isTest bool) string {
	if isTest {
		return subject + " " + TestTitleMarker
	}
	return subject + " " + TitleMarker
}

// CampaignSubject is the subject line actually sent.
func CampaignSubject(subject string, isTest bool) string {
	if isTest {
		return TestSubjectPrefix + subject
	}
	return subject
}

// IsManagedTitle reports whether a campaign title carries either marker.
func IsManagedTitle(title string) bool {
	return strings.Contains(title, "(CampaignPress")
}

// IsManagedTemplate reports whether a template name was created here.
func IsManagedTemplate(name string) bool {
	return strings.HasPrefix(name, TemplatePrefix)
}

// WebhookURL is the callback registered with the provider for an audience.
func WebhookURL(publicURL, audienceID string) string {
	return strings.TrimRight(publicURL, "/") + WebhookPath + audienceID
}
