package classify

import (
	"strings"

	"github.com/joshsymonds/mailsort/internal/mail"
)

const (
	NameSocialMedia    = "general_social_media"
	NameLinkedInSender = "linkedin_sender"
	NameHasPDF         = "has_pdf_attachment"

	MIMETypePDF = "application/pdf"
)

// socialPlatforms are matched as substrings of the whole sender address, so
// "notify@facebookmail.com" and "noreply@medium.com" both count.
var socialPlatforms = []string{
	"facebook",
	"instagram",
	"twitter",
	"snapchat",
	"pinterest",
	"tiktok",
	"youtube",
	"reddit",
	"discord",
	"whatsapp",
	"telegram",
	"signal",
	"linkedin",
	"twitch",
	"clubhouse",
	"medium",
	"substack",
}

// SocialMedia matches senders whose address mentions a known social platform.
func SocialMedia() Classifier {
	return Func(NameSocialMedia, func(msg mail.Message) bool {
		return containsAny(msg.From, socialPlatforms)
	})
}

// LinkedInSender matches addresses at the linkedin.com domain. It is stricter than the
// "linkedin" substring used by SocialMedia and by the social rule's read-state choice.
func LinkedInSender() Classifier {
	return Func(NameLinkedInSender, func(msg mail.Message) bool {
		return strings.Contains(strings.ToLower(msg.From), "@linkedin.com")
	})
}

// HasAttachment matches messages with at least one attachment of mimeType.
func HasAttachment(name, mimeType string) Classifier {
	return Func(name, func(msg mail.Message) bool {
		return msg.HasAttachmentType(mimeType)
	})
}

func containsAny(s string, values []string) bool {
	s = strings.ToLower(s)
	for _, v := range values {
		if strings.Contains(s, v) {
			return true
		}
	}
	return false
}
