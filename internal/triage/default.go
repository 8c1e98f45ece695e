package triage

import (
	"strings"

	"github.com/joshsymonds/mailsort/internal/classify"
	"github.com/joshsymonds/mailsort/internal/mail"
)

// LabelNames are the mailbox label names the default chain moves between.
type LabelNames struct {
	Inbox    string
	Spam     string
	Trash    string
	Receipts string
	Shipping string
	Social   string
	Takeaway string
}

// DefaultLabelNames uses Gmail's system names for Inbox, Spam and Trash.
func DefaultLabelNames() LabelNames {
	return LabelNames{
		Inbox:    "INBOX",
		Spam:     "SPAM",
		Trash:    "TRASH",
		Receipts: "Receipts",
		Shipping: "Shipping",
		Social:   "Social Media",
		Takeaway: "Takeaway",
	}
}

// Destinations lists every label an action of the default chain may need.
func (n LabelNames) Destinations() []string {
	return []string{n.Spam, n.Trash, n.Receipts, n.Shipping, n.Social, n.Takeaway}
}

// DefaultChain builds the standard rule table over set. Order is priority: spam wins over
// everything, and a message that is both a receipt and a shipping update is filed as a receipt.
func DefaultChain(set classify.Set, names LabelNames) (*Chain, error) {
	if _, err := set.Require(
		classify.NameSpam,
		classify.NameReviewSolicitation,
		classify.NameReceipt,
		classify.NameShippingUpdate,
		classify.NameSocialMedia,
		classify.NameLinkedInNoise,
		classify.NameTakeaway,
	); err != nil {
		return nil, err
	}

	social := Compute(func(msg mail.Message) Action {
		// Non-LinkedIn social mail is filed read; LinkedIn mail that survived the noise
		// check stays unread.
		return MoveTo(names.Inbox, names.Social, !strings.Contains(strings.ToLower(msg.From), "linkedin"))
	})

	return NewChain(
		Rule{Name: "spam", When: set.MustGet(classify.NameSpam), Then: Always(MoveTo(names.Inbox, names.Spam, true))},
		Rule{Name: "review_solicitation", When: set.MustGet(classify.NameReviewSolicitation), Then: Always(Trash())},
		Rule{Name: "receipt", When: set.MustGet(classify.NameReceipt), Then: Always(MoveTo(names.Inbox, names.Receipts, true))},
		Rule{Name: "shipping_update", When: set.MustGet(classify.NameShippingUpdate), Then: Always(MoveTo(names.Inbox, names.Shipping, false))},
		Rule{
			Name: "social_media",
			When: set.MustGet(classify.NameSocialMedia),
			Then: If(set.MustGet(classify.NameLinkedInNoise), Always(Trash()), social),
		},
		Rule{Name: "takeaway", When: set.MustGet(classify.NameTakeaway), Then: Always(MoveTo(names.Inbox, names.Takeaway, true))},
	), nil
}
