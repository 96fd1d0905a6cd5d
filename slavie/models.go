//nolint:lll // struct tags can't be split
package slavie

import (
	"log/slog"
)

const (
	columnMarriageUserID    = "user_id"
	columnMarriageMarriedTo = "married_to"

	columnProposalCustomID    = "custom_id"
	columnProposalProposerID  = "proposer_id"
	columnProposalRecipientID = "recipient_id"

	columnAdoptionUserID    = "user_id"
	columnAdoptionAdoptedBy = "adopted_by"
	columnAdoptionSpouseID  = "spouse_id"

	columnPendingAdoptionCustomID  = "custom_id"
	columnPendingAdoptionAdopterID = "adopter_id"
	columnPendingAdoptionAdopteeID = "adoptee_id"
)

// Marriage is one half of a mirrored pair. A marriage between A and B
// is stored as {UserID: A, MarriedTo: B} and {UserID: B, MarriedTo: A},
// which are always created and deleted in the same transaction.
type Marriage struct {
	ModelUintID
	UserID    string `json:"user_id" gorm:"not null;uniqueIndex:idx_marriages_user_id"`
	MarriedTo string `json:"married_to" gorm:"not null;index:idx_marriages_married_to"`
	CreatedAt int64  `json:"created_at" gorm:"autoCreateTime:milli"`
}

func (m Marriage) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String(columnMarriageUserID, m.UserID),
		slog.String(columnMarriageMarriedTo, m.MarriedTo),
	)
}

// Proposal is a pending marriage offer. A user may be the proposer of
// at most one proposal, and the recipient of at most one proposal.
type Proposal struct {
	ModelUintID

	// CustomID identifies the proposal from its accept/decline buttons
	CustomID    string `json:"custom_id" gorm:"not null;uniqueIndex:idx_proposals_custom_id"`
	ProposerID  string `json:"proposer_id" gorm:"not null;uniqueIndex:idx_proposals_proposer_id;uniqueIndex:idx_proposals_pair,priority:1"`
	RecipientID string `json:"recipient_id" gorm:"not null;uniqueIndex:idx_proposals_recipient_id;uniqueIndex:idx_proposals_pair,priority:2"`

	// GuildID and ChannelID are where the proposal was made
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	CreatedAt int64  `json:"created_at" gorm:"autoCreateTime:milli"`
}

func (p Proposal) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String(columnProposalCustomID, p.CustomID),
		slog.String(columnProposalProposerID, p.ProposerID),
		slog.String(columnProposalRecipientID, p.RecipientID),
	)
}

// Adoption is a parent->child edge. SpouseID is the adopter's spouse at
// the time of adoption, and is not updated if the adopter later marries
// or divorces.
type Adoption struct {
	ModelUintID
	UserID    string  `json:"user_id" gorm:"not null;uniqueIndex:idx_adoptions_user_id"`
	AdoptedBy string  `json:"adopted_by" gorm:"not null;index:idx_adoptions_adopted_by"`
	SpouseID  *string `json:"spouse_id" gorm:"index:idx_adoptions_spouse_id"`
	CreatedAt int64   `json:"created_at" gorm:"autoCreateTime:milli"`
}

// Parents returns the adopter, and the adopter's spouse if one was
// recorded.
func (a Adoption) Parents() []string {
	if a.SpouseID == nil || *a.SpouseID == "" {
		return []string{a.AdoptedBy}
	}
	return []string{a.AdoptedBy, *a.SpouseID}
}

// HasParent returns true if userID is either of the child's parents
func (a Adoption) HasParent(userID string) bool {
	if a.AdoptedBy == userID {
		return true
	}
	return a.SpouseID != nil && *a.SpouseID == userID
}

func (a Adoption) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String(columnAdoptionUserID, a.UserID),
		slog.String(columnAdoptionAdoptedBy, a.AdoptedBy),
	}
	if a.SpouseID != nil {
		attrs = append(attrs, slog.String(columnAdoptionSpouseID, *a.SpouseID))
	}
	return slog.GroupValue(attrs...)
}

// PendingAdoption is an adoption offer awaiting the adoptee's response
type PendingAdoption struct {
	ModelUintID
	CustomID  string `json:"custom_id" gorm:"not null;uniqueIndex:idx_pending_adoptions_custom_id"`
	AdopterID string `json:"adopter_id" gorm:"not null;index:idx_pending_adoptions_adopter_id;uniqueIndex:idx_pending_adoptions_pair,priority:1"`
	AdopteeID string `json:"adoptee_id" gorm:"not null;index:idx_pending_adoptions_adoptee_id;uniqueIndex:idx_pending_adoptions_pair,priority:2"`
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	CreatedAt int64  `json:"created_at" gorm:"autoCreateTime:milli"`
}

func (p PendingAdoption) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String(columnPendingAdoptionCustomID, p.CustomID),
		slog.String(columnPendingAdoptionAdopterID, p.AdopterID),
		slog.String(columnPendingAdoptionAdopteeID, p.AdopteeID),
	)
}

// Family is a user's immediate relationships
type Family struct {
	UserID   string   `json:"user_id" yaml:"user_id"`
	SpouseID string   `json:"spouse_id,omitempty" yaml:"spouse_id,omitempty"`
	Parents  []string `json:"parents" yaml:"parents"`
	Children []string `json:"children" yaml:"children"`
}
