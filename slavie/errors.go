package slavie

import (
	"errors"
	"fmt"
)

// Denial reasons. These are expected outcomes of a relationship
// request, and are returned wrapped in a [*DenialError]. Anything
// else returned by [Engine] methods is an infrastructure error.
var (
	ErrSelfReference  = errors.New("cannot target yourself")
	ErrAlreadyMarried = errors.New("already married")

	// ErrAlreadyProposed is returned when the proposer already has an
	// outstanding proposal, or the recipient already has one pending
	// from someone else. DenialError.Party says which.
	ErrAlreadyProposed = errors.New("already has a pending proposal")
	ErrRelatedParties  = errors.New("parties are related")
	ErrNotFound        = errors.New("not found")
	ErrNonHumanActor   = errors.New("bots can't take part in relationships")

	// ErrNotRecipient is returned when someone other than the recipient
	// clicks an accept/decline button.
	ErrNotRecipient            = errors.New("not the recipient")
	ErrSpouseAdoption          = errors.New("cannot adopt your spouse")
	ErrChildSpouseAdoption     = errors.New("cannot adopt your child's spouse")
	ErrAlreadyAdoptionProposed = errors.New("adoption already proposed")
	ErrAlreadyAdopted          = errors.New("already adopted")
)

// Party identifies which side of a request a denial applies to.
type Party string

const (
	PartyNone Party = ""

	// PartyProposer is the user making the request (the proposer,
	// adopter, or command user)
	PartyProposer Party = "proposer"

	// PartyRecipient is the user the request targets
	PartyRecipient Party = "recipient"
)

// RelationshipKind is the relationship a request concerns
type RelationshipKind string

const (
	KindMarriage RelationshipKind = "marriage"
	KindProposal RelationshipKind = "proposal"
	KindAdoption RelationshipKind = "adoption"

	// KindPendingAdoption is an adoption offer that hasn't been
	// accepted yet
	KindPendingAdoption RelationshipKind = "pending_adoption"
)

// DenialError is returned when a relationship request is refused.
// errors.Is matches the Reason sentinel.
type DenialError struct {
	Reason error
	Party  Party
	Kind   RelationshipKind
}

func (e *DenialError) Error() string {
	if e.Party == PartyNone {
		return fmt.Sprintf("%s denied: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s denied: %s: %s", e.Kind, e.Party, e.Reason)
}

func (e *DenialError) Unwrap() error {
	return e.Reason
}

func deny(kind RelationshipKind, reason error, party Party) *DenialError {
	return &DenialError{Reason: reason, Party: party, Kind: kind}
}

// IsDenial returns true if err is a rule denial rather than an
// infrastructure failure.
func IsDenial(err error) bool {
	var de *DenialError
	return errors.As(err, &de)
}

// denialParty returns the Party of a DenialError, or PartyNone
func denialParty(err error) Party {
	var de *DenialError
	if errors.As(err, &de) {
		return de.Party
	}
	return PartyNone
}
