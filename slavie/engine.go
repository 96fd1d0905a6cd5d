package slavie

import (
	"context"
	"errors"
	"fmt"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"log/slog"
)

// Engine applies the marriage and adoption rules against a [Store].
//
// Can* methods only read. Accepting a proposal or an adoption offer
// re-checks the marriage, spouse and kinship rules inside the accepting
// transaction. Races between concurrent requests are settled by the
// store's unique indexes. No lock is held
// between calls, so two goroutines accepting the same proposal are
// resolved by whichever transaction deletes the proposal row first.
//
// Errors that are rule denials are returned as [*DenialError], and
// can be told apart from database failures with [IsDenial].
type Engine struct {
	store  *Store
	logger *slog.Logger
}

func NewEngine(store *Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  store,
		logger: logger.With(loggerNameKey, logComponentEngine),
	}
}

func (e *Engine) Store() *Store {
	return e.store
}

func (e *Engine) log(ctx context.Context) *slog.Logger {
	return contextLoggerOr(ctx, e.logger)
}

// transaction runs fc inside a store transaction. If fc sets *denial and
// returns nil, the transaction is committed and the denial returned.
func (e *Engine) transaction(
	ctx context.Context,
	fc func(tx *gorm.DB, denial *error) error,
) error {
	db, err := e.store.conn()
	if err != nil {
		return err
	}
	var denial error
	err = db.Transaction(
		ctx,
		func(tx *gorm.DB) error {
			return fc(tx, &denial)
		},
	)
	if err != nil {
		return err
	}
	return denial
}

// CanProposeMarriage returns nil if proposer may propose to recipient.
//
// Checks, in order: either party is a bot, proposer is recipient,
// proposer is married, recipient is married, the two are related,
// proposer already has an outstanding proposal, recipient already has
// a proposal from someone.
func (e *Engine) CanProposeMarriage(ctx context.Context, proposer, recipient User) error {
	switch {
	case recipient.Bot:
		return deny(KindProposal, ErrNonHumanActor, PartyRecipient)
	case proposer.Bot:
		return deny(KindProposal, ErrNonHumanActor, PartyProposer)
	case proposer.ID == recipient.ID:
		return deny(KindProposal, ErrSelfReference, PartyProposer)
	}

	m, err := e.store.FindMarriage(ctx, proposer.ID)
	if err != nil {
		return fmt.Errorf("error looking up proposer marriage: %w", err)
	}
	if m != nil {
		return deny(KindProposal, ErrAlreadyMarried, PartyProposer)
	}
	m, err = e.store.FindMarriage(ctx, recipient.ID)
	if err != nil {
		return fmt.Errorf("error looking up recipient marriage: %w", err)
	}
	if m != nil {
		return deny(KindProposal, ErrAlreadyMarried, PartyRecipient)
	}

	isRelated, err := e.IsRelated(ctx, proposer.ID, recipient.ID)
	if err != nil {
		return err
	}
	if isRelated {
		return deny(KindProposal, ErrRelatedParties, PartyNone)
	}

	p, err := e.store.FindProposalByProposer(ctx, proposer.ID)
	if err != nil {
		return fmt.Errorf("error looking up proposer's proposal: %w", err)
	}
	if p != nil {
		return deny(KindProposal, ErrAlreadyProposed, PartyProposer)
	}
	p, err = e.store.FindProposalByRecipient(ctx, recipient.ID)
	if err != nil {
		return fmt.Errorf("error looking up recipient's proposal: %w", err)
	}
	if p != nil {
		return deny(KindProposal, ErrAlreadyProposed, PartyRecipient)
	}
	return nil
}

// ProposeMarriage validates and records a proposal from proposer to
// recipient. If a concurrent proposal wins the race for either unique
// index, ErrAlreadyProposed is returned for the party whose slot was
// taken.
func (e *Engine) ProposeMarriage(
	ctx context.Context,
	guildID string,
	channelID string,
	proposer User,
	recipient User,
) (*Proposal, error) {
	if err := e.CanProposeMarriage(ctx, proposer, recipient); err != nil {
		return nil, err
	}
	db, err := e.store.conn()
	if err != nil {
		return nil, err
	}

	p := &Proposal{
		CustomID:    newCustomID(),
		ProposerID:  proposer.ID,
		RecipientID: recipient.ID,
		GuildID:     guildID,
		ChannelID:   channelID,
	}
	if _, err = db.Create(ctx, p); err != nil {
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("error creating proposal: %w", err)
		}
		existing, findErr := e.store.FindProposalByProposer(ctx, proposer.ID)
		if findErr != nil {
			return nil, fmt.Errorf("error looking up proposer's proposal: %w", findErr)
		}
		if existing != nil {
			return nil, deny(KindProposal, ErrAlreadyProposed, PartyProposer)
		}
		return nil, deny(KindProposal, ErrAlreadyProposed, PartyRecipient)
	}
	e.log(ctx).InfoContext(ctx, "created proposal", "proposal", p)
	return p, nil
}

// AcceptMarriage accepts the proposal made to recipientID. The proposal
// is deleted and both marriage records are created in one transaction.
// The recipient's marriage record is returned, with MarriedTo set to
// the proposer.
func (e *Engine) AcceptMarriage(ctx context.Context, recipientID string) (*Marriage, error) {
	var m *Marriage
	err := e.transaction(
		ctx,
		func(tx *gorm.DB, denial *error) error {
			p, err := first[Proposal](tx, columnProposalRecipientID+" = ?", recipientID)
			if err != nil {
				return err
			}
			if p == nil {
				return deny(KindProposal, ErrNotFound, PartyRecipient)
			}
			m, err = acceptProposal(tx, p, denial)
			return err
		},
	)
	if err != nil {
		return nil, err
	}
	e.log(ctx).InfoContext(ctx, "proposal accepted", "marriage", m)
	return m, nil
}

// AcceptMarriageByCustomID accepts the proposal identified by a button's
// custom ID. If actorID isn't the proposal's recipient, ErrNotRecipient
// is returned and nothing changes.
func (e *Engine) AcceptMarriageByCustomID(
	ctx context.Context,
	customID string,
	actorID string,
) (*Marriage, error) {
	var m *Marriage
	err := e.transaction(
		ctx,
		func(tx *gorm.DB, denial *error) error {
			p, err := first[Proposal](tx, columnProposalCustomID+" = ?", customID)
			if err != nil {
				return err
			}
			if p == nil {
				return deny(KindProposal, ErrNotFound, PartyRecipient)
			}
			if p.RecipientID != actorID {
				return deny(KindProposal, ErrNotRecipient, PartyRecipient)
			}
			m, err = acceptProposal(tx, p, denial)
			return err
		},
	)
	if err != nil {
		return nil, err
	}
	e.log(ctx).InfoContext(ctx, "proposal accepted", "marriage", m)
	return m, nil
}

// acceptProposal consumes p and marries its parties. The delete's row
// count decides which of several concurrent accepts wins. If either
// party married someone else, or the two became related, after the
// proposal was made, the stale proposal is still consumed and the
// denial is set. Other proposals made or received by the newlyweds are
// removed.
func acceptProposal(tx *gorm.DB, p *Proposal, denial *error) (*Marriage, error) {
	rv := tx.Where("id = ?", p.ID).Delete(&Proposal{})
	if rv.Error != nil {
		return nil, fmt.Errorf("error deleting proposal: %w", rv.Error)
	}
	if rv.RowsAffected != 1 {
		return nil, deny(KindProposal, ErrNotFound, PartyRecipient)
	}

	for _, party := range []struct {
		id    string
		party Party
	}{
		{p.ProposerID, PartyProposer},
		{p.RecipientID, PartyRecipient},
	} {
		existing, err := first[Marriage](tx, columnMarriageUserID+" = ?", party.id)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			*denial = deny(KindMarriage, ErrAlreadyMarried, party.party)
			return nil, nil
		}
	}

	isRelated, err := relatedTx(tx, p.ProposerID, p.RecipientID)
	if err != nil {
		return nil, err
	}
	if isRelated {
		*denial = deny(KindMarriage, ErrRelatedParties, PartyNone)
		return nil, nil
	}

	ids := []string{p.ProposerID, p.RecipientID}
	if err = tx.Where(
		columnProposalProposerID+" IN ? OR "+columnProposalRecipientID+" IN ?",
		ids,
		ids,
	).Delete(&Proposal{}).Error; err != nil {
		return nil, fmt.Errorf("error clearing proposals: %w", err)
	}

	return insertMarriagePair(tx, p.RecipientID, p.ProposerID)
}

// relatedTx is [Engine.IsRelated] read through an open transaction
func relatedTx(tx *gorm.DB, u1, u2 string) (bool, error) {
	snap, err := loadKinSnapshot(tx.Statement.Context, tx, u1, u2)
	if err != nil {
		return false, err
	}
	return related(snap, u1, u2), nil
}

// insertMarriagePair creates the mirrored marriage records for a and b,
// returning a's record.
func insertMarriagePair(tx *gorm.DB, a, b string) (*Marriage, error) {
	pair := []Marriage{
		{UserID: a, MarriedTo: b},
		{UserID: b, MarriedTo: a},
	}
	if err := tx.Create(&pair).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, deny(KindMarriage, ErrAlreadyMarried, PartyNone)
		}
		return nil, fmt.Errorf("error creating marriage: %w", err)
	}
	return &pair[0], nil
}

// DeclineMarriage deletes the proposal made to recipientID, returning it
func (e *Engine) DeclineMarriage(ctx context.Context, recipientID string) (*Proposal, error) {
	return e.declineProposal(
		ctx,
		columnProposalRecipientID+" = ?",
		recipientID,
		"",
	)
}

// DeclineMarriageByCustomID deletes the proposal identified by a
// button's custom ID, if actorID is its recipient.
func (e *Engine) DeclineMarriageByCustomID(
	ctx context.Context,
	customID string,
	actorID string,
) (*Proposal, error) {
	return e.declineProposal(
		ctx,
		columnProposalCustomID+" = ?",
		customID,
		actorID,
	)
}

func (e *Engine) declineProposal(
	ctx context.Context,
	query string,
	arg string,
	actorID string,
) (*Proposal, error) {
	var p *Proposal
	err := e.transaction(
		ctx,
		func(tx *gorm.DB, _ *error) error {
			var err error
			p, err = first[Proposal](tx, query, arg)
			if err != nil {
				return err
			}
			if p == nil {
				return deny(KindProposal, ErrNotFound, PartyRecipient)
			}
			if actorID != "" && p.RecipientID != actorID {
				return deny(KindProposal, ErrNotRecipient, PartyRecipient)
			}
			return deleteOne(tx, &Proposal{}, p.ID, KindProposal, PartyRecipient)
		},
	)
	if err != nil {
		return nil, err
	}
	e.log(ctx).InfoContext(ctx, "proposal declined", "proposal", p)
	return p, nil
}

// deleteOne deletes the record with the given primary key, returning a
// not-found denial if it was already gone.
func deleteOne(tx *gorm.DB, model any, id uint, kind RelationshipKind, party Party) error {
	rv := tx.Where("id = ?", id).Delete(model)
	if rv.Error != nil {
		return fmt.Errorf("error deleting %s: %w", kind, rv.Error)
	}
	if rv.RowsAffected == 0 {
		return deny(kind, ErrNotFound, party)
	}
	return nil
}

// CancelProposal deletes the proposal made by proposerID. Proposals
// made to proposerID are left alone.
func (e *Engine) CancelProposal(ctx context.Context, proposerID string) (*Proposal, error) {
	var p *Proposal
	err := e.transaction(
		ctx,
		func(tx *gorm.DB, _ *error) error {
			var err error
			p, err = first[Proposal](tx, columnProposalProposerID+" = ?", proposerID)
			if err != nil {
				return err
			}
			if p == nil {
				return deny(KindProposal, ErrNotFound, PartyProposer)
			}
			return deleteOne(tx, &Proposal{}, p.ID, KindProposal, PartyProposer)
		},
	)
	if err != nil {
		return nil, err
	}
	e.log(ctx).InfoContext(ctx, "proposal cancelled", "proposal", p)
	return p, nil
}

// Divorce deletes both of userID's mirrored marriage records, returning
// userID's record.
func (e *Engine) Divorce(ctx context.Context, userID string) (*Marriage, error) {
	var m *Marriage
	err := e.transaction(
		ctx,
		func(tx *gorm.DB, _ *error) error {
			var err error
			m, err = first[Marriage](tx, columnMarriageUserID+" = ?", userID)
			if err != nil {
				return err
			}
			if m == nil {
				return deny(KindMarriage, ErrNotFound, PartyProposer)
			}
			rv := tx.Where(
				columnMarriageUserID+" IN ?",
				[]string{m.UserID, m.MarriedTo},
			).Delete(&Marriage{})
			if rv.Error != nil {
				return fmt.Errorf("error deleting marriage: %w", rv.Error)
			}
			if rv.RowsAffected == 0 {
				return deny(KindMarriage, ErrNotFound, PartyProposer)
			}
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	e.log(ctx).InfoContext(ctx, "divorced", "marriage", m)
	return m, nil
}

// ForceMarry marries a and b without a proposal. Both must be
// unmarried. Any proposals either of them made or received are
// removed.
func (e *Engine) ForceMarry(ctx context.Context, a, b User) (*Marriage, error) {
	switch {
	case a.ID == b.ID:
		return nil, deny(KindMarriage, ErrSelfReference, PartyNone)
	case a.Bot:
		return nil, deny(KindMarriage, ErrNonHumanActor, PartyProposer)
	case b.Bot:
		return nil, deny(KindMarriage, ErrNonHumanActor, PartyRecipient)
	}

	var m *Marriage
	err := e.transaction(
		ctx,
		func(tx *gorm.DB, _ *error) error {
			var existing int64
			if err := tx.Model(&Marriage{}).Where(
				columnMarriageUserID+" IN ?",
				[]string{a.ID, b.ID},
			).Count(&existing).Error; err != nil {
				return err
			}
			if existing > 0 {
				return deny(KindMarriage, ErrAlreadyMarried, PartyNone)
			}
			ids := []string{a.ID, b.ID}
			if err := tx.Where(
				columnProposalProposerID+" IN ? OR "+columnProposalRecipientID+" IN ?",
				ids,
				ids,
			).Delete(&Proposal{}).Error; err != nil {
				return fmt.Errorf("error clearing proposals: %w", err)
			}
			var err error
			m, err = insertMarriagePair(tx, a.ID, b.ID)
			return err
		},
	)
	if err != nil {
		return nil, err
	}
	e.log(ctx).InfoContext(ctx, "forced marriage", "marriage", m)
	return m, nil
}

// IsRelated reports whether u1 and u2 are parent/child, siblings,
// grandparent/grandchild or aunt-uncle/niece-nephew through adoption.
func (e *Engine) IsRelated(ctx context.Context, u1, u2 string) (bool, error) {
	db, err := e.store.reader(ctx)
	if err != nil {
		return false, err
	}
	snap, err := loadKinSnapshot(ctx, db, u1, u2)
	if err != nil {
		return false, err
	}
	return related(snap, u1, u2), nil
}

// CanAdopt returns nil if adopter may offer to adopt adoptee.
//
// Checks, in order: adoptee (or adopter) is a bot, adopter is adoptee,
// adoptee is adopter's spouse, adoptee is married to one of adopter's
// children, the two are related, adopter already offered to adopt
// adoptee, adoptee already has parents.
func (e *Engine) CanAdopt(ctx context.Context, adopter, adoptee User) error {
	switch {
	case adoptee.Bot:
		return deny(KindAdoption, ErrNonHumanActor, PartyRecipient)
	case adopter.Bot:
		return deny(KindAdoption, ErrNonHumanActor, PartyProposer)
	case adopter.ID == adoptee.ID:
		return deny(KindAdoption, ErrSelfReference, PartyProposer)
	}

	spouse, err := e.store.FindMarriage(ctx, adopter.ID)
	if err != nil {
		return fmt.Errorf("error looking up adopter marriage: %w", err)
	}
	if spouse != nil && spouse.MarriedTo == adoptee.ID {
		return deny(KindAdoption, ErrSpouseAdoption, PartyRecipient)
	}

	children, err := e.store.Children(ctx, adopter.ID)
	if err != nil {
		return fmt.Errorf("error looking up children: %w", err)
	}
	if len(children) > 0 {
		childIDs := make([]string, 0, len(children))
		for _, c := range children {
			childIDs = append(childIDs, c.UserID)
		}
		db, dbErr := e.store.reader(ctx)
		if dbErr != nil {
			return dbErr
		}
		childSpouse, findErr := first[Marriage](
			db,
			columnMarriageUserID+" IN ? AND "+columnMarriageMarriedTo+" = ?",
			childIDs,
			adoptee.ID,
		)
		if findErr != nil {
			return fmt.Errorf("error looking up children's marriages: %w", findErr)
		}
		if childSpouse != nil {
			return deny(KindAdoption, ErrChildSpouseAdoption, PartyRecipient)
		}
	}

	isRelated, err := e.IsRelated(ctx, adopter.ID, adoptee.ID)
	if err != nil {
		return err
	}
	if isRelated {
		return deny(KindAdoption, ErrRelatedParties, PartyNone)
	}

	pending, err := e.store.FindPendingAdoption(ctx, adopter.ID, adoptee.ID)
	if err != nil {
		return fmt.Errorf("error looking up pending adoption: %w", err)
	}
	if pending != nil {
		return deny(KindPendingAdoption, ErrAlreadyAdoptionProposed, PartyProposer)
	}

	existing, err := e.store.FindAdoption(ctx, adoptee.ID)
	if err != nil {
		return fmt.Errorf("error looking up adoption: %w", err)
	}
	if existing != nil {
		return deny(KindAdoption, ErrAlreadyAdopted, PartyRecipient)
	}
	return nil
}

// ProposeAdoption validates and records an adoption offer
func (e *Engine) ProposeAdoption(
	ctx context.Context,
	guildID string,
	channelID string,
	adopter User,
	adoptee User,
) (*PendingAdoption, error) {
	if err := e.CanAdopt(ctx, adopter, adoptee); err != nil {
		return nil, err
	}
	db, err := e.store.conn()
	if err != nil {
		return nil, err
	}
	p := &PendingAdoption{
		CustomID:  newCustomID(),
		AdopterID: adopter.ID,
		AdopteeID: adoptee.ID,
		GuildID:   guildID,
		ChannelID: channelID,
	}
	if _, err = db.Create(ctx, p); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, deny(KindPendingAdoption, ErrAlreadyAdoptionProposed, PartyProposer)
		}
		return nil, fmt.Errorf("error creating pending adoption: %w", err)
	}
	e.log(ctx).InfoContext(ctx, "created pending adoption", "pending_adoption", p)
	return p, nil
}

// AcceptAdoption accepts adopterID's offer to adopt adopteeID. The
// adoption records the adopter's current spouse as the second parent.
func (e *Engine) AcceptAdoption(
	ctx context.Context,
	adopterID string,
	adopteeID string,
) (*Adoption, error) {
	var a *Adoption
	err := e.transaction(
		ctx,
		func(tx *gorm.DB, denial *error) error {
			p, err := first[PendingAdoption](
				tx,
				columnPendingAdoptionAdopterID+" = ? AND "+columnPendingAdoptionAdopteeID+" = ?",
				adopterID,
				adopteeID,
			)
			if err != nil {
				return err
			}
			if p == nil {
				return deny(KindPendingAdoption, ErrNotFound, PartyRecipient)
			}
			a, err = acceptPendingAdoption(tx, p, denial)
			return err
		},
	)
	if err != nil {
		return nil, err
	}
	e.log(ctx).InfoContext(ctx, "adoption accepted", "adoption", a)
	return a, nil
}

// AcceptAdoptionByCustomID accepts the adoption offer identified by a
// button's custom ID, if actorID is the adoptee.
func (e *Engine) AcceptAdoptionByCustomID(
	ctx context.Context,
	customID string,
	actorID string,
) (*Adoption, error) {
	var a *Adoption
	err := e.transaction(
		ctx,
		func(tx *gorm.DB, denial *error) error {
			p, err := first[PendingAdoption](
				tx,
				columnPendingAdoptionCustomID+" = ?",
				customID,
			)
			if err != nil {
				return err
			}
			if p == nil {
				return deny(KindPendingAdoption, ErrNotFound, PartyRecipient)
			}
			if p.AdopteeID != actorID {
				return deny(KindPendingAdoption, ErrNotRecipient, PartyRecipient)
			}
			a, err = acceptPendingAdoption(tx, p, denial)
			return err
		},
	)
	if err != nil {
		return nil, err
	}
	e.log(ctx).InfoContext(ctx, "adoption accepted", "adoption", a)
	return a, nil
}

func acceptPendingAdoption(
	tx *gorm.DB,
	p *PendingAdoption,
	denial *error,
) (*Adoption, error) {
	if err := deleteOne(
		tx,
		&PendingAdoption{},
		p.ID,
		KindPendingAdoption,
		PartyRecipient,
	); err != nil {
		return nil, err
	}

	existing, err := first[Adoption](tx, columnAdoptionUserID+" = ?", p.AdopteeID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		*denial = deny(KindAdoption, ErrAlreadyAdopted, PartyRecipient)
		return nil, nil
	}

	spouse, err := first[Marriage](tx, columnMarriageUserID+" = ?", p.AdopterID)
	if err != nil {
		return nil, err
	}
	if d, e := adoptionConflict(tx, p.AdopterID, p.AdopteeID, spouse); e != nil || d != nil {
		if d != nil {
			*denial = d
		}
		return nil, e
	}

	a := &Adoption{UserID: p.AdopteeID, AdoptedBy: p.AdopterID}
	if spouse != nil {
		spouseID := spouse.MarriedTo
		a.SpouseID = &spouseID
	}

	if err = tx.Create(a).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, deny(KindAdoption, ErrAlreadyAdopted, PartyRecipient)
		}
		return nil, fmt.Errorf("error creating adoption: %w", err)
	}
	return a, nil
}

// adoptionConflict re-checks the adoption rules that can change after
// an offer is made: the adoptee became the adopter's spouse or a
// child's spouse, or the two became related.
func adoptionConflict(
	tx *gorm.DB,
	adopterID string,
	adopteeID string,
	adopterMarriage *Marriage,
) (*DenialError, error) {
	if adopterMarriage != nil && adopterMarriage.MarriedTo == adopteeID {
		return deny(KindAdoption, ErrSpouseAdoption, PartyRecipient), nil
	}

	var childIDs []string
	if err := tx.Model(&Adoption{}).Where(
		columnAdoptionAdoptedBy+" = ? OR "+columnAdoptionSpouseID+" = ?",
		adopterID,
		adopterID,
	).Pluck(columnAdoptionUserID, &childIDs).Error; err != nil {
		return nil, fmt.Errorf("error looking up children: %w", err)
	}
	if len(childIDs) > 0 {
		childSpouse, err := first[Marriage](
			tx,
			columnMarriageUserID+" IN ? AND "+columnMarriageMarriedTo+" = ?",
			childIDs,
			adopteeID,
		)
		if err != nil {
			return nil, fmt.Errorf("error looking up children's marriages: %w", err)
		}
		if childSpouse != nil {
			return deny(KindAdoption, ErrChildSpouseAdoption, PartyRecipient), nil
		}
	}

	isRelated, err := relatedTx(tx, adopterID, adopteeID)
	if err != nil {
		return nil, err
	}
	if isRelated {
		return deny(KindAdoption, ErrRelatedParties, PartyNone), nil
	}
	return nil, nil
}

// DeclineAdoption deletes adopterID's offer to adopt adopteeID
func (e *Engine) DeclineAdoption(
	ctx context.Context,
	adopterID string,
	adopteeID string,
) (*PendingAdoption, error) {
	return e.declinePendingAdoption(
		ctx,
		columnPendingAdoptionAdopterID+" = ? AND "+columnPendingAdoptionAdopteeID+" = ?",
		[]any{adopterID, adopteeID},
		"",
	)
}

// DeclineAdoptionByCustomID deletes the adoption offer identified by a
// button's custom ID, if actorID is the adoptee.
func (e *Engine) DeclineAdoptionByCustomID(
	ctx context.Context,
	customID string,
	actorID string,
) (*PendingAdoption, error) {
	return e.declinePendingAdoption(
		ctx,
		columnPendingAdoptionCustomID+" = ?",
		[]any{customID},
		actorID,
	)
}

func (e *Engine) declinePendingAdoption(
	ctx context.Context,
	query string,
	args []any,
	actorID string,
) (*PendingAdoption, error) {
	var p *PendingAdoption
	err := e.transaction(
		ctx,
		func(tx *gorm.DB, _ *error) error {
			var err error
			p, err = first[PendingAdoption](tx, query, args...)
			if err != nil {
				return err
			}
			if p == nil {
				return deny(KindPendingAdoption, ErrNotFound, PartyRecipient)
			}
			if actorID != "" && p.AdopteeID != actorID {
				return deny(KindPendingAdoption, ErrNotRecipient, PartyRecipient)
			}
			return deleteOne(tx, &PendingAdoption{}, p.ID, KindPendingAdoption, PartyRecipient)
		},
	)
	if err != nil {
		return nil, err
	}
	e.log(ctx).InfoContext(ctx, "adoption declined", "pending_adoption", p)
	return p, nil
}

// CancelAdoption deletes every pending adoption offer made by
// adopterID, returning how many were removed.
func (e *Engine) CancelAdoption(ctx context.Context, adopterID string) (int64, error) {
	db, err := e.store.conn()
	if err != nil {
		return 0, err
	}
	n, err := db.Delete(
		ctx,
		&PendingAdoption{},
		columnPendingAdoptionAdopterID+" = ?",
		adopterID,
	)
	if err != nil {
		return 0, fmt.Errorf("error deleting pending adoptions: %w", err)
	}
	if n == 0 {
		return 0, deny(KindPendingAdoption, ErrNotFound, PartyProposer)
	}
	e.log(ctx).InfoContext(ctx, "adoptions cancelled", "adopter_id", adopterID, "count", n)
	return n, nil
}

// Abandon deletes the adoption of childID, if parentID adopted them
func (e *Engine) Abandon(ctx context.Context, parentID, childID string) (*Adoption, error) {
	var a *Adoption
	err := e.transaction(
		ctx,
		func(tx *gorm.DB, _ *error) error {
			var err error
			a, err = first[Adoption](
				tx,
				columnAdoptionUserID+" = ? AND "+columnAdoptionAdoptedBy+" = ?",
				childID,
				parentID,
			)
			if err != nil {
				return err
			}
			if a == nil {
				return deny(KindAdoption, ErrNotFound, PartyRecipient)
			}
			return deleteOne(tx, &Adoption{}, a.ID, KindAdoption, PartyRecipient)
		},
	)
	if err != nil {
		return nil, err
	}
	e.log(ctx).InfoContext(ctx, "child abandoned", "adoption", a)
	return a, nil
}

// Runaway deletes childID's adoption record
func (e *Engine) Runaway(ctx context.Context, childID string) (*Adoption, error) {
	var a *Adoption
	err := e.transaction(
		ctx,
		func(tx *gorm.DB, _ *error) error {
			var err error
			a, err = first[Adoption](tx, columnAdoptionUserID+" = ?", childID)
			if err != nil {
				return err
			}
			if a == nil {
				return deny(KindAdoption, ErrNotFound, PartyProposer)
			}
			return deleteOne(tx, &Adoption{}, a.ID, KindAdoption, PartyProposer)
		},
	)
	if err != nil {
		return nil, err
	}
	e.log(ctx).InfoContext(ctx, "child ran away", "adoption", a)
	return a, nil
}

// Family returns userID's spouse, parents and children
func (e *Engine) Family(ctx context.Context, userID string) (*Family, error) {
	f := &Family{UserID: userID, Parents: []string{}, Children: []string{}}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(
		func() error {
			m, err := e.store.FindMarriage(gctx, userID)
			if err != nil {
				return fmt.Errorf("error looking up marriage: %w", err)
			}
			if m != nil {
				f.SpouseID = m.MarriedTo
			}
			return nil
		},
	)
	g.Go(
		func() error {
			a, err := e.store.FindAdoption(gctx, userID)
			if err != nil {
				return fmt.Errorf("error looking up adoption: %w", err)
			}
			if a != nil {
				f.Parents = a.Parents()
			}
			return nil
		},
	)
	g.Go(
		func() error {
			children, err := e.store.Children(gctx, userID)
			if err != nil {
				return fmt.Errorf("error looking up children: %w", err)
			}
			for _, c := range children {
				f.Children = append(f.Children, c.UserID)
			}
			return nil
		},
	)
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return f, nil
}
