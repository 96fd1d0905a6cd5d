package slavie

import (
	"context"
	"errors"
	"fmt"
	"github.com/bwmarrin/discordgo"
)

const tenorQueryProposal = "anime proposal"

// proposalDeniedMessage renders a /marry denial. Party distinguishes
// "you" from "this person" for the married and pending checks.
func proposalDeniedMessage(recipient *User) func(error) string {
	return func(err error) string {
		party := denialParty(err)
		switch {
		case errors.Is(err, ErrNonHumanActor):
			return "You cannot propose to a bot!"
		case errors.Is(err, ErrSelfReference):
			return "You can't propose to yourself!"
		case errors.Is(err, ErrAlreadyMarried) && party == PartyRecipient:
			return "This person is already married!"
		case errors.Is(err, ErrAlreadyMarried):
			return "You are already married!"
		case errors.Is(err, ErrRelatedParties):
			return "You cannot marry your relative!"
		case errors.Is(err, ErrAlreadyProposed) && party == PartyRecipient:
			return fmt.Sprintf(
				"%s already has a pending proposal! Wait for it to be accepted or declined.",
				userMention(recipient.ID),
			)
		case errors.Is(err, ErrAlreadyProposed):
			return "You already have a pending proposal! " +
				"Wait for it to be accepted or declined before proposing again."
		default:
			return err.Error()
		}
	}
}

func (s *Slavie) commandMarry(
	ctx context.Context,
	c *commandContext,
) (*discordgo.InteractionResponse, error) {
	recipient, err := s.targetUser(ctx, c, optionMember)
	if err != nil {
		return nil, err
	}

	p, err := s.engine.ProposeMarriage(
		ctx,
		c.interaction.GuildID,
		c.interaction.ChannelID,
		c.actor(),
		*recipient,
	)
	if err != nil {
		return denied(err, proposalDeniedMessage(recipient))
	}

	embed := gifEmbed(
		"💍 Proposal!",
		fmt.Sprintf(
			"%s has proposed to %s! Will they accept?",
			userMention(p.ProposerID),
			userMention(p.RecipientID),
		),
		colorPink,
		s.gifURL(ctx, c.config, tenorQueryProposal),
	)
	return embedResponse(
		embed,
		confirmButtons(componentMarryAccept, componentMarryDecline, p.CustomID),
	), nil
}

// acceptDeniedMessage covers both /accept and the Accept button
func acceptDeniedMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotRecipient):
		return "This proposal was not meant for you!"
	case errors.Is(err, ErrNotFound):
		return "No one has proposed to you!"
	case errors.Is(err, ErrAlreadyMarried):
		return "One of you is already married, so this proposal is no longer valid."
	case errors.Is(err, ErrRelatedParties):
		return "You're family now, so this proposal is no longer valid."
	default:
		return err.Error()
	}
}

func (s *Slavie) commandAccept(
	ctx context.Context,
	c *commandContext,
) (*discordgo.InteractionResponse, error) {
	m, err := s.engine.AcceptMarriage(ctx, c.user.ID)
	if err != nil {
		return denied(err, acceptDeniedMessage)
	}
	return messageResponse(
		fmt.Sprintf(
			"%s and %s are now married! 💍",
			userMention(m.UserID),
			userMention(m.MarriedTo),
		),
	), nil
}

func declineDeniedMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotRecipient):
		return "This proposal was not meant for you!"
	case errors.Is(err, ErrNotFound):
		return "No marriage proposals to decline."
	default:
		return err.Error()
	}
}

func (s *Slavie) commandDecline(
	ctx context.Context,
	c *commandContext,
) (*discordgo.InteractionResponse, error) {
	p, err := s.engine.DeclineMarriage(ctx, c.user.ID)
	if err != nil {
		return denied(err, declineDeniedMessage)
	}
	return messageResponse(
		fmt.Sprintf(
			"%s has rejected %s's marriage proposal.",
			userMention(p.RecipientID),
			userMention(p.ProposerID),
		),
	), nil
}

func (s *Slavie) commandDivorce(
	ctx context.Context,
	c *commandContext,
) (*discordgo.InteractionResponse, error) {
	_, err := s.engine.Divorce(ctx, c.user.ID)
	if err != nil {
		return denied(
			err, func(error) string {
				return "You are not married."
			},
		)
	}
	return messageResponse(
		fmt.Sprintf("%s has divorced their spouse.", userMention(c.user.ID)),
	), nil
}

func (s *Slavie) commandCancelProposal(
	ctx context.Context,
	c *commandContext,
) (*discordgo.InteractionResponse, error) {
	_, err := s.engine.CancelProposal(ctx, c.user.ID)
	if err != nil {
		return denied(
			err, func(error) string {
				return "You have no pending proposals to cancel."
			},
		)
	}
	return ephemeralResponse("Your proposal has been successfully canceled."), nil
}

func (s *Slavie) commandForceMarry(
	ctx context.Context,
	c *commandContext,
) (*discordgo.InteractionResponse, error) {
	a, err := s.targetUser(ctx, c, optionMember1)
	if err != nil {
		return nil, err
	}
	b, err := s.targetUser(ctx, c, optionMember2)
	if err != nil {
		return nil, err
	}

	m, err := s.engine.ForceMarry(ctx, *a, *b)
	if err != nil {
		return denied(
			err, func(err error) string {
				switch {
				case errors.Is(err, ErrSelfReference):
					return "A member can't marry themselves!"
				case errors.Is(err, ErrNonHumanActor):
					return "Bots can't get married!"
				default:
					return "One of these members is already married!"
				}
			},
		)
	}
	return messageResponse(
		fmt.Sprintf(
			"%s and %s are now married!",
			userMention(m.UserID),
			userMention(m.MarriedTo),
		),
	), nil
}

func (s *Slavie) componentMarryAccept(
	ctx context.Context,
	c *commandContext,
	data string,
) (*discordgo.InteractionResponse, error) {
	m, err := s.engine.AcceptMarriageByCustomID(ctx, data, c.user.ID)
	if err != nil {
		return denied(
			err, func(err error) string {
				if errors.Is(err, ErrNotFound) {
					return "This proposal is no longer pending."
				}
				return acceptDeniedMessage(err)
			},
		)
	}
	return updateMessageResponse(
		c.interaction,
		fmt.Sprintf(
			"%s has accepted the proposal from %s! 💍",
			userMention(m.UserID),
			userMention(m.MarriedTo),
		),
	), nil
}

func (s *Slavie) componentMarryDecline(
	ctx context.Context,
	c *commandContext,
	data string,
) (*discordgo.InteractionResponse, error) {
	p, err := s.engine.DeclineMarriageByCustomID(ctx, data, c.user.ID)
	if err != nil {
		return denied(
			err, func(err error) string {
				if errors.Is(err, ErrNotFound) {
					return "This proposal is no longer pending."
				}
				return declineDeniedMessage(err)
			},
		)
	}
	return updateMessageResponse(
		c.interaction,
		fmt.Sprintf(
			"%s has declined the proposal from %s.",
			userMention(p.RecipientID),
			userMention(p.ProposerID),
		),
	), nil
}
