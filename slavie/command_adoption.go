package slavie

import (
	"context"
	"errors"
	"fmt"
	"github.com/bwmarrin/discordgo"
)

const (
	tenorQueryAdoption = "anime adoption"
	tenorQueryAbandon  = "anime kick"
	tenorQueryRunaway  = "anime running away"
)

func adoptDeniedMessage(adoptee *User) func(error) string {
	return func(err error) string {
		switch {
		case errors.Is(err, ErrNonHumanActor):
			return "You cannot adopt a bot!"
		case errors.Is(err, ErrSelfReference):
			return "You can't adopt yourself!"
		case errors.Is(err, ErrSpouseAdoption):
			return "You can't adopt your spouse!"
		case errors.Is(err, ErrChildSpouseAdoption):
			return "You can't adopt your child's spouse!"
		case errors.Is(err, ErrRelatedParties):
			return "You cannot adopt someone who is already your family " +
				"(parents, siblings, grandparents, etc.)."
		case errors.Is(err, ErrAlreadyAdoptionProposed):
			return "You already proposed to adopt this person! Wait for their response."
		case errors.Is(err, ErrAlreadyAdopted):
			return fmt.Sprintf("%s already has parents!", userMention(adoptee.ID))
		default:
			return err.Error()
		}
	}
}

func (s *Slavie) commandAdopt(
	ctx context.Context,
	c *commandContext,
) (*discordgo.InteractionResponse, error) {
	adoptee, err := s.targetUser(ctx, c, optionMember)
	if err != nil {
		return nil, err
	}

	p, err := s.engine.ProposeAdoption(
		ctx,
		c.interaction.GuildID,
		c.interaction.ChannelID,
		c.actor(),
		*adoptee,
	)
	if err != nil {
		return denied(err, adoptDeniedMessage(adoptee))
	}

	embed := gifEmbed(
		"👶 Adoption Proposal!",
		fmt.Sprintf(
			"%s has proposed to adopt %s! Will they accept?",
			userMention(p.AdopterID),
			userMention(p.AdopteeID),
		),
		colorBlue,
		s.gifURL(ctx, c.config, tenorQueryAdoption),
	)
	return embedResponse(
		embed,
		confirmButtons(componentAdoptAccept, componentAdoptDecline, p.CustomID),
	), nil
}

func adoptionButtonDeniedMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotRecipient):
		return "This adoption proposal was not meant for you!"
	case errors.Is(err, ErrNotFound):
		return "This adoption proposal is no longer pending."
	case errors.Is(err, ErrAlreadyAdopted):
		return "You have already been adopted!"
	case errors.Is(err, ErrSpouseAdoption), errors.Is(err, ErrChildSpouseAdoption):
		return "You married into this family, so this adoption proposal is no longer valid."
	case errors.Is(err, ErrRelatedParties):
		return "You're already family, so this adoption proposal is no longer valid."
	default:
		return err.Error()
	}
}

func (s *Slavie) componentAdoptAccept(
	ctx context.Context,
	c *commandContext,
	data string,
) (*discordgo.InteractionResponse, error) {
	if _, err := s.engine.AcceptAdoptionByCustomID(ctx, data, c.user.ID); err != nil {
		return denied(err, adoptionButtonDeniedMessage)
	}
	return updateMessageResponse(
		c.interaction,
		fmt.Sprintf("%s has accepted the adoption! 🎉", userMention(c.user.ID)),
	), nil
}

func (s *Slavie) componentAdoptDecline(
	ctx context.Context,
	c *commandContext,
	data string,
) (*discordgo.InteractionResponse, error) {
	if _, err := s.engine.DeclineAdoptionByCustomID(ctx, data, c.user.ID); err != nil {
		return denied(err, adoptionButtonDeniedMessage)
	}
	return updateMessageResponse(
		c.interaction,
		fmt.Sprintf("%s has declined the adoption.", userMention(c.user.ID)),
	), nil
}

func (s *Slavie) commandCancelAdoption(
	ctx context.Context,
	c *commandContext,
) (*discordgo.InteractionResponse, error) {
	n, err := s.engine.CancelAdoption(ctx, c.user.ID)
	if err != nil {
		return denied(
			err, func(error) string {
				return "You have no pending adoptions to cancel."
			},
		)
	}
	if n > 1 {
		return messageResponse(
			fmt.Sprintf("Your %d adoption proposals have been successfully canceled.", n),
		), nil
	}
	return messageResponse("Your adoption proposal has been successfully canceled."), nil
}

func (s *Slavie) commandAbandon(
	ctx context.Context,
	c *commandContext,
) (*discordgo.InteractionResponse, error) {
	child, ok := c.userOption(optionMember)
	if !ok {
		return nil, fmt.Errorf("missing required option %q", optionMember)
	}

	if _, err := s.engine.Abandon(ctx, c.user.ID, child.ID); err != nil {
		return denied(
			err, func(error) string {
				return fmt.Sprintf("%s is not your adopted child.", userMention(child.ID))
			},
		)
	}
	return embedResponse(
		gifEmbed(
			"👋 Disowned!",
			fmt.Sprintf("You have disowned %s.", userMention(child.ID)),
			colorRed,
			s.gifURL(ctx, c.config, tenorQueryAbandon),
		),
	), nil
}

func (s *Slavie) commandRunaway(
	ctx context.Context,
	c *commandContext,
) (*discordgo.InteractionResponse, error) {
	if _, err := s.engine.Runaway(ctx, c.user.ID); err != nil {
		return denied(
			err, func(error) string {
				return "You are not adopted."
			},
		)
	}
	return embedResponse(
		gifEmbed(
			"🏃 Runaway!",
			"You have successfully run away from your parents.",
			colorOrange,
			s.gifURL(ctx, c.config, tenorQueryRunaway),
		),
	), nil
}
