package slavie

import (
	"context"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"math/rand"
	"slices"
	"strings"
)

var cheatingResponses = []string{
	"Cheating, huh? You're already married to someone else!",
	"Caught red-handed! You're already taken.",
	"Oh no! You're already tied to someone. Watch out!",
	"Seems like you're double-dipping! You're married already.",
	"Oops, you're already committed to someone else. Careful!",
	"Sneaky sneaky, but you're already in a relationship!",
	"Stop trying to cheat!",
}

// affection describes /hug or /kiss. Unmarried pairs get the friendly
// variant, spouses get the warm one.
type affection struct {
	verb      string
	title     string
	pastTense string

	friendlyTitle  string
	friendlyFormat string
	friendlyQuery  string
	friendlyColor  int

	warmTitle  string
	warmFormat string
	warmQuery  string
	warmColor  int
}

var hugAffection = affection{
	verb:           "hug",
	title:          "Hug",
	pastTense:      "hugged",
	friendlyTitle:  "🤗 Friendly Hug!",
	friendlyFormat: "%s gives a friendly hug to %s!",
	friendlyQuery:  "anime friendly hug",
	friendlyColor:  colorGreen,
	warmTitle:      "🤗 Warm Hug!",
	warmFormat:     "%s gives a warm hug to their beloved %s!",
	warmQuery:      "anime warm hug",
	warmColor:      colorBlue,
}

var kissAffection = affection{
	verb:           "kiss",
	title:          "Kiss",
	pastTense:      "kissed",
	friendlyTitle:  "💋 Friendly Kiss!",
	friendlyFormat: "%s gives a friendly kiss to %s!",
	friendlyQuery:  "anime peck on cheek",
	friendlyColor:  0x979c9f,
	warmTitle:      "💋 Kiss!",
	warmFormat:     "%s gives a sweet kiss to %s!",
	warmQuery:      "anime kiss",
	warmColor:      colorPink,
}

func (s *Slavie) commandAffection(a affection) commandFunc {
	return func(ctx context.Context, c *commandContext) (*discordgo.InteractionResponse, error) {
		target, ok := c.userOption(optionMember)
		if !ok {
			return nil, fmt.Errorf("missing required option %q", optionMember)
		}
		switch {
		case target.Bot:
			return ephemeralResponse(fmt.Sprintf("You cannot %s a bot!", a.verb)), nil
		case target.ID == c.user.ID:
			return ephemeralResponse(
				fmt.Sprintf("You can't %s yourself! %s someone else!", a.verb, a.title),
			), nil
		}

		ownProposal, err := s.store.FindProposalByProposer(ctx, c.user.ID)
		if err != nil {
			return nil, fmt.Errorf("error looking up proposal: %w", err)
		}
		if ownProposal != nil {
			if ownProposal.RecipientID == target.ID {
				return ephemeralResponse("They haven't accepted your proposal yet! Be patient."), nil
			}
			return ephemeralResponse(
				"You already proposed to someone! Wait until they either accept or decline.",
			), nil
		}

		targetProposal, err := s.store.FindProposalByRecipient(ctx, target.ID)
		if err != nil {
			return nil, fmt.Errorf("error looking up proposal: %w", err)
		}
		if targetProposal != nil {
			proposer := s.displayNames(ctx, targetProposal.ProposerID)[0]
			return ephemeralResponse(
				fmt.Sprintf(
					"%s has a pending proposal from %s. Wait until they respond!",
					userMention(target.ID),
					proposer,
				),
			), nil
		}

		marriage, err := s.store.FindMarriage(ctx, c.user.ID)
		if err != nil {
			return nil, fmt.Errorf("error looking up marriage: %w", err)
		}
		if marriage != nil && marriage.MarriedTo != target.ID {
			return messageResponse(cheatingResponses[rand.Intn(len(cheatingResponses))]), nil
		}

		targetMarriage, err := s.store.FindMarriage(ctx, target.ID)
		if err != nil {
			return nil, fmt.Errorf("error looking up marriage: %w", err)
		}
		if targetMarriage != nil && targetMarriage.MarriedTo != c.user.ID {
			return ephemeralResponse(
				fmt.Sprintf(
					"%s is married and can only be %s by their spouse!",
					userMention(target.ID),
					a.pastTense,
				),
			), nil
		}

		title, format, query, color := a.friendlyTitle, a.friendlyFormat, a.friendlyQuery, a.friendlyColor
		if marriage != nil {
			title, format, query, color = a.warmTitle, a.warmFormat, a.warmQuery, a.warmColor
		}
		return embedResponse(
			gifEmbed(
				title,
				fmt.Sprintf(format, userMention(c.user.ID), userMention(target.ID)),
				color,
				s.gifURL(ctx, c.config, query),
			),
		), nil
	}
}

const tenorQuerySlap = "anime slap"

func (s *Slavie) commandSlap(
	ctx context.Context,
	c *commandContext,
) (*discordgo.InteractionResponse, error) {
	target, ok := c.userOption(optionMember)
	if !ok {
		return nil, fmt.Errorf("missing required option %q", optionMember)
	}
	switch {
	case target.Bot:
		return ephemeralResponse("You cannot slap a bot!"), nil
	case target.ID == c.user.ID:
		return ephemeralResponse("You can't slap yourself!"), nil
	}

	family, err := s.engine.Family(ctx, target.ID)
	if err != nil {
		return nil, fmt.Errorf("error looking up family: %w", err)
	}
	switch {
	case family.SpouseID == c.user.ID:
		return messageResponse("Don't you dare lay a finger on your spouse!"), nil
	case slices.Contains(family.Parents, c.user.ID):
		return messageResponse("Isn't that.... child abuse?"), nil
	case slices.Contains(family.Children, c.user.ID):
		return messageResponse("You cannot slap your parents! bad child.."), nil
	}

	embed := gifEmbed(
		"💥 Slap!",
		fmt.Sprintf("%s slaps %s!", userMention(c.user.ID), userMention(target.ID)),
		colorRed,
		s.gifURL(ctx, c.config, tenorQuerySlap),
	)
	if footer := s.slapFooter(ctx, family); footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: footer}
	}
	return embedResponse(embed, slapBackButton(c.user.ID, target.ID)), nil
}

// slapFooter warns the slapper about the target's family
func (s *Slavie) slapFooter(ctx context.Context, family *Family) string {
	ids := slices.Clone(family.Parents)
	if family.SpouseID != "" {
		ids = append(ids, family.SpouseID)
	}
	names := s.displayNames(ctx, ids...)

	parents := names[:len(family.Parents)]
	var spouse string
	if family.SpouseID != "" {
		spouse = names[len(names)-1]
	}

	switch {
	case len(parents) == 2 && spouse != "":
		return fmt.Sprintf(
			"You're gonna get demolished by %s, %s, and %s!",
			parents[0], parents[1], spouse,
		)
	case len(parents) == 2:
		return fmt.Sprintf("%s and %s aren't gonna leave you on this one!", parents[0], parents[1])
	case spouse != "":
		return fmt.Sprintf("%s is coming for you!", spouse)
	case len(parents) == 1:
		return fmt.Sprintf("%s isn't gonna leave you alone on this one!", parents[0])
	default:
		return ""
	}
}

// componentSlapBack lets the slapped member, their spouse or their
// parents slap back. data is "<slapper id>:<target id>".
func (s *Slavie) componentSlapBack(
	ctx context.Context,
	c *commandContext,
	data string,
) (*discordgo.InteractionResponse, error) {
	slapperID, targetID, found := strings.Cut(data, customIDSeparator)
	if !found || slapperID == "" || targetID == "" {
		return ephemeralResponse(componentExpiredMessage), nil
	}

	allowed := c.user.ID == targetID
	if !allowed {
		family, err := s.engine.Family(ctx, targetID)
		if err != nil {
			return nil, fmt.Errorf("error looking up family: %w", err)
		}
		allowed = family.SpouseID == c.user.ID || slices.Contains(family.Parents, c.user.ID)
	}
	if !allowed {
		return ephemeralResponse(notAllowedMessage), nil
	}

	embed := gifEmbed(
		"💥 Slap Back!",
		fmt.Sprintf("%s just slapped back %s!", userMention(c.user.ID), userMention(slapperID)),
		colorRed,
		s.gifURL(ctx, c.config, tenorQuerySlap),
	)
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "Slap back successful!"}
	return updateMessageResponse(c.interaction, "", embed), nil
}
