package slavie

import (
	"context"
	"fmt"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"io"
	"slices"
	"time"
)

// Export is a point-in-time snapshot of every relationship, written
// by the export command.
type Export struct {
	ExportedAt       time.Time               `yaml:"exported_at"`
	Marriages        []ExportMarriage        `yaml:"marriages"`
	Proposals        []ExportProposal        `yaml:"proposals"`
	Adoptions        []ExportAdoption        `yaml:"adoptions"`
	PendingAdoptions []ExportPendingAdoption `yaml:"pending_adoptions"`
	Families         []Family                `yaml:"families"`
}

// ExportMarriage lists a married couple once, rather than once per
// spouse as they're stored
type ExportMarriage struct {
	Spouses   [2]string `yaml:"spouses,flow"`
	CreatedAt time.Time `yaml:"created_at"`
}

type ExportProposal struct {
	ProposerID  string    `yaml:"proposer_id"`
	RecipientID string    `yaml:"recipient_id"`
	GuildID     string    `yaml:"guild_id,omitempty"`
	CreatedAt   time.Time `yaml:"created_at"`
}

type ExportAdoption struct {
	ChildID   string    `yaml:"child_id"`
	Parents   []string  `yaml:"parents,flow"`
	CreatedAt time.Time `yaml:"created_at"`
}

type ExportPendingAdoption struct {
	AdopterID string    `yaml:"adopter_id"`
	AdopteeID string    `yaml:"adoptee_id"`
	GuildID   string    `yaml:"guild_id,omitempty"`
	CreatedAt time.Time `yaml:"created_at"`
}

// Export reads every relationship in a single transaction, so the
// snapshot is consistent.
func (s *Store) Export(ctx context.Context) (*Export, error) {
	db, err := s.reader(ctx)
	if err != nil {
		return nil, err
	}

	var (
		marriages []Marriage
		proposals []Proposal
		adoptions []Adoption
		pending   []PendingAdoption
	)
	err = db.Transaction(
		func(tx *gorm.DB) error {
			for _, dest := range []any{&marriages, &proposals, &adoptions, &pending} {
				if e := tx.Order("id asc").Find(dest).Error; e != nil {
					return e
				}
			}
			return nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("error reading relationships: %w", err)
	}

	e := &Export{
		ExportedAt:       time.Now().UTC(),
		Marriages:        []ExportMarriage{},
		Proposals:        []ExportProposal{},
		Adoptions:        []ExportAdoption{},
		PendingAdoptions: []ExportPendingAdoption{},
	}
	for _, m := range marriages {
		if m.UserID > m.MarriedTo {
			continue
		}
		e.Marriages = append(
			e.Marriages,
			ExportMarriage{
				Spouses:   [2]string{m.UserID, m.MarriedTo},
				CreatedAt: millisToTime(m.CreatedAt),
			},
		)
	}
	for _, p := range proposals {
		e.Proposals = append(
			e.Proposals,
			ExportProposal{
				ProposerID:  p.ProposerID,
				RecipientID: p.RecipientID,
				GuildID:     p.GuildID,
				CreatedAt:   millisToTime(p.CreatedAt),
			},
		)
	}
	for _, a := range adoptions {
		e.Adoptions = append(
			e.Adoptions,
			ExportAdoption{
				ChildID:   a.UserID,
				Parents:   a.Parents(),
				CreatedAt: millisToTime(a.CreatedAt),
			},
		)
	}
	for _, p := range pending {
		e.PendingAdoptions = append(
			e.PendingAdoptions,
			ExportPendingAdoption{
				AdopterID: p.AdopterID,
				AdopteeID: p.AdopteeID,
				GuildID:   p.GuildID,
				CreatedAt: millisToTime(p.CreatedAt),
			},
		)
	}
	e.Families = buildFamilies(marriages, adoptions)
	return e, nil
}

// buildFamilies returns the family of every user with a spouse, a
// parent or a child, ordered by user ID
func buildFamilies(marriages []Marriage, adoptions []Adoption) []Family {
	families := map[string]*Family{}
	get := func(userID string) *Family {
		f, ok := families[userID]
		if !ok {
			f = &Family{UserID: userID, Parents: []string{}, Children: []string{}}
			families[userID] = f
		}
		return f
	}

	for _, m := range marriages {
		get(m.UserID).SpouseID = m.MarriedTo
	}
	for _, a := range adoptions {
		parents := a.Parents()
		get(a.UserID).Parents = parents
		for _, p := range parents {
			f := get(p)
			f.Children = append(f.Children, a.UserID)
		}
	}

	ids := make([]string, 0, len(families))
	for id := range families {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	result := make([]Family, 0, len(ids))
	for _, id := range ids {
		result = append(result, *families[id])
	}
	return result
}

// WriteYAML encodes the export as YAML
func (e *Export) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(e); err != nil {
		return fmt.Errorf("error encoding export: %w", err)
	}
	return enc.Close()
}

func millisToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
