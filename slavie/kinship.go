package slavie

import (
	"context"
	"fmt"
	"gorm.io/gorm"
)

// kinSnapshot is a read-only view of adoption edges, keyed by child ID
type kinSnapshot map[string]Adoption

func newKinSnapshot(adoptions ...Adoption) kinSnapshot {
	snap := make(kinSnapshot, len(adoptions))
	for _, a := range adoptions {
		snap[a.UserID] = a
	}
	return snap
}

// parents returns the recorded parents of userID, if any
func (k kinSnapshot) parents(userID string) []string {
	a, ok := k[userID]
	if !ok {
		return nil
	}
	return a.Parents()
}

func (k kinSnapshot) isParentOf(parentID, childID string) bool {
	a, ok := k[childID]
	return ok && a.HasParent(parentID)
}

// shareParent returns true if x and y have at least one parent in common
func (k kinSnapshot) shareParent(x, y string) bool {
	px := k.parents(x)
	if len(px) == 0 {
		return false
	}
	for _, p := range k.parents(y) {
		for _, q := range px {
			if p == q {
				return true
			}
		}
	}
	return false
}

// related reports whether u1 and u2 are parent/child, siblings,
// grandparent/grandchild or aunt-uncle/niece-nephew. The walk never
// goes further than two adoption edges up from either user.
func related(k kinSnapshot, u1, u2 string) bool {
	if u1 == u2 {
		return false
	}
	if k.isParentOf(u1, u2) || k.isParentOf(u2, u1) {
		return true
	}
	if k.shareParent(u1, u2) {
		return true
	}
	for _, p := range k.parents(u1) {
		// u2 is u1's grandparent, or u2 is a sibling of u1's parent
		if k.isParentOf(u2, p) || k.shareParent(u2, p) {
			return true
		}
	}
	for _, p := range k.parents(u2) {
		if k.isParentOf(u1, p) || k.shareParent(u1, p) {
			return true
		}
	}
	return false
}

// loadKinSnapshot loads the adoption edges needed to evaluate
// related for the given users: their own adoptions, and the adoptions
// of their parents.
func loadKinSnapshot(
	ctx context.Context,
	db *gorm.DB,
	userIDs ...string,
) (kinSnapshot, error) {
	var level []Adoption
	if err := db.WithContext(ctx).Where(
		columnAdoptionUserID+" IN ?",
		userIDs,
	).Find(&level).Error; err != nil {
		return nil, fmt.Errorf("error loading adoptions: %w", err)
	}
	snap := newKinSnapshot(level...)

	var parentIDs []string
	for _, a := range level {
		for _, p := range a.Parents() {
			if _, seen := snap[p]; !seen {
				parentIDs = append(parentIDs, p)
			}
		}
	}
	if len(parentIDs) == 0 {
		return snap, nil
	}

	var parentLevel []Adoption
	if err := db.WithContext(ctx).Where(
		columnAdoptionUserID+" IN ?",
		parentIDs,
	).Find(&parentLevel).Error; err != nil {
		return nil, fmt.Errorf("error loading parent adoptions: %w", err)
	}
	for _, a := range parentLevel {
		snap[a.UserID] = a
	}
	return snap, nil
}
