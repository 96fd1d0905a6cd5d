package slavie

import (
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func adoptedBy(child, parent string, spouse ...string) Adoption {
	a := Adoption{UserID: child, AdoptedBy: parent}
	if len(spouse) > 0 {
		a.SpouseID = &spouse[0]
	}
	return a
}

func TestRelated(t *testing.T) {
	t.Parallel()

	// gp
	// ├── p1 (co-parent s1)
	// │   ├── c1
	// │   └── c2
	// └── p2
	//     └── c3
	// other
	// └── o1 (co-parent p1)
	snap := newKinSnapshot(
		adoptedBy("p1", "gp"),
		adoptedBy("p2", "gp"),
		adoptedBy("c1", "p1", "s1"),
		adoptedBy("c2", "p1"),
		adoptedBy("c3", "p2"),
		adoptedBy("o1", "other", "p1"),
	)

	tests := []struct {
		name string
		u1   string
		u2   string
		want bool
	}{
		{"parent and child", "p1", "c1", true},
		{"co-parent and child", "s1", "c1", true},
		{"siblings", "c1", "c2", true},
		{"half siblings through co-parent", "c2", "o1", true},
		{"grandparent", "gp", "c1", true},
		{"grandchild", "c3", "gp", true},
		{"aunt or uncle", "p2", "c1", true},
		{"niece or nephew", "c1", "p2", true},
		{"cousins", "c1", "c3", false},
		{"co-parent and sibling-in-law", "s1", "c2", false},
		{"strangers", "c1", "stranger", false},
		{"same user", "c1", "c1", false},
		{"unadopted users", "x", "y", false},
	}
	for _, tc := range tests {
		t.Run(
			tc.name, func(t *testing.T) {
				assert.Equal(t, tc.want, related(snap, tc.u1, tc.u2))
				assert.Equal(
					t,
					tc.want,
					related(snap, tc.u2, tc.u1),
					"relation should be symmetric",
				)
			},
		)
	}
}

func TestLoadKinSnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	db := store.DB()

	for _, a := range []Adoption{
		adoptedBy("p1", "gp"),
		adoptedBy("c1", "p1"),
		adoptedBy("unrelated", "someone"),
	} {
		a := a
		_, err := db.Create(ctx, &a)
		require.NoError(t, err)
	}

	snap, err := loadKinSnapshot(ctx, db.DB(), "c1", "gp")
	require.NoError(t, err)
	assert.Len(t, snap, 2)
	assert.Contains(t, snap, "c1")
	assert.Contains(t, snap, "p1")
	assert.NotContains(t, snap, "unrelated")
	assert.True(t, related(snap, "c1", "gp"))
}
