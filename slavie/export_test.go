package slavie

import (
	"bytes"
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	"testing"
)

func TestExport(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	marry(t, e, "alice", "bob")
	adopt(t, e, "alice", "carol")
	_, err := e.ProposeMarriage(ctx, "guild", "channel", human("dave"), human("erin"))
	require.NoError(t, err)
	_, err = e.ProposeAdoption(ctx, "guild", "channel", human("bob"), human("frank"))
	require.NoError(t, err)

	export, err := e.Store().Export(ctx)
	require.NoError(t, err)

	require.Len(t, export.Marriages, 1)
	assert.Equal(t, [2]string{"alice", "bob"}, export.Marriages[0].Spouses)

	require.Len(t, export.Proposals, 1)
	assert.Equal(t, "dave", export.Proposals[0].ProposerID)
	assert.Equal(t, "erin", export.Proposals[0].RecipientID)

	require.Len(t, export.Adoptions, 1)
	assert.Equal(t, "carol", export.Adoptions[0].ChildID)
	assert.ElementsMatch(t, []string{"alice", "bob"}, export.Adoptions[0].Parents)

	require.Len(t, export.PendingAdoptions, 1)
	assert.Equal(t, "frank", export.PendingAdoptions[0].AdopteeID)

	ids := make([]string, 0, len(export.Families))
	for _, f := range export.Families {
		ids = append(ids, f.UserID)
	}
	assert.Equal(t, []string{"alice", "bob", "carol"}, ids)
	assert.Equal(t, "bob", export.Families[0].SpouseID)
	assert.Equal(t, []string{"carol"}, export.Families[0].Children)

	var buf bytes.Buffer
	require.NoError(t, export.WriteYAML(&buf))
	assert.Contains(t, buf.String(), "spouses: [alice, bob]")

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Contains(t, decoded, "families")
	assert.Contains(t, decoded, "pending_adoptions")
}

func TestExportEmpty(t *testing.T) {
	export, err := newTestStore(t).Export(context.Background())
	require.NoError(t, err)
	assert.Empty(t, export.Marriages)
	assert.Empty(t, export.Families)

	var buf bytes.Buffer
	require.NoError(t, export.WriteYAML(&buf))
	assert.Contains(t, buf.String(), "marriages: []")
}
