package slavie

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.NotContains(t, hash, "hunter22")

	ok, err := VerifyPassword(hash, "hunter22")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword(hash, "hunter23")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = VerifyPassword("not-a-hash", "hunter22")
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		n        int
		expected string
	}{
		{name: "shorter", input: "hello", n: 10, expected: "hello"},
		{name: "exact", input: "hello", n: 5, expected: "hello"},
		{name: "longer", input: "hello world", n: 5, expected: "hello"},
		{name: "multibyte", input: "💍💍💍", n: 2, expected: "💍💍"},
	}
	for _, tc := range testCases {
		t.Run(
			tc.name, func(t *testing.T) {
				assert.Equal(t, tc.expected, truncate(tc.input, tc.n))
			},
		)
	}
}

func TestChunkItems(t *testing.T) {
	assert.Equal(
		t,
		[][]int{{1, 2}, {3, 4}, {5}},
		chunkItems(2, 1, 2, 3, 4, 5),
	)
	assert.Nil(t, chunkItems[int](2))
}

func TestMentionList(t *testing.T) {
	assert.Equal(t, "<@1>, <@2>", mentionList([]string{"1", "2"}))
	assert.Empty(t, mentionList(nil))
}

func TestGenerateRandomHexString(t *testing.T) {
	a, err := generateRandomHexString(8)
	require.NoError(t, err)
	b, err := generateRandomHexString(8)
	require.NoError(t, err)
	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
}
