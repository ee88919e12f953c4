package sdk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRandomUID(t *testing.T) {
	seen := make(map[string]bool)
	positions := make([]map[byte]bool, uidLength)
	for i := range positions {
		positions[i] = make(map[byte]bool)
	}

	for i := 0; i < 500; i++ {
		id := randomUID()
		assert.Len(t, id, uidLength)
		for j := 0; j < len(id); j++ {
			assert.True(t, strings.IndexByte(uidAlphabet, id[j]) >= 0, "unexpected character %q in %s", id[j], id)
			positions[j][id[j]] = true
		}
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}

	// no position is pinned to a fixed character
	for i, chars := range positions {
		assert.Greater(t, len(chars), 1, "position %d never varies", i)
	}
}

func TestGuestSessionID(t *testing.T) {
	session := newGuestSession()
	assert.Equal(t, AuthGuest, session.AuthType)
	assert.Len(t, session.ID, uidLength)
	assert.NotEqual(t, session.ID, newGuestSession().ID)
}
