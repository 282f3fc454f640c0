package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStore_InsertReturnsUniqueIDs(t *testing.T) {
	s := NewStore()
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id := s.Insert("code", false, "rust_core")
		assert.False(t, seen[id], "patch_id must be unique across Propose calls")
		seen[id] = true
	}
}

func TestStore_RemoveIsCompareAndDelete(t *testing.T) {
	s := NewStore()
	id := s.Insert("code", false, "python_skill")

	assert.True(t, s.Remove(id))
	assert.False(t, s.Remove(id), "second Remove of the same id must report absence")

	_, ok := s.Get(id)
	assert.False(t, ok)
}
