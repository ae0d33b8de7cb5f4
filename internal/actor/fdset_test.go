package actor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFDSet_AppendRejectsNegativeFD(t *testing.T) {
	s := newFDSet()
	err := s.Append(-1, true, false, false)
	assert.Error(t, err)
	assert.Equal(t, ErrParam, CodeOf(err))
}

func TestFDSet_AppendRejectsNoWatchBits(t *testing.T) {
	s := newFDSet()
	err := s.Append(3, false, false, false)
	assert.Error(t, err)
}

func TestFDSet_RebuildDistinguishesUninterestedFromEmpty(t *testing.T) {
	s := newFDSet()
	assert.NoError(t, s.Append(3, true, false, false))

	rb := s.Rebuild()
	assert.NotNil(t, rb.read)
	assert.Nil(t, rb.write)
	assert.Nil(t, rb.except)
	assert.Equal(t, 3, rb.maxFD)
}

func TestFDSet_RemoveDropsAllEntriesForFD(t *testing.T) {
	s := newFDSet()
	assert.NoError(t, s.Append(3, true, false, false))
	assert.NoError(t, s.Append(3, false, true, false))
	assert.NoError(t, s.Append(7, true, false, false))

	s.Remove(3)

	rb := s.Rebuild()
	assert.Nil(t, rb.write)
	assert.Equal(t, 7, rb.maxFD)
}

func TestFDSet_CollectSetReturnsNilForUninterestedMask(t *testing.T) {
	got := collectSet(nil, 10)
	assert.Nil(t, got)
}

func TestFDSet_RebuildSetsMaxFDFromHighestRegisteredEntry(t *testing.T) {
	s := newFDSet()
	assert.NoError(t, s.Append(2, true, false, false))
	assert.NoError(t, s.Append(9, true, false, false))
	assert.NoError(t, s.Append(5, true, false, false))

	rb := s.Rebuild()
	assert.Equal(t, 9, rb.maxFD)
}
