package report

import (
	"testing"

	"TSNSpectra/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeReport(id string) *model.Report {
	return &model.Report{SessionID: id}
}

func TestStore_Bounded(t *testing.T) {
	s := NewStore(2)
	_, ok := s.Latest()
	assert.False(t, ok)

	s.Put(storeReport("a"))
	s.Put(storeReport("b"))
	s.Put(storeReport("a"))
	assert.Equal(t, []string{"b", "a"}, s.IDs())

	require.NoError(t, s.Write(storeReport("c")))
	assert.Equal(t, []string{"a", "c"}, s.IDs())
	_, ok = s.Get("b")
	assert.False(t, ok)

	latest, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, "c", latest.SessionID)
	assert.Equal(t, "memory", s.Name())
}
