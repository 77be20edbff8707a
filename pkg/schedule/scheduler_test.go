package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)

	require.NoError(t, s.Register("*/5 * * * *", func() {}))
	assert.Len(t, s.s.Jobs(), 1)

	s.Start()
	defer s.Stop()

	next := s.Next()
	assert.True(t, next.After(time.Now().Add(-time.Second)), "next run %v is in the future", next)
	assert.Zero(t, next.Minute()%5)
	assert.Zero(t, next.Second())
}

func TestRegisterRejectsInvalidExpressions(t *testing.T) {
	s, err := New("UTC")
	require.NoError(t, err)

	assert.Error(t, s.Register("every five minutes", func() {}))
	assert.Error(t, s.Register("*/5 * * *", func() {}))
	assert.Empty(t, s.s.Jobs())
}

func TestTimezone(t *testing.T) {
	s, err := New("Asia/Ho_Chi_Minh")
	require.NoError(t, err)
	require.NoError(t, s.Register("0 9 * * *", func() {}))
	s.Start()
	defer s.Stop()

	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	require.NoError(t, err)
	assert.Equal(t, 9, s.Next().In(loc).Hour())

	_, err = New("Mars/Olympus_Mons")
	assert.Error(t, err)
}
