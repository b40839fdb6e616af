package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGame(t *testing.T) {
	g, err := NewGame("  Chess ", "<@&1>", 4)
	require.NoError(t, err)
	assert.Equal(t, "chess", g.Name)
	assert.Equal(t, 4, g.Limit)
	assert.False(t, g.IsInfinite())

	_, err = NewGame("two words", "", 2)
	assert.ErrorIs(t, err, ErrInvalidGameName)

	_, err = NewGame("val", "", -1)
	assert.ErrorIs(t, err, ErrInvalidLimit)

	inf, err := NewGame("among", "", 0)
	require.NoError(t, err)
	assert.True(t, inf.IsInfinite())
}

func TestLineupAddUsersIsIdempotent(t *testing.T) {
	l := NewLineup("chess")
	l.AddUsers([]string{"a", "b", "a"})
	l.AddUser("b")

	assert.Equal(t, []string{"a", "b"}, l.Users)
	assert.Equal(t, 2, l.UserCount())
	assert.True(t, l.HasUser("a"))
	assert.False(t, l.HasUser("c"))
}

func TestLineupDeleteUsers(t *testing.T) {
	l := NewLineup("chess")
	l.AddUsers([]string{"a", "b", "c"})

	l.DeleteUser("z")
	assert.Equal(t, 3, l.UserCount())

	l.DeleteUsers([]string{"a", "c", "c"})
	assert.Equal(t, []string{"b"}, l.Users)

	l.Clear()
	assert.Equal(t, 0, l.UserCount())
	assert.NotNil(t, l.Users)
}

func TestLineupClone(t *testing.T) {
	l := NewLineup("chess")
	l.AddUser("a")

	c := l.Clone()
	c.AddUser("b")

	assert.Equal(t, 1, l.UserCount())
	assert.Equal(t, 2, c.UserCount())
}

func TestUserGameNames(t *testing.T) {
	u := NewUser("1")
	u.AddGameNames([]string{"chess", "val", "chess"})
	assert.Equal(t, []string{"chess", "val"}, u.SavedGameNames)
	assert.True(t, u.HasGame("val"))

	u.DeleteGameNames([]string{"chess", "missing"})
	assert.Equal(t, []string{"val"}, u.SavedGameNames)

	c := u.Clone()
	c.ClearGameNames()
	assert.Empty(t, c.SavedGameNames)
	assert.Equal(t, []string{"val"}, u.SavedGameNames)
}
