package model

import "slices"

// User is a Discord member that has interacted with the bot.
// SavedGameNames are game names the user joins with a bare /join.
type User struct {
	ID             string   `json:"id"`
	SavedGameNames []string `json:"savedGameNames"`
}

// NewUser returns a user with no saved games
func NewUser(id string) *User {
	return &User{ID: id, SavedGameNames: []string{}}
}

func (u *User) HasGame(name string) bool {
	return slices.Contains(u.SavedGameNames, name)
}

// AddGameNames saves each game name once
func (u *User) AddGameNames(names []string) {
	for _, n := range names {
		if !u.HasGame(n) {
			u.SavedGameNames = append(u.SavedGameNames, n)
		}
	}
}

// DeleteGameNames removes saved names; unknown names are ignored
func (u *User) DeleteGameNames(names []string) {
	u.SavedGameNames = slices.DeleteFunc(u.SavedGameNames, func(n string) bool {
		return slices.Contains(names, n)
	})
}

func (u *User) ClearGameNames() {
	u.SavedGameNames = []string{}
}

// Clone returns a deep copy of the user
func (u *User) Clone() *User {
	names := make([]string, len(u.SavedGameNames))
	copy(names, u.SavedGameNames)
	return &User{ID: u.ID, SavedGameNames: names}
}
