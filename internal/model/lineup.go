package model

import "slices"

// Lineup is the set of users queued for a game. Users keeps join order.
type Lineup struct {
	GameName string   `json:"gameName"`
	Users    []string `json:"users"`
}

// NewLineup returns an empty lineup for a game
func NewLineup(gameName string) *Lineup {
	return &Lineup{GameName: gameName, Users: []string{}}
}

// AddUser inserts a user, doing nothing if already present
func (l *Lineup) AddUser(user string) {
	if l.HasUser(user) {
		return
	}
	l.Users = append(l.Users, user)
}

// AddUsers inserts each user in order
func (l *Lineup) AddUsers(users []string) {
	for _, u := range users {
		l.AddUser(u)
	}
}

// DeleteUser removes a user. Absent users are ignored.
func (l *Lineup) DeleteUser(user string) {
	l.Users = slices.DeleteFunc(l.Users, func(u string) bool { return u == user })
}

// DeleteUsers removes every listed user
func (l *Lineup) DeleteUsers(users []string) {
	for _, u := range users {
		l.DeleteUser(u)
	}
}

// Clear empties the lineup
func (l *Lineup) Clear() {
	l.Users = []string{}
}

func (l *Lineup) HasUser(user string) bool {
	return slices.Contains(l.Users, user)
}

func (l *Lineup) UserCount() int {
	return len(l.Users)
}

// Clone returns a deep copy so callers can mutate without touching shared state
func (l *Lineup) Clone() *Lineup {
	users := make([]string, len(l.Users))
	copy(users, l.Users)
	return &Lineup{GameName: l.GameName, Users: users}
}
