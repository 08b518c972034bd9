package models

import (
	"strconv"
	"strings"
)

// Role IDs travel inside access tokens and in the roles column, so they
// must never be renumbered.
const (
	RoleUser   = 2001
	RoleEditor = 1984
	RoleAdmin  = 5150
)

type User struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string `gorm:"unique;not null"          json:"username"`
	PasswordHash string `gorm:"not null"                 json:"-"`
	Roles        string `gorm:"not null;default:2001"    json:"-"`
	RefreshToken string `json:"-"`
}

type Employee struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Firstname string `gorm:"not null"                 json:"firstname"`
	Lastname  string `gorm:"not null"                 json:"lastname"`
}

// SerializeRoles converts the stored comma-joined roles column into the
// integer set used at the API boundary. Non-numeric fragments are skipped.
func SerializeRoles(roles string) []int {
	out := make([]int, 0, 2)
	for _, part := range strings.Split(roles, ",") {
		if id, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			out = append(out, id)
		}
	}
	return out
}

// DeserializeRoles is the inverse of SerializeRoles.
func DeserializeRoles(roles []int) string {
	parts := make([]string, len(roles))
	for i, id := range roles {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}
