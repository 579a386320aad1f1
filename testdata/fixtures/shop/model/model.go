package model

// User represents a system user.
type User struct {
	ID    int
	Name  string
	Email string
}
