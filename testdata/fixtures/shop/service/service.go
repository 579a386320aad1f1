package service

import (
	"fmt"

	"github.com/acme/shop/model"
)

// UserService handles user business logic.
type UserService struct {
	users map[int]model.User
}

// GetUser retrieves a user by ID.
func (s *UserService) GetUser(id int) (model.User, error) {
	u, ok := s.users[id]
	if !ok {
		return model.User{}, fmt.Errorf("user %d not found", id)
	}
	return u, nil
}
