package api

import "github.com/acme/shop/service"

// Handler exposes the user service over HTTP.
type Handler struct {
	svc *service.UserService
}
