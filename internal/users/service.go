package users

import (
	"context"
	"strings"

	"github.com/bortube/gateway/internal/apperr"
	"github.com/bortube/gateway/internal/models"
	"github.com/bortube/gateway/internal/rpc"
)

// Operation names served by the user service.
const (
	OpAuthenticate = "authenticate-user"
	OpList         = "get-all-users"
	OpGet          = "get-user-by-id"
	OpDelete       = "delete-user"
	OpCreate       = "create-user"
	OpUpdate       = "update-user"
)

// NewUser carries the fields required to create an account.
type NewUser struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

// Update is a partial update. Nil fields are left out of the request so the
// user service keeps their current values.
type Update struct {
	Email       *string `json:"email,omitempty"`
	Password    *string `json:"password,omitempty"`
	DisplayName *string `json:"displayName,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.Email == nil && u.Password == nil && u.DisplayName == nil
}

type updateRequest struct {
	ID string `json:"id"`
	Update
}

type idRequest struct {
	ID string `json:"id"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Service is the typed facade over the user service operations. Every
// result is projected through models.User.View before it is returned.
type Service struct {
	rpc rpc.Caller
}

// NewService builds a Service on top of caller.
func NewService(caller rpc.Caller) *Service {
	return &Service{rpc: caller}
}

// Authenticate verifies an email and password pair. A mismatch surfaces as
// apperr.KindNotFound.
func (s *Service) Authenticate(ctx context.Context, email, password string) (models.UserView, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return models.UserView{}, apperr.InvalidInput(OpAuthenticate, "email and password are required")
	}
	return s.one(ctx, OpAuthenticate, credentials{Email: email, Password: password})
}

// List returns every user.
func (s *Service) List(ctx context.Context) ([]models.UserView, error) {
	var users []models.User
	if err := s.rpc.Call(ctx, OpList, struct{}{}, &users); err != nil {
		return nil, err
	}

	views := make([]models.UserView, 0, len(users))
	for _, u := range users {
		if err := validate(OpList, u); err != nil {
			return nil, err
		}
		views = append(views, u.View())
	}
	return views, nil
}

// Get fetches one user by id.
func (s *Service) Get(ctx context.Context, id string) (models.UserView, error) {
	if strings.TrimSpace(id) == "" {
		return models.UserView{}, apperr.InvalidInput(OpGet, "id is required")
	}
	return s.one(ctx, OpGet, idRequest{ID: id})
}

// Delete removes a user and returns the deleted record.
func (s *Service) Delete(ctx context.Context, id string) (models.UserView, error) {
	if strings.TrimSpace(id) == "" {
		return models.UserView{}, apperr.InvalidInput(OpDelete, "id is required")
	}
	return s.one(ctx, OpDelete, idRequest{ID: id})
}

// Create registers a new account.
func (s *Service) Create(ctx context.Context, in NewUser) (models.UserView, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if in.Email == "" || in.Password == "" || in.DisplayName == "" {
		return models.UserView{}, apperr.InvalidInput(OpCreate, "email, password and displayName are required")
	}
	return s.one(ctx, OpCreate, in)
}

// Update applies a partial update to the user identified by id.
func (s *Service) Update(ctx context.Context, id string, in Update) (models.UserView, error) {
	if strings.TrimSpace(id) == "" {
		return models.UserView{}, apperr.InvalidInput(OpUpdate, "id is required")
	}
	if in.Empty() {
		return models.UserView{}, apperr.InvalidInput(OpUpdate, "no fields to update")
	}
	return s.one(ctx, OpUpdate, updateRequest{ID: id, Update: in})
}

func (s *Service) one(ctx context.Context, op string, payload any) (models.UserView, error) {
	var user models.User
	if err := s.rpc.Call(ctx, op, payload, &user); err != nil {
		return models.UserView{}, err
	}
	if err := validate(op, user); err != nil {
		return models.UserView{}, err
	}
	return user.View(), nil
}

func validate(op string, u models.User) error {
	if u.ID == "" {
		return apperr.Internal(op, "user service returned a user without id", nil)
	}
	return nil
}
