package repository

import (
	"context"

	"github.com/fastygo/sessions/domain"
)

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}
