package service

import (
	"context"

	"lottofun/internal/apperr"
	"lottofun/internal/models"
	"lottofun/internal/repository"
)

type UserService struct {
	Repo repository.Repository
}

func (s *UserService) Profile(ctx context.Context, userID uint64) (*models.User, error) {
	user, err := s.Repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFoundf("user %d", userID)
	}
	return user, nil
}
