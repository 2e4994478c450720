package service

import (
	"context"
	"strings"

	"geounity/internal/model"
	"geounity/internal/repository/mysql"

	"gorm.io/gorm"
)

const maxTagPage = 100

type TagService struct {
	db *gorm.DB
}

func NewTagService(db *gorm.DB) *TagService {
	return &TagService{db: db}
}

// List returns tags ordered by name, optionally filtered by a substring of q.
func (s *TagService) List(ctx context.Context, skip, limit int, q string) ([]model.Tag, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 || limit > maxTagPage {
		limit = maxTagPage
	}
	list, err := (&mysql.TagRepository{DB: s.db}).List(ctx, strings.TrimSpace(q), skip, limit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.Tag{}
	}
	return list, nil
}
