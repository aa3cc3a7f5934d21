package repository

import (
	"context"
	"time"

	"github.com/mr1hm/go-shelter-coverage/internal/models"
)

type Filter struct {
	Limit  int // 0 means no limit
	Offset int
}

type AreaRepository interface {
	UpsertArea(ctx context.Context, a *models.PopulationArea) error
	ListAreas(ctx context.Context, opts Filter) ([]models.PopulationArea, error)
	PruneAreas(ctx context.Context, before time.Time) (int64, error)
}

type ShelterRepository interface {
	UpsertShelter(ctx context.Context, s *models.ShelterSite) error
	ListShelters(ctx context.Context, opts Filter) ([]models.ShelterSite, error)
	PruneShelters(ctx context.Context, before time.Time) (int64, error)
}

type DatasetRepository interface {
	AreaRepository
	ShelterRepository
	Counts(ctx context.Context) (areas, shelters int, err error)
}
