package services

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"

	"danceBack/internal/models"
)

// CatalogService serves published courses and resources. Single records
// are cached; listings always hit the store.
type CatalogService struct {
	store     CatalogStore
	courses   *lru.LRU[int64, models.Course]
	resources *lru.LRU[int64, models.Resource]
}

func NewCatalogService(store CatalogStore, size int, ttl time.Duration) *CatalogService {
	if size < 10 {
		size = 10
	}
	return &CatalogService{
		store:     store,
		courses:   lru.NewLRU[int64, models.Course](size, nil, ttl),
		resources: lru.NewLRU[int64, models.Resource](size, nil, ttl),
	}
}

func (s *CatalogService) ListCourses(ctx context.Context, limit, offset int) ([]models.Course, error) {
	return s.store.ListCourses(ctx, limit, offset)
}

// Course returns the full outline of a published course.
func (s *CatalogService) Course(ctx context.Context, id int64) (models.Course, error) {
	if c, ok := s.courses.Get(id); ok {
		return c, nil
	}
	c, err := s.store.GetCourseOutline(ctx, id)
	if err != nil {
		return models.Course{}, err
	}
	if !c.Published {
		return models.Course{}, models.ErrCourseNotFound
	}
	s.courses.Add(id, c)
	return c, nil
}

func (s *CatalogService) ListResources(ctx context.Context, category string, limit, offset int) ([]models.Resource, error) {
	return s.store.ListResources(ctx, category, limit, offset)
}

func (s *CatalogService) Resource(ctx context.Context, id int64) (models.Resource, error) {
	if r, ok := s.resources.Get(id); ok {
		return r, nil
	}
	r, err := s.store.GetResource(ctx, id)
	if err != nil {
		return models.Resource{}, err
	}
	if !r.Published {
		return models.Resource{}, models.ErrResourceNotFound
	}
	s.resources.Add(id, r)
	return r, nil
}

// Price resolves the current title and unit price of a purchasable item.
func (s *CatalogService) Price(ctx context.Context, itemType string, itemID int64) (string, decimal.Decimal, error) {
	switch itemType {
	case models.ItemTypeCourse:
		c, err := s.store.GetCourse(ctx, itemID)
		if err != nil {
			return "", decimal.Zero, err
		}
		if !c.Published {
			return "", decimal.Zero, models.ErrCourseNotFound
		}
		return c.Title, c.Price, nil
	case models.ItemTypeResource:
		r, err := s.Resource(ctx, itemID)
		if err != nil {
			return "", decimal.Zero, err
		}
		return r.Title, r.Price, nil
	}
	return "", decimal.Zero, fmt.Errorf("%w: %q", models.ErrInvalidItemType, itemType)
}
