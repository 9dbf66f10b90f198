package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/dorm-adp-api/internal/models"
	appErrors "github.com/noah-isme/dorm-adp-api/pkg/errors"
)

type roomRepository interface {
	List(ctx context.Context, filter models.RoomFilter) ([]models.Room, int, error)
	FindByID(ctx context.Context, id string) (*models.Room, error)
	Occupants(ctx context.Context, roomID string) ([]models.RoomOccupant, error)
	ExistsByNumber(ctx context.Context, roomNumber string, excludeID string) (bool, error)
	Create(ctx context.Context, room *models.Room) error
	Update(ctx context.Context, room *models.Room) error
}

type roomDeleter interface {
	DeleteRoom(ctx context.Context, roomID string, force bool) (int, error)
}

type roomCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type cacheRecorder interface {
	RecordCacheOperation(hit bool, duration time.Duration)
}

const roomCachePrefix = "rooms:list:"

// CreateRoomRequest describes room creation payload.
type CreateRoomRequest struct {
	RoomNumber       string   `json:"room_number" validate:"required"`
	Type             string   `json:"type" validate:"required,oneof=SINGLE DOUBLE SUITE APARTMENT"`
	Capacity         int      `json:"capacity" validate:"required,min=1,max=12"`
	Price            float64  `json:"price" validate:"required,gt=0"`
	FloorLevel       int      `json:"floor_level" validate:"min=0"`
	QuietStudy       bool     `json:"quiet_study"`
	GenderPreference string   `json:"gender_preference" validate:"omitempty,oneof=ANY MALE FEMALE"`
	Amenities        []string `json:"amenities"`
}

// UpdateRoomRequest describes room update payload. Occupancy is never writable
// through this path.
type UpdateRoomRequest struct {
	RoomNumber       string   `json:"room_number" validate:"required"`
	Type             string   `json:"type" validate:"required,oneof=SINGLE DOUBLE SUITE APARTMENT"`
	Capacity         int      `json:"capacity" validate:"required,min=1,max=12"`
	Price            float64  `json:"price" validate:"required,gt=0"`
	FloorLevel       int      `json:"floor_level" validate:"min=0"`
	QuietStudy       bool     `json:"quiet_study"`
	GenderPreference string   `json:"gender_preference" validate:"omitempty,oneof=ANY MALE FEMALE"`
	Amenities        []string `json:"amenities"`
}

type roomListPage struct {
	Rooms []models.Room `json:"rooms"`
	Total int           `json:"total"`
}

// RoomService manages the room inventory.
type RoomService struct {
	repo      roomRepository
	deleter   roomDeleter
	cache     roomCache
	metrics   cacheRecorder
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRoomService constructs RoomService. Cache and metrics may be nil.
func NewRoomService(repo roomRepository, deleter roomDeleter, cache roomCache, metrics cacheRecorder, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *RoomService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &RoomService{repo: repo, deleter: deleter, cache: cache, metrics: metrics, cacheTTL: cacheTTL, validator: validate, logger: logger}
}

// List returns rooms matching the filter. Results are cached per filter; any
// room mutation invalidates the whole listing namespace.
func (s *RoomService) List(ctx context.Context, filter models.RoomFilter) ([]models.Room, *models.Pagination, error) {
	key := roomListCacheKey(filter)
	if s.cache != nil {
		started := time.Now()
		var cached roomListPage
		err := s.cache.Get(ctx, key, &cached)
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(err == nil, time.Since(started))
		}
		if err == nil {
			return cached.Rooms, paginationFor(filter.Page, filter.PageSize, cached.Total), nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("room list cache read failed", zap.Error(err))
		}
	}

	rooms, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rooms")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, roomListPage{Rooms: rooms, Total: total}, s.cacheTTL); err != nil {
			s.logger.Warn("room list cache write failed", zap.Error(err))
		}
	}
	return rooms, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a room with its occupant roster.
func (s *RoomService) Get(ctx context.Context, id string) (*models.RoomDetail, error) {
	room, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
	}
	occupants, err := s.repo.Occupants(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room occupants")
	}
	return &models.RoomDetail{Room: *room, Occupants: occupants}, nil
}

// Create adds a room to the inventory.
func (s *RoomService) Create(ctx context.Context, req CreateRoomRequest) (*models.Room, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid room payload")
	}
	exists, err := s.repo.ExistsByNumber(ctx, req.RoomNumber, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate room number")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "room number already in use")
	}
	pref := models.GenderPreference(req.GenderPreference)
	if pref == "" {
		pref = models.GenderPreferenceAny
	}
	room := &models.Room{
		RoomNumber:       req.RoomNumber,
		Type:             models.RoomType(req.Type),
		Capacity:         req.Capacity,
		Price:            req.Price,
		FloorLevel:       req.FloorLevel,
		QuietStudy:       req.QuietStudy,
		GenderPreference: pref,
		Amenities:        req.Amenities,
	}
	if err := s.repo.Create(ctx, room); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create room")
	}
	s.invalidate(ctx)
	s.logger.Info("room created", zap.String("room_id", room.ID), zap.String("room_number", room.RoomNumber))
	return room, nil
}

// Update modifies a room's descriptive fields. Capacity may not drop below the
// current occupancy.
func (s *RoomService) Update(ctx context.Context, id string, req UpdateRoomRequest) (*models.Room, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid room payload")
	}
	room, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
	}
	if req.Capacity < room.Occupied {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("capacity %d below current occupancy %d", req.Capacity, room.Occupied))
	}
	if req.RoomNumber != room.RoomNumber {
		exists, err := s.repo.ExistsByNumber(ctx, req.RoomNumber, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate room number")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "room number already in use")
		}
	}
	room.RoomNumber = req.RoomNumber
	room.Type = models.RoomType(req.Type)
	room.Capacity = req.Capacity
	room.Price = req.Price
	room.FloorLevel = req.FloorLevel
	room.QuietStudy = req.QuietStudy
	if req.GenderPreference != "" {
		room.GenderPreference = models.GenderPreference(req.GenderPreference)
	}
	room.Amenities = req.Amenities
	if err := s.repo.Update(ctx, room); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update room")
	}
	room.IsAvailable = room.Occupied < room.Capacity
	s.invalidate(ctx)
	return room, nil
}

// Delete removes a room. Occupied rooms are rejected unless force is set, in
// which case all occupants are unassigned first. Returns the number of
// students that were unassigned.
func (s *RoomService) Delete(ctx context.Context, id string, force bool) (int, error) {
	unassigned, err := s.deleter.DeleteRoom(ctx, id, force)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return 0, appErr
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete room")
	}
	s.invalidate(ctx)
	s.logger.Info("room deleted", zap.String("room_id", id), zap.Int("unassigned", unassigned), zap.Bool("force", force))
	return unassigned, nil
}

// InvalidateRooms drops every cached room listing.
func (s *RoomService) InvalidateRooms(ctx context.Context) {
	s.invalidate(ctx)
}

func (s *RoomService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, roomCachePrefix+"*"); err != nil {
		s.logger.Warn("room list cache invalidation failed", zap.Error(err))
	}
}

func roomListCacheKey(filter models.RoomFilter) string {
	available := "any"
	if filter.Available != nil {
		available = fmt.Sprintf("%t", *filter.Available)
	}
	minPrice, maxPrice := "", ""
	if filter.MinPrice != nil {
		minPrice = fmt.Sprintf("%.2f", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		maxPrice = fmt.Sprintf("%.2f", *filter.MaxPrice)
	}
	floor := ""
	if filter.FloorLevel != nil {
		floor = fmt.Sprintf("%d", *filter.FloorLevel)
	}
	quiet := "any"
	if filter.QuietStudy != nil {
		quiet = fmt.Sprintf("%t", *filter.QuietStudy)
	}
	return fmt.Sprintf("%s%s:%s:%s:%s:%s:%s:%s:%d:%d:%s:%s",
		roomCachePrefix, available, filter.Type, minPrice, maxPrice, floor, quiet, filter.Search,
		filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder)
}

func paginationFor(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
