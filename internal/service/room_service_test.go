package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/dorm-adp-api/internal/models"
	appErrors "github.com/noah-isme/dorm-adp-api/pkg/errors"
)

type mockRoomRepo struct {
	rooms     map[string]*models.Room
	listCalls int
}

func (m *mockRoomRepo) List(ctx context.Context, filter models.RoomFilter) ([]models.Room, int, error) {
	m.listCalls++
	var out []models.Room
	for _, r := range m.rooms {
		out = append(out, *r)
	}
	return out, len(out), nil
}

func (m *mockRoomRepo) FindByID(ctx context.Context, id string) (*models.Room, error) {
	if r, ok := m.rooms[id]; ok {
		return r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRoomRepo) Occupants(ctx context.Context, roomID string) ([]models.RoomOccupant, error) {
	return nil, nil
}

func (m *mockRoomRepo) ExistsByNumber(ctx context.Context, roomNumber string, excludeID string) (bool, error) {
	for _, r := range m.rooms {
		if r.RoomNumber == roomNumber && r.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRoomRepo) Create(ctx context.Context, room *models.Room) error {
	if m.rooms == nil {
		m.rooms = make(map[string]*models.Room)
	}
	if room.ID == "" {
		room.ID = "new-room"
	}
	m.rooms[room.ID] = room
	return nil
}

func (m *mockRoomRepo) Update(ctx context.Context, room *models.Room) error {
	m.rooms[room.ID] = room
	return nil
}

type mockRoomDeleter struct {
	result int
	err    error
	force  bool
}

func (m *mockRoomDeleter) DeleteRoom(ctx context.Context, roomID string, force bool) (int, error) {
	m.force = force
	if m.err != nil {
		return 0, m.err
	}
	return m.result, nil
}

type mockRoomCache struct {
	entries map[string][]byte
	deleted []string
	sets    int
	hits    int
	misses  int
}

func (m *mockRoomCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		m.misses++
		return appErrors.ErrCacheMiss
	}
	m.hits++
	return json.Unmarshal(raw, dest)
}

func (m *mockRoomCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.entries == nil {
		m.entries = make(map[string][]byte)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	m.sets++
	return nil
}

func (m *mockRoomCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.deleted = append(m.deleted, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

type mockCacheRecorder struct {
	hits   int
	misses int
}

func (m *mockCacheRecorder) RecordCacheOperation(hit bool, duration time.Duration) {
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

func TestRoomServiceListCachesResults(t *testing.T) {
	repo := &mockRoomRepo{rooms: map[string]*models.Room{"r1": {ID: "r1", RoomNumber: "101", Capacity: 2}}}
	cache := &mockRoomCache{}
	recorder := &mockCacheRecorder{}
	svc := NewRoomService(repo, &mockRoomDeleter{}, cache, recorder, time.Minute, validator.New(), zap.NewNop())

	rooms, pagination, err := svc.List(context.Background(), models.RoomFilter{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
	assert.Equal(t, 1, pagination.TotalCount)
	assert.Equal(t, 1, repo.listCalls)
	assert.Equal(t, 1, recorder.misses)

	rooms, _, err = svc.List(context.Background(), models.RoomFilter{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
	assert.Equal(t, 1, repo.listCalls, "second list must be served from cache")
	assert.Equal(t, 1, recorder.hits)
}

func TestRoomServiceCreateInvalidatesCache(t *testing.T) {
	repo := &mockRoomRepo{rooms: map[string]*models.Room{}}
	cache := &mockRoomCache{}
	svc := NewRoomService(repo, &mockRoomDeleter{}, cache, nil, time.Minute, validator.New(), zap.NewNop())

	_, _, err := svc.List(context.Background(), models.RoomFilter{Page: 1, PageSize: 20})
	require.NoError(t, err)
	require.Equal(t, 1, cache.sets)

	room, err := svc.Create(context.Background(), CreateRoomRequest{RoomNumber: "101", Type: "DOUBLE", Capacity: 2, Price: 450})
	require.NoError(t, err)
	assert.Equal(t, models.GenderPreferenceAny, room.GenderPreference)
	assert.Contains(t, cache.deleted, roomCachePrefix+"*")
	assert.Empty(t, cache.entries)
}

func TestRoomServiceCreateDuplicateNumber(t *testing.T) {
	repo := &mockRoomRepo{rooms: map[string]*models.Room{"r1": {ID: "r1", RoomNumber: "101"}}}
	svc := NewRoomService(repo, &mockRoomDeleter{}, nil, nil, time.Minute, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), CreateRoomRequest{RoomNumber: "101", Type: "SINGLE", Capacity: 1, Price: 300})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestRoomServiceUpdateCapacityBelowOccupancy(t *testing.T) {
	repo := &mockRoomRepo{rooms: map[string]*models.Room{"r1": {ID: "r1", RoomNumber: "101", Capacity: 4, Occupied: 3}}}
	svc := NewRoomService(repo, &mockRoomDeleter{}, nil, nil, time.Minute, validator.New(), zap.NewNop())

	_, err := svc.Update(context.Background(), "r1", UpdateRoomRequest{RoomNumber: "101", Type: "SUITE", Capacity: 2, Price: 700})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
	assert.Equal(t, 4, repo.rooms["r1"].Capacity)
}

func TestRoomServiceUpdateRecomputesAvailability(t *testing.T) {
	repo := &mockRoomRepo{rooms: map[string]*models.Room{"r1": {ID: "r1", RoomNumber: "101", Capacity: 2, Occupied: 2, IsAvailable: false}}}
	svc := NewRoomService(repo, &mockRoomDeleter{}, nil, nil, time.Minute, validator.New(), zap.NewNop())

	room, err := svc.Update(context.Background(), "r1", UpdateRoomRequest{RoomNumber: "101", Type: "SUITE", Capacity: 3, Price: 700})
	require.NoError(t, err)
	assert.True(t, room.IsAvailable)
}

func TestRoomServiceDeleteOccupiedWithoutForce(t *testing.T) {
	deleter := &mockRoomDeleter{err: appErrors.ErrRoomOccupied}
	svc := NewRoomService(&mockRoomRepo{}, deleter, nil, nil, time.Minute, validator.New(), zap.NewNop())

	_, err := svc.Delete(context.Background(), "r1", false)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrRoomOccupied.Code, appErr.Code)
}

func TestRoomServiceDeleteForceReportsUnassigned(t *testing.T) {
	deleter := &mockRoomDeleter{result: 2}
	cache := &mockRoomCache{}
	svc := NewRoomService(&mockRoomRepo{}, deleter, cache, nil, time.Minute, validator.New(), zap.NewNop())

	unassigned, err := svc.Delete(context.Background(), "r1", true)
	require.NoError(t, err)
	assert.Equal(t, 2, unassigned)
	assert.True(t, deleter.force)
	assert.Contains(t, cache.deleted, roomCachePrefix+"*")
}
