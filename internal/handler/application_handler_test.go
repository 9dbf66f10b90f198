package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dorm-adp-api/internal/middleware"
	"github.com/noah-isme/dorm-adp-api/internal/models"
	"github.com/noah-isme/dorm-adp-api/internal/service"
)

type applicationRepoStub struct {
	applications map[string]models.Application
	submitted    map[string]bool
}

func (s *applicationRepoStub) List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error) {
	var out []models.ApplicationDetail
	for _, a := range s.applications {
		out = append(out, models.ApplicationDetail{Application: a})
	}
	return out, len(out), nil
}

func (s *applicationRepoStub) FindByID(ctx context.Context, id string) (*models.Application, error) {
	if a, ok := s.applications[id]; ok {
		return &a, nil
	}
	return nil, sql.ErrNoRows
}

func (s *applicationRepoStub) FindDetailByID(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	if a, ok := s.applications[id]; ok {
		return &models.ApplicationDetail{Application: a}, nil
	}
	return nil, sql.ErrNoRows
}

func (s *applicationRepoStub) ExistsSubmitted(ctx context.Context, studentID, roomID string) (bool, error) {
	return s.submitted[studentID+roomID], nil
}

func (s *applicationRepoStub) Create(ctx context.Context, application *models.Application) error {
	if s.applications == nil {
		s.applications = make(map[string]models.Application)
	}
	if application.ID == "" {
		application.ID = "new-app"
	}
	s.applications[application.ID] = *application
	return nil
}

func (s *applicationRepoStub) UpdateStatus(ctx context.Context, id string, status models.ApplicationStatus, decidedBy *string) error {
	if a, ok := s.applications[id]; ok {
		a.Status = status
		a.DecidedBy = decidedBy
		s.applications[id] = a
	}
	return nil
}

type assignerStub struct {
	assigned [][2]string
	err      error
}

func (s *assignerStub) Assign(ctx context.Context, roomID, studentID string) (*models.RoomDetail, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.assigned = append(s.assigned, [2]string{roomID, studentID})
	return &models.RoomDetail{}, nil
}

func (s *assignerStub) Unassign(ctx context.Context, roomID, studentID string) (*models.RoomDetail, error) {
	return &models.RoomDetail{}, nil
}

func newApplicationHandlerFixture(repo *applicationRepoStub, assigner *assignerStub) *ApplicationHandler {
	students := &studentReaderStub{students: map[string]*models.StudentDetail{
		"s1": {Student: models.Student{ID: "s1", Gender: "FEMALE", Active: true}},
	}}
	rooms := &roomRepoStub{rooms: map[string]*models.Room{
		"r1": {ID: "r1", RoomNumber: "101", Capacity: 2, IsAvailable: true, GenderPreference: models.GenderPreferenceAny},
	}}
	if assigner == nil {
		assigner = &assignerStub{}
	}
	applications := service.NewApplicationService(repo, students, rooms, assigner, nil, nil, nil)
	return NewApplicationHandler(applications)
}

func staffClaims(c *gin.Context) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
}

func TestApplicationHandlerSubmit(t *testing.T) {
	repo := &applicationRepoStub{}
	handler := newApplicationHandlerFixture(repo, nil)

	payload, _ := json.Marshal(service.SubmitApplicationRequest{StudentID: "s1", RoomID: "r1"})
	c, w := testContext(t, http.MethodPost, "/applications", payload)
	handler.Submit(c)
	require.Equal(t, http.StatusCreated, w.Code)

	var envelope struct {
		Data models.ApplicationDetail `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, models.ApplicationStatusSubmitted, envelope.Data.Status)
}

func TestApplicationHandlerSubmitDuplicate(t *testing.T) {
	repo := &applicationRepoStub{submitted: map[string]bool{"s1r1": true}}
	handler := newApplicationHandlerFixture(repo, nil)

	payload, _ := json.Marshal(service.SubmitApplicationRequest{StudentID: "s1", RoomID: "r1"})
	c, w := testContext(t, http.MethodPost, "/applications", payload)
	handler.Submit(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestApplicationHandlerSubmitMalformedBody(t *testing.T) {
	handler := newApplicationHandlerFixture(&applicationRepoStub{}, nil)

	c, w := testContext(t, http.MethodPost, "/applications", []byte(`{"student_id":`))
	handler.Submit(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApplicationHandlerApprove(t *testing.T) {
	repo := &applicationRepoStub{applications: map[string]models.Application{
		"a1": {ID: "a1", StudentID: "s1", RoomID: "r1", Status: models.ApplicationStatusSubmitted},
	}}
	assigner := &assignerStub{}
	handler := newApplicationHandlerFixture(repo, assigner)

	c, w := testContext(t, http.MethodPost, "/applications/a1/approve", nil)
	c.Params = gin.Params{{Key: "id", Value: "a1"}}
	staffClaims(c)
	handler.Approve(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, assigner.assigned, 1)
	assert.Equal(t, [2]string{"r1", "s1"}, assigner.assigned[0])
	assert.Equal(t, models.ApplicationStatusApproved, repo.applications["a1"].Status)
}

func TestApplicationHandlerApproveWithoutClaims(t *testing.T) {
	handler := newApplicationHandlerFixture(&applicationRepoStub{}, nil)

	c, w := testContext(t, http.MethodPost, "/applications/a1/approve", nil)
	c.Params = gin.Params{{Key: "id", Value: "a1"}}
	handler.Approve(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestApplicationHandlerReject(t *testing.T) {
	repo := &applicationRepoStub{applications: map[string]models.Application{
		"a1": {ID: "a1", StudentID: "s1", RoomID: "r1", Status: models.ApplicationStatusSubmitted},
	}}
	handler := newApplicationHandlerFixture(repo, nil)

	c, w := testContext(t, http.MethodPost, "/applications/a1/reject", []byte(`{"reason":"no documents"}`))
	c.Params = gin.Params{{Key: "id", Value: "a1"}}
	staffClaims(c)
	handler.Reject(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ApplicationStatusRejected, repo.applications["a1"].Status)
}

func TestApplicationHandlerCancel(t *testing.T) {
	repo := &applicationRepoStub{applications: map[string]models.Application{
		"a1": {ID: "a1", StudentID: "s1", RoomID: "r1", Status: models.ApplicationStatusSubmitted},
	}}
	handler := newApplicationHandlerFixture(repo, nil)

	c, w := testContext(t, http.MethodPost, "/applications/a1/cancel", nil)
	c.Params = gin.Params{{Key: "id", Value: "a1"}}
	handler.Cancel(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ApplicationStatusCancelled, repo.applications["a1"].Status)
}
