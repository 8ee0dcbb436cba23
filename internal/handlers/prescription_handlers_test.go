package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy_backend/internal/middleware"
	"pharmacy_backend/internal/models"
	"pharmacy_backend/internal/services"
)

// stubPrescriptionService lets each test script the service layer.
type stubPrescriptionService struct {
	updateStatusFn func(actor models.Actor, id int64, newStatus string) (*models.Prescription, error)
	getByIDFn      func(id int64) (*models.Prescription, error)
}

func (s *stubPrescriptionService) CreatePrescription(models.Actor, services.CreatePrescriptionRequest) (*models.Prescription, error) {
	return nil, nil
}

func (s *stubPrescriptionService) GetPrescriptionByID(id int64) (*models.Prescription, error) {
	if s.getByIDFn != nil {
		return s.getByIDFn(id)
	}
	return nil, services.ErrPrescriptionNotFound
}

func (s *stubPrescriptionService) GetPrescriptions(models.PrescriptionFilters) ([]models.Prescription, int, error) {
	return nil, 0, nil
}

func (s *stubPrescriptionService) UpdateStatus(actor models.Actor, id int64, newStatus string) (*models.Prescription, error) {
	return s.updateStatusFn(actor, id, newStatus)
}

func newPrescriptionTestRouter(svc services.PrescriptionService, actor models.Actor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		c.Set(middleware.ActorContextKey, actor)
		c.Next()
	})
	handler := NewPrescriptionHandler(svc)
	engine.PATCH("/prescriptions/:id/status", handler.UpdatePrescriptionStatus)
	engine.GET("/prescriptions/:id", handler.GetPrescriptionByID)
	return engine
}

func patchStatus(t *testing.T, engine *gin.Engine, id, status string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]string{"status": status})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPatch, "/prescriptions/"+id+"/status", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestUpdatePrescriptionStatus_OK(t *testing.T) {
	actor := models.Actor{UserID: 2, Username: "bob", Role: models.RolePharmacist}
	svc := &stubPrescriptionService{
		updateStatusFn: func(gotActor models.Actor, id int64, newStatus string) (*models.Prescription, error) {
			assert.Equal(t, actor, gotActor)
			assert.Equal(t, int64(12), id)
			assert.Equal(t, models.PrescriptionApproved, newStatus)
			return &models.Prescription{ID: id, Status: newStatus, PatientName: "John Smith"}, nil
		},
	}
	engine := newPrescriptionTestRouter(svc, actor)

	rec := patchStatus(t, engine, "12", models.PrescriptionApproved)
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Prescription
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, models.PrescriptionApproved, got.Status)
}

func TestUpdatePrescriptionStatus_ErrorMapping(t *testing.T) {
	actor := models.Actor{UserID: 2, Username: "bob", Role: models.RolePharmacist}

	cases := []struct {
		name       string
		serviceErr error
		wantStatus int
	}{
		{"not found", services.ErrPrescriptionNotFound, http.StatusNotFound},
		{"invalid transition", &services.InvalidStateTransitionError{PrescriptionID: 12, From: "DISPENSED", To: "APPROVED"}, http.StatusConflict},
		{"insufficient stock", &services.InsufficientStockError{DrugID: 1, Requested: 5, Available: 2}, http.StatusConflict},
		{"forbidden", services.ErrForbidden, http.StatusForbidden},
		{"validation", services.ErrValidation, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubPrescriptionService{
				updateStatusFn: func(models.Actor, int64, string) (*models.Prescription, error) {
					return nil, tc.serviceErr
				},
			}
			engine := newPrescriptionTestRouter(svc, actor)
			rec := patchStatus(t, engine, "12", models.PrescriptionApproved)
			assert.Equal(t, tc.wantStatus, rec.Code)
		})
	}
}

func TestUpdatePrescriptionStatus_BadRequests(t *testing.T) {
	actor := models.Actor{UserID: 2, Username: "bob", Role: models.RolePharmacist}
	svc := &stubPrescriptionService{
		updateStatusFn: func(models.Actor, int64, string) (*models.Prescription, error) {
			t.Fatal("service must not be reached")
			return nil, nil
		},
	}
	engine := newPrescriptionTestRouter(svc, actor)

	rec := patchStatus(t, engine, "not-a-number", models.PrescriptionApproved)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPatch, "/prescriptions/12/status", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing status field fails binding")
}

func TestGetPrescriptionByID_NotFound(t *testing.T) {
	actor := models.Actor{UserID: 2, Username: "bob", Role: models.RolePharmacist}
	engine := newPrescriptionTestRouter(&stubPrescriptionService{}, actor)

	req := httptest.NewRequest(http.MethodGet, "/prescriptions/99", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
