package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"pagemd/internal/governance"
	id "pagemd/pkg/domain"
	dErrors "pagemd/pkg/domain-errors"
	"pagemd/pkg/testutil"
)

// stubService records calls and returns canned results.
type stubService struct {
	templates  []governance.RoleTemplate
	syncResult governance.SyncResult
	syncErr    error

	createdBy  id.OperatorID
	syncedKey  string
	syncClinic id.ClinicID
}

func (s *stubService) ListTemplates(context.Context) ([]governance.RoleTemplate, error) {
	return s.templates, nil
}

func (s *stubService) GetTemplate(_ context.Context, roleKey string) (governance.RoleTemplate, error) {
	for _, tpl := range s.templates {
		if tpl.RoleKey == roleKey {
			return tpl, nil
		}
	}
	return governance.RoleTemplate{}, dErrors.New(dErrors.CodeNotFound, "role template not found")
}

func (s *stubService) CreateTemplate(_ context.Context, operatorID id.OperatorID, in governance.TemplateInput) (governance.RoleTemplate, error) {
	s.createdBy = operatorID
	return governance.RoleTemplate{
		RoleKey:     in.RoleKey,
		DisplayName: in.DisplayName,
		Version:     1,
		Privileges:  in.Privileges,
	}, nil
}

func (s *stubService) UpdateTemplate(_ context.Context, _ id.OperatorID, roleKey string, in governance.TemplateInput) (governance.RoleTemplate, error) {
	return governance.RoleTemplate{RoleKey: roleKey, DisplayName: in.DisplayName, Version: 2}, nil
}

func (s *stubService) DeleteTemplate(context.Context, id.OperatorID, string) error {
	return nil
}

func (s *stubService) DetectDrift(context.Context, id.ClinicID) ([]governance.DriftReport, error) {
	return []governance.DriftReport{}, nil
}

func (s *stubService) SyncRole(_ context.Context, clinicID id.ClinicID, roleKey string, _ id.OperatorID) (governance.SyncResult, error) {
	s.syncClinic = clinicID
	s.syncedKey = roleKey
	return s.syncResult, s.syncErr
}

func (s *stubService) SyncAllClinics(context.Context, id.OperatorID) ([]governance.ClinicSyncOutcome, error) {
	return []governance.ClinicSyncOutcome{}, nil
}

type HandlerSuite struct {
	suite.Suite
	service    *stubService
	router     chi.Router
	operatorID string
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.service = &stubService{}
	s.router = chi.NewRouter()
	New(s.service, slog.Default()).Register(s.router)
	s.operatorID = uuid.NewString()
}

func (s *HandlerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req = testutil.WithOperator(req, s.operatorID)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) TestCreateTemplateStampsOperator() {
	rec := s.do(http.MethodPost, "/governance/templates",
		`{"roleKey":"PHYSICIAN","displayName":"Physician","privileges":["notes:sign"]}`)

	s.Equal(http.StatusCreated, rec.Code)
	s.Equal(s.operatorID, s.service.createdBy.String())

	var resp map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("PHYSICIAN", resp["roleKey"])
	s.Equal(float64(1), resp["version"])
}

func (s *HandlerSuite) TestCreateTemplateRejectsBadBody() {
	rec := s.do(http.MethodPost, "/governance/templates", `{not json`)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestGetTemplateNotFound() {
	rec := s.do(http.MethodGet, "/governance/templates/NOPE", "")
	s.Equal(http.StatusNotFound, rec.Code)

	var resp map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal(string(dErrors.CodeNotFound), resp["error"])
}

func (s *HandlerSuite) TestSyncRoleRoutesClinicAndKey() {
	clinicID := uuid.NewString()
	s.service.syncResult = governance.SyncResult{RoleKey: "PHYSICIAN", TemplateVersion: 3}

	rec := s.do(http.MethodPost, "/clinics/"+clinicID+"/governance/sync", `{"roleKey":"PHYSICIAN"}`)

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("PHYSICIAN", s.service.syncedKey)
	s.Equal(clinicID, s.service.syncClinic.String())
}

func (s *HandlerSuite) TestSyncRoleRequiresRoleKey() {
	rec := s.do(http.MethodPost, "/clinics/"+uuid.NewString()+"/governance/sync", `{}`)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestSyncInProgressMapsToConflictStatus() {
	s.service.syncErr = dErrors.New(dErrors.CodeSyncInProgress, "sync already running for this clinic")

	rec := s.do(http.MethodPost, "/clinics/"+uuid.NewString()+"/governance/sync", `{"roleKey":"PHYSICIAN"}`)

	s.Equal(http.StatusConflict, rec.Code)
	var resp map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal(string(dErrors.CodeSyncInProgress), resp["error"])
}

func (s *HandlerSuite) TestDriftRejectsMalformedClinicID() {
	rec := s.do(http.MethodGet, "/clinics/not-a-uuid/governance/drift", "")
	s.Equal(http.StatusBadRequest, rec.Code)
}
