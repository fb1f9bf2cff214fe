package httptransport

//go:generate mockgen -source=events.go -destination=mocks/mocks.go -package=mocks Emitter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"autoflow/internal/events/models"
	"autoflow/internal/platform/metrics"
	"autoflow/internal/platform/middleware"
	"autoflow/internal/transport/http/mocks"
)

const serviceToken = "svc-token"

type RouterSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	emitter *mocks.MockEmitter
	ready   map[string]error
	router  chi.Router
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.emitter = mocks.NewMockEmitter(s.ctrl)
	s.ready = map[string]error{"database": nil, "broker": nil}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	checks := make(map[string]Check)
	for name := range s.ready {
		checks[name] = func(context.Context) error { return s.ready[name] }
	}
	reg := prometheus.NewRegistry()
	s.router = NewRouter(RouterConfig{
		Logger:       logger,
		Gatherer:     reg,
		HTTPMetrics:  metrics.NewHTTP(reg),
		Health:       NewHealthHandler(checks),
		Events:       NewEventHandler(s.emitter, logger),
		ServiceToken: serviceToken,
	})
}

func (s *RouterSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *RouterSuite) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *RouterSuite) emit(body string) *httptest.ResponseRecorder {
	return s.do(http.MethodPost, "/internal/v1/events", body, map[string]string{middleware.ServiceTokenHeader: serviceToken})
}

func (s *RouterSuite) TestLiveness() {
	rec := s.do(http.MethodGet, "/healthz", "", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"status":"ok"}`, rec.Body.String())
}

func (s *RouterSuite) TestReadiness() {
	rec := s.do(http.MethodGet, "/readyz", "", nil)
	s.Equal(http.StatusOK, rec.Code)

	s.ready["broker"] = errors.New("broker disconnected")
	rec = s.do(http.MethodGet, "/readyz", "", nil)
	s.Equal(http.StatusServiceUnavailable, rec.Code)

	var body readinessResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&body))
	s.Equal("unavailable", body.Status)
	s.Equal("broker disconnected", body.Checks["broker"])
	s.Equal("ok", body.Checks["database"])
}

func (s *RouterSuite) TestMetricsAreExposed() {
	s.do(http.MethodGet, "/healthz", "", nil)

	rec := s.do(http.MethodGet, "/metrics", "", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `autoflow_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
}

func (s *RouterSuite) TestEmitRequiresServiceToken() {
	rec := s.do(http.MethodPost, "/internal/v1/events", `{}`, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/internal/v1/events", `{}`, map[string]string{middleware.ServiceTokenHeader: "nope"})
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *RouterSuite) TestEmitAccepted() {
	tenantID, leadID, eventID := uuid.New(), uuid.New(), uuid.New()
	s.emitter.EXPECT().Emit(gomock.Any(), models.EmitSpec{
		EventType:  models.EventLeadCreated,
		TenantID:   tenantID,
		EntityType: models.EntityLead,
		EntityID:   leadID,
		Data:       map[string]any{"source": "whatsapp"},
	}).Return(&models.DomainEvent{ID: eventID, EventType: models.EventLeadCreated}, nil)

	rec := s.emit(`{"eventType":"lead.created","tenantId":"` + tenantID.String() +
		`","entityType":"lead","entityId":"` + leadID.String() + `","data":{"source":"whatsapp"}}`)

	s.Equal(http.StatusAccepted, rec.Code)
	var resp EmitResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
	s.Equal(eventID, resp.EventID)
}

func (s *RouterSuite) TestEmitRejectsBadInput() {
	s.Run("malformed body", func() {
		rec := s.emit(`{"eventType":`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("unknown field", func() {
		rec := s.emit(`{"eventType":"lead.created","bogus":1}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("missing entity id", func() {
		s.emitter.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil, models.ErrMissingEntityID)
		rec := s.emit(`{"eventType":"lead.created","tenantId":"` + uuid.NewString() + `","entityType":"lead"}`)
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Contains(rec.Body.String(), "entity id is required")
	})

	s.Run("validation error", func() {
		s.emitter.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil, models.ErrMissingTenant)
		rec := s.emit(`{"eventType":"lead.created","entityType":"lead"}`)
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Contains(rec.Body.String(), "tenant id is required")
	})
}

func (s *RouterSuite) TestEmitStoreFailureHidesDetail() {
	s.emitter.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil, errors.New("persist event: connection refused"))

	rec := s.emit(`{"eventType":"lead.created","tenantId":"` + uuid.NewString() + `","entityType":"lead"}`)

	s.Equal(http.StatusInternalServerError, rec.Code)
	s.JSONEq(`{"error":"internal_error"}`, rec.Body.String())
}
