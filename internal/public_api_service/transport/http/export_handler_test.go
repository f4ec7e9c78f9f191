package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	exportApp "github.com/movielib/golang_services/internal/export_service/app"
	exportDomain "github.com/movielib/golang_services/internal/export_service/domain"
	"github.com/movielib/golang_services/internal/platform/messagebroker"
	"github.com/movielib/golang_services/internal/public_api_service/middleware"
	adapter_http "github.com/movielib/golang_services/internal/public_api_service/transport/http"
)

// MockExportRequester for testing ExportHandler
type MockExportRequester struct {
	mock.Mock
}

func (m *MockExportRequester) RequestExport(ctx context.Context, req exportDomain.ExportRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

// MockPublisher stands in for the AMQP client behind a real ExportProducer.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, body []byte) error {
	args := m.Called(ctx, body)
	return args.Error(0)
}

type staticAvailability bool

func (a staticAvailability) Available() bool { return bool(a) }

var testJWT = middleware.JWTConfig{
	Secret:   "iut_secret_key",
	Issuer:   "urn:issuer:iut",
	Audience: "urn:audience:iut",
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func adminUser() *middleware.AuthenticatedUser {
	return &middleware.AuthenticatedUser{ID: 7, Email: "admin@example.com", Scopes: []string{"admin"}}
}

func decodeMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body adapter_http.ExportAcceptedResponseDTO
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body.Message
}

func TestExportHandler_RequestMovieExport_Success(t *testing.T) {
	requester := new(MockExportRequester)
	handler := adapter_http.NewExportHandler(requester, discardLogger())

	requester.On("RequestExport", mock.Anything, exportDomain.ExportRequest{UserEmail: "admin@example.com", UserID: 7}).
		Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/export/movies", nil)
	req = req.WithContext(middleware.WithUser(req.Context(), adminUser()))
	rr := httptest.NewRecorder()

	handler.RequestMovieExport(rr, req)

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, adapter_http.ExportAcceptedMessage, decodeMessage(t, rr))
	requester.AssertExpectations(t)
}

func TestExportHandler_RequestMovieExport_Unauthorized(t *testing.T) {
	requester := new(MockExportRequester) // Not called
	handler := adapter_http.NewExportHandler(requester, discardLogger())

	rr := httptest.NewRecorder()
	handler.RequestMovieExport(rr, httptest.NewRequest(http.MethodPost, "/export/movies", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	requester.AssertNotCalled(t, "RequestExport", mock.Anything, mock.Anything)
}

func TestExportHandler_RequestMovieExport_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid request", fmt.Errorf("%w: userEmail", exportDomain.ErrInvalidExportRequest), http.StatusBadRequest},
		{"broker unavailable", fmt.Errorf("%w: dial tcp: connection refused", messagebroker.ErrBrokerUnavailable), http.StatusInternalServerError},
		{"publish failed", errors.New("channel closed"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requester := new(MockExportRequester)
			handler := adapter_http.NewExportHandler(requester, discardLogger())
			requester.On("RequestExport", mock.Anything, mock.Anything).Return(tt.err).Once()

			req := httptest.NewRequest(http.MethodPost, "/export/movies", nil)
			req = req.WithContext(middleware.WithUser(req.Context(), adminUser()))
			rr := httptest.NewRecorder()

			handler.RequestMovieExport(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			requester.AssertExpectations(t)
		})
	}
}

func signedToken(t *testing.T, scope any) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"aud":   testJWT.Audience,
		"iss":   testJWT.Issuer,
		"id":    7,
		"email": "admin@example.com",
		"scope": scope,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testJWT.Secret))
	require.NoError(t, err)
	return token
}

func newTestRouter(publisher exportApp.Publisher, exportAvailable bool) http.Handler {
	logger := discardLogger()
	producer := exportApp.NewExportProducer(publisher, nil, logger)
	return adapter_http.NewRouter(adapter_http.RouterConfig{
		JWT:           testJWT,
		ExportHandler: adapter_http.NewExportHandler(producer, logger),
		HealthHandler: adapter_http.NewHealthHandler(staticAvailability(exportAvailable), logger),
		Logger:        logger,
	})
}

func TestRouter_ExportMovies(t *testing.T) {
	publisher := new(MockPublisher)
	router := newTestRouter(publisher, true)

	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(body []byte) bool {
		var req exportDomain.ExportRequest
		return json.Unmarshal(body, &req) == nil && req.UserEmail == "admin@example.com" && req.UserID == 7
	})).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/export/movies", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, []string{"admin"}))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, adapter_http.ExportAcceptedMessage, decodeMessage(t, rr))
	publisher.AssertExpectations(t)
}

func TestRouter_ExportMovies_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"user scope", "Bearer " + signedToken(t, []string{"user"}), http.StatusForbidden},
		{"tampered token", "Bearer " + signedToken(t, "admin") + "x", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher := new(MockPublisher)
			router := newTestRouter(publisher, true)

			req := httptest.NewRequest(http.MethodPost, "/export/movies", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
		})
	}
}

func TestRouter_ExportMovies_BrokerDown(t *testing.T) {
	publisher := new(MockPublisher)
	router := newTestRouter(publisher, false)
	publisher.On("Publish", mock.Anything, mock.Anything).
		Return(fmt.Errorf("%w: dial tcp 127.0.0.1:5672: connection refused", messagebroker.ErrBrokerUnavailable)).Once()

	req := httptest.NewRequest(http.MethodPost, "/export/movies", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "admin"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	publisher.AssertExpectations(t)
}

func TestRouter_Health(t *testing.T) {
	for _, available := range []bool{true, false} {
		t.Run(fmt.Sprintf("export available %v", available), func(t *testing.T) {
			router := newTestRouter(new(MockPublisher), available)

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, http.StatusOK, rr.Code)
			var body adapter_http.HealthResponseDTO
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, "ok", body.Status)
			if available {
				assert.Equal(t, "available", body.Export)
			} else {
				assert.Equal(t, "unavailable", body.Export)
			}
		})
	}
}

func TestRouter_Metrics(t *testing.T) {
	router := newTestRouter(new(MockPublisher), true)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "movielib_http_requests_total")
}
