package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuemby/bee/pkg/health"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
)

func TestReadyReturnsOKWhenBackendCLIPresent(t *testing.T) {
	router := mux.NewRouter()
	NewReadinessServer(router, health.NewExecChecker([]string{"true"}))

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyReturnsUnavailableWhenBackendCLIMissing(t *testing.T) {
	router := mux.NewRouter()
	NewReadinessServer(router, health.NewExecChecker([]string{"false"}))

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
