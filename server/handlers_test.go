package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/claims", ListClaimsHandler())
	return r
}

func getStatus(t *testing.T, r *gin.Engine, target string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

// filter parsing rejects bad values before any query runs, so these
// paths need no database behind them
func TestListClaimsFilterValidation(t *testing.T) {
	r := newTestRouter()

	if code := getStatus(t, r, "/api/claims?status=bogus"); code != http.StatusBadRequest {
		t.Errorf("bad status filter: got %d, want 400", code)
	}
	if code := getStatus(t, r, "/api/claims?origin=bogus"); code != http.StatusBadRequest {
		t.Errorf("bad origin filter: got %d, want 400", code)
	}
}

func TestListClaimsClientIdFilterParsing(t *testing.T) {
	r := newTestRouter()

	if code := getStatus(t, r, "/api/claims?client_id=abc"); code != http.StatusBadRequest {
		t.Errorf("non-numeric client_id: got %d, want 400", code)
	}
	if code := getStatus(t, r, "/api/claims?client_id=-1"); code != http.StatusBadRequest {
		t.Errorf("negative client_id: got %d, want 400", code)
	}
}
