package resp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ncobase/jobstream/pkg/ecode"
)

func TestSuccessEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	Success(w, map[string]any{"id": "job1"})

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["id"] != "job1" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestWithStatusCode(t *testing.T) {
	w := httptest.NewRecorder()
	WithStatusCode(w, http.StatusAccepted, map[string]any{"id": "job1"})

	if w.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", w.Code)
	}
}

func TestFailEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	Fail(w, NotFound("job not found"))

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	var body Exception
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != ecode.NothingFound || body.Message != "job not found" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestFailNilDefaultsToServerError(t *testing.T) {
	w := httptest.NewRecorder()
	Fail(w, nil)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestErrorConstructors(t *testing.T) {
	cases := []struct {
		ex     *Exception
		status int
		code   int
	}{
		{BadRequest("x"), http.StatusBadRequest, ecode.RequestErr},
		{UnAuthorized("x"), http.StatusUnauthorized, ecode.Unauthorized},
		{Forbidden("x"), http.StatusForbidden, ecode.AccessDenied},
		{NotFound("x"), http.StatusNotFound, ecode.NothingFound},
		{Conflict("x"), http.StatusConflict, ecode.Conflict},
		{TooManyRequests("x"), http.StatusTooManyRequests, ecode.LimitExceed},
		{InternalServer("x"), http.StatusInternalServerError, ecode.ServerErr},
		{ServiceUnavailable("x"), http.StatusServiceUnavailable, ecode.ServiceUnavail},
	}
	for _, c := range cases {
		if c.ex.Status != c.status || c.ex.Code != c.code {
			t.Errorf("constructor mismatch: %+v, want status=%d code=%d", c.ex, c.status, c.code)
		}
	}
}
