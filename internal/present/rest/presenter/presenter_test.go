package presenter

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/contentgraph/publishing/internal/domain"
)

func respond(t *testing.T, err error) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := DomainError(c, err); err != nil {
		t.Fatalf("DomainError returned %v", err)
	}
	return rec
}

func TestDomainErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", domain.NotFoundError{Resource: "document"}, http.StatusNotFound},
		{"wrapped not found", errors.Wrap(domain.NotFoundError{}, "loading"), http.StatusNotFound},
		{"conflict", domain.ConflictError{Message: "stale token"}, http.StatusConflict},
		{"validation", domain.ValidationError{Message: "bad"}, http.StatusUnprocessableEntity},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := respond(t, tc.err)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestValidationFieldsInBody(t *testing.T) {
	rec := respond(t, domain.ValidationError{
		Message: "invalid content payload",
		Fields:  map[string][]string{"content_id": {"must be a valid UUID"}},
	})
	body := rec.Body.String()
	for _, want := range []string{"invalid content payload", "content_id", "must be a valid UUID"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q: %s", want, body)
		}
	}
}
