package tests

import (
	"net/http"
	"strings"
	"testing"
)

func Test_metrics(t *testing.T) {
	app := setup(t)

	// a failed login resolves to 400 through the error handler, not in the handler itself
	req, rec := newRequest(http.MethodPost, "/v1/users/login", marchallObj(t, map[string]string{}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
	}

	req, rec = newRequest(http.MethodGet, "/metrics")
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v", rec.Code)
	}

	want := `http_requests_total{method="POST",path="/v1/users/login",status="400"}`
	if !strings.Contains(rec.Body.String(), want) {
		t.Errorf("failed! metrics output missing %q", want)
	}
}
