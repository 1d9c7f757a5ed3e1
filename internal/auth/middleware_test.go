package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func Test_NewAuthMiddleware_Cases(t *testing.T) {
	const token = "s3cret"

	tests := []struct {
		name       string
		configured string
		header     string
		wantStatus int
	}{
		{name: "valid token", configured: token, header: "Bearer s3cret", wantStatus: http.StatusOK},
		{name: "missing header", configured: token, header: "", wantStatus: http.StatusUnauthorized},
		{name: "wrong token", configured: token, header: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "token prefix only", configured: token, header: "Bearer s3c", wantStatus: http.StatusUnauthorized},
		{name: "lowercase scheme", configured: token, header: "bearer s3cret", wantStatus: http.StatusUnauthorized},
		{name: "two spaces", configured: token, header: "Bearer  s3cret", wantStatus: http.StatusUnauthorized},
		{name: "empty value", configured: token, header: "Bearer ", wantStatus: http.StatusUnauthorized},
		{name: "basic scheme", configured: token, header: "Basic s3cret", wantStatus: http.StatusUnauthorized},
		{name: "auth disabled", configured: "", header: "", wantStatus: http.StatusOK},
		{name: "auth disabled ignores header", configured: "", header: "Bearer anything", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAuthMiddleware(tt.configured)(okHandler())

			req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Code == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("401 without WWW-Authenticate header")
			}
		})
	}
}

func Test_NewAuthMiddleware_AsMuxMiddleware(t *testing.T) {
	r := mux.NewRouter()
	r.Handle("/open", okHandler())
	protected := r.PathPrefix("/mcp").Subrouter()
	protected.Use(NewAuthMiddleware("s3cret"))
	protected.NewRoute().Handler(okHandler())

	tests := []struct {
		path   string
		header string
		want   int
	}{
		{path: "/open", want: http.StatusOK},
		{path: "/mcp", want: http.StatusUnauthorized},
		{path: "/mcp", header: "Bearer s3cret", want: http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("%s (auth=%q): status = %d, want %d", tt.path, tt.header, rec.Code, tt.want)
		}
	}
}
