package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mmeshcher/orderpay/internal/model"
)

func TestActor_FromHeaders(t *testing.T) {
	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		actor, ok := GetActorFromContext(r.Context())
		if !ok {
			t.Fatalf("actor not in context")
		}
		want := model.Actor{Type: model.ActorAdmin, ID: "ops-1"}
		if actor != want {
			t.Fatalf("actor = %+v, want %+v", actor, want)
		}
	})

	r := httptest.NewRequest(http.MethodGet, "/api/claims", nil)
	r.Header.Set(ActorTypeHeader, "admin")
	r.Header.Set(ActorIDHeader, "ops-1")

	Actor(next).ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestActor_Rejects(t *testing.T) {
	tests := []struct {
		name      string
		actorType string
		status    int
	}{
		{name: "missing", actorType: "", status: http.StatusUnauthorized},
		{name: "unknown", actorType: "ROBOT", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("next handler should not be called")
			})

			r := httptest.NewRequest(http.MethodGet, "/api/claims", nil)
			if tt.actorType != "" {
				r.Header.Set(ActorTypeHeader, tt.actorType)
			}
			w := httptest.NewRecorder()

			Actor(next).ServeHTTP(w, r)

			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
		})
	}
}
