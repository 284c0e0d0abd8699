package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mmeshcher/orderpay/internal/model"
)

type contextKey string

const actorKey contextKey = "actor"

// Заголовки, которые выставляет слой аутентификации перед сервисом.
const (
	ActorTypeHeader = "X-Actor-Type"
	ActorIDHeader   = "X-Actor-ID"
)

// Actor извлекает инициатора запроса из заголовков и кладёт его в контекст.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actorType := model.ActorType(strings.ToUpper(strings.TrimSpace(r.Header.Get(ActorTypeHeader))))
		if actorType == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		if !actorType.Valid() {
			http.Error(w, "unknown actor type", http.StatusBadRequest)
			return
		}

		actor := model.Actor{Type: actorType, ID: strings.TrimSpace(r.Header.Get(ActorIDHeader))}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// WithActor возвращает контекст с инициатором запроса.
func WithActor(ctx context.Context, actor model.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActorFromContext извлекает инициатора запроса из контекста.
func GetActorFromContext(ctx context.Context) (model.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(model.Actor)
	return actor, ok
}
