package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/iago/reportflow/internal/domain"
)

const (
	UserIDHeader         = "X-User-Id"
	OrganizationIDHeader = "X-Organization-Id"
)

type actorContextKey struct{}

// Actor is the caller on whose behalf a request runs. Both ids may be zero.
type Actor struct {
	UserID         domain.ID
	OrganizationID domain.ID
}

// Identity reads the caller's user and organization ids from request headers.
// Malformed ids are rejected; missing ones are left zero for handlers to
// require where needed.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var actor Actor
		for _, item := range []struct {
			header string
			target *domain.ID
		}{
			{UserIDHeader, &actor.UserID},
			{OrganizationIDHeader, &actor.OrganizationID},
		} {
			raw := strings.TrimSpace(r.Header.Get(item.header))
			if raw == "" {
				continue
			}
			id, err := domain.ParseID(raw)
			if err != nil {
				writeError(w, r, http.StatusBadRequest, "invalid_request", item.header+" has an invalid format")
				return
			}
			*item.target = id
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorContextKey{}, actor)))
	})
}

func GetActor(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}
