package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartsplit-backend/pkg/errors"
)

type actorKey struct{}

// actor is the authenticated caller: a buyer placing orders, a seller reading
// what they sold, or a courier moving a shipment.
type actor struct {
	id   uuid.UUID
	role enums.Role
}

// WithActor injects the caller identity into the context.
func WithActor(ctx context.Context, userID uuid.UUID, role enums.Role) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey{}, actor{id: userID, role: role})
}

func actorFrom(ctx context.Context) (actor, bool) {
	if ctx == nil {
		return actor{}, false
	}
	a, ok := ctx.Value(actorKey{}).(actor)
	return a, ok && a.id != uuid.Nil
}

// ActorFromContext returns the authenticated user id and role.
func ActorFromContext(ctx context.Context) (uuid.UUID, enums.Role, error) {
	a, ok := actorFrom(ctx)
	if !ok {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "authenticated user required")
	}
	if !a.role.IsValid() {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "authenticated role required")
	}
	return a.id, a.role, nil
}

// UserIDFromContext is "" for anonymous requests.
func UserIDFromContext(ctx context.Context) string {
	if a, ok := actorFrom(ctx); ok {
		return a.id.String()
	}
	return ""
}

func RoleFromContext(ctx context.Context) enums.Role {
	a, _ := actorFrom(ctx)
	return a.role
}
