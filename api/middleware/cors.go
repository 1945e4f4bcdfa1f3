package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/angelmondragon/cartsplit-backend/api/responses"
)

// CORS applies the storefront origin policy.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", IdempotencyHeader, responses.RequestIDHeader},
		ExposedHeaders:   []string{responses.RequestIDHeader, ReplayHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
