package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// defaultOrigins - dev origins, если CORS_ORIGINS не задан
var defaultOrigins = []string{
	"http://localhost:3000",
	"http://127.0.0.1:3000",
	"http://localhost:8080",
	"http://127.0.0.1:8080",
	"http://localhost:5173", // Vite dev server
	"http://127.0.0.1:5173",
}

// CORS - middleware Cross-Origin Resource Sharing на rs/cors
//
// origins берутся из CORS_ORIGINS; "*" разрешает все origins без credentials.
// Preflight (OPTIONS) обрабатывается самим cors и кешируется на 24 часа.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = defaultOrigins
	}

	allowAll := false
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With"},
		AllowCredentials: !allowAll,
		MaxAge:           86400,
	})

	return c.Handler
}
