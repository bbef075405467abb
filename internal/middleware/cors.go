package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/rs/cors"
)

var (
	corsMethods = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	corsHeaders = []string{"Authorization", "Content-Type", requestIDHeader}
	corsExposed = []string{"Retry-After", requestIDHeader}
)

// corsLog routes rs/cors decisions to slog at debug level.
type corsLog struct{}

func (corsLog) Printf(format string, v ...any) {
	slog.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "cors")
}

// CORS allows browser clients from origins. Credentials are only allowed
// for an explicit allow-list; a wildcard entry turns them off.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowed := make([]string, 0, len(origins))
	for _, origin := range origins {
		if origin = strings.TrimRight(strings.TrimSpace(origin), "/"); origin != "" {
			allowed = append(allowed, origin)
		}
	}
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}

	return cors.New(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   corsMethods,
		AllowedHeaders:   corsHeaders,
		ExposedHeaders:   corsExposed,
		MaxAge:           600,
		AllowCredentials: !slices.Contains(allowed, "*"),
		Logger:           corsLog{},
	}).Handler
}
