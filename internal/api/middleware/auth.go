package middleware

import (
	"crypto/sha256"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"orderflow/pkg/crypto"
)

// TokenAuth - middleware проверки Bearer токена по bcrypt хешу (API_TOKEN_HASH)
//
// Пустой hash отключает проверку (локальное развертывание).
// bcrypt дорогой, поэтому успешно проверенный токен запоминается по sha256.
type TokenAuth struct {
	hash   string
	logger *zap.Logger

	mu       sync.RWMutex
	verified map[[sha256.Size]byte]struct{}
}

// NewTokenAuth создаёт проверку токена
func NewTokenAuth(hash string, logger *zap.Logger) *TokenAuth {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenAuth{
		hash:     hash,
		logger:   logger.With(zap.String("component", "auth")),
		verified: make(map[[sha256.Size]byte]struct{}),
	}
}

// Enabled сообщает, включена ли проверка
func (a *TokenAuth) Enabled() bool {
	return a.hash != ""
}

// Middleware возвращает 401 при отсутствии или неверном токене
func (a *TokenAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		token := bearerToken(r)
		if token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="orderflow"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		if !a.check(token) {
			a.logger.Warn("invalid api token", zap.String("client_ip", r.RemoteAddr), zap.String("path", r.URL.Path))
			w.Header().Set("WWW-Authenticate", `Bearer realm="orderflow", error="invalid_token"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *TokenAuth) check(token string) bool {
	key := sha256.Sum256([]byte(token))

	a.mu.RLock()
	_, ok := a.verified[key]
	a.mu.RUnlock()
	if ok {
		return true
	}

	if err := crypto.VerifyToken(token, a.hash); err != nil {
		return false
	}

	a.mu.Lock()
	a.verified[key] = struct{}{}
	a.mu.Unlock()
	return true
}

// bearerToken извлекает токен из Authorization: Bearer <token>.
// Браузерный websocket заголовок задать не может, для него - ?access_token=.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return r.URL.Query().Get("access_token")
	}
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}
