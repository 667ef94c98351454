// internal/core/domain/auth/token.go
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrMissingCredentials - запрос без токена
	ErrMissingCredentials = errors.New("missing credentials")
	// ErrInvalidCredentials - неизвестный токен
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// TokenAuthenticator сопоставляет bearer-токен владельцу флота.
// Таблица токенов статична и задаётся конфигурацией (API_TOKENS).
type TokenAuthenticator struct {
	tokens map[string]string
}

// NewTokenAuthenticator создаёт аутентификатор по таблице token → owner
func NewTokenAuthenticator(tokens map[string]string) *TokenAuthenticator {
	copied := make(map[string]string, len(tokens))
	for token, owner := range tokens {
		if token != "" && owner != "" {
			copied[token] = owner
		}
	}
	return &TokenAuthenticator{tokens: copied}
}

// Authenticate возвращает владельца токена
func (a *TokenAuthenticator) Authenticate(token string) (string, error) {
	if token == "" {
		return "", ErrMissingCredentials
	}
	// Сравнение за постоянное время по всем токенам
	var owner string
	for known, o := range a.tokens {
		if subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
			owner = o
		}
	}
	if owner == "" {
		return "", ErrInvalidCredentials
	}
	return owner, nil
}

// ResolveRequest извлекает владельца из заголовка Authorization: Bearer
// или, для браузерного WebSocket, из параметра access_token
func (a *TokenAuthenticator) ResolveRequest(r *http.Request) (string, error) {
	return a.Authenticate(TokenFromRequest(r))
}

// TokenFromRequest достаёт токен из запроса
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}
