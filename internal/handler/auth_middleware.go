package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/UniReviews/community-service/internal/session"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	jwtmanager "github.com/morf1lo/jwt-pair-manager"
)

// Claims is what the service needs out of an access token.
type Claims struct {
	UserID uuid.UUID
	Email  string
}

type TokenDecoder func(token string) (*Claims, error)

// JWTDecoder decodes access tokens signed with secret.
func JWTDecoder(secret string) TokenDecoder {
	return func(token string) (*Claims, error) {
		claims, err := jwtmanager.DecodeJWT(token, []byte(secret))
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return nil, errTokenExpired
			}
			return nil, errInvalidJWT
		}

		userIDString, ok := claims["id"].(string)
		if !ok {
			return nil, errInvalidJWT
		}
		userID, err := uuid.Parse(userIDString)
		if err != nil {
			return nil, errInvalidUserID
		}

		email, _ := claims["email"].(string)
		return &Claims{UserID: userID, Email: email}, nil
	}
}

// bearerToken reads the token from the Authorization header, or from the
// "token" query parameter for websocket handshakes, which cannot set headers.
func bearerToken(r *http.Request) (string, error) {
	bearerHeader := r.Header.Get("Authorization")
	if bearerHeader == "" && websocketUpgrade(r) {
		if token := r.URL.Query().Get("token"); token != "" {
			return token, nil
		}
	}

	if !strings.HasPrefix(bearerHeader, "Bearer ") {
		return "", errNoToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(bearerHeader, "Bearer "))
	if token == "" {
		return "", errNoToken
	}
	return token, nil
}

func websocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func (h *Handler) authenticate(r *http.Request) (*session.Session, error) {
	token, err := bearerToken(r)
	if err != nil {
		return nil, err
	}

	claims, err := h.decode(token)
	if err != nil {
		return nil, err
	}

	email := claims.Email
	if email == "" {
		if user, err := h.services.User.FindByID(r.Context(), claims.UserID); err == nil {
			email = user.Email
		}
	}

	return session.New(claims.UserID, email), nil
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := h.authenticate(r)
		if err != nil {
			h.Respond(w, Resp{"success": false, "error": err.Error()}, http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), sess)))
	})
}
