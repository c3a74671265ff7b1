package middleware

import (
	"context"
	"crypto/rsa"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// DeviceAuthMiddleware validates the device token issued at receptionist
// unlock before any session endpoint is reachable.
type DeviceAuthMiddleware struct {
	publicKey *rsa.PublicKey
}

func NewDeviceAuthMiddleware(publicKey *rsa.PublicKey) *DeviceAuthMiddleware {
	return &DeviceAuthMiddleware{publicKey: publicKey}
}

type contextKey string

const (
	DeviceIDKey contextKey = "deviceID"
	OperatorKey contextKey = "operatorID"
	SiteKey     contextKey = "siteID"
)

// RequireDevice authenticates the kiosk device token and injects the device
// identity into the request context. A valid token with the wrong role gets
// 403; everything else short of that gets 401.
func (m *DeviceAuthMiddleware) RequireDevice(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.deviceClaims(r)
		if err != nil {
			log.Printf("device auth: %v", err)
			http.Error(w, "invalid device token", http.StatusUnauthorized)
			return
		}

		if role, _ := claims["role"].(string); role != "KIOSK" {
			log.Printf("device auth: role mismatch, got %v", claims["role"])
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		deviceID, _ := claims["sub"].(string)
		if deviceID == "" {
			log.Printf("device auth: missing sub claim")
			http.Error(w, "invalid device token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), DeviceIDKey, deviceID)
		if operatorID, ok := claims["operator"].(string); ok {
			ctx = context.WithValue(ctx, OperatorKey, operatorID)
		}
		if siteID, ok := claims["site"].(string); ok {
			ctx = context.WithValue(ctx, SiteKey, siteID)
		}

		next(w, r.WithContext(ctx))
	}
}

func (m *DeviceAuthMiddleware) deviceClaims(r *http.Request) (jwt.MapClaims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, errors.New("missing Authorization header")
	}

	tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok {
		return nil, errors.New("Authorization header is not a bearer token")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.publicKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token not valid")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("unexpected claims type")
	}
	return claims, nil
}

// DeviceID extracts the authenticated device id from the request context.
func DeviceID(ctx context.Context) string {
	id, _ := ctx.Value(DeviceIDKey).(string)
	return id
}
