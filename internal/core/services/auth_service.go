package services

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/domain"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/ports"
)

// EmployeeOAuthService runs the identity-provider redirect round-trip for
// employee sign-in. The round-trip suspends across a full page navigation;
// everything the callback needs to resume is carried inside the signed state
// parameter, never assumed to survive in memory.
type EmployeeOAuthService struct {
	clientID     string
	clientSecret string
	redirectURL  string
	employees    ports.EmployeeRepository
	privateKey   *rsa.PrivateKey
}

type oauthTokenResponse struct {
	IDToken string `json:"id_token"`
}

type oauthClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

type providerJWKS struct {
	Keys []struct {
		Kid string `json:"kid"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

func NewEmployeeOAuthService(
	clientID, clientSecret, redirectURL string,
	employees ports.EmployeeRepository,
	privateKey *rsa.PrivateKey,
) *EmployeeOAuthService {
	return &EmployeeOAuthService{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
		employees:    employees,
		privateKey:   privateKey,
	}
}

// RedirectState is the session context that survives the OAuth navigation
// boundary. The callback entry point reconstructs the kiosk session purely
// from this plus the returned identity.
type RedirectState struct {
	DeviceID string `json:"device_id"`
	SiteID   string `json:"site_id"`
	Remember bool   `json:"remember"`
	Nonce    string `json:"nonce"`
	IssuedAt int64  `json:"iat"`
}

// EncodeState signs the redirect state as a short-lived RS256 token.
func (s *EmployeeOAuthService) EncodeState(state RedirectState) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	state.Nonce = base64.RawURLEncoding.EncodeToString(nonce)
	state.IssuedAt = time.Now().Unix()

	claims := jwt.MapClaims{
		"device_id": state.DeviceID,
		"site_id":   state.SiteID,
		"remember":  state.Remember,
		"nonce":     state.Nonce,
		"iat":       state.IssuedAt,
		"exp":       time.Now().Add(10 * time.Minute).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(s.privateKey)
}

// DecodeState verifies and unpacks the state parameter returned by the
// provider. Tampered or expired state aborts the callback.
func (s *EmployeeOAuthService) DecodeState(raw string) (*RedirectState, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return &s.privateKey.PublicKey, nil
	})
	if err != nil || !token.Valid {
		return nil, domain.Errf(domain.PermissionDenied, "oauth.state", "invalid state parameter")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, domain.Errf(domain.PermissionDenied, "oauth.state", "invalid state claims")
	}
	deviceID, _ := claims["device_id"].(string)
	siteID, _ := claims["site_id"].(string)
	remember, _ := claims["remember"].(bool)
	if deviceID == "" {
		return nil, domain.Errf(domain.PermissionDenied, "oauth.state", "state missing device")
	}
	return &RedirectState{DeviceID: deviceID, SiteID: siteID, Remember: remember}, nil
}

// AuthURL returns the provider authorization URL carrying the signed state.
func (s *EmployeeOAuthService) AuthURL(state string) string {
	params := url.Values{
		"client_id":     {s.clientID},
		"redirect_uri":  {s.redirectURL},
		"response_type": {"code"},
		"scope":         {"openid email"},
		"state":         {state},
	}
	return "https://accounts.google.com/o/oauth2/v2/auth?" + params.Encode()
}

// Authenticate exchanges the code, verifies the ID token, and resolves the
// employee from the directory.
func (s *EmployeeOAuthService) Authenticate(ctx context.Context, code string) (*domain.Employee, error) {
	idToken, err := s.exchangeCode(ctx, code)
	if err != nil {
		return nil, domain.WrapErr(domain.UpstreamFailure, "oauth.exchange", err)
	}

	email, err := s.verifyIDToken(ctx, idToken)
	if err != nil {
		return nil, domain.WrapErr(domain.PermissionDenied, "oauth.verify", err)
	}

	employee, err := s.employees.FindEmployeeByEmail(ctx, strings.ToLower(email))
	if err != nil {
		return nil, domain.Errf(domain.NotFound, "oauth.lookup", "no employee for %q", email)
	}
	return employee, nil
}

func (s *EmployeeOAuthService) exchangeCode(ctx context.Context, code string) (string, error) {
	data := url.Values{
		"client_id":     {s.clientID},
		"client_secret": {s.clientSecret},
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {s.redirectURL},
	}

	req, _ := http.NewRequestWithContext(ctx, "POST", "https://oauth2.googleapis.com/token", strings.NewReader(data.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result oauthTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	if result.IDToken == "" {
		return "", errors.New("no id_token in response")
	}

	return result.IDToken, nil
}

func (s *EmployeeOAuthService) verifyIDToken(ctx context.Context, idToken string) (string, error) {
	keys, err := s.fetchProviderKeys(ctx)
	if err != nil {
		return "", err
	}

	token, err := jwt.ParseWithClaims(idToken, &oauthClaims{}, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		key, ok := keys[kid]
		if !ok {
			return nil, errors.New("key not found")
		}
		return key, nil
	})
	if err != nil {
		return "", err
	}

	claims := token.Claims.(*oauthClaims)
	if claims.Email == "" || !claims.EmailVerified {
		return "", errors.New("email not verified")
	}

	return claims.Email, nil
}

func (s *EmployeeOAuthService) fetchProviderKeys(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, _ := http.NewRequestWithContext(ctx, "GET", "https://www.googleapis.com/oauth2/v3/certs", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var jwks providerJWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, err
	}

	keys := make(map[string]*rsa.PublicKey)
	for _, k := range jwks.Keys {
		nBytes, _ := base64.RawURLEncoding.DecodeString(k.N)
		eBytes, _ := base64.RawURLEncoding.DecodeString(k.E)

		var e int
		for _, b := range eBytes {
			e = e<<8 + int(b)
		}

		keys[k.Kid] = &rsa.PublicKey{
			N: new(big.Int).SetBytes(nBytes),
			E: e,
		}
	}

	return keys, nil
}

// DeviceAuthService handles the receptionist terminal unlock: a verified
// access code yields a device-scoped session token.
type DeviceAuthService struct {
	operators  ports.OperatorRepository
	privateKey *rsa.PrivateKey
}

func NewDeviceAuthService(operators ports.OperatorRepository, privateKey *rsa.PrivateKey) *DeviceAuthService {
	return &DeviceAuthService{operators: operators, privateKey: privateKey}
}

// Unlock verifies the receptionist access code and issues the device token
// the kiosk presents on every subsequent session call.
func (s *DeviceAuthService) Unlock(ctx context.Context, deviceID, email, accessCode string) (string, *domain.Operator, error) {
	operator, codeHash, err := s.operators.FindOperatorByEmail(ctx, strings.ToLower(email))
	if err != nil {
		return "", nil, domain.Errf(domain.PermissionDenied, "auth.unlock", "unknown operator")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(codeHash), []byte(accessCode)); err != nil {
		return "", nil, domain.Errf(domain.PermissionDenied, "auth.unlock", "invalid access code")
	}

	claims := jwt.MapClaims{
		"sub":      deviceID,
		"role":     string(domain.RoleKiosk),
		"operator": operator.ID,
		"site":     operator.SiteID,
		"iat":      time.Now().Unix(),
		"exp":      time.Now().Add(24 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", nil, err
	}
	return signed, operator, nil
}
