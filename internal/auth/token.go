package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Staff is the identity of a console or scanner user. ID is what check-ins
// are attributed to.
type Staff struct {
	ID    string    `json:"id"`
	Name  string    `json:"name,omitempty"`
	Email string    `json:"email,omitempty"`
	// Expiry is when the presented token stops being valid.
	Expiry time.Time `json:"expiry"`
}

// Verifier turns a bearer token into a staff identity.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (Staff, error)
}

// ExtractTokenFromRequest reads the bearer token from the Authorization
// header, or from the access_token query parameter for EventSource clients
// that cannot set headers.
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if token := r.URL.Query().Get("access_token"); token != "" {
			return token, nil
		}
		return "", errors.New("authorization header is missing")
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}
	return parts[1], nil
}

type staffClaims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// HMACVerifier checks HS256 tokens minted for gate devices with a shared
// secret.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) Verify(_ context.Context, rawToken string) (Staff, error) {
	if rawToken == "" {
		return Staff{}, errors.New("empty token")
	}
	var claims staffClaims
	_, err := jwt.ParseWithClaims(rawToken, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Staff{}, fmt.Errorf("failed to parse token: %w", err)
	}
	if claims.Subject == "" {
		return Staff{}, errors.New("subject claim not found in token")
	}
	return Staff{ID: claims.Subject, Name: claims.Name, Email: claims.Email, Expiry: claims.ExpiresAt.Time}, nil
}

// IssueToken mints an HS256 staff token valid for ttl.
func IssueToken(secret string, staff Staff, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("no signing secret configured")
	}
	now := time.Now()
	claims := staffClaims{
		Name:  staff.Name,
		Email: staff.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   staff.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Chain accepts a token if any verifier does.
type Chain []Verifier

func (c Chain) Verify(ctx context.Context, rawToken string) (Staff, error) {
	var errs []error
	for _, v := range c {
		staff, err := v.Verify(ctx, rawToken)
		if err == nil {
			return staff, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return Staff{}, errors.New("no token verifier configured")
	}
	return Staff{}, errors.Join(errs...)
}
