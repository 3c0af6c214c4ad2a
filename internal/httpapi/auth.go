package httpapi

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"stockledger/internal/domain"
)

var errInvalidCredentials = errors.New("invalid credentials")

// EmployeeDirectory looks up staff accounts by login email.
type EmployeeDirectory interface {
	EmployeeByEmail(email string) (domain.Employee, bool)
}

type AuthManager struct {
	secret    []byte
	tokenTTL  time.Duration
	directory EmployeeDirectory
	now       func() time.Time
}

type ledgerClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
}

// NewAuthManager signs tokens with secret. Startup refuses short secrets, so
// an empty one here only happens in tests.
func NewAuthManager(secret string, tokenTTL time.Duration, directory EmployeeDirectory) *AuthManager {
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		directory: directory,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (a *AuthManager) Login(req domain.LoginRequest) (domain.LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || strings.TrimSpace(req.PIN) == "" {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	emp, ok := a.directory.EmployeeByEmail(email)
	if !ok || !verifyPIN(emp.PINHash, req.PIN) {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !emp.Active {
		return domain.LoginResponse{}, errors.New("account is inactive")
	}

	expiresAt := a.now().Add(a.tokenTTL)
	token, err := a.sign(emp, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: token,
		Role:        emp.Role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &ledgerClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}

	// Deactivated or demoted staff lose access before their token expires.
	emp, ok := a.directory.EmployeeByEmail(sub)
	if !ok || !emp.Active {
		return domain.Actor{}, errors.New("account is inactive")
	}
	return domain.Actor{Username: sub, Role: emp.Role}, nil
}

func (a *AuthManager) sign(emp domain.Employee, expiresAt time.Time) (string, error) {
	claims := ledgerClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   emp.Email,
			IssuedAt:  jwtlib.NewNumericDate(a.now()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "stockledger",
		},
		Role: emp.Role,
		Name: emp.Name,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func verifyPIN(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPINHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func isPINHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
