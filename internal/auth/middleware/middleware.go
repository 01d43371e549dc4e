package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-mastery/internal/rbac"
)

type AuthService struct {
	hmac []byte
	ttl  time.Duration
}

func NewAuthService(secret string) *AuthService {
	return &AuthService{hmac: []byte(secret), ttl: 8 * time.Hour}
}

type Claims struct {
	Sub         string `json:"sub"`
	Role        string `json:"role"`          // student|teacher|admin
	Institution string `json:"inst,omitempty"` // selects the assessment rule profile
	jwt.RegisteredClaims
}

func (a *AuthService) IssueJWT(sub, role, institution string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Sub:         sub,
		Role:        role,
		Institution: institution,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "mindengage-mastery",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(a.hmac)
}

func (a *AuthService) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.hmac, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || c.Sub == "" {
		return nil, errors.New("invalid token claims")
	}
	return c, nil
}

// LoginConfig controls the local login endpoint. Real deployments sit behind
// an external identity provider; this exists for offline and dev use.
type LoginConfig struct {
	AdminUser     string
	AdminPassHash string // bcrypt
	// AllowDevLogin accepts username==password for students and teachers.
	AllowDevLogin bool
}

// POST /auth/login  { "username": "...", "password": "...", "role": "teacher|student", "institution": "school" }
func LoginHandler(a *AuthService, cfg LoginConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username    string `json:"username"`
			Password    string `json:"password"`
			Role        string `json:"role"`
			Institution string `json:"institution"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		role, err := authenticate(cfg, req.Username, req.Password, req.Role)
		if err != nil {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		tok, err := a.IssueJWT(req.Username, role, req.Institution)
		if err != nil {
			http.Error(w, "issue token", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": tok})
	}
}

func authenticate(cfg LoginConfig, user, pass, role string) (string, error) {
	if user == "" || pass == "" {
		return "", errors.New("missing credentials")
	}
	if cfg.AdminUser != "" && user == cfg.AdminUser {
		if err := bcrypt.CompareHashAndPassword([]byte(cfg.AdminPassHash), []byte(pass)); err != nil {
			return "", err
		}
		return "admin", nil
	}
	if cfg.AllowDevLogin && user == pass && (role == "teacher" || role == "student") {
		return role, nil
	}
	return "", fmt.Errorf("login refused for %q", user)
}

// JWTMiddleware verifies the bearer token and stores the caller in the
// request context for rbac and the handlers.
func JWTMiddleware(a *AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				http.Error(w, "missing bearer", http.StatusUnauthorized)
				return
			}
			c, err := a.Parse(strings.TrimPrefix(h, "Bearer "))
			if err != nil {
				http.Error(w, "bad token", http.StatusUnauthorized)
				return
			}
			ctx := rbac.WithPrincipal(r.Context(), rbac.Principal{
				Subject:     c.Sub,
				Role:        c.Role,
				Institution: c.Institution,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
