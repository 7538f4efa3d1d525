package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"refund-review-api/models"
	"refund-review-api/store"
)

// Claims carries the reviewer id; role and assignment are always reloaded from the store.
type Claims struct {
	ReviewerID string `json:"reviewer_id"`
	Email      string `json:"email"`
	jwt.RegisteredClaims
}

var errInvalidToken = errors.New("invalid or expired token")

// AuthService resolves the acting principal from credentials or a bearer token.
type AuthService struct {
	store  store.Store
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthService(s store.Store, secret string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{store: s, secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Login checks email and password and returns a signed token.
func (a *AuthService) Login(ctx context.Context, email, password string) (string, *models.Reviewer, error) {
	const op = "login"
	reviewer, err := a.store.GetReviewerByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil, denied(op, "Invalid email or password")
		}
		return "", nil, fromStore(op, err)
	}
	if reviewer.PasswordHash == "" || !CheckPasswordHash(password, reviewer.PasswordHash) {
		return "", nil, denied(op, "Invalid email or password")
	}
	token, err := a.IssueToken(*reviewer)
	if err != nil {
		return "", nil, err
	}
	return token, reviewer, nil
}

// IssueToken signs an HS256 token for reviewer.
func (a *AuthService) IssueToken(reviewer models.Reviewer) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("JWT_SECRET is not configured")
	}
	now := a.now()
	claims := Claims{
		ReviewerID: reviewer.ID,
		Email:      reviewer.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   reviewer.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ParseToken validates a bearer token. An unset secret rejects every token.
func (a *AuthService) ParseToken(tokenString string) (*Claims, error) {
	if len(a.secret) == 0 {
		return nil, errInvalidToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.ReviewerID == "" {
		return nil, errInvalidToken
	}
	return claims, nil
}

// Authenticate parses the token and reloads the reviewer it names.
func (a *AuthService) Authenticate(ctx context.Context, tokenString string) (*models.Reviewer, error) {
	claims, err := a.ParseToken(tokenString)
	if err != nil {
		return nil, denied("authenticate", "Invalid or expired token")
	}
	reviewer, err := a.store.GetReviewer(ctx, claims.ReviewerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, denied("authenticate", "Reviewer not found")
		}
		return nil, fromStore("authenticate", err)
	}
	return reviewer, nil
}

// HashPassword hashes password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPasswordHash compares password with hash
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
