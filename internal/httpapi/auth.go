package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"jewelpos/backend/internal/domain"
	"jewelpos/backend/internal/service"
	"jewelpos/backend/internal/store"
	"jewelpos/backend/internal/xid"
)

// ErrUnauthorized covers bad credentials and bad tokens alike.
var ErrUnauthorized = errors.New("unauthorized")

type AuthManager struct {
	secret    []byte
	tokenTTL  time.Duration
	hashCost  int
	userStore UserStore
	now       func() time.Time
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
}

type posCustomClaims struct {
	jwtlib.RegisteredClaims
	Role  domain.Role `json:"role"`
	Email string      `json:"email"`
	Name  string      `json:"name,omitempty"`
}

// NewAuthManager issues HS256 tokens signed with secret. A zero hashCost
// means bcrypt.DefaultCost.
func NewAuthManager(secret string, tokenTTL time.Duration, userStore UserStore, hashCost int) *AuthManager {
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	if hashCost == 0 {
		hashCost = bcrypt.DefaultCost
	}
	return &AuthManager{
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		hashCost:  hashCost,
		userStore: userStore,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	user, err := a.userStore.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, store.ErrNotFound) {
		return domain.LoginResponse{}, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}
	if err != nil {
		return domain.LoginResponse{}, err
	}
	if !verifyPassword(user.PasswordHash, req.Password) {
		return domain.LoginResponse{}, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}
	if !user.Active {
		return domain.LoginResponse{}, fmt.Errorf("%w: account is inactive", service.ErrForbidden)
	}

	expiresAt := a.now().Add(a.tokenTTL)
	token, err := a.sign(*user, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        user.Role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
		User:        user.Profile(),
	}, nil
}

// Signup creates an account. Anyone may create a cashier; admin and manager
// accounts need an admin creator.
func (a *AuthManager) Signup(ctx context.Context, req domain.SignupRequest, creator *domain.Actor) (domain.UserProfile, error) {
	role := req.Role
	if role == "" {
		role = domain.RoleCashier
	}
	if !role.Valid() {
		return domain.UserProfile{}, fmt.Errorf("%w: unknown role %q", store.ErrInvalid, role)
	}
	if role != domain.RoleCashier && (creator == nil || creator.Role != domain.RoleAdmin) {
		return domain.UserProfile{}, fmt.Errorf("%w: only an admin can create %s accounts", service.ErrForbidden, role)
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	name := strings.TrimSpace(req.Name)
	if email == "" || name == "" {
		return domain.UserProfile{}, fmt.Errorf("%w: email and name required", store.ErrInvalid)
	}
	if len(req.Password) < 6 {
		return domain.UserProfile{}, fmt.Errorf("%w: password must be at least 6 characters", store.ErrInvalid)
	}

	hash, err := a.hashPassword(req.Password)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("failed to hash password: %w", err)
	}
	user := domain.UserAccount{
		ID:           xid.New("user"),
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    a.now(),
	}
	if err := a.userStore.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.UserProfile{}, fmt.Errorf("%w: email already registered", store.ErrConflict)
		}
		return domain.UserProfile{}, err
	}
	return user.Profile(), nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &posCustomClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, fmt.Errorf("%w: invalid or expired token", ErrUnauthorized)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, fmt.Errorf("%w: invalid token subject", ErrUnauthorized)
	}
	if !claims.Role.Valid() {
		return domain.Actor{}, fmt.Errorf("%w: invalid token role", ErrUnauthorized)
	}
	return domain.Actor{UserID: sub, Email: claims.Email, Name: claims.Name, Role: claims.Role}, nil
}

func (a *AuthManager) sign(user domain.UserAccount, expiresAt time.Time) (string, error) {
	claims := posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwtlib.NewNumericDate(a.now()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "jewelpos",
		},
		Role:  user.Role,
		Email: user.Email,
		Name:  user.Name,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthManager) hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), a.hashCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
