package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const issuer = "eco-collect"

var ErrInvalidToken = errors.New("invalid session token")

// Manager issues signed session tokens and resolves them against the
// session store. A token is only honoured while its session record exists.
type Manager struct {
	secret []byte
	ttl    time.Duration
	store  SessionStore
	logger *zap.Logger
	now    func() time.Time
}

func NewManager(secret string, ttl time.Duration, store SessionStore, logger *zap.Logger) *Manager {
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		store:  store,
		logger: logger.Named("session_manager"),
		now:    time.Now,
	}
}

// TTL is the lifetime of issued sessions.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue starts a session for identity and returns its signed token.
func (m *Manager) Issue(ctx context.Context, identity Identity) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)

	session := Session{
		ID:        uuid.NewString(),
		UserID:    identity.UserID,
		UserName:  identity.UserName,
		Role:      identity.Role,
		ExpiresAt: expiresAt,
	}

	claims := jwt.RegisteredClaims{
		ID:        session.ID,
		Subject:   strconv.FormatUint(uint64(identity.UserID), 10),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}

	if err := m.store.Save(ctx, session, m.ttl); err != nil {
		return "", time.Time{}, fmt.Errorf("store session: %w", err)
	}
	return token, expiresAt, nil
}

// Resolve validates token and returns the identity of its live session.
func (m *Manager) Resolve(ctx context.Context, token string) (*Identity, error) {
	claims, err := m.parse(token)
	if err != nil {
		return nil, err
	}

	session, err := m.store.Load(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if strconv.FormatUint(uint64(session.UserID), 10) != claims.Subject {
		m.logger.Warn("session subject mismatch", zap.String("session_id", claims.ID))
		return nil, ErrInvalidToken
	}

	return &Identity{UserID: session.UserID, UserName: session.UserName, Role: session.Role}, nil
}

// Revoke deletes the session behind token. Tokens that do not parse have no
// session to revoke.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	claims, err := m.parse(token)
	if err != nil {
		return nil
	}
	return m.store.Delete(ctx, claims.ID)
}

func (m *Manager) parse(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
