package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"notesync/internal/model"
	"notesync/internal/pkg/logger"
	"notesync/internal/repository/contract"
	"notesync/internal/repository/memory"
	"notesync/internal/repository/specification"
)

// AuthService provisions anonymous identities and verifies tokens on
// reconnect. Identities are rows in the users table plus an HS256 JWT
// carrying the user id.
type AuthService struct {
	users  contract.UserRepository
	tokens *memory.TokenCache
	secret []byte
	log    logger.ILogger
}

func NewAuthService(users contract.UserRepository, secret string, log logger.ILogger) *AuthService {
	return &AuthService{
		users:  users,
		tokens: memory.NewTokenCache(),
		secret: []byte(secret),
		log:    log,
	}
}

func (s *AuthService) ProvisionAnonymous(ctx context.Context) (userId, token string, err error) {
	user := &model.User{
		Id:        uuid.New(),
		CreatedAt: time.Now(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return "", "", fmt.Errorf("create anonymous user: %w", err)
	}

	claims := jwt.MapClaims{
		"user_id": user.Id.String(),
		"iat":     time.Now().Unix(),
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", "", fmt.Errorf("sign token: %w", err)
	}

	s.tokens.Save(token, user.Id.String())
	s.log.Info("Auth", "Anonymous identity provisioned", map[string]interface{}{"user_id": user.Id})
	return user.Id.String(), token, nil
}

func (s *AuthService) Authenticate(ctx context.Context, token string) (string, error) {
	if userId, ok := s.tokens.Get(token); ok {
		return userId, nil
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}
	userId, ok := claims["user_id"].(string)
	if !ok {
		return "", errors.New("invalid claims")
	}

	uid, err := uuid.Parse(userId)
	if err != nil {
		return "", errors.New("invalid claims")
	}
	user, err := s.users.FindOne(ctx, specification.ByID{ID: uid})
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", errors.New("unknown user")
	}

	s.tokens.Save(token, userId)
	return userId, nil
}
