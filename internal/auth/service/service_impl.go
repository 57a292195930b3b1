package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/wearly/wearly/internal/auth/domain"
	"github.com/wearly/wearly/internal/auth/password"
	"github.com/wearly/wearly/internal/clock"
	"github.com/wearly/wearly/internal/config"
	"github.com/wearly/wearly/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// defaultScopes cover everything the consumer app does on a user's behalf.
var defaultScopes = pq.StringArray{"billing", "stylist", "wardrobe"}

type ServiceParam struct {
	fx.In

	Cfg   config.Config
	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	sessionTTL time.Duration
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("auth.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		sessionTTL: time.Duration(p.Cfg.SessionTTLHours) * time.Hour,
	}
}

func (s *Service) Signup(ctx context.Context, req domain.SignupRequest) (domain.Credentials, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	hash, err := password.Hash(req.Password)
	if err != nil {
		return domain.Credentials{}, err
	}

	now := s.clock.Now()
	user := &domain.User{
		ID:           s.genID.Generate(),
		Email:        email,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.InsertUser(ctx, s.db, user); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Credentials{}, domain.ErrEmailTaken
		}
		s.log.Error("failed to insert user", zap.Error(err))
		return domain.Credentials{}, err
	}

	s.log.Info("user signed up", zap.Int64("user_id", int64(user.ID)))
	return s.issueSession(ctx, *user)
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (domain.Credentials, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	user, err := s.repo.FindUserByEmail(ctx, s.db, email)
	if err != nil {
		return domain.Credentials{}, err
	}
	if user == nil || !password.Verify(req.Password, user.PasswordHash) {
		return domain.Credentials{}, domain.ErrInvalidCredentials
	}

	return s.issueSession(ctx, *user)
}

func (s *Service) Authenticate(ctx context.Context, token string) (domain.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.User{}, domain.ErrUnauthorized
	}

	session, err := s.repo.FindSessionByTokenHash(ctx, s.db, hashToken(token))
	if err != nil {
		return domain.User{}, err
	}
	if session == nil || session.RevokedAt != nil || !s.clock.Now().Before(session.ExpiresAt) {
		return domain.User{}, domain.ErrUnauthorized
	}

	user, err := s.repo.FindUserByID(ctx, s.db, session.UserID)
	if err != nil {
		return domain.User{}, err
	}
	if user == nil {
		return domain.User{}, domain.ErrUnauthorized
	}
	return *user, nil
}

func (s *Service) GetUser(ctx context.Context, id snowflake.ID) (domain.User, error) {
	user, err := s.repo.FindUserByID(ctx, s.db, id)
	if err != nil {
		return domain.User{}, err
	}
	if user == nil {
		return domain.User{}, domain.ErrUserNotFound
	}
	return *user, nil
}

func (s *Service) issueSession(ctx context.Context, user domain.User) (domain.Credentials, error) {
	token := uuid.NewString() + uuid.NewString()
	now := s.clock.Now()
	expiresAt := now.Add(s.sessionTTL)

	session := &domain.UserSession{
		ID:        s.genID.Generate(),
		UserID:    user.ID,
		TokenHash: hashToken(token),
		Scopes:    defaultScopes,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	if err := s.repo.InsertSession(ctx, s.db, session); err != nil {
		s.log.Error("failed to insert session",
			zap.Int64("user_id", int64(user.ID)),
			zap.Error(err))
		return domain.Credentials{}, err
	}

	return domain.Credentials{
		User:      user,
		Token:     token,
		ExpiresAt: expiresAt.Unix(),
	}, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
