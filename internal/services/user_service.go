package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"danceBack/internal/auth"
	"danceBack/internal/models"
	"danceBack/utils"
)

const maxUsernameAttempts = 5

var usernameStrip = regexp.MustCompile(`[^a-z0-9._]`)

type UserService struct {
	users    UserStore
	identity auth.Provider
	carts    *CartService
	notifier Notifier
	logger   *zap.Logger

	suffix func(n int) string
	now    func() time.Time
}

func NewUserService(users UserStore, identity auth.Provider, carts *CartService, notifier Notifier, logger *zap.Logger) *UserService {
	return &UserService{
		users:    users,
		identity: identity,
		carts:    carts,
		notifier: notifier,
		logger:   logger.Named("users"),
		suffix:   utils.RandomSuffix,
		now:      time.Now,
	}
}

func (s *UserService) verify(ctx context.Context, idToken string) (auth.Identity, error) {
	if strings.TrimSpace(idToken) == "" {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	id, err := s.identity.VerifyIDToken(ctx, idToken)
	if err != nil {
		return auth.Identity{}, fmt.Errorf("%w: %v", auth.ErrInvalidToken, err)
	}
	return id, nil
}

// Register creates the local account for a verified identity. When the
// identity is already registered the stored user is returned with
// created=false.
func (s *UserService) Register(ctx context.Context, idToken string) (models.User, bool, error) {
	id, err := s.verify(ctx, idToken)
	if err != nil {
		return models.User{}, false, err
	}
	existing, err := s.users.GetByUID(ctx, id.UID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, models.ErrUserNotFound) {
		return models.User{}, false, fmt.Errorf("lookup user: %w", err)
	}

	base := BaseUsername(id.Email)
	for attempt := 0; attempt < maxUsernameAttempts; attempt++ {
		candidate := base
		if attempt > 0 {
			candidate = base + "_" + s.suffix(4)
		}
		taken, err := s.users.UsernameExists(ctx, candidate)
		if err != nil {
			return models.User{}, false, fmt.Errorf("check username: %w", err)
		}
		if taken {
			continue
		}

		user, err := s.users.CreateUser(ctx, models.User{
			FirebaseUID:      id.UID,
			Email:            id.Email,
			Username:         candidate,
			DisplayName:      id.Name,
			AvatarURL:        id.Picture,
			Role:             []string{models.RoleGuestUser},
			SubscriptionTier: models.TierFree,
			CreatedAt:        s.now(),
		})
		switch {
		case err == nil:
			s.logger.Info("user registered", zap.Int64("user_id", user.ID), zap.String("username", user.Username))
			s.notifier.Welcome(ctx, user)
			return user, true, nil
		case errors.Is(err, models.ErrDuplicateUsername):
			continue
		case errors.Is(err, models.ErrDuplicateUser):
			// concurrent registration of the same identity won
			user, err := s.users.GetByUID(ctx, id.UID)
			if err != nil {
				return models.User{}, false, fmt.Errorf("reload user: %w", err)
			}
			return user, false, nil
		default:
			return models.User{}, false, fmt.Errorf("create user: %w", err)
		}
	}
	return models.User{}, false, ErrUsernameUnavailable
}

// BaseUsername derives the preferred username from an email local-part.
func BaseUsername(email string) string {
	local := email
	if i := strings.IndexByte(email, '@'); i >= 0 {
		local = email[:i]
	}
	base := usernameStrip.ReplaceAllString(strings.ToLower(local), "")
	if base == "" {
		return "dancer"
	}
	return base
}

// Login loads the registered user and merges the guest cart named by
// guestToken into the account cart.
func (s *UserService) Login(ctx context.Context, idToken, guestToken string) (models.User, []models.CartItem, error) {
	id, err := s.verify(ctx, idToken)
	if err != nil {
		return models.User{}, nil, err
	}
	user, err := s.users.GetByUID(ctx, id.UID)
	if err != nil {
		return models.User{}, nil, err
	}
	items, err := s.carts.MergeGuest(ctx, user.ID, guestToken)
	if err != nil {
		return models.User{}, nil, err
	}
	return user, items, nil
}

func (s *UserService) Me(ctx context.Context, uid string) (models.User, error) {
	return s.users.GetByUID(ctx, uid)
}

func (s *UserService) Logout(ctx context.Context, uid string) error {
	if err := s.identity.RevokeSessions(ctx, uid); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

// PasswordReset mails a reset link. Unknown addresses are not reported to
// the caller.
func (s *UserService) PasswordReset(ctx context.Context, email string) {
	email = strings.TrimSpace(email)
	if email == "" {
		return
	}
	link, err := s.identity.PasswordResetLink(ctx, email)
	if err != nil {
		s.logger.Info("password reset link not generated", zap.Error(err))
		return
	}
	s.notifier.PasswordReset(ctx, email, link)
}

func (s *UserService) SetDeviceToken(ctx context.Context, userID int64, token string) error {
	return s.users.SetFCMToken(ctx, userID, strings.TrimSpace(token))
}
