package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/notify"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// RegisterRequest creates a shopper account
type RegisterRequest struct {
	Username   string `json:"username" binding:"required"`
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	SessionKey string `json:"-"`
}

// LoginRequest authenticates by username or email
type LoginRequest struct {
	Login      string `json:"login" binding:"required"`
	Password   string `json:"password" binding:"required"`
	SessionKey string `json:"-"`
}

// AuthResult is returned by register and login
type AuthResult struct {
	User  models.User `json:"user"`
	Token string      `json:"token"`
}

// Profile is an account with its optional details
type Profile struct {
	User    models.User        `json:"user"`
	Profile models.UserProfile `json:"profile"`
}

// UpdateProfileRequest changes editable account details. Nil fields are left alone.
type UpdateProfileRequest struct {
	Email                  *string `json:"email"`
	FirstName              *string `json:"first_name"`
	LastName               *string `json:"last_name"`
	PhoneNumber            *string `json:"phone_number"`
	Bio                    *string `json:"bio"`
	NewsletterSubscription *bool   `json:"newsletter_subscription"`
}

// WelcomeHandler reacts to a new registration: it creates the profile and
// sends the welcome email
type WelcomeHandler struct {
	store  *store.Store
	mailer *notify.Dispatcher
}

// NewWelcomeHandler creates a welcome handler
func NewWelcomeHandler(store *store.Store, mailer *notify.Dispatcher) *WelcomeHandler {
	return &WelcomeHandler{store: store, mailer: mailer}
}

// Handle processes a registered user
func (h *WelcomeHandler) Handle(ctx context.Context, user *models.User) error {
	if err := h.store.EnsureProfile(ctx, user.ID); err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	h.mailer.SendWelcome(ctx, user)
	return nil
}

// UserService manages accounts, profiles and saved addresses
type UserService struct {
	store   *store.Store
	carts   *CartService
	tokens  *TokenIssuer
	welcome *WelcomeHandler
	events  *broker.EventPublisher
	logger  *zap.Logger
}

// NewUserService creates a user service. events may be nil.
func NewUserService(
	store *store.Store,
	carts *CartService,
	tokens *TokenIssuer,
	welcome *WelcomeHandler,
	events *broker.EventPublisher,
) *UserService {
	return &UserService{
		store:   store,
		carts:   carts,
		tokens:  tokens,
		welcome: welcome,
		events:  events,
		logger:  util.GetLogger(),
	}
}

// Register creates an account, welcomes the user and adopts their session cart
func (s *UserService) Register(ctx context.Context, req *RegisterRequest) (*AuthResult, error) {
	ctx, span := util.StartSpan(ctx, "UserService.Register")
	defer span.End()

	user, err := s.createUser(ctx, req.Username, req.Email, req.Password, req.FirstName, req.LastName, false)
	if err != nil {
		return nil, err
	}

	if err := s.welcome.Handle(ctx, user); err != nil {
		s.logger.Error("Welcome handling failed", zap.Int64("user_id", user.ID), zap.Error(err))
	}

	if s.events != nil {
		event := &models.UserRegisteredEvent{
			BaseEvent: broker.NewBaseEvent(models.EventTypeUserRegistered),
			UserID:    user.ID,
			Username:  user.Username,
			Email:     user.Email,
		}
		if err := s.events.PublishUserRegistered(ctx, event); err != nil {
			s.logger.Error("Failed to publish UserRegistered event", zap.Error(err))
		}
	}

	s.logger.Info("User registered", zap.Int64("user_id", user.ID), zap.String("username", user.Username))
	return s.authenticated(ctx, user, req.SessionKey)
}

// CreateStaff creates a back office account
func (s *UserService) CreateStaff(ctx context.Context, username, email, password string) (*models.User, error) {
	user, err := s.createUser(ctx, username, email, password, "", "", true)
	if err != nil {
		return nil, err
	}
	if err := s.store.EnsureProfile(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return user, nil
}

func (s *UserService) createUser(ctx context.Context, username, email, password, firstName, lastName string, staff bool) (*models.User, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 150 {
		return nil, invalid("username", "must be between 3 and 150 characters")
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < minPasswordLength {
		return nil, invalid("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}

	taken, err := s.store.EmailTaken(ctx, email, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		IsStaff:      staff,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return user, nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Name != "" {
		return "", invalid("email", "must be a valid email address")
	}
	return strings.ToLower(addr.Address), nil
}

// Login verifies credentials and adopts the caller's session cart
func (s *UserService) Login(ctx context.Context, req *LoginRequest) (*AuthResult, error) {
	ctx, span := util.StartSpan(ctx, "UserService.Login")
	defer span.End()

	user, err := s.store.GetUserByLogin(ctx, strings.TrimSpace(req.Login))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.authenticated(ctx, user, req.SessionKey)
}

func (s *UserService) authenticated(ctx context.Context, user *models.User, sessionKey string) (*AuthResult, error) {
	if err := s.carts.Merge(ctx, sessionKey, user.ID); err != nil {
		s.logger.Warn("Failed to merge session cart", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: *user, Token: token}, nil
}

// Authenticate resolves a bearer token to its claims
func (s *UserService) Authenticate(raw string) (*Claims, error) {
	return s.tokens.Parse(raw)
}

// Profile returns the account and profile of a user
func (s *UserService) Profile(ctx context.Context, userID int64) (*Profile, error) {
	ctx, span := util.StartSpan(ctx, "UserService.Profile")
	defer span.End()

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.store.EnsureProfile(ctx, userID); err != nil {
		return nil, err
	}
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Profile{User: *user, Profile: *profile}, nil
}

// UpdateProfile changes account details. The email must stay unique.
func (s *UserService) UpdateProfile(ctx context.Context, userID int64, req *UpdateProfileRequest) (*Profile, error) {
	ctx, span := util.StartSpan(ctx, "UserService.UpdateProfile")
	defer span.End()

	current, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	user, profile := current.User, current.Profile

	if req.Email != nil {
		email, err := normalizeEmail(*req.Email)
		if err != nil {
			return nil, err
		}
		taken, err := s.store.EmailTaken(ctx, email, userID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrEmailTaken
		}
		user.Email = email
	}
	if req.FirstName != nil {
		user.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		user.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.PhoneNumber != nil {
		profile.PhoneNumber = strings.TrimSpace(*req.PhoneNumber)
	}
	if req.Bio != nil {
		profile.Bio = *req.Bio
	}
	if req.NewsletterSubscription != nil {
		profile.NewsletterSubscription = *req.NewsletterSubscription
	}

	if err := s.store.UpdateUser(ctx, &user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	if err := s.store.UpdateProfile(ctx, &profile); err != nil {
		return nil, err
	}
	return &Profile{User: user, Profile: profile}, nil
}

// EmailPreferencesRequest changes some of a user's mail opt-ins
type EmailPreferencesRequest struct {
	Newsletter             *bool `json:"newsletter"`
	OrderUpdates           *bool `json:"order_updates"`
	PromotionalOffers      *bool `json:"promotional_offers"`
	ProductRecommendations *bool `json:"product_recommendations"`
}

// EmailPreferences returns the mail opt-ins of a user
func (s *UserService) EmailPreferences(ctx context.Context, userID int64) (*models.EmailPreferences, error) {
	current, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	prefs := current.Profile.EmailPreferences()
	return &prefs, nil
}

// UpdateEmailPreferences applies the opt-ins present in req
func (s *UserService) UpdateEmailPreferences(ctx context.Context, userID int64, req *EmailPreferencesRequest) (*models.EmailPreferences, error) {
	ctx, span := util.StartSpan(ctx, "UserService.UpdateEmailPreferences")
	defer span.End()

	current, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile := current.Profile
	set := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	set(&profile.NewsletterSubscription, req.Newsletter)
	set(&profile.OrderUpdates, req.OrderUpdates)
	set(&profile.PromotionalOffers, req.PromotionalOffers)
	set(&profile.ProductRecommendations, req.ProductRecommendations)

	if err := s.store.UpdateProfile(ctx, &profile); err != nil {
		return nil, err
	}
	prefs := profile.EmailPreferences()
	return &prefs, nil
}

// SetNewsletter subscribes or unsubscribes a user from the newsletter
func (s *UserService) SetNewsletter(ctx context.Context, userID int64, subscribed bool) (*models.EmailPreferences, error) {
	prefs, err := s.UpdateEmailPreferences(ctx, userID, &EmailPreferencesRequest{Newsletter: &subscribed})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Newsletter subscription changed",
		zap.Int64("user_id", userID),
		zap.Bool("subscribed", subscribed))
	return prefs, nil
}

// Addresses lists the saved addresses of a user
func (s *UserService) Addresses(ctx context.Context, userID int64) ([]models.SavedAddress, error) {
	return s.store.ListAddresses(ctx, userID)
}

// Address returns one saved address of a user
func (s *UserService) Address(ctx context.Context, userID, addressID int64) (*models.SavedAddress, error) {
	return s.store.GetAddress(ctx, userID, addressID)
}

// SaveAddress creates or updates a saved address. Marking it default clears
// the previous default of the same type.
func (s *UserService) SaveAddress(ctx context.Context, userID int64, addr *models.SavedAddress) error {
	ctx, span := util.StartSpan(ctx, "UserService.SaveAddress")
	defer span.End()

	if addr.Type != models.AddressTypeBilling && addr.Type != models.AddressTypeShipping {
		return invalid("type", "must be billing or shipping")
	}
	if err := validateAddress("address", addr.Address); err != nil {
		return err
	}
	addr.UserID = userID
	return s.store.SaveAddress(ctx, addr)
}

// DeleteAddress removes a saved address
func (s *UserService) DeleteAddress(ctx context.Context, userID, addressID int64) error {
	return s.store.DeleteAddress(ctx, userID, addressID)
}
