package service

import (
	"context"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registerRequest(username, email string) *RegisterRequest {
	return &RegisterRequest{Username: username, Email: email, Password: "s3cretpass", FirstName: "Ada"}
}

func TestRegisterCreatesProfileAndWelcomes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.users.Register(ctx, registerRequest("ada", "Ada@Example.com"))
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", result.User.Email)
	assert.NotEqual(t, "s3cretpass", result.User.PasswordHash)

	claims, err := h.users.Authenticate(result.Token)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, claims.UserID)
	assert.False(t, claims.Staff)

	profile, err := h.users.Profile(ctx, result.User.ID)
	require.NoError(t, err)
	assert.True(t, profile.Profile.NewsletterSubscription)

	msgs := h.mail.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Welcome to JigsimurHerbal, Ada! 🌿", msgs[0].Subject)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.users.Register(ctx, registerRequest("ada", "ada@example.com"))
	require.NoError(t, err)

	_, err = h.users.Register(ctx, registerRequest("ada2", "ADA@example.com"))
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = h.users.Register(ctx, registerRequest("ada", "other@example.com"))
	assert.ErrorIs(t, err, ErrUsernameTaken)

	var verr *ValidationError
	_, err = h.users.Register(ctx, &RegisterRequest{Username: "bo", Email: "bo@example.com", Password: "s3cretpass"})
	assert.ErrorAs(t, err, &verr)
	_, err = h.users.Register(ctx, &RegisterRequest{Username: "bola", Email: "nope", Password: "s3cretpass"})
	assert.ErrorAs(t, err, &verr)
	_, err = h.users.Register(ctx, &RegisterRequest{Username: "bola", Email: "bola@example.com", Password: "short"})
	assert.ErrorAs(t, err, &verr)
}

func TestLoginByUsernameOrEmail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.users.Register(ctx, registerRequest("ada", "ada@example.com"))
	require.NoError(t, err)

	_, err = h.users.Login(ctx, &LoginRequest{Login: "ada", Password: "s3cretpass"})
	require.NoError(t, err)
	_, err = h.users.Login(ctx, &LoginRequest{Login: "ADA@EXAMPLE.COM", Password: "s3cretpass"})
	require.NoError(t, err)

	_, err = h.users.Login(ctx, &LoginRequest{Login: "ada", Password: "wrongpass"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = h.users.Login(ctx, &LoginRequest{Login: "nobody", Password: "s3cretpass"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginAdoptsSessionCart(t *testing.T) {
	h := newHarness(t)
	sh := h.seedShop(t)
	ctx := context.Background()
	registered, err := h.users.Register(ctx, registerRequest("ada", "ada@example.com"))
	require.NoError(t, err)

	require.NoError(t, h.carts.AddLine(ctx, SessionOwner("anon-1"), sh.tea.ID, 2))
	_, err = h.users.Login(ctx, &LoginRequest{Login: "ada", Password: "s3cretpass", SessionKey: "anon-1"})
	require.NoError(t, err)

	view, err := h.carts.View(ctx, UserOwner(registered.User.ID))
	require.NoError(t, err)
	assert.Equal(t, 2, view.TotalItems())

	anon, err := h.carts.View(ctx, SessionOwner("anon-1"))
	require.NoError(t, err)
	assert.True(t, anon.IsEmpty())
}

func TestUpdateProfileKeepsEmailUnique(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ada, err := h.users.Register(ctx, registerRequest("ada", "ada@example.com"))
	require.NoError(t, err)
	_, err = h.users.Register(ctx, registerRequest("bola", "bola@example.com"))
	require.NoError(t, err)

	taken := "bola@example.com"
	_, err = h.users.UpdateProfile(ctx, ada.User.ID, &UpdateProfileRequest{Email: &taken})
	assert.ErrorIs(t, err, ErrEmailTaken)

	email, phone, off := "ada.l@example.com", "+2348000000000", false
	profile, err := h.users.UpdateProfile(ctx, ada.User.ID, &UpdateProfileRequest{
		Email:                  &email,
		PhoneNumber:            &phone,
		NewsletterSubscription: &off,
	})
	require.NoError(t, err)
	assert.Equal(t, email, profile.User.Email)
	assert.Equal(t, phone, profile.Profile.PhoneNumber)
	assert.False(t, profile.Profile.NewsletterSubscription)
	assert.Equal(t, "Ada", profile.User.FirstName)
}

func TestNewsletterAndEmailPreferences(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := storetest.User(t, h.store, "ada")

	prefs, err := h.users.EmailPreferences(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EmailPreferences{Newsletter: true, OrderUpdates: true, PromotionalOffers: true}, *prefs)

	prefs, err = h.users.SetNewsletter(ctx, user.ID, false)
	require.NoError(t, err)
	assert.False(t, prefs.Newsletter)

	on := true
	prefs, err = h.users.UpdateEmailPreferences(ctx, user.ID, &EmailPreferencesRequest{ProductRecommendations: &on})
	require.NoError(t, err)
	assert.Equal(t, models.EmailPreferences{OrderUpdates: true, PromotionalOffers: true, ProductRecommendations: true}, *prefs)

	profile, err := h.users.Profile(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, profile.Profile.NewsletterSubscription)
	assert.True(t, profile.Profile.ProductRecommendations)

	_, err = h.users.SetNewsletter(ctx, 9999, true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveAddressValidatesAndKeepsSingleDefault(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := storetest.User(t, h.store, "ada")

	bad := &models.SavedAddress{Type: "postal", Address: storetest.Address("Ada")}
	var verr *ValidationError
	assert.ErrorAs(t, h.users.SaveAddress(ctx, user.ID, bad), &verr)

	first := &models.SavedAddress{Type: models.AddressTypeShipping, Address: storetest.Address("Ada"), IsDefault: true}
	second := &models.SavedAddress{Type: models.AddressTypeShipping, Address: storetest.Address("Home"), IsDefault: true}
	require.NoError(t, h.users.SaveAddress(ctx, user.ID, first))
	require.NoError(t, h.users.SaveAddress(ctx, user.ID, second))

	addresses, err := h.users.Addresses(ctx, user.ID)
	require.NoError(t, err)
	defaults := 0
	for _, a := range addresses {
		if a.IsDefault {
			defaults++
			assert.Equal(t, second.ID, a.ID)
		}
	}
	assert.Equal(t, 1, defaults)

	other := storetest.User(t, h.store, "bola")
	assert.ErrorIs(t, h.users.DeleteAddress(ctx, other.ID, first.ID), ErrNotFound)
	require.NoError(t, h.users.DeleteAddress(ctx, user.ID, first.ID))
}

func TestTokenRejectsTamperingAndExpiry(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	user := &models.User{ID: 7, IsStaff: true}

	token, err := issuer.Issue(user)
	require.NoError(t, err)
	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.True(t, claims.Staff)

	_, err = NewTokenIssuer("other-secret", time.Hour).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := NewTokenIssuer("secret", -time.Minute).Issue(user)
	require.NoError(t, err)
	_, err = issuer.Parse(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCreateStaff(t *testing.T) {
	h := newHarness(t)
	staff, err := h.users.CreateStaff(context.Background(), "admin", "admin@example.com", "adminpass1")
	require.NoError(t, err)
	assert.True(t, staff.IsStaff)
	assert.Empty(t, h.mail.Messages())
}
