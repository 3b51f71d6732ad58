package store

import (
	"context"
	"fmt"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateUser inserts a user account and fills in its ID
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	u.CreatedAt = now()
	err := s.db.GetContext(ctx, &u.ID, s.q(`
		INSERT INTO users (username, email, password_hash, first_name, last_name, is_staff, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.IsStaff, u.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", u.Username, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	if err := s.db.GetContext(ctx, &u, s.q("SELECT * FROM users WHERE id = ?"), id); err != nil {
		return nil, notFound(err, "user", id)
	}
	return &u, nil
}

// GetUserByLogin retrieves a user by username or email, case-insensitively
func (s *Store) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	var u models.User
	err := s.db.GetContext(ctx, &u,
		s.q("SELECT * FROM users WHERE LOWER(username) = LOWER(?) OR LOWER(email) = LOWER(?) ORDER BY id LIMIT 1"),
		login, login)
	if err != nil {
		return nil, notFound(err, "user", login)
	}
	return &u, nil
}

// EmailTaken reports whether another account already uses email
func (s *Store) EmailTaken(ctx context.Context, email string, exceptUserID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		s.q("SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(email) = LOWER(?) AND id <> ?)"), email, exceptUserID)
	return exists, err
}

// UpdateUser saves the editable account fields
func (s *Store) UpdateUser(ctx context.Context, u *models.User) error {
	res, err := s.db.ExecContext(ctx, s.q("UPDATE users SET email = ?, first_name = ?, last_name = ? WHERE id = ?"),
		u.Email, u.FirstName, u.LastName, u.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("email %s: %w", u.Email, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return expectRow(res, "user", u.ID)
}

// EnsureProfile creates the profile of a user unless one exists
func (s *Store) EnsureProfile(ctx context.Context, userID int64) error {
	ts := now()
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO user_profiles (user_id, phone_number, bio, newsletter_subscription, created_at, updated_at)
		VALUES (?, '', '', ?, ?, ?) ON CONFLICT (user_id) DO NOTHING`), userID, true, ts, ts)
	return err
}

// GetProfile retrieves the profile of a user
func (s *Store) GetProfile(ctx context.Context, userID int64) (*models.UserProfile, error) {
	var p models.UserProfile
	if err := s.db.GetContext(ctx, &p, s.q("SELECT * FROM user_profiles WHERE user_id = ?"), userID); err != nil {
		return nil, notFound(err, "profile for user", userID)
	}
	return &p, nil
}

// UpdateProfile saves the editable profile fields
func (s *Store) UpdateProfile(ctx context.Context, p *models.UserProfile) error {
	p.UpdatedAt = now()
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE user_profiles SET phone_number = ?, bio = ?, newsletter_subscription = ?,
			order_updates = ?, promotional_offers = ?, product_recommendations = ?, updated_at = ?
		WHERE user_id = ?`),
		p.PhoneNumber, p.Bio, p.NewsletterSubscription,
		p.OrderUpdates, p.PromotionalOffers, p.ProductRecommendations, p.UpdatedAt, p.UserID)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return expectRow(res, "profile for user", p.UserID)
}

// ListAddresses returns the saved addresses of a user, defaults first
func (s *Store) ListAddresses(ctx context.Context, userID int64) ([]models.SavedAddress, error) {
	addresses := []models.SavedAddress{}
	err := s.db.SelectContext(ctx, &addresses, s.q(
		"SELECT * FROM addresses WHERE user_id = ? ORDER BY is_default DESC, created_at DESC, id DESC"), userID)
	return addresses, err
}

// GetAddress retrieves one address owned by userID
func (s *Store) GetAddress(ctx context.Context, userID, addressID int64) (*models.SavedAddress, error) {
	var a models.SavedAddress
	err := s.db.GetContext(ctx, &a, s.q("SELECT * FROM addresses WHERE id = ? AND user_id = ?"), addressID, userID)
	if err != nil {
		return nil, notFound(err, "address", addressID)
	}
	return &a, nil
}

// GetDefaultAddress retrieves the default address of a type, if any
func (s *Store) GetDefaultAddress(ctx context.Context, userID int64, addressType string) (*models.SavedAddress, error) {
	var a models.SavedAddress
	err := s.db.GetContext(ctx, &a,
		s.q("SELECT * FROM addresses WHERE user_id = ? AND type = ? AND is_default = ? ORDER BY id LIMIT 1"),
		userID, addressType, true)
	if err != nil {
		return nil, notFound(err, "default address", addressType)
	}
	return &a, nil
}

// SaveAddress inserts or updates an address. Marking it default clears the
// previous default of the same user and type.
func (s *Store) SaveAddress(ctx context.Context, a *models.SavedAddress) error {
	ts := now()
	a.UpdatedAt = ts
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if a.IsDefault {
			_, err := tx.ExecContext(ctx, s.q(
				"UPDATE addresses SET is_default = ?, updated_at = ? WHERE user_id = ? AND type = ? AND id <> ? AND is_default = ?"),
				false, ts, a.UserID, a.Type, a.ID, true)
			if err != nil {
				return fmt.Errorf("failed to clear default address: %w", err)
			}
		}

		args := []interface{}{a.Type}
		args = append(args, addressArgs(a.Address)...)
		args = append(args, a.IsDefault, a.UpdatedAt)

		if a.ID == 0 {
			a.CreatedAt = ts
			args = append([]interface{}{a.UserID}, args...)
			args = append(args, a.CreatedAt)
			err := tx.GetContext(ctx, &a.ID, s.q(`
				INSERT INTO addresses (user_id, type, first_name, last_name, company, address_line_1,
					address_line_2, city, state, postal_code, country, phone, is_default, updated_at, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`), args...)
			if err != nil {
				return fmt.Errorf("failed to create address: %w", err)
			}
			return nil
		}

		args = append(args, a.ID, a.UserID)
		res, err := tx.ExecContext(ctx, s.q(`
			UPDATE addresses SET type = ?, first_name = ?, last_name = ?, company = ?, address_line_1 = ?,
				address_line_2 = ?, city = ?, state = ?, postal_code = ?, country = ?, phone = ?,
				is_default = ?, updated_at = ?
			WHERE id = ? AND user_id = ?`), args...)
		if err != nil {
			return fmt.Errorf("failed to update address: %w", err)
		}
		return expectRow(res, "address", a.ID)
	})
}

// DeleteAddress removes an address owned by userID
func (s *Store) DeleteAddress(ctx context.Context, userID, addressID int64) error {
	res, err := s.db.ExecContext(ctx, s.q("DELETE FROM addresses WHERE id = ? AND user_id = ?"), addressID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete address: %w", err)
	}
	return expectRow(res, "address", addressID)
}
