package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxReviewTitle = 200

// ReviewRequest is a new product review
type ReviewRequest struct {
	Rating  int    `json:"rating"`
	Title   string `json:"title"`
	Comment string `json:"comment"`
}

// ReviewPage lists the reviews of a product with their average rating
type ReviewPage struct {
	Reviews       []models.ProductReview `json:"reviews"`
	Count         int                    `json:"count"`
	AverageRating decimal.Decimal        `json:"average_rating"`
}

// ReviewService manages product reviews
type ReviewService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewReviewService creates a review service
func NewReviewService(store *store.Store) *ReviewService {
	return &ReviewService{store: store, logger: util.GetLogger()}
}

// Add records the user's review of the product with slug. Each user reviews a
// product once; reviews by buyers of the product are marked verified.
func (s *ReviewService) Add(ctx context.Context, userID int64, slug string, req *ReviewRequest) (*models.ProductReview, error) {
	ctx, span := util.StartSpan(ctx, "ReviewService.Add")
	defer span.End()

	title := strings.TrimSpace(req.Title)
	comment := strings.TrimSpace(req.Comment)
	switch {
	case req.Rating < 1 || req.Rating > 5:
		return nil, invalid("rating", "must be between 1 and 5")
	case title == "":
		return nil, invalid("title", "is required")
	case utf8.RuneCountInString(title) > maxReviewTitle:
		return nil, invalid("title", "must be at most 200 characters")
	case comment == "":
		return nil, invalid("comment", "is required")
	}

	product, err := s.store.GetProductBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	verified, err := s.store.HasPurchased(ctx, userID, product.ID)
	if err != nil {
		return nil, err
	}

	review := &models.ProductReview{
		ProductID:          product.ID,
		UserID:             userID,
		Username:           user.Username,
		Rating:             req.Rating,
		Title:              title,
		Comment:            comment,
		IsVerifiedPurchase: verified,
		IsApproved:         true,
	}
	if err := s.store.CreateReview(ctx, review); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrAlreadyReviewed
		}
		return nil, err
	}

	s.logger.Info("Review added",
		zap.Int64("product_id", product.ID),
		zap.Int64("user_id", userID),
		zap.Int("rating", review.Rating))
	return review, nil
}

// List returns the approved reviews of the product with slug
func (s *ReviewService) List(ctx context.Context, slug string) (*ReviewPage, error) {
	ctx, span := util.StartSpan(ctx, "ReviewService.List")
	defer span.End()

	product, err := s.store.GetProductBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	reviews, err := s.store.ListReviews(ctx, product.ID)
	if err != nil {
		return nil, err
	}

	page := &ReviewPage{Reviews: reviews, Count: len(reviews), AverageRating: decimal.Zero}
	if len(reviews) > 0 {
		sum := 0
		for _, r := range reviews {
			sum += r.Rating
		}
		page.AverageRating = decimal.NewFromInt(int64(sum)).
			Div(decimal.NewFromInt(int64(len(reviews)))).Round(1)
	}
	return page, nil
}
