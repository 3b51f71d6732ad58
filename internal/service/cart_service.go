package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Owner identifies whose cart a request operates on. A user takes
// precedence over a session.
type Owner struct {
	UserID     *int64
	SessionKey string
}

// UserOwner returns the owner for an authenticated user
func UserOwner(userID int64) Owner {
	return Owner{UserID: &userID}
}

// SessionOwner returns the owner for an anonymous session
func SessionOwner(sessionKey string) Owner {
	return Owner{SessionKey: sessionKey}
}

// Key is the cache key of the owner
func (o Owner) Key() string {
	if o.UserID != nil {
		return "user:" + strconv.FormatInt(*o.UserID, 10)
	}
	return "session:" + o.SessionKey
}

func (o Owner) valid() bool {
	return o.UserID != nil || o.SessionKey != ""
}

// CartCache stores the lines of carts keyed by owner. Prices and stock are
// never cached. SetCart must refuse to write when the cart was invalidated
// after version was read.
type CartCache interface {
	GetCart(ctx context.Context, owner string) (*models.CartContents, error)
	CartVersion(ctx context.Context, owner string) (int64, error)
	SetCart(ctx context.Context, owner string, version int64, contents *models.CartContents) (bool, error)
	DeleteCart(ctx context.Context, owner string) error
}

// CartService manages carts and their lines
type CartService struct {
	store  *store.Store
	cache  CartCache
	sfg    singleflight.Group
	logger *zap.Logger
}

// NewCartService creates a cart service. cache may be nil.
func NewCartService(store *store.Store, cache CartCache) *CartService {
	return &CartService{
		store:  store,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// GetOrCreate returns the cart of owner, creating it on first use
func (s *CartService) GetOrCreate(ctx context.Context, owner Owner) (*models.Cart, error) {
	if !owner.valid() {
		return nil, ErrNoOwner
	}
	if owner.UserID != nil {
		return s.store.GetOrCreateUserCart(ctx, *owner.UserID)
	}
	return s.store.GetOrCreateSessionCart(ctx, owner.SessionKey)
}

// View returns the cart of owner priced from the live catalog
func (s *CartService) View(ctx context.Context, owner Owner) (*models.CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.View")
	defer span.End()

	if !owner.valid() {
		return nil, ErrNoOwner
	}
	key := owner.Key()

	v, err, _ := s.sfg.Do(key, func() (interface{}, error) {
		contents, err := s.contents(ctx, owner)
		if err != nil {
			return nil, err
		}
		return s.price(ctx, contents)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.CartView), nil
}

// contents returns the lines of the owner's cart, from the cache when possible
func (s *CartService) contents(ctx context.Context, owner Owner) (*models.CartContents, error) {
	key := owner.Key()
	cacheable := s.cache != nil
	var version int64

	if cacheable {
		contents, err := s.cache.GetCart(ctx, key)
		if err == nil {
			util.CartCacheTotal.WithLabelValues("hit").Inc()
			return contents, nil
		}
		if errors.Is(err, redisclient.ErrCacheMiss) {
			util.CartCacheTotal.WithLabelValues("miss").Inc()
		} else {
			util.CartCacheTotal.WithLabelValues("error").Inc()
			s.logger.Warn("Cart cache read failed", zap.String("owner", key), zap.Error(err))
		}

		version, err = s.cache.CartVersion(ctx, key)
		if err != nil {
			cacheable = false
		}
	}

	cart, err := s.GetOrCreate(ctx, owner)
	if err != nil {
		return nil, err
	}
	lines, err := s.store.GetCartLineRefs(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	contents := &models.CartContents{Cart: *cart, Lines: lines}

	if cacheable {
		if _, err := s.cache.SetCart(ctx, key, version, contents); err != nil {
			s.logger.Warn("Cart cache write failed", zap.String("owner", key), zap.Error(err))
		}
	}
	return contents, nil
}

// price joins cart lines with the live catalog. Lines of deleted products are dropped.
func (s *CartService) price(ctx context.Context, contents *models.CartContents) (*models.CartView, error) {
	ids := make([]int64, 0, len(contents.Lines))
	for _, l := range contents.Lines {
		ids = append(ids, l.ProductID)
	}
	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	view := &models.CartView{Cart: contents.Cart, Lines: make([]models.CartLineView, 0, len(contents.Lines))}
	for _, l := range contents.Lines {
		p, ok := products[l.ProductID]
		if !ok {
			continue
		}
		view.Lines = append(view.Lines, models.CartLineView{
			CartLine:      l,
			ProductName:   p.Name,
			ProductSlug:   p.Slug,
			UnitPrice:     p.Price,
			StockQuantity: p.StockQuantity,
			IsAvailable:   p.IsAvailable,
		})
	}
	return view, nil
}

// AddLine adds quantity units of a product, incrementing an existing line
func (s *CartService) AddLine(ctx context.Context, owner Owner, productID int64, quantity int) error {
	ctx, span := util.StartSpan(ctx, "CartService.AddLine")
	defer span.End()

	if quantity < 1 {
		return invalid("quantity", "must be at least 1")
	}

	product, err := s.store.GetProductByID(ctx, productID)
	if err != nil {
		return err
	}
	if !product.IsAvailable {
		return fmt.Errorf("product %d: %w", productID, ErrNotFound)
	}

	cart, err := s.GetOrCreate(ctx, owner)
	if err != nil {
		return err
	}

	existing := 0
	line, err := s.store.GetCartLineByProduct(ctx, cart.ID, productID)
	switch {
	case err == nil:
		existing = line.Quantity
	case !errors.Is(err, store.ErrNotFound):
		return err
	}

	if existing+quantity > product.StockQuantity {
		return &InsufficientStockError{
			ProductName: product.Name,
			Requested:   existing + quantity,
			Available:   product.StockQuantity,
		}
	}

	if err := s.store.AddCartLine(ctx, cart.ID, productID, quantity); err != nil {
		return err
	}

	util.CartMutationsTotal.WithLabelValues("add").Inc()
	s.Invalidate(ctx, owner)
	return nil
}

// UpdateLine sets the quantity of a line. A quantity of zero or less removes it.
func (s *CartService) UpdateLine(ctx context.Context, owner Owner, lineID int64, quantity int) error {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateLine")
	defer span.End()

	cart, err := s.GetOrCreate(ctx, owner)
	if err != nil {
		return err
	}

	line, err := s.store.GetCartLine(ctx, cart.ID, lineID)
	if err != nil {
		return err
	}

	if quantity <= 0 {
		if err := s.store.DeleteCartLine(ctx, cart.ID, lineID); err != nil {
			return err
		}
		util.CartMutationsTotal.WithLabelValues("remove").Inc()
		s.Invalidate(ctx, owner)
		return nil
	}

	if quantity > line.StockQuantity {
		return &InsufficientStockError{
			ProductName: line.ProductName,
			Requested:   quantity,
			Available:   line.StockQuantity,
		}
	}

	if err := s.store.SetCartLineQuantity(ctx, cart.ID, lineID, quantity); err != nil {
		return err
	}

	util.CartMutationsTotal.WithLabelValues("update").Inc()
	s.Invalidate(ctx, owner)
	return nil
}

// RemoveLine deletes a line of the owner's cart
func (s *CartService) RemoveLine(ctx context.Context, owner Owner, lineID int64) error {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveLine")
	defer span.End()

	cart, err := s.GetOrCreate(ctx, owner)
	if err != nil {
		return err
	}
	if err := s.store.DeleteCartLine(ctx, cart.ID, lineID); err != nil {
		return err
	}

	util.CartMutationsTotal.WithLabelValues("remove").Inc()
	s.Invalidate(ctx, owner)
	return nil
}

// Merge moves the lines of an anonymous session cart into the user's cart
func (s *CartService) Merge(ctx context.Context, sessionKey string, userID int64) error {
	ctx, span := util.StartSpan(ctx, "CartService.Merge")
	defer span.End()

	if sessionKey == "" {
		return nil
	}

	source, err := s.store.FindSessionCart(ctx, sessionKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	target, err := s.store.GetOrCreateUserCart(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.store.MergeCarts(ctx, source.ID, target.ID); err != nil {
		return fmt.Errorf("failed to merge carts: %w", err)
	}

	util.CartMutationsTotal.WithLabelValues("merge").Inc()
	s.Invalidate(ctx, SessionOwner(sessionKey))
	s.Invalidate(ctx, UserOwner(userID))

	s.logger.Info("Merged session cart",
		zap.Int64("user_id", userID),
		zap.Int64("source_cart_id", source.ID),
		zap.Int64("target_cart_id", target.ID))
	return nil
}

// Invalidate drops the cached lines of the owner's cart
func (s *CartService) Invalidate(ctx context.Context, owner Owner) {
	s.sfg.Forget(owner.Key())
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := s.cache.DeleteCart(ctx, owner.Key()); err != nil {
		s.logger.Warn("Cart cache invalidation failed", zap.String("owner", owner.Key()), zap.Error(err))
	}
}
