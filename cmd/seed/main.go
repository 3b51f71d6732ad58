package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"

	"storefront/config"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

func main() {
	adminUser := flag.String("admin-user", os.Getenv("ADMIN_USERNAME"), "username of the staff account to create")
	adminEmail := flag.String("admin-email", os.Getenv("ADMIN_EMAIL"), "email of the staff account")
	adminPassword := flag.String("admin-password", os.Getenv("ADMIN_PASSWORD"), "password of the staff account")
	flag.Parse()

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()
	logger := util.GetLogger()

	db, err := store.NewStore(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}

	ctx := context.Background()
	stats, err := db.SeedCatalog(ctx)
	if err != nil {
		logger.Fatal("Failed to seed catalog", zap.Error(err))
	}
	logger.Info("Catalog seeded",
		zap.Int("categories", stats.Categories),
		zap.Int("products", stats.Products),
		zap.Int("shipping_methods", stats.ShippingMethods))

	if *adminUser == "" {
		return
	}

	users := service.NewUserService(db, nil, nil, nil, nil)
	admin, err := users.CreateStaff(ctx, *adminUser, *adminEmail, *adminPassword)
	switch {
	case errors.Is(err, service.ErrUsernameTaken), errors.Is(err, service.ErrEmailTaken):
		logger.Info("Staff account already exists", zap.String("username", *adminUser))
	case err != nil:
		logger.Fatal("Failed to create staff account", zap.Error(err))
	default:
		logger.Info("Staff account created", zap.Int64("user_id", admin.ID), zap.String("username", admin.Username))
	}
}
