package main

import (
	"context"
	"flag"
	"time"

	"go.uber.org/zap"

	"github.com/jdfresh/backend/internal/domain/identity"
	"github.com/jdfresh/backend/internal/infrastructure/config"
	"github.com/jdfresh/backend/internal/infrastructure/logger"
	"github.com/jdfresh/backend/internal/infrastructure/persistence"
)

// migrate applies the schema, seeds the order number counter and,
// optionally, creates an initial admin account.
func main() {
	adminEmail := flag.String("admin-email", "", "create an admin account with this email")
	adminPassword := flag.String("admin-password", "", "password for the admin account")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.NewForEnvironment(cfg.App.Env)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		_ = db.Close()
	}()

	if err := db.AutoMigrate(); err != nil {
		log.Fatal("Migration failed", zap.Error(err))
	}
	log.Info("Schema migrated")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	orderRepo := persistence.NewGormOrderRepository(db.DB)
	if err := orderRepo.SeedOrderCounter(ctx); err != nil {
		log.Fatal("Failed to seed order number counter", zap.Error(err))
	}
	log.Info("Order number counter seeded")

	if *adminEmail != "" {
		if *adminPassword == "" {
			log.Fatal("admin-password is required when admin-email is set")
		}

		users := persistence.NewGormUserRepository(db.DB)
		if existing, err := users.FindByEmail(ctx, *adminEmail); err == nil && existing != nil {
			log.Info("Admin account already exists", zap.String("email", *adminEmail))
			return
		}

		admin, err := identity.NewUser("Administrator", *adminEmail, "", *adminPassword, identity.RoleAdmin)
		if err != nil {
			log.Fatal("Failed to build admin account", zap.Error(err))
		}
		if err := users.Save(ctx, admin); err != nil {
			log.Fatal("Failed to save admin account", zap.Error(err))
		}
		log.Info("Admin account created", zap.String("email", *adminEmail))
	}
}
