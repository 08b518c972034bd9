package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"

	"app/internal/config"
	"app/internal/es"
	"app/internal/handlers"
	"app/internal/hash"
	"app/internal/logging"
	authmw "app/internal/middleware/auth"
	loggingmw "app/internal/middleware/logging"
	"app/internal/models"
	"app/internal/mykafka"
	"app/internal/tokens"
	httpserver "app/internal/transport/http"
)

const employeeIndex = "employee"

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(configuration.LogLevel)

	if !configuration.IsDevelopment() &&
		(configuration.AccessSecret == config.DefaultAccessSecret ||
			configuration.RefreshSecret == config.DefaultRefreshSecret) {
		log.Fatal("refusing to start in production with default token secrets")
	}

	db, err := config.InitDB(configuration)
	if err != nil {
		log.Fatalf("database init failed: %v", err)
	}

	if err := seedAdmin(db, configuration); err != nil {
		log.Fatalf("admin seed failed: %v", err)
	}

	prod, err := mykafka.NewProducer(strings.Split(configuration.KafkaAddress, ","))
	if err != nil {
		log.Fatalf("kafka init failed: %v", err)
	}

	esClient, err := es.NewClient(configuration)
	if err != nil {
		log.Fatalf("elasticsearch init failed: %v", err)
	}

	accessCodec := tokens.New(configuration.AccessSecret, configuration.AccessTTL)
	refreshAccessCodec := tokens.New(configuration.AccessSecret, configuration.RefreshAccessTTL)
	refreshCodec := tokens.New(configuration.RefreshSecret, configuration.RefreshTTL)

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     strings.Split(configuration.CORSOrigins, ","),
		AllowCredentials: true,
	}))
	e.Use(loggingmw.RequestLogger(logger))

	deps := httpserver.Deps{
		AuthHandler: &handlers.AuthHandler{
			DB:                 db,
			AccessCodec:        accessCodec,
			RefreshAccessCodec: refreshAccessCodec,
			RefreshCodec:       refreshCodec,
			Development:        configuration.IsDevelopment(),
			Producer:           prod,
		},
		EmployeeHandler: &handlers.EmployeeHandler{DB: db, Producer: prod, ES: esClient, Index: employeeIndex},
		UserHandler:     &handlers.UserHandler{DB: db, Producer: prod},
		SearchHandler:   &handlers.SearchHandler{ES: esClient, Index: employeeIndex},
		Gate:            &authmw.Gate{Access: accessCodec},
	}

	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         ":" + configuration.Port,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	}

	if err := prod.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}

	log.Println("shutdown complete")
}

// seedAdmin creates (or upgrades) the configured admin account so a fresh
// environment has one identity that can reach the admin-only routes.
func seedAdmin(db *gorm.DB, configuration *config.Config) error {
	if configuration.SeedAdminUser == "" || configuration.SeedAdminPass == "" {
		return nil
	}

	pwHash, err := hash.HashPassword(configuration.SeedAdminPass)
	if err != nil {
		return err
	}

	roles := models.DeserializeRoles([]int{models.RoleUser, models.RoleAdmin})

	var user models.User
	err = db.Where("username = ?", configuration.SeedAdminUser).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return db.Create(&models.User{
			Username:     configuration.SeedAdminUser,
			PasswordHash: pwHash,
			Roles:        roles,
		}).Error
	case err != nil:
		return err
	default:
		return db.Model(&user).Update("roles", roles).Error
	}
}
