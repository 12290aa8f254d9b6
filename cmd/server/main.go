// Package main runs the Nestfolio HTTP API with WebSocket rooms and graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nestfolio/backend/config"
	"github.com/nestfolio/backend/internal/addons"
	"github.com/nestfolio/backend/internal/auth"
	"github.com/nestfolio/backend/internal/collections"
	"github.com/nestfolio/backend/internal/emaillogs"
	"github.com/nestfolio/backend/internal/financing"
	"github.com/nestfolio/backend/internal/floodrisk"
	"github.com/nestfolio/backend/internal/listings"
	"github.com/nestfolio/backend/internal/middleware"
	"github.com/nestfolio/backend/internal/organizations"
	"github.com/nestfolio/backend/internal/photos"
	"github.com/nestfolio/backend/internal/plans"
	"github.com/nestfolio/backend/internal/quota"
	"github.com/nestfolio/backend/internal/realtime"
	"github.com/nestfolio/backend/internal/sharing"
	"github.com/nestfolio/backend/internal/subscriptions"
	"github.com/nestfolio/backend/pkg/database"
	"github.com/nestfolio/backend/pkg/queue"
	"github.com/nestfolio/backend/pkg/redis"
	"github.com/nestfolio/backend/pkg/response"
	"github.com/nestfolio/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			PhotosBucket:         cfg.AWS.PhotosBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.Session.Secret, cfg.Session.ExpireHours)
	cookieSettings := auth.CookieSettings{
		Name:   cfg.Session.CookieName,
		Domain: cfg.Session.CookieDomain,
		Secure: cfg.Session.CookieSecure,
	}

	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	jobQueue := queue.NewQueue(rdb.Client, logger)
	parseCounter := quota.NewCounter(rdb.Client, logger)

	// Repositories
	authRepo := auth.NewRepository(pool)
	orgRepo := organizations.NewRepository(pool)
	planRepo := plans.NewRepository(pool)
	subRepo := subscriptions.NewRepository(pool)
	addonRepo := addons.NewRepository(pool)
	collectionRepo := collections.NewRepository(pool)
	listingRepo := listings.NewRepository(pool)
	photoRepo := photos.NewRepository(pool)
	emailLogRepo := emaillogs.NewRepository(pool)

	access := collections.NewAccess(orgRepo)
	resolver := subscriptions.NewResolver(subRepo, planRepo)
	entitlements := addons.NewEntitlements(addonRepo)

	// S3 is optional; handlers degrade to 503 when unset. The checks
	// below keep a nil *storage.S3 out of the interface values.
	var objectStore photos.ObjectStore
	var sharePresigner sharing.Presigner
	if s3Client != nil {
		objectStore = s3Client
		sharePresigner = s3Client
	}

	// Handlers
	authHandler := auth.NewHandler(authRepo, jwtService, cookieSettings, collectionRepo, logger)
	orgHandler := organizations.NewHandler(orgRepo, authRepo, resolver, jobQueue, cfg.Server.PublicBaseURL, logger)
	planHandler := plans.NewHandler(planRepo)
	subHandler := subscriptions.NewHandler(subRepo, planRepo, resolver, collectionRepo, parseCounter, addonRepo, logger)
	addonHandler := addons.NewHandler(addonRepo, orgRepo, logger)
	collectionHandler := collections.NewHandler(collectionRepo, access, orgRepo, resolver, hub, photoRepo, jobQueue, logger)
	listingHandler := listings.NewHandler(listingRepo, collectionRepo, access, resolver, parseCounter, hub, photoRepo, jobQueue, logger)
	photoHandler := photos.NewHandler(photoRepo, objectStore, listingRepo, collectionRepo, access, jobQueue, logger)
	sharingHandler := sharing.NewHandler(collectionRepo, listingRepo, photoRepo, sharePresigner, logger)
	floodHandler := floodrisk.NewHandler(listingRepo, collectionRepo, access, entitlements, logger)
	financeHandler := financing.NewHandler(orgRepo, entitlements)
	emailLogHandler := emaillogs.NewHandler(emailLogRepo, orgRepo)

	validate := func(token string) (middleware.Identity, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return middleware.Identity{}, err
		}
		return middleware.Identity{UserID: claims.UserID, Email: claims.Email, IsAdmin: claims.IsAdmin}, nil
	}

	canViewCollection := func(ctx context.Context, collectionID, userID uuid.UUID, isAdmin bool) (bool, error) {
		col, err := collectionRepo.GetByID(ctx, collectionID)
		if errors.Is(err, collections.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return access.CanView(ctx, col, userID, isAdmin)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) {
		status := "ok"
		dbUp := pool.Ping(c.Request.Context()) == nil
		redisUp := rdb.Healthy(c.Request.Context())
		if !dbUp || !redisUp {
			status = "degraded"
		}
		response.OK(c, gin.H{"status": status, "database": dbUp, "redis": redisUp})
	})

	// Public
	router.GET("/api/plans", planHandler.List)
	router.GET("/api/shared/:token", sharingHandler.Get)

	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
	}

	sessionRequired := middleware.Session(cfg.Session.CookieName, validate)

	api := router.Group("/api")
	api.Use(sessionRequired)
	{
		api.POST("/auth/logout", authHandler.Logout)
		api.GET("/auth/me", authHandler.Me)

		// Organizations
		api.GET("/organizations", orgHandler.List)
		api.POST("/organizations", orgHandler.Create)
		api.GET("/organizations/:id", orgHandler.Get)
		api.PUT("/organizations/:id", orgHandler.Update)
		api.DELETE("/organizations/:id", orgHandler.Delete)
		api.GET("/organizations/:id/members", orgHandler.ListMembers)
		api.POST("/organizations/:id/members", orgHandler.AddMember)
		api.PUT("/organizations/:id/members/:userId", orgHandler.UpdateMember)
		api.DELETE("/organizations/:id/members/:userId", orgHandler.RemoveMember)
		api.POST("/organizations/:id/invitations", orgHandler.CreateInvitation)
		api.GET("/organizations/:id/invitations", orgHandler.ListInvitations)
		api.DELETE("/organizations/:id/invitations/:invID", orgHandler.RevokeInvitation)
		api.POST("/invitations/:token/accept", orgHandler.AcceptInvitation)

		// Organization addon grants and email delivery log
		api.GET("/organizations/:id/addons", addonHandler.OrgGrants)
		api.POST("/organizations/:id/addons", addonHandler.CreateOrgGrant)
		api.PATCH("/organizations/:id/addons/:slug", addonHandler.UpdateOrgGrant)
		api.DELETE("/organizations/:id/addons/:slug", addonHandler.DeleteOrgGrant)
		api.GET("/organizations/:id/emails", emailLogHandler.ListForOrg)

		// Collections
		api.GET("/collections", collectionHandler.List)
		api.POST("/collections", collectionHandler.Create)
		api.GET("/collections/:id", collectionHandler.Get)
		api.PUT("/collections/:id", collectionHandler.Update)
		api.DELETE("/collections/:id", collectionHandler.Delete)
		api.POST("/collections/:id/share", collectionHandler.Share)
		api.DELETE("/collections/:id/share", collectionHandler.Unshare)

		// Listings
		api.GET("/collections/:id/listings", listingHandler.List)
		api.POST("/collections/:id/listings", listingHandler.Create)
		api.POST("/collections/:id/listings/parse", listingHandler.Parse)
		api.GET("/collections/:id/listings/:listingId", listingHandler.Get)
		api.PUT("/collections/:id/listings/:listingId", listingHandler.Update)
		api.DELETE("/collections/:id/listings/:listingId", listingHandler.Delete)

		// Photos
		api.POST("/listings/:id/photos/upload-url", photoHandler.UploadURL)
		api.POST("/listings/:id/photos/upload", photoHandler.Upload)
		api.POST("/listings/:id/photos", photoHandler.Create)
		api.GET("/listings/:id/photos", photoHandler.List)
		api.DELETE("/photos/:photoId", photoHandler.Delete)

		// Addon features
		api.GET("/listings/:id/flood-risk", floodHandler.Get)
		api.POST("/financing/simulate", financeHandler.Simulate)

		// Plans and subscriptions
		api.GET("/subscriptions", subHandler.List)
		api.POST("/subscriptions", subHandler.Subscribe)
		api.GET("/me/entitlements", subHandler.Entitlements)

		// Addons
		api.GET("/addons", addonHandler.Catalog)
		api.GET("/me/addons", addonHandler.MyGrants)
		api.PATCH("/me/addons/:slug", addonHandler.UpdateMyGrant)
	}

	admin := router.Group("/api/admin")
	admin.Use(sessionRequired, middleware.RequireAdmin())
	{
		admin.GET("/users", authHandler.List)
		admin.GET("/subscriptions", subHandler.AdminList)
		admin.POST("/subscriptions", subHandler.AdminGrant)
		admin.PATCH("/subscriptions/:id", subHandler.AdminUpdate)
		admin.DELETE("/subscriptions/:id", subHandler.AdminDelete)
		admin.GET("/organizations/:orgId/addons", addonHandler.AdminOrgGrants)
		admin.POST("/organizations/:orgId/addons", addonHandler.AdminCreateOrgGrant)
		admin.PATCH("/organizations/:orgId/addons/:slug", addonHandler.AdminUpdateOrgGrant)
		admin.DELETE("/organizations/:orgId/addons/:slug", addonHandler.AdminDeleteOrgGrant)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, validate, canViewCollection))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
