package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rollcall/internal/apperr"
	"rollcall/internal/config"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/roster"
	"rollcall/internal/store"
	"rollcall/internal/token"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("auth server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	tokenRepo := token.NewRepository(db.Client)
	rosterRepo := roster.NewRepository(db.Client)
	tokens, err := token.NewService(cfg.JWTSecret, cfg.JWTAlgorithm, cfg.AccessTTL, cfg.RefreshTTL, cfg.StoreTimeout, tokenRepo)
	if err != nil {
		return err
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		if err := db.Client.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "db": true})
	})

	r.POST("/login", func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
			Role     string `json:"role" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.StoreTimeout)
		defer cancel()
		principal, err := rosterRepo.Verify(ctx, req.Username, req.Password, req.Role)
		if err != nil {
			respondErr(c, err)
			return
		}

		pair, err := tokens.Issue(principal.Username, principal.Role)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		if err := tokenRepo.Save(ctx, tokens.RecordFor(pair, principal.Username, principal.Role)); err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"access_token":  pair.AccessToken,
			"refresh_token": pair.RefreshToken,
			"token_type":    "bearer",
			"expires_at":    pair.AccessExp.Unix(),
		})
	})

	r.POST("/refresh", func(c *gin.Context) {
		var req struct {
			RefreshToken string `json:"refresh_token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		accessToken, exp, err := tokens.Refresh(c.Request.Context(), req.RefreshToken)
		if err != nil {
			respondErr(c, err)
			return
		}

		// The refresh token is returned unchanged; pairs are not rotated.
		c.JSON(http.StatusOK, gin.H{
			"access_token":  accessToken,
			"refresh_token": req.RefreshToken,
			"token_type":    "bearer",
			"expires_at":    exp.Unix(),
		})
	})

	r.POST("/logout", func(c *gin.Context) {
		var req struct {
			RefreshToken string `json:"refresh_token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// Logout never fails visibly; revocation of an unknown or already
		// revoked token is a no-op.
		if err := tokens.Revoke(c.Request.Context(), req.RefreshToken); err != nil {
			log.Printf("logout: revoke failed: %v", err)
		}
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.AuthHTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("auth server listening on :%s", cfg.AuthHTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down auth server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
	log.Println("auth server exited")
	return nil
}

func respondErr(c *gin.Context, err error) {
	if ae, ok := apperr.AsError(err); ok {
		c.JSON(ae.HTTPStatus, gin.H{"error": ae.Message})
		return
	}
	// Anything untyped at this boundary is a storage failure.
	c.JSON(apperr.ErrUnavailable.HTTPStatus, gin.H{"error": apperr.ErrUnavailable.Message})
}
