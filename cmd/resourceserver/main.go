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
	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/config"
	"rollcall/internal/hotspot"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/queue"
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
		log.Fatalf("resource server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "rollcall:attendance")
	}

	rosterRepo := roster.NewRepository(db.Client)
	attRepo := attendance.NewRepository(db.Client)
	att := attendance.NewService(attRepo, rosterRepo, cfg.OTPTTL, cfg.OTPLength, cfg.StoreTimeout)
	hotspots := hotspot.NewRepository(db.Client)

	// The resource server never persists refresh tokens; the token service
	// here only decodes access tokens at the boundary.
	tokens, err := token.NewService(cfg.JWTSecret, cfg.JWTAlgorithm, cfg.AccessTTL, cfg.RefreshTTL, cfg.StoreTimeout, nil)
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
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	authed := r.Group("/", auth.Bearer(tokens))
	facultyOnly := authed.Group("/", auth.RequireRole(roster.RoleFaculty))

	facultyOnly.POST("/start_session", func(c *gin.Context) {
		var req struct {
			Section string `json:"section" binding:"required"`
			Subject string `json:"subject" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		res, err := att.StartSession(c.Request.Context(), req.Section, req.Subject)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":     true,
			"otp":        res.OTP,
			"expires_at": res.ExpiresAt,
		})
	})

	facultyOnly.POST("/stop_session", func(c *gin.Context) {
		var req struct {
			Section string `json:"section" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := att.StopSession(c.Request.Context(), req.Section); err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": true})
	})

	authed.POST("/verify_otp", func(c *gin.Context) {
		var req struct {
			Section  string `json:"section" binding:"required"`
			Username string `json:"username" binding:"required"`
			OTP      string `json:"otp" binding:"required"`
			Date     string `json:"date" binding:"required"`
			Time     string `json:"time" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		claims := auth.MustClaims(c)
		caller := roster.Principal{Username: claims.UserID, Role: claims.Role}
		res, err := att.Verify(c.Request.Context(), caller, req.Section, req.Username, req.OTP, req.Date, req.Time)
		if err != nil {
			respondErr(c, err)
			return
		}

		message := "attendance marked"
		if res.AlreadyMarked {
			message = "attendance already marked for this session"
		} else if err := q.Publish(c.Request.Context(), queue.Attendance(res.RecordID)); err != nil {
			log.Printf("queue publish failed: %v", err)
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  true,
			"subject": res.Subject,
			"message": message,
		})
	})

	authed.GET("/current_class", func(c *gin.Context) {
		subject, active, err := att.CurrentClass(c.Request.Context(), c.Query("section"))
		if err != nil {
			respondErr(c, err)
			return
		}
		if !active {
			c.JSON(http.StatusOK, gin.H{"status": false, "subject": nil})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": true, "subject": subject})
	})

	authed.GET("/check_session", func(c *gin.Context) {
		_, active, err := att.CurrentClass(c.Request.Context(), c.Query("section"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": active})
	})

	authed.GET("/attendance_records", func(c *gin.Context) {
		recs, err := att.Records(c.Request.Context(), c.Query("section"))
		if err != nil {
			respondErr(c, err)
			return
		}
		out := make([]gin.H, 0, len(recs))
		for _, rec := range recs {
			out = append(out, gin.H{
				"date":     rec.Date.Format("2006-01-02"),
				"time":     rec.Time.Format("15:04:05"),
				"username": rec.Username,
				"subject":  rec.Subject,
			})
		}
		c.JSON(http.StatusOK, gin.H{"records": out})
	})

	authed.GET("/student_stats", func(c *gin.Context) {
		stats, err := att.Stats(c.Request.Context(), c.Query("section"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"stats": stats})
	})

	authed.GET("/class_ssid", func(c *gin.Context) {
		ssid, ok, err := hotspots.SSID(c.Request.Context(), c.Query("section"))
		if err != nil {
			respondErr(c, err)
			return
		}
		if !ok {
			c.JSON(http.StatusOK, gin.H{"ssid": nil})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ssid": ssid})
	})

	facultyOnly.POST("/class_ssid", func(c *gin.Context) {
		var req struct {
			Section string `json:"section" binding:"required"`
			SSID    string `json:"ssid" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := hotspots.UpdateSSID(c.Request.Context(), req.Section, req.SSID); err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": true})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ResourceHTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("resource server listening on :%s", cfg.ResourceHTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down resource server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
	log.Println("resource server exited")
	return nil
}

func respondErr(c *gin.Context, err error) {
	if ae, ok := apperr.AsError(err); ok {
		c.JSON(ae.HTTPStatus, gin.H{"error": ae.Message})
		return
	}
	c.JSON(apperr.ErrUnavailable.HTTPStatus, gin.H{"error": apperr.ErrUnavailable.Message})
}
