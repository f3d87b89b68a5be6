package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"classattend/internal/attendance"
	"classattend/internal/audit"
	"classattend/internal/auth"
	"classattend/internal/config"
	"classattend/internal/device"
	"classattend/internal/enrollment"
	"classattend/internal/geo"
	"classattend/internal/httpmiddleware"
	"classattend/internal/logging"
	"classattend/internal/queue"
	"classattend/internal/receipt"
	"classattend/internal/session"
	"classattend/internal/store"
	"classattend/internal/student"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	defer log.Sync()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, log *zap.Logger) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.EnsureSchema(context.Background()); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	var limiter httpmiddleware.Limiter
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
		limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.AuditQueueKey)
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, "classattend:rl", cfg.RateLimitPerMin, time.Minute)
	}

	signer, err := receipt.NewSigner(cfg.ReceiptSecret)
	if err != nil {
		return err
	}

	sessions := session.NewStore(db.Client)
	students := student.NewStore(db.Client)
	enrollments := enrollment.NewStore(db.Client)
	records := attendance.NewRepository(db.Client)
	svc := attendance.NewService(sessions, students, enrollments, records, signer,
		audit.NewQueuePublisher(q), log)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())

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

	r.POST("/v1/attendance", httpmiddleware.GinMiddleware(limiter), submitHandler(svc))
	r.POST("/v1/auth/token", tokenHandler(cfg))

	teacherGroup := r.Group("/v1", auth.TeacherAuth(cfg.JWTSigningKey, cfg.JWTIssuer))
	teacherGroup.POST("/sessions/:id/manual", manualHandler(svc))
	teacherGroup.GET("/sessions/:id/records", recordsHandler(sessions, records))

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("forced shutdown", zap.Error(err))
	}
	log.Info("server exited")
	return nil
}

type submitRequest struct {
	MatricNo    string          `json:"matric_no" binding:"required,max=32"`
	SessionCode string          `json:"session_code" binding:"required,numeric,len=4"`
	Lat         *float64        `json:"lat" binding:"required,gte=-90,lte=90"`
	Lng         *float64        `json:"lng" binding:"required,gte=-180,lte=180"`
	Accuracy    *float64        `json:"accuracy" binding:"omitempty,gte=0"`
	Level       *int            `json:"level" binding:"omitempty,gt=0"`
	DeviceInfo  json.RawMessage `json:"device_info"`
}

func submitHandler(svc *attendance.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req submitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !geo.ValidRange(geo.Point{Lat: *req.Lat, Lng: *req.Lng}) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "coordinates out of range"})
			return
		}

		info, err := device.ParseInfo(req.DeviceInfo)
		if err != nil {
			writeRejection(c, &attendance.Rejection{
				Kind:    attendance.KindMalformedDeviceInfo,
				Message: "device info failed validation",
			})
			return
		}

		res, err := svc.Submit(c.Request.Context(), attendance.SubmitInput{
			MatricNo:      req.MatricNo,
			SessionCode:   req.SessionCode,
			Lat:           *req.Lat,
			Lng:           *req.Lng,
			AccuracyM:     req.Accuracy,
			DeclaredLevel: req.Level,
			Device:        info,
			UserAgent:     c.Request.UserAgent(),
			ClientIP:      c.ClientIP(),
		})
		if err != nil {
			if rej, ok := attendance.AsRejection(err); ok {
				writeRejection(c, rej)
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "submission failed"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"status":     res.Status,
			"receipt":    res.Receipt,
			"distance_m": res.Distance,
		})
	}
}

type tokenRequest struct {
	TeacherID    string `json:"teacher_id" binding:"required,uuid"`
	ProvisionKey string `json:"provision_key" binding:"required"`
}

// tokenHandler mints teacher bearer tokens against the shared provisioning
// key. Left unset, the key disables issuance entirely and tokens must come
// from an external identity provider.
func tokenHandler(cfg config.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.TeacherProvisionKey == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "token issuance not configured"})
			return
		}

		var req tokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if subtle.ConstantTimeCompare([]byte(req.ProvisionKey), []byte(cfg.TeacherProvisionKey)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid provision key"})
			return
		}

		token, exp, err := auth.Issue(req.TeacherID, auth.RoleTeacher, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"access_token": token,
			"expires_at":   exp.Unix(),
		})
	}
}

type manualRequest struct {
	StudentID string `json:"student_id" binding:"required,uuid"`
	Status    string `json:"status" binding:"required"`
	Reason    string `json:"reason" binding:"omitempty,max=256"`
}

func manualHandler(svc *attendance.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req manualRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		rec, err := svc.MarkManual(c.Request.Context(), c.Param("id"), req.StudentID,
			attendance.Status(req.Status), req.Reason)
		if err != nil {
			if rej, ok := attendance.AsRejection(err); ok {
				writeRejection(c, rej)
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "manual mark failed"})
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

func recordsHandler(sessions *session.Store, records *attendance.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		teacherID := c.GetString("teacher_id")
		sess, err := sessions.FindForTeacher(c.Request.Context(), c.Param("id"), teacherID)
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
			return
		}

		list, err := records.ListBySession(c.Request.Context(), sess.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "listing failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"session_id": sess.ID, "records": list})
	}
}

func writeRejection(c *gin.Context, rej *attendance.Rejection) {
	status := http.StatusBadRequest
	switch rej.Kind {
	case attendance.KindSessionNotFound, attendance.KindStudentNotFound:
		status = http.StatusNotFound
	case attendance.KindNotEnrolled, attendance.KindLevelMismatch:
		status = http.StatusForbidden
	case attendance.KindAlreadySubmitted, attendance.KindDeviceAlreadyUsed:
		status = http.StatusConflict
	case attendance.KindOutOfRange:
		status = http.StatusUnprocessableEntity
	case attendance.KindInternal:
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{
		"error":   rej.Message,
		"kind":    rej.Kind,
		"details": rej.Details,
	})
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
