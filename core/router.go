package core

import (
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	AppName    = "Sentiment Analysis API"
	AppVersion = "1.0.0"
)

// NewRouter constructs the Gin engine for one prediction replica.
// classifier may be nil when the model artifact is missing; prediction
// routes then answer 503. db and redisClient may be nil in tests.
func NewRouter(cfg Config, auth AuthService, users UserRepository, tokens *TokenService, classifier SentimentClassifier, db Pinger, redisClient RedisClientRaw, heartbeat *HeartbeatState) *gin.Engine {
	r := gin.Default()

	if len(cfg.AllowedOrigins) > 0 {
		r.Use(CORSMiddleware(cfg))
	}

	hostname, _ := os.Hostname()
	var stats *StatsService
	if redisClient != nil {
		stats = NewStatsService(redisClient)
	}

	// recordPredictions is best-effort bookkeeping after a successful request.
	recordPredictions := func(c *gin.Context, n int, err error) {
		if heartbeat != nil {
			heartbeat.PredictionRecorded(n, err)
		}
		if stats != nil && err == nil {
			if serr := stats.IncrPredictions(c.Request.Context(), cfg.InstanceID, int64(n)); serr != nil {
				log.Printf("stats incr failed: %v", serr)
			}
		}
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message":      "Sentiment Analysis API - Instance: " + cfg.InstanceID,
			"app_name":     AppName,
			"version":      AppVersion,
			"instance_id":  cfg.InstanceID,
			"hostname":     hostname,
			"model_loaded": classifier != nil,
			"client_ip":    clientIP(c),
			"health_check": "/health",
		})
	})

	healthPayload := func() gin.H {
		return gin.H{
			"status":      "healthy",
			"instance_id": cfg.InstanceID,
			"hostname":    hostname,
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
		}
	}
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, healthPayload())
	})
	r.GET("/health/live", func(c *gin.Context) {
		p := healthPayload()
		p["status"] = "alive"
		c.JSON(http.StatusOK, p)
	})
	r.GET("/health/ready", func(c *gin.Context) {
		ctx := c.Request.Context()
		checks := gin.H{}
		ready := true

		if db != nil {
			if err := db.Ping(ctx); err != nil {
				checks["database"] = "error: " + err.Error()
				ready = false
			} else {
				checks["database"] = "connected"
			}
		} else {
			checks["database"] = "not_configured"
			ready = false
		}
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				checks["redis"] = "error: " + err.Error()
			} else {
				checks["redis"] = "connected"
			}
		}
		if classifier != nil {
			checks["model"] = "loaded"
		} else {
			checks["model"] = "not_loaded"
		}

		status := "ready"
		code := http.StatusOK
		if !ready {
			status = "not_ready"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":      status,
			"instance_id": cfg.InstanceID,
			"hostname":    hostname,
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
			"checks":      checks,
		})
	})

	api := r.Group("/api")

	api.POST("/auth/register", func(c *gin.Context) {
		var req struct {
			Email    string `json:"email"`
			Username string `json:"username"`
			Password string `json:"password"`
			FullName string `json:"full_name"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
			return
		}
		if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Username) == "" || req.Password == "" {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "email, username and password are required")
			return
		}

		log.Printf("registration request for username: %s", req.Username)
		user, err := auth.Register(c.Request.Context(), req.Email, req.Username, req.Password, req.FullName)
		if err != nil {
			switch {
			case errors.Is(err, ErrUsernameTaken):
				respondError(c, http.StatusConflict, "CONFLICT", "username already registered")
			case errors.Is(err, ErrEmailTaken):
				respondError(c, http.StatusConflict, "CONFLICT", "email already registered")
			default:
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "registration failed")
			}
			return
		}
		c.JSON(http.StatusCreated, userPayload(user))
	})

	api.POST("/auth/login", func(c *gin.Context) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
			return
		}

		log.Printf("login request for username: %s", req.Username)
		user, err := auth.Authenticate(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			if errors.Is(err, ErrInactiveUser) {
				respondError(c, http.StatusBadRequest, "INACTIVE_USER", "inactive user")
				return
			}
			respondError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "incorrect username or password")
			return
		}

		token, err := tokens.Issue(user.Username, user.Role())
		if err != nil {
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to issue token")
			return
		}
		log.Printf("token created for user: %s", user.Username)
		c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "bearer"})
	})

	protected := api.Group("", BearerAuth(tokens))

	protected.POST("/predict", func(c *gin.Context) {
		identity, _ := identityFrom(c)
		var req struct {
			Text string `json:"text"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "text is required")
			return
		}
		if len(req.Text) > cfg.MaxTextLen {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "text exceeds maximum length")
			return
		}
		if classifier == nil {
			respondError(c, http.StatusServiceUnavailable, "MODEL_UNAVAILABLE", "model not available")
			return
		}

		label, confidence, err := classifier.Classify(req.Text)
		recordPredictions(c, 1, err)
		if err != nil {
			log.Printf("prediction error: %v", err)
			respondError(c, http.StatusInternalServerError, "PREDICTION_FAILED", "prediction failed")
			return
		}
		log.Printf("prediction: %s (confidence: %.2f) for user %s", label, confidence, identity.Username)

		c.JSON(http.StatusOK, gin.H{
			"text":         req.Text,
			"sentiment":    label,
			"confidence":   confidence,
			"predicted_by": cfg.InstanceID,
			"user":         identity.Username,
		})
	})

	protected.POST("/predict/batch", func(c *gin.Context) {
		identity, _ := identityFrom(c)
		var req struct {
			Texts []string `json:"texts"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
			return
		}
		if len(req.Texts) == 0 {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "texts must not be empty")
			return
		}
		for i, text := range req.Texts {
			if strings.TrimSpace(text) == "" {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "texts["+strconv.Itoa(i)+"] is empty")
				return
			}
			if len(text) > cfg.MaxTextLen {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "texts["+strconv.Itoa(i)+"] exceeds maximum length")
				return
			}
		}
		if classifier == nil {
			respondError(c, http.StatusServiceUnavailable, "MODEL_UNAVAILABLE", "model not available")
			return
		}

		log.Printf("batch prediction request from %s: %d texts", identity.Username, len(req.Texts))

		// All-or-nothing: a failure on any item aborts the whole batch.
		// Output order matches input order.
		results := make([]gin.H, 0, len(req.Texts))
		for _, text := range req.Texts {
			label, confidence, err := classifier.Classify(text)
			if err != nil {
				recordPredictions(c, len(results), err)
				log.Printf("batch prediction error: %v", err)
				respondError(c, http.StatusInternalServerError, "PREDICTION_FAILED", "batch prediction failed")
				return
			}
			results = append(results, gin.H{
				"text":       text,
				"sentiment":  label,
				"confidence": confidence,
			})
		}
		recordPredictions(c, len(results), nil)

		c.JSON(http.StatusOK, gin.H{
			"predictions":  results,
			"predicted_by": cfg.InstanceID,
			"user":         identity.Username,
			"total_count":  len(results),
		})
	})

	protected.GET("/model/info", func(c *gin.Context) {
		if classifier == nil {
			c.JSON(http.StatusOK, gin.H{
				"status":      "not_loaded",
				"instance_id": cfg.InstanceID,
				"hostname":    hostname,
			})
			return
		}
		info := classifier.Info()
		c.JSON(http.StatusOK, gin.H{
			"status":      "loaded",
			"model_type":  info.ModelType,
			"classes":     info.Classes,
			"instance_id": cfg.InstanceID,
			"hostname":    hostname,
			"model_path":  info.Path,
		})
	})

	protected.GET("/users/me", func(c *gin.Context) {
		identity, _ := identityFrom(c)
		u, err := users.FindByUsername(c.Request.Context(), identity.Username)
		if err != nil {
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "user no longer exists")
			return
		}
		c.JSON(http.StatusOK, userPayload(recordToUser(u)))
	})

	protected.GET("/users", func(c *gin.Context) {
		page := intQuery(c, "page", 1)
		perPage := intQuery(c, "per_page", 100)
		items, total, err := users.List(c.Request.Context(), page, perPage)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to list users")
			return
		}
		c.JSON(http.StatusOK, gin.H{"users": items, "total": total, "page": page, "per_page": perPage})
	})

	protected.GET("/users/:username", func(c *gin.Context) {
		u, err := users.FindByUsername(c.Request.Context(), c.Param("username"))
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				respondError(c, http.StatusNotFound, "NOT_FOUND", "user not found")
				return
			}
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load user")
			return
		}
		c.JSON(http.StatusOK, userPayload(recordToUser(u)))
	})

	protected.GET("/protected/", func(c *gin.Context) {
		identity, _ := identityFrom(c)
		c.JSON(http.StatusOK, gin.H{
			"message":     "Hello " + identity.Username + " from " + cfg.InstanceID + "!",
			"instance_id": cfg.InstanceID,
			"hostname":    hostname,
			"user":        gin.H{"username": identity.Username, "role": identity.Role},
			"client_ip":   clientIP(c),
		})
	})

	protected.GET("/protected/data", func(c *gin.Context) {
		identity, _ := identityFrom(c)
		c.JSON(http.StatusOK, gin.H{
			"data": []gin.H{
				{"id": 1, "value": "Protected Item 1", "owner": identity.Username},
				{"id": 2, "value": "Protected Item 2", "owner": identity.Username},
				{"id": 3, "value": "Protected Item 3", "owner": identity.Username},
			},
			"served_by": cfg.InstanceID,
			"hostname":  hostname,
		})
	})

	admin := protected.Group("", SuperuserOnly())

	admin.GET("/protected/admin", func(c *gin.Context) {
		identity, _ := identityFrom(c)
		c.JSON(http.StatusOK, gin.H{
			"message":     "Welcome to admin area",
			"instance_id": cfg.InstanceID,
			"user":        identity.Username,
			"privileges":  "superuser",
		})
	})

	admin.GET("/admin/replicas", func(c *gin.Context) {
		if stats == nil {
			respondError(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "replica stats unavailable")
			return
		}
		replicas, err := stats.Replicas(c.Request.Context())
		if err != nil {
			respondError(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "failed to read replica heartbeats")
			return
		}
		c.JSON(http.StatusOK, gin.H{"replicas": replicas, "total": len(replicas)})
	})

	return r
}

func userPayload(u User) gin.H {
	return gin.H{
		"id":           u.ID,
		"username":     u.Username,
		"email":        u.Email,
		"full_name":    u.FullName,
		"is_superuser": u.IsSuperuser,
		"is_active":    u.IsActive,
		"created_at":   u.CreatedAt,
	}
}

func intQuery(c *gin.Context, name string, defaultVal int) int {
	if v := c.Query(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return defaultVal
}
