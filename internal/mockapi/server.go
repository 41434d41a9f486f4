// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mockapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Responder produces the full reply to message.
type Responder func(agent Agent, message string) string

// DefaultResponder echoes the message back with a short markdown note.
func DefaultResponder(agent Agent, message string) string {
	return fmt.Sprintf("**%s** received your message:\n\n> %s\n\nThis reply was streamed by the mock backend.",
		agent.Name, message)
}

// Options configures a Server.
type Options struct {
	// Secret signs and verifies bearer tokens.
	Secret []byte

	// Prefix is prepended to every route (e.g. "/api").
	Prefix string

	// Store holds agents and records (default: a store with DefaultAgents).
	Store *Store

	// Responder builds replies (default: DefaultResponder).
	Responder Responder

	// ChunkDelay is the pause between streamed chunks.
	ChunkDelay time.Duration

	Logger *slog.Logger
}

// Server is the mock backend.
type Server struct {
	store      *Store
	secret     []byte
	respond    Responder
	chunkDelay time.Duration
	logger     *slog.Logger
	engine     *gin.Engine
}

// New creates a server and registers its routes.
func New(opts Options) *Server {
	if opts.Store == nil {
		opts.Store = NewStore(DefaultAgents, nil)
	}
	if opts.Responder == nil {
		opts.Responder = DefaultResponder
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if len(opts.Secret) == 0 {
		opts.Secret = []byte("agentlz-mock")
	}

	s := &Server{
		store:      opts.Store,
		secret:     opts.Secret,
		respond:    opts.Responder,
		chunkDelay: opts.ChunkDelay,
		logger:     opts.Logger.With("component", "mockapi"),
	}

	engine := gin.New()
	engine.Use(s.recovery(), s.logging())

	api := engine.Group(strings.TrimRight(opts.Prefix, "/"))
	api.Use(s.requireAuth())
	api.POST("/agent/chat", s.chat)
	api.POST("/agent/chat/sessions", s.sessions)
	api.POST("/agent/chat/history", s.records)
	api.GET("/agents", s.agents)

	s.engine = engine
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Store returns the backing store.
func (s *Server) Store() *Store {
	return s.store
}

// =============================================================================
// TOKENS
// =============================================================================

// IssueToken signs a token for userID valid for ttl.
func (s *Server) IssueToken(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Server) validateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}
	switch v := claims["user_id"].(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case float64:
		return strconv.FormatInt(int64(v), 10), nil
	}
	return "", errors.New("token has no user_id")
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": -1, "message": "Missing Authorization header"})
			return
		}
		userID, err := s.validateToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": -1, "message": "Invalid or expired token"})
			return
		}
		c.Set("user_id", userID)
		if tenant := c.GetHeader("X-Tenant-ID"); tenant != "" {
			c.Set("tenant_id", tenant)
		}
		c.Next()
	}
}

func (s *Server) logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"query", c.Request.URL.RawQuery,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"request_id", c.GetHeader("X-Request-ID"))
	}
}

func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic in handler", "panic", r, "path", c.Request.URL.Path)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": -1, "message": "internal error"})
			}
		}()
		c.Next()
	}
}

func userID(c *gin.Context) string {
	return c.GetString("user_id")
}
