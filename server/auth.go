package main

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const userIDContextKey = "user_id"

// TokenHasher derives deterministic, salted hashes for API tokens.
type TokenHasher struct {
	salt []byte
}

// NewTokenHasher constructs a hasher with the provided salt bytes.
func NewTokenHasher(salt []byte) TokenHasher {
	return TokenHasher{salt: append([]byte(nil), salt...)}
}

// HashString hashes the given token using HMAC-SHA256 and returns a base64 string.
func (h TokenHasher) HashString(token string) string {
	mac := hmac.New(sha256.New, h.salt)
	mac.Write([]byte(token))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// requireUser resolves the caller's bearer token to a user ID before any
// engine call.
func (s *Server) requireUser(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		respondError(c, http.StatusUnauthorized, "missing bearer token", s.logger)
		return
	}

	var record APIToken
	if err := s.db.Where("token_hash = ?", s.tokenHasher.HashString(token)).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusUnauthorized, "invalid bearer token", s.logger)
		} else {
			respondError(c, http.StatusInternalServerError, "token lookup failed", s.logger)
		}
		return
	}
	if record.RevokedAt != nil {
		respondError(c, http.StatusUnauthorized, "token revoked", s.logger)
		return
	}

	c.Set(userIDContextKey, record.UserID)
	c.Next()
}

func (s *Server) requireAdmin(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		respondError(c, http.StatusUnauthorized, "missing bearer token", s.logger)
		return
	}
	if s.adminToken == "" || !secureCompare(token, s.adminToken) {
		respondError(c, http.StatusUnauthorized, "invalid bearer token", s.logger)
		return
	}
	c.Next()
}

func bearerToken(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(authz, "Bearer ")
}

func callerUserID(c *gin.Context) string {
	if value, ok := c.Get(userIDContextKey); ok {
		if id, ok := value.(string); ok {
			return id
		}
	}
	return ""
}

func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerTokenRoutes(r *gin.Engine) {
	admin := r.Group("/v1/admin/tokens", s.requireAdmin)
	admin.POST("", s.handleIssueToken)
	admin.GET("", s.handleListTokens)
	admin.DELETE("/:id", s.handleRevokeToken)
}

func (s *Server) handleIssueToken(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id"`
		Label  string `json:"label"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), s.logger)
		return
	}
	if req.UserID == "" {
		respondError(c, http.StatusBadRequest, "missing user id", s.logger)
		return
	}

	raw, err := generateTokenSecret()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to generate token", s.logger)
		return
	}

	record := APIToken{
		UserID:    req.UserID,
		Label:     req.Label,
		TokenHash: s.tokenHasher.HashString(raw),
	}
	if err := s.db.Create(&record).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "failed to persist token", s.logger)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":      record.ID,
		"token":   raw,
		"user_id": record.UserID,
		"label":   record.Label,
	})
}

func (s *Server) handleListTokens(c *gin.Context) {
	var tokens []APIToken
	if err := s.db.Order("created_at desc").Find(&tokens).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "failed to list tokens", s.logger)
		return
	}

	resp := make([]gin.H, 0, len(tokens))
	for _, t := range tokens {
		resp = append(resp, gin.H{
			"id":         t.ID,
			"user_id":    t.UserID,
			"label":      t.Label,
			"revoked_at": t.RevokedAt,
			"created_at": t.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRevokeToken(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid token id", s.logger)
		return
	}

	now := time.Now().UTC()
	result := s.db.Model(&APIToken{}).Where("id = ?", uint(id)).Update("revoked_at", now)
	if result.Error != nil {
		respondError(c, http.StatusInternalServerError, "failed to revoke token", s.logger)
		return
	}
	if result.RowsAffected == 0 {
		respondError(c, http.StatusNotFound, "token not found", s.logger)
		return
	}
	c.Status(http.StatusNoContent)
}

func generateTokenSecret() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
