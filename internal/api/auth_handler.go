package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/pulse-server/internal/config"
	"github.com/wfunc/pulse-server/internal/utils"
)

// AuthHandler 令牌签发处理器
// 客户端用配置中的访问密钥换取JWT。
type AuthHandler struct {
	jwtManager *utils.JWTManager
	cfg        *config.JWTConfig
}

// NewAuthHandler 创建令牌签发处理器
func NewAuthHandler(jwtManager *utils.JWTManager, cfg *config.JWTConfig) *AuthHandler {
	return &AuthHandler{
		jwtManager: jwtManager,
		cfg:        cfg,
	}
}

// TokenRequest 换取令牌请求
type TokenRequest struct {
	AccessKey  string `json:"access_key" binding:"required"`
	ClientName string `json:"client_name"`
}

// IssueToken 用访问密钥换取令牌
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_REQUEST",
			"message": "请求格式错误",
			"details": err.Error(),
		})
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.AccessKey), []byte(h.cfg.AccessKey)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    "INVALID_ACCESS_KEY",
			"message": "访问密钥错误",
		})
		return
	}

	clientName := req.ClientName
	if clientName == "" {
		clientName = c.ClientIP()
	}

	token, err := h.jwtManager.GenerateToken(clientName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "TOKEN_GENERATION_FAILED",
			"message": "令牌生成失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": int(h.jwtManager.GetTokenExpiry().Seconds()),
	})
}
