//go:build !swagger

package api

import "github.com/gin-gonic/gin"

// registerSwaggerRoutes 未启用 swagger 构建标签时为空实现
func registerSwaggerRoutes(engine *gin.Engine) {}
