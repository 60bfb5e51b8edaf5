package api

import (
	"Recall_1.0/backend/go/internal/config"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// SetupRouter 配置和返回一个 Gin 引擎实例。
func SetupRouter(h *Handler, cfg *config.AppConfig) *gin.Engine {
	// 使用默认中间件 (logger, recovery) 创建一个 Gin 引擎。
	r := gin.Default()

	// 跨域配置：配置了来源列表时只放行列表内的来源并允许携带凭证，
	// 否则放行所有来源（开发模式）。
	corsConfig := cors.DefaultConfig()
	if len(cfg.CORS.AllowOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORS.AllowOrigins
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}
	r.Use(cors.New(corsConfig))

	if cfg.Server.RateLimit.RPS > 0 {
		r.Use(RateLimitMiddleware(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst))
	}
	r.Use(RequestIDMiddleware())

	// 存活与健康检查
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	// 用户
	r.GET("/get-user", h.GetUser)
	r.POST("/create-user", h.CreateUser)

	// relation 的新增/替换与人脸描述符
	r.POST("/add-relation", h.AddRelation)
	r.POST("/register-face", h.RegisterFace)
	r.GET("/get-face-descriptors", h.GetFaceDescriptors)

	// 消息
	message := r.Group("/message")
	{
		message.POST("/add", h.AddMessage)
	}

	// 提醒
	reminder := r.Group("/reminder")
	{
		reminder.POST("/add", h.AddReminder)
		reminder.GET("/get", h.GetReminders)
		reminder.DELETE("/delete", h.DeleteReminder)
	}

	// 对话
	conversation := r.Group("/conversation")
	{
		conversation.POST("/add", h.AddConversation)
		conversation.GET("/latest", h.LatestConversation)
	}
	r.GET("/conversations/all", h.AllConversations)

	// relation 的维护操作
	relation := r.Group("/relation")
	{
		relation.DELETE("/delete", h.DeleteRelation)
		relation.POST("/update", h.UpdateRelation)
		relation.POST("/photo", h.UploadPhoto)
	}

	return r
}
