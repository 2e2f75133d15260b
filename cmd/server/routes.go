package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"stututor-go/internal/handler"
	"stututor-go/internal/middleware"
	"stututor-go/pkg/token"
)

type routeDeps struct {
	jwtManager    *token.JWTManager
	sessions      *handler.SessionHandler
	conversations *handler.ConversationHandler
	documents     *handler.DocumentHandler
	events        *handler.EventsHandler
	proxy         *handler.ProxyHandler
}

func registerRoutes(r *gin.Engine, d routeDeps) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "ok", "data": nil})
	})

	apiV1 := r.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(d.jwtManager))
	{
		// Session 路由组
		sessions := apiV1.Group("/sessions")
		{
			sessions.POST("", d.sessions.Open)
			sessions.GET("/:id", d.sessions.Snapshot)
			sessions.DELETE("/:id", d.sessions.Close)
			sessions.POST("/:id/cancel", d.sessions.Cancel)
			sessions.PUT("/:id/document", d.sessions.BindDocument)
			sessions.POST("/:id/notes", d.sessions.GenerateNotes)
			sessions.POST("/:id/quiz", d.sessions.GenerateQuiz)
			sessions.POST("/:id/conversations/:cid/turns", d.sessions.SendTurn)
		}

		// Conversation 路由组
		conversations := apiV1.Group("/conversations")
		{
			conversations.POST("", d.conversations.Create)
			conversations.GET("", d.conversations.List)
			conversations.GET("/:cid", d.conversations.Get)
			conversations.GET("/:cid/messages", d.conversations.Messages)
		}

		// Document 路由组
		documents := apiV1.Group("/documents")
		{
			documents.POST("", d.documents.Upload)
			documents.GET("", d.documents.List)
			documents.GET("/:id", d.documents.Get)
			documents.GET("/:id/download", d.documents.Download)
		}
	}

	// WebSocket 无法携带授权头，token 放在路径中
	r.GET("/sessions/:id/events/:token", d.events.Handle)

	// 上游代理
	api := r.Group("/api")
	{
		api.GET("/courses", d.proxy.ListCourses)
		api.POST("/courses", d.proxy.CreateCourse)
		api.GET("/users", d.proxy.ListUsers)
		api.POST("/users", d.proxy.CreateUser)
		api.Any("/gemini/*path", d.proxy.Gemini)
	}
}
