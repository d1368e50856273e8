package health

import "github.com/gin-gonic/gin"

func RegisterRoutes(router gin.IRouter, checks map[string]Check) {
	router.GET("/health", Handler)
	router.GET("/ready", ReadyHandler(checks))
	router.GET("/ping", PingHandler)
}
