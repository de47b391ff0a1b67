package controllers

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mfg-ops/ordrefab/middleware"
	"github.com/mfg-ops/ordrefab/models"
)

// RegisterRoutes mounts the public endpoints under publicPrefix and the order
// API under /api/v1. auth runs before every /api/v1 handler and must leave
// the current user in the context; writes additionally require PARAMETREUR
// or ADMIN.
func RegisterRoutes(router *gin.Engine, publicPrefix string, auth ...gin.HandlerFunc) {
	public := router.Group(strings.TrimRight(publicPrefix, "/"))
	{
		public.GET("/health", HealthCheck)
		public.GET("/health/database", DatabaseStatus)
	}

	canWrite := middleware.RequireRole(models.RoleParametreur, models.RoleAdmin)

	v1 := router.Group("/api/v1", auth...)
	{
		orders := v1.Group("/orders")
		{
			orders.GET("", ListOrders)
			orders.GET("/statuses", ListStatuses)
			orders.GET("/check-availability", CheckAvailability)
			orders.GET("/:id", GetOrder)
			orders.GET("/:id/next-available-date", NextAvailableDate)

			orders.POST("", canWrite, CreateOrder)
			orders.PUT("/:id", canWrite, UpdateOrder)
			orders.DELETE("/:id", canWrite, DeleteOrder)
			orders.PUT("/:id/cancel", canWrite, CancelOrder)
			orders.PUT("/:id/start-today", canWrite, StartOrderToday)
			orders.PUT("/:id/start-on-date", canWrite, StartOrderOnDate)
		}

		v1.GET("/products", ListProducts)
		v1.GET("/production-lines", ListProductionLines)

		v1.GET("/users/me", GetMyProfile)
		v1.PUT("/users/me", UpdateMyProfile)
	}
}
