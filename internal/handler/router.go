package handler

import (
	"freshjuice/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(db, rdb, cfg)

	r.GET("/", h.Root)

	api := r.Group("/api")
	{
		api.GET("/health", h.Health)

		auth := api.Group("/auth")
		{
			auth.POST("/signup", h.SignUp)
			auth.POST("/login", h.Login)
			auth.POST("/logout", h.Logout)
		}

		products := api.Group("/products")
		{
			products.GET("", h.ListProducts)
			products.GET("/:id", h.GetProduct)
		}

		orders := api.Group("/orders")
		{
			orders.POST("", h.CreateOrder)
			orders.GET("", h.ListOrders)
			orders.GET("/:orderId", h.GetOrder)
			orders.PUT("/:orderId/status", h.UpdateOrderStatus)
			orders.DELETE("/:orderId", h.DeleteOrder)
		}

		registerLoyaltyRoutes(api.Group("/loyalty"), h)
	}

	// 旧版店面直接访问 /loyalty，保留无前缀别名
	registerLoyaltyRoutes(r.Group("/loyalty"), h)

	return r
}

func registerLoyaltyRoutes(g *gin.RouterGroup, h *Handler) {
	g.GET("/points/:email", h.GetLoyaltyPoints)
	g.POST("/add-points", h.AddLoyaltyPoints)
	g.POST("/redeem-points", h.RedeemLoyaltyPoints)
	g.GET("/history/:email", h.GetLoyaltyHistory)
}
