package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"freshjuice/internal/config"
	"freshjuice/internal/repository"
	"freshjuice/internal/service"
	"freshjuice/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	cfg            *config.Config
	authService    *service.AuthService
	productService *service.ProductService
	orderService   *service.OrderService
	loyaltyService *service.LoyaltyService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	return &Handler{
		cfg:            cfg,
		authService:    service.NewAuthService(db),
		productService: service.NewProductService(db, rdb),
		orderService:   service.NewOrderService(db, cfg),
		loyaltyService: service.NewLoyaltyService(db, rdb, cfg),
	}
}

// respondError 把服务层错误翻译成 HTTP 状态 + 稳定的 kind。
// 未识别的错误一律按存储不可用处理：细节只打日志，不回给客户端
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		response.NotFound(c, "User not found")
	case errors.Is(err, repository.ErrOrderNotFound):
		response.NotFound(c, "Order not found")
	case errors.Is(err, repository.ErrProductNotFound):
		response.NotFound(c, "Product not found")
	case errors.Is(err, service.ErrInvalidPoints):
		response.InvalidArgument(c, "Points must be a positive integer")
	case errors.Is(err, repository.ErrPointsNotEnough):
		response.Fail(c, http.StatusBadRequest, response.KindInsufficientBalance, "Insufficient loyalty points")
	case errors.Is(err, service.ErrTooManyRetries):
		response.Fail(c, http.StatusConflict, response.KindConflict, "Concurrent update conflict, please retry")
	case errors.Is(err, service.ErrEmailRegistered):
		response.InvalidArgument(c, "User with this email already exists")
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Unauthorized(c, "Invalid email or password")
	case errors.Is(err, service.ErrRoleMismatch):
		response.Forbidden(c, "This account is registered with a different role")
	case errors.Is(err, service.ErrInvalidPaymentMode):
		response.InvalidArgument(c, "Invalid payment mode")
	case errors.Is(err, repository.ErrOrderStatusInvalid):
		response.InvalidArgument(c, "Invalid order status transition")
	default:
		log.Printf("[HTTP] 内部错误: %v", err)
		response.StoreUnavailable(c, "Service temporarily unavailable")
	}
}

// ============================================================
// 基础接口
// ============================================================

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "FreshJuice API Server",
		"status":  "Running",
		"version": "1.0.0",
	})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "OK",
		"message": "FreshJuice API is running",
	})
}

// ============================================================
// 认证相关接口
// ============================================================

type SignUpRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

// SignUp 注册顾客账号
// POST /api/auth/signup
func (h *Handler) SignUp(c *gin.Context) {
	var req SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidArgument(c, "Please provide name, email, and password")
		return
	}

	user, err := h.authService.SignUp(c.Request.Context(), &service.SignUpRequest{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
		Address:  req.Address,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Account created successfully",
		"user":    user,
	})
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
}

// Login 登录（顾客或管理员）
// POST /api/auth/login
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidArgument(c, "Please provide email and password")
		return
	}

	user, err := h.authService.Login(c.Request.Context(), req.Email, req.Password, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Login successful",
		"user":    user,
	})
}

// Logout 登出（无状态）
// POST /api/auth/logout
func (h *Handler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Logged out successfully",
	})
}

// ============================================================
// 商品相关接口
// ============================================================

// ListProducts 商品列表
// GET /api/products
func (h *Handler) ListProducts(c *gin.Context) {
	products, err := h.productService.ListProducts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"products": products,
	})
}

// GetProduct 商品详情
// GET /api/products/:id
func (h *Handler) GetProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.InvalidArgument(c, "Invalid product id")
		return
	}

	product, err := h.productService.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"product": product,
	})
}

// ============================================================
// 订单相关接口
// ============================================================

type CreateOrderRequest struct {
	OrderNo     string `json:"orderId"`
	UserID      *int64 `json:"userId"`
	Name        string `json:"name" binding:"required"`
	Phone       string `json:"phone" binding:"required"`
	Address     string `json:"address" binding:"required"`
	ProductID   int64  `json:"productId" binding:"required"`
	ProductName string `json:"productName" binding:"required"`
	Quantity    int    `json:"quantity" binding:"required,gte=1"`
	TotalPrice  int64  `json:"totalPrice" binding:"required,gt=0"`
	PaymentMode string `json:"paymentMode" binding:"required"`
}

// CreateOrder 下单（支持游客）
// POST /api/orders
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidArgument(c, "Please provide all required fields")
		return
	}

	order, err := h.orderService.PlaceOrder(c.Request.Context(), &service.PlaceOrderRequest{
		OrderNo:     req.OrderNo,
		UserID:      req.UserID,
		Name:        req.Name,
		Phone:       req.Phone,
		Address:     req.Address,
		ProductID:   req.ProductID,
		ProductName: req.ProductName,
		Quantity:    req.Quantity,
		TotalPrice:  req.TotalPrice,
		PaymentMode: req.PaymentMode,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Order placed successfully",
		"order":   order,
	})
}

// ListOrders 订单列表（最新在前）
// GET /api/orders?page=1&page_size=10
func (h *Handler) ListOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(h.cfg.Business.DefaultPageSize)))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	orders, total, err := h.orderService.ListOrders(c.Request.Context(), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   total,
		"orders":  orders,
	})
}

// GetOrder 订单详情（用于物流跟踪）
// GET /api/orders/:orderId
func (h *Handler) GetOrder(c *gin.Context) {
	order, err := h.orderService.GetOrder(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"order":   order,
	})
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateOrderStatus 推进订单状态
// PUT /api/orders/:orderId/status
func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	var req UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidArgument(c, "Please provide status")
		return
	}

	order, err := h.orderService.UpdateStatus(c.Request.Context(), c.Param("orderId"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Order status updated successfully",
		"order":   order,
	})
}

// DeleteOrder 删除订单
// DELETE /api/orders/:orderId
func (h *Handler) DeleteOrder(c *gin.Context) {
	if err := h.orderService.DeleteOrder(c.Request.Context(), c.Param("orderId")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Order deleted successfully",
	})
}

// ============================================================
// 积分相关接口
// ============================================================

// GetLoyaltyPoints 查询积分余额
// GET /api/loyalty/points/:email
func (h *Handler) GetLoyaltyPoints(c *gin.Context) {
	balance, err := h.loyaltyService.GetBalance(c.Request.Context(), c.Param("email"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"loyaltyPoints": balance,
	})
}

type PointsRequest struct {
	Email  string `json:"email" binding:"required"`
	Points int64  `json:"points"`
	Reason string `json:"reason"`
}

// AddLoyaltyPoints 加积分（下单完成后由店面调用）
// POST /api/loyalty/add-points
func (h *Handler) AddLoyaltyPoints(c *gin.Context) {
	var req PointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidArgument(c, "Please provide email and points")
		return
	}

	balance, err := h.loyaltyService.Credit(c.Request.Context(), req.Email, req.Points, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Points added successfully",
		"loyaltyPoints": balance,
	})
}

// RedeemLoyaltyPoints 积分兑换
// POST /api/loyalty/redeem-points
func (h *Handler) RedeemLoyaltyPoints(c *gin.Context) {
	var req PointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidArgument(c, "Please provide email and points")
		return
	}

	balance, err := h.loyaltyService.Debit(c.Request.Context(), req.Email, req.Points, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Points redeemed successfully",
		"loyaltyPoints": balance,
	})
}

// GetLoyaltyHistory 积分流水（时间倒序，before 为游标）
// GET /api/loyalty/history/:email?limit=20&before=RFC3339
func (h *Handler) GetLoyaltyHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			response.InvalidArgument(c, "Invalid before cursor, expected RFC3339 timestamp")
			return
		}
		before = &t
	}

	entries, err := h.loyaltyService.History(c.Request.Context(), c.Param("email"), limit, before)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(entries),
		"entries": entries,
	})
}
