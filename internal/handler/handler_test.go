package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"freshjuice/internal/config"
	"freshjuice/internal/infrastructure/database"
	"freshjuice/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		Loyalty: config.LoyaltyConfig{
			MaxRetries:           10,
			LockTTLSeconds:       5,
			LockRetryIntervalMs:  2,
			LockMaxRetries:       500,
			AuditIntervalSeconds: 300,
			HistoryMaxLimit:      100,
		},
		Business: config.BusinessConfig{MaxRetryCount: 3, DefaultPageSize: 10},
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				LoyaltyEvents: "freshjuice.loyalty.events",
				OrderEvents:   "freshjuice.order.events",
			},
		},
	}
}

func setupRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", filepath.Join(t.TempDir(), "freshjuice.db"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	require.NoError(t, database.SeedProducts(db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	return SetupRouter(db, rdb, testConfig()), db
}

func httpDo(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}

func createUser(t *testing.T, db *gorm.DB, email string) *model.User {
	t.Helper()
	user := &model.User{Name: "Tester", Email: email, Password: "x", Role: model.RoleCustomer}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestLoyaltyPointsLifecycle(t *testing.T) {
	r, db := setupRouter(t)
	email := "alice@example.com"

	// 未知账户：三个接口都应返回 404
	w := httpDo(r, "GET", "/api/loyalty/points/"+email, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "not_found", decode(t, w)["kind"])

	w = httpDo(r, "POST", "/api/loyalty/add-points", gin.H{"email": email, "points": 10})
	require.Equal(t, http.StatusNotFound, w.Code)

	w = httpDo(r, "POST", "/api/loyalty/redeem-points", gin.H{"email": email, "points": 10})
	require.Equal(t, http.StatusNotFound, w.Code)

	user := createUser(t, db, email)

	// 新账户余额为 0，重复读结果一致
	for i := 0; i < 2; i++ {
		w = httpDo(r, "GET", "/api/loyalty/points/"+email, nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.EqualValues(t, 0, decode(t, w)["loyaltyPoints"])
	}

	// 加 100 分
	w = httpDo(r, "POST", "/api/loyalty/add-points", gin.H{"email": email, "points": 100})
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 100, decode(t, w)["loyaltyPoints"])

	// 兑换 150 分：余额不足，余额保持 100
	w = httpDo(r, "POST", "/api/loyalty/redeem-points", gin.H{"email": email, "points": 150})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "insufficient_balance", decode(t, w)["kind"])

	w = httpDo(r, "GET", "/api/loyalty/points/"+email, nil)
	require.EqualValues(t, 100, decode(t, w)["loyaltyPoints"])

	// 兑换 40 分 -> 60
	w = httpDo(r, "POST", "/api/loyalty/redeem-points", gin.H{"email": email, "points": 40})
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 60, decode(t, w)["loyaltyPoints"])

	// 0 分和负数都拒绝，且不产生任何状态变化
	w = httpDo(r, "POST", "/api/loyalty/add-points", gin.H{"email": email, "points": 0})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid_argument", decode(t, w)["kind"])

	w = httpDo(r, "POST", "/api/loyalty/redeem-points", gin.H{"email": email, "points": -5})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid_argument", decode(t, w)["kind"])

	// 台账不变式：余额 == 流水 delta 之和，成功操作数 == 流水条数
	var entries []model.LedgerEntry
	require.NoError(t, db.Where("user_id = ?", user.ID).Order("id ASC").Find(&entries).Error)
	require.Len(t, entries, 2)

	var sum int64
	for _, e := range entries {
		sum += e.Delta
	}
	require.EqualValues(t, 60, sum)
	require.EqualValues(t, 100, entries[0].ResultingBalance)
	require.EqualValues(t, 60, entries[1].ResultingBalance)
	require.Equal(t, model.ReasonOrderCompleted, entries[0].Reason)
	require.Equal(t, model.ReasonRedemption, entries[1].Reason)

	// 每笔成功的积分变动同时写入一条 outbox 事件
	var outboxCount int64
	require.NoError(t, db.Model(&model.OutboxMessage{}).
		Where("topic = ?", "freshjuice.loyalty.events").
		Count(&outboxCount).Error)
	require.EqualValues(t, 2, outboxCount)
}

func TestLoyaltyUnprefixedAliasRoutes(t *testing.T) {
	r, db := setupRouter(t)
	createUser(t, db, "legacy@example.com")

	w := httpDo(r, "POST", "/loyalty/add-points", gin.H{"email": "legacy@example.com", "points": 7})
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 7, decode(t, w)["loyaltyPoints"])

	w = httpDo(r, "GET", "/loyalty/points/legacy@example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 7, decode(t, w)["loyaltyPoints"])
}

func TestLoyaltyHistoryCursor(t *testing.T) {
	r, db := setupRouter(t)
	email := "history@example.com"
	createUser(t, db, email)

	for _, points := range []int64{1, 2, 3} {
		w := httpDo(r, "POST", "/api/loyalty/add-points", gin.H{"email": email, "points": points})
		require.Equal(t, http.StatusOK, w.Code)
		time.Sleep(5 * time.Millisecond)
	}

	// 第一页：时间倒序
	w := httpDo(r, "GET", "/api/loyalty/history/"+email+"?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Count   int                 `json:"count"`
		Entries []model.LedgerEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Equal(t, 2, page.Count)
	require.EqualValues(t, 3, page.Entries[0].Delta)
	require.EqualValues(t, 2, page.Entries[1].Delta)

	// 用上一页最后一条的时间作为游标取下一页
	cursor := page.Entries[1].CreatedAt.Format(time.RFC3339Nano)
	w = httpDo(r, "GET", "/api/loyalty/history/"+email+"?limit=2&before="+cursor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Equal(t, 1, page.Count)
	require.EqualValues(t, 1, page.Entries[0].Delta)

	// 非法游标
	w = httpDo(r, "GET", "/api/loyalty/history/"+email+"?before=garbage", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	// 未知账户
	w = httpDo(r, "GET", "/api/loyalty/history/nobody@example.com", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthFlow(t *testing.T) {
	r, _ := setupRouter(t)

	// 注册
	w := httpDo(r, "POST", "/api/auth/signup", gin.H{
		"name": "Bob", "email": "bob@example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	require.Equal(t, true, body["success"])
	user := body["user"].(map[string]interface{})
	require.Equal(t, "bob@example.com", user["email"])
	require.Equal(t, "customer", user["role"])
	// 响应里不能带密码
	require.NotContains(t, w.Body.String(), "secret123")
	require.NotContains(t, w.Body.String(), "password")

	// 重复注册
	w = httpDo(r, "POST", "/api/auth/signup", gin.H{
		"name": "Bob", "email": "bob@example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid_argument", decode(t, w)["kind"])

	// 缺字段
	w = httpDo(r, "POST", "/api/auth/signup", gin.H{"email": "nope@example.com"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// 登录成功
	w = httpDo(r, "POST", "/api/auth/login", gin.H{"email": "bob@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, w.Code)

	// 密码错误
	w = httpDo(r, "POST", "/api/auth/login", gin.H{"email": "bob@example.com", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "unauthorized", decode(t, w)["kind"])

	// 角色不匹配
	w = httpDo(r, "POST", "/api/auth/login", gin.H{"email": "bob@example.com", "password": "secret123", "role": "admin"})
	require.Equal(t, http.StatusForbidden, w.Code)

	// 默认管理员首次登录自动创建
	w = httpDo(r, "POST", "/api/auth/login", gin.H{"email": "admin@freshjuice.com", "password": "admin123", "role": "admin"})
	require.Equal(t, http.StatusOK, w.Code)
	admin := decode(t, w)["user"].(map[string]interface{})
	require.Equal(t, "admin", admin["role"])

	// 再次登录走正常校验
	w = httpDo(r, "POST", "/api/auth/login", gin.H{"email": "admin@freshjuice.com", "password": "admin123", "role": "admin"})
	require.Equal(t, http.StatusOK, w.Code)

	// 登出
	w = httpDo(r, "POST", "/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestOrderLifecycle(t *testing.T) {
	r, db := setupRouter(t)

	orderReq := gin.H{
		"orderId": "ORD-TEST-1", "name": "Carol", "phone": "1234567890",
		"address": "42 Juice St", "productId": 1, "productName": "Classic Orange Juice",
		"quantity": 2, "totalPrice": 178, "paymentMode": "upi",
	}

	w := httpDo(r, "POST", "/api/orders", orderReq)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode(t, w)["order"].(map[string]interface{})
	require.Equal(t, "received", created["status"])

	// 同一订单号重复提交：幂等返回已有订单
	w = httpDo(r, "POST", "/api/orders", orderReq)
	require.Equal(t, http.StatusCreated, w.Code)
	dup := decode(t, w)["order"].(map[string]interface{})
	require.Equal(t, created["id"], dup["id"])

	var total int64
	require.NoError(t, db.Model(&model.Order{}).Count(&total).Error)
	require.EqualValues(t, 1, total)

	// 非法支付方式
	bad := gin.H{}
	for k, v := range orderReq {
		bad[k] = v
	}
	bad["orderId"] = "ORD-TEST-2"
	bad["paymentMode"] = "bitcoin"
	w = httpDo(r, "POST", "/api/orders", bad)
	require.Equal(t, http.StatusBadRequest, w.Code)

	// 缺少必填字段
	w = httpDo(r, "POST", "/api/orders", gin.H{"orderId": "ORD-TEST-3"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// 查询
	w = httpDo(r, "GET", "/api/orders/ORD-TEST-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = httpDo(r, "GET", "/api/orders", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 1, decode(t, w)["count"])

	// 跳级流转被拒绝
	w = httpDo(r, "PUT", "/api/orders/ORD-TEST-1/status", gin.H{"status": "delivered"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid_argument", decode(t, w)["kind"])

	// 逐级流转
	for _, status := range []string{"preparing", "out_for_delivery", "delivered"} {
		w = httpDo(r, "PUT", "/api/orders/ORD-TEST-1/status", gin.H{"status": status})
		require.Equal(t, http.StatusOK, w.Code)
		order := decode(t, w)["order"].(map[string]interface{})
		require.Equal(t, status, order["status"])
	}

	// 送达后写入订单事件
	var outboxCount int64
	require.NoError(t, db.Model(&model.OutboxMessage{}).
		Where("topic = ? AND message_key = ?", "freshjuice.order.events", "ORD-TEST-1").
		Count(&outboxCount).Error)
	require.EqualValues(t, 1, outboxCount)

	// 删除
	w = httpDo(r, "DELETE", "/api/orders/ORD-TEST-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = httpDo(r, "GET", "/api/orders/ORD-TEST-1", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = httpDo(r, "DELETE", "/api/orders/ORD-TEST-1", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestProducts(t *testing.T) {
	r, _ := setupRouter(t)

	// 列表两次：第二次命中缓存，结果一致
	for i := 0; i < 2; i++ {
		w := httpDo(r, "GET", "/api/products", nil)
		require.Equal(t, http.StatusOK, w.Code)
		products := decode(t, w)["products"].([]interface{})
		require.Len(t, products, 5)
	}

	w := httpDo(r, "GET", "/api/products/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	product := decode(t, w)["product"].(map[string]interface{})
	require.Equal(t, "Classic Orange Juice", product["name"])

	w = httpDo(r, "GET", "/api/products/999", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = httpDo(r, "GET", "/api/products/abc", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthAndRoot(t *testing.T) {
	r, _ := setupRouter(t)

	w := httpDo(r, "GET", "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "FreshJuice API Server", decode(t, w)["message"])

	w = httpDo(r, "GET", "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "OK", decode(t, w)["status"])
}
