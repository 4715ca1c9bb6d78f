package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"freshjuice/internal/config"
	"freshjuice/internal/model"
	"freshjuice/internal/repository"
	"freshjuice/pkg/idgen"

	"gorm.io/gorm"
)

var ErrInvalidPaymentMode = errors.New("不支持的支付方式")

type OrderService struct {
	db         *gorm.DB
	cfg        *config.Config
	orderRepo  *repository.OrderRepository
	outboxRepo *repository.OutboxRepository
}

func NewOrderService(db *gorm.DB, cfg *config.Config) *OrderService {
	return &OrderService{
		db:         db,
		cfg:        cfg,
		orderRepo:  repository.NewOrderRepository(db),
		outboxRepo: repository.NewOutboxRepository(db),
	}
}

type PlaceOrderRequest struct {
	OrderNo     string
	UserID      *int64
	Name        string
	Phone       string
	Address     string
	ProductID   int64
	ProductName string
	Quantity    int
	TotalPrice  int64
	PaymentMode string
}

// PlaceOrder 下单
//
// 订单号由店面生成并作为幂等键：重复提交同一订单号直接返回已有订单
func (s *OrderService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*model.Order, error) {
	if !model.IsValidPaymentMode(req.PaymentMode) {
		return nil, ErrInvalidPaymentMode
	}

	if req.OrderNo == "" {
		req.OrderNo = idgen.GenerateOrderNo()
	}

	existing, err := s.orderRepo.GetByOrderNo(ctx, req.OrderNo)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrOrderNotFound) {
		return nil, fmt.Errorf("查询订单失败: %w", err)
	}

	order := &model.Order{
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
		Status:      model.OrderStatusReceived,
	}
	if err := s.orderRepo.Create(ctx, nil, order); err != nil {
		return nil, fmt.Errorf("创建订单失败: %w", err)
	}

	log.Printf("订单创建成功: orderNo=%s, product=%s, quantity=%d", order.OrderNo, order.ProductName, order.Quantity)
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderNo string) (*model.Order, error) {
	return s.orderRepo.GetByOrderNo(ctx, orderNo)
}

func (s *OrderService) ListOrders(ctx context.Context, page, pageSize int) ([]*model.Order, int64, error) {
	return s.orderRepo.List(ctx, page, pageSize)
}

// UpdateStatus 推进订单状态，只允许
// received -> preparing -> out_for_delivery -> delivered 逐级流转。
// 流转到 delivered 时同事务写入送达事件，供下游发放积分/通知
func (s *OrderService) UpdateStatus(ctx context.Context, orderNo, targetStatus string) (*model.Order, error) {
	order, err := s.orderRepo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, err
	}

	if targetStatus == model.OrderStatusDelivered {
		err = s.db.Transaction(func(tx *gorm.DB) error {
			if err := s.orderRepo.UpdateStatus(ctx, tx, orderNo, order.Status, targetStatus); err != nil {
				return err
			}

			payload, _ := json.Marshal(map[string]interface{}{
				"order_no":     order.OrderNo,
				"user_id":      order.UserID,
				"product_id":   order.ProductID,
				"total_price":  order.TotalPrice,
				"delivered_at": time.Now().Format(time.RFC3339),
			})
			outboxMsg := &model.OutboxMessage{
				MessageKey: order.OrderNo,
				Topic:      s.cfg.Kafka.Topic.OrderEvents,
				Payload:    string(payload),
				Status:     model.OutboxStatusPending,
			}
			if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
				return fmt.Errorf("写入送达事件失败: %w", err)
			}
			return nil
		})
	} else {
		err = s.orderRepo.UpdateStatus(ctx, nil, orderNo, order.Status, targetStatus)
	}
	if err != nil {
		return nil, err
	}

	return s.orderRepo.GetByOrderNo(ctx, orderNo)
}

func (s *OrderService) DeleteOrder(ctx context.Context, orderNo string) error {
	return s.orderRepo.Delete(ctx, orderNo)
}
