package service

import (
	"context"
	"encoding/json"
	"time"

	"freshjuice/internal/model"
	"freshjuice/internal/repository"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const (
	productListCacheKey = "freshjuice:products"
	productListCacheTTL = 5 * time.Minute
)

type ProductService struct {
	db          *gorm.DB
	redisClient *redis.Client
	productRepo *repository.ProductRepository
}

func NewProductService(db *gorm.DB, redisClient *redis.Client) *ProductService {
	return &ProductService{
		db:          db,
		redisClient: redisClient,
		productRepo: repository.NewProductRepository(db),
	}
}

// ListProducts 商品列表，cache-aside：
// 缓存读写失败都只降级回源 MySQL，不影响主流程
func (s *ProductService) ListProducts(ctx context.Context) ([]*model.Product, error) {
	if raw, err := s.redisClient.Get(ctx, productListCacheKey).Result(); err == nil {
		var cached []*model.Product
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return cached, nil
		}
	}

	products, err := s.productRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(products); err == nil {
		s.redisClient.Set(ctx, productListCacheKey, raw, productListCacheTTL)
	}

	return products, nil
}

func (s *ProductService) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	return s.productRepo.GetByID(ctx, id)
}
