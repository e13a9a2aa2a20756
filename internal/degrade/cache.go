// Package degrade 实现远程服务的“优雅降级”：
// 调用成功时缓存最近结果，调用失败（重试已在上游耗尽）时回放
// 最近一次成功值，并把失败上报到按服务维度的健康跟踪器。
// 只兜底读路径；写路径没有安全的兜底值，失败必须向上传播。
package degrade

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/FleetEats/FleetEats/internal/common/logger"
)

// Cache 读路径的降级缓存
type Cache struct {
	store  Store
	health *HealthTracker
	log    logger.Logger
	now    func() time.Time
}

// NewCache 创建降级缓存
func NewCache(store Store, health *HealthTracker, log logger.Logger) *Cache {
	return &Cache{
		store:  store,
		health: health,
		log:    log,
		now:    time.Now,
	}
}

// Health 暴露健康跟踪器，便于上层观测降级状态。
func (c *Cache) Health() *HealthTracker {
	return c.health
}

// Execute 执行 op 并按结果维护缓存与健康状态：
//   - 成功：结果写入 cacheKey，服务记为健康，原样返回
//   - 失败：若 cacheKey 存在旧值则回放旧值（stale-but-available），服务记为降级；
//     无旧值时原错误向上传播
//
// op 的重试由调用方负责，这里只做最后一道兜底。
func Execute[T any](ctx context.Context, c *Cache, serviceKey, cacheKey string, op func(context.Context) (T, error)) (T, error) {
	var zero T

	result, err := op(ctx)
	if err == nil {
		c.health.ReportSuccess(serviceKey)
		if storeErr := c.put(ctx, cacheKey, result); storeErr != nil {
			// 缓存写失败不影响主流程
			c.log.Warnf("fallback cache store failed key=%s: %v", cacheKey, storeErr)
		}
		return result, nil
	}

	c.health.ReportFailure(serviceKey, err)

	entry, ok, getErr := c.store.Get(ctx, cacheKey)
	if getErr != nil {
		c.log.Warnf("fallback cache read failed key=%s: %v", cacheKey, getErr)
	}
	if !ok {
		return zero, err
	}

	var cached T
	if decodeErr := json.Unmarshal(entry.Value, &cached); decodeErr != nil {
		c.log.Warnf("fallback cache decode failed key=%s: %v", cacheKey, decodeErr)
		return zero, err
	}

	c.log.Warnf("service %s degraded, serving cached value key=%s age=%s: %v",
		serviceKey, cacheKey, entry.Age(c.now()), err)
	return cached, nil
}

func (c *Cache) put(ctx context.Context, cacheKey string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return c.store.Set(ctx, cacheKey, Entry{Value: raw, StoredAt: c.now()})
}
