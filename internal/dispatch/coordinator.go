// Package dispatch 负责骑手侧的派单协调：
// 地理编码、半径内检索、原子占用与幂等释放。
// 订单侧的状态流转由编排器在持单锁内完成，这里不碰订单状态。
package dispatch

import (
	"context"
	"time"

	"github.com/FleetEats/FleetEats/internal/common/logger"
	"github.com/FleetEats/FleetEats/internal/common/retry"
	"github.com/FleetEats/FleetEats/internal/order"
)

// Geocoder 地理编码端口。地址无法解析时返回 (nil, nil)。
type Geocoder interface {
	Geocode(ctx context.Context, addr order.Address) (*Coordinate, error)
}

// DefaultSearchRadiusMeters 默认骑手搜索半径
const DefaultSearchRadiusMeters = 10000.0

// Coordinator 派单协调器，实现 order.DriverAssigner。
type Coordinator struct {
	geocoder     Geocoder
	directory    Directory
	radiusMeters float64
	queryTimeout time.Duration
	retry        retry.Policy
	log          logger.Logger
}

// NewCoordinator 创建派单协调器
func NewCoordinator(geocoder Geocoder, directory Directory, radiusMeters float64, queryTimeout time.Duration, policy retry.Policy, log logger.Logger) *Coordinator {
	if radiusMeters <= 0 {
		radiusMeters = DefaultSearchRadiusMeters
	}
	if queryTimeout <= 0 {
		queryTimeout = 5 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Coordinator{
		geocoder:     geocoder,
		directory:    directory,
		radiusMeters: radiusMeters,
		queryTimeout: queryTimeout,
		retry:        policy,
		log:          log,
	}
}

// FindCandidate 为订单寻找最近的可用骑手。
// 地址解析失败是 ErrLocationNotFound，与“附近没有骑手”（ErrNoDriverAvailable）
// 严格区分；返回的只是候选，真正占用要等 Claim 的原子复查。
func (c *Coordinator) FindCandidate(ctx context.Context, o *order.Order) (string, error) {
	// queryTimeout 按单次远程调用计，超时的尝试仍可按策略重试
	coord, err := retry.Do1(ctx, c.retry, func(ctx context.Context) (*Coordinate, error) {
		ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
		defer cancel()
		return c.geocoder.Geocode(ctx, o.DeliveryAddress)
	})
	if err != nil {
		return "", err
	}
	if coord == nil {
		return "", order.ErrLocationNotFound
	}

	drivers, err := retry.Do1(ctx, c.retry, func(ctx context.Context) ([]Driver, error) {
		ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
		defer cancel()
		return c.directory.FindNear(ctx, *coord, c.radiusMeters)
	})
	if err != nil {
		return "", err
	}

	best := ""
	bestDist := 0.0
	for _, d := range drivers {
		if !d.IsAvailable || !d.IsOnline {
			continue
		}
		dist := HaversineMeters(*coord, d.Location())
		if best == "" || dist < bestDist {
			best = d.ID
			bestDist = dist
		}
	}
	if best == "" {
		return "", order.ErrNoDriverAvailable
	}

	c.log.Debugf("driver candidate order=%s driver=%s distance=%.0fm", o.ID, best, bestDist)
	return best, nil
}

// Claim 原子占用骑手。冲突时透传 ErrDriverNotAvailable，调用方应重新询价。
func (c *Coordinator) Claim(ctx context.Context, driverID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()
	return c.directory.Claim(ctx, driverID)
}

// Release 幂等释放骑手。
func (c *Coordinator) Release(ctx context.Context, driverID string) error {
	return c.retry.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
		defer cancel()
		return c.directory.Release(ctx, driverID)
	})
}
