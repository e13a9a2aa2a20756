package notify

import (
	"context"

	"github.com/FleetEats/FleetEats/internal/common/logger"
	"github.com/FleetEats/FleetEats/internal/common/ratelimit"
)

// Dispatcher 通知投递端口
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// LogDispatcher 仅写日志的投递实现（开发环境 / Kafka 未启用时）。
type LogDispatcher struct {
	log logger.Logger
}

func NewLogDispatcher(log logger.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, n Notification) error {
	d.log.WithFields(map[string]interface{}{
		"recipient_id": n.RecipientID,
		"title":        n.Title,
	}).Infof("notification: %s", n.Body)
	return nil
}

// Tracker 订单实时追踪的订阅端口。
// 引擎只做透传，推送通道（WebSocket、厂商推送等）由实现决定。
type Tracker interface {
	Subscribe(ctx context.Context, orderID, recipientID string) error
	Unsubscribe(ctx context.Context, orderID, recipientID string) error
}

// LogTracker 仅写日志的追踪实现，与 LogDispatcher 配套用于开发环境。
type LogTracker struct {
	log logger.Logger
}

func NewLogTracker(log logger.Logger) *LogTracker {
	return &LogTracker{log: log}
}

func (t *LogTracker) Subscribe(ctx context.Context, orderID, recipientID string) error {
	t.log.Infof("tracking subscribed order=%s recipient=%s", orderID, recipientID)
	return nil
}

func (t *LogTracker) Unsubscribe(ctx context.Context, orderID, recipientID string) error {
	t.log.Infof("tracking unsubscribed order=%s recipient=%s", orderID, recipientID)
	return nil
}

// Limited 带限流的投递装饰器。
// 超过速率的通知直接丢弃：通知是尽力而为的旁路效果，堆积比丢弃更危险。
type Limited struct {
	limiter ratelimit.Limiter
	next    Dispatcher
	log     logger.Logger
}

func NewLimited(limiter ratelimit.Limiter, next Dispatcher, log logger.Logger) *Limited {
	return &Limited{limiter: limiter, next: next, log: log}
}

func (d *Limited) Dispatch(ctx context.Context, n Notification) error {
	if !d.limiter.Allow(ctx) {
		d.log.Warnf("notification dropped by rate limit recipient=%s title=%q", n.RecipientID, n.Title)
		return nil
	}
	return d.next.Dispatch(ctx, n)
}
