package events

import (
	"encoding/json"
	"fmt"

	"biomapper/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InvalidationEvent 跨实例映射表失效事件
// Origin 标记发起实例，订阅方据此跳过自己发出的事件
type InvalidationEvent struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Organism int    `json:"organism"`
	Origin   string `json:"origin"`
}

// Publisher 事件发布端（MQTT 客户端的最小切面）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Invalidator 失效执行端（Resolver 的最小切面）
type Invalidator interface {
	Invalidate(from, to domain.Namespace, organism domain.Organism)
}

// Broadcaster 把本地失效广播到 MQTT，并把远端事件应用到本地
type Broadcaster struct {
	pub    Publisher
	topic  string
	qos    byte
	origin string
	logger *zap.Logger
}

// NewBroadcaster 创建广播器；origin 每实例唯一
func NewBroadcaster(pub Publisher, topic string, qos byte, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		pub:    pub,
		topic:  topic,
		qos:    qos,
		origin: uuid.NewString(),
		logger: logger,
	}
}

// Origin 本实例的事件来源标识
func (b *Broadcaster) Origin() string {
	return b.origin
}

// Broadcast 发布一次失效事件；发布失败只记日志，本地失效已经生效
func (b *Broadcaster) Broadcast(from, to domain.Namespace, organism domain.Organism) {
	event := InvalidationEvent{
		Source:   string(from),
		Target:   string(to),
		Organism: int(organism),
		Origin:   b.origin,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to encode invalidation event", zap.Error(err))
		return
	}
	if err := b.pub.Publish(b.topic, b.qos, false, payload); err != nil {
		b.logger.Warn("Failed to broadcast invalidation event",
			zap.String("source", event.Source),
			zap.String("target", event.Target),
			zap.Error(err),
		)
	}
}

// Handler 返回 MQTT 消息处理函数，把远端失效事件应用到 inv
// 自己发出的事件（Origin 相同）直接丢弃，避免失效回环
func (b *Broadcaster) Handler(inv Invalidator) func(topic string, payload []byte) error {
	return func(topic string, payload []byte) error {
		var event InvalidationEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return fmt.Errorf("failed to decode invalidation event: %w", err)
		}
		if event.Origin == b.origin {
			return nil
		}
		organism := domain.Organism(event.Organism)
		if !organism.Valid() {
			return fmt.Errorf("invalid organism in invalidation event: %d", event.Organism)
		}
		b.logger.Info("Applying remote invalidation",
			zap.String("source", event.Source),
			zap.String("target", event.Target),
			zap.Int("organism", event.Organism),
		)
		inv.Invalidate(domain.Namespace(event.Source), domain.Namespace(event.Target), organism)
		return nil
	}
}
