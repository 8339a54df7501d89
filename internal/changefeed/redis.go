package changefeed

import (
	"context"
	"errors"
	"fmt"

	"orderflow-be/internal/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type redisSubscriber interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

type RedisPublisher struct {
	client  redisPublisher
	channel string
}

func NewRedisPublisher(client redisPublisher, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, c Change) error {
	if c.MessageID == "" {
		c.MessageID = uuid.NewString()
	}
	body, err := Encode(c)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

type RedisSource struct {
	client  redisSubscriber
	channel string
}

func NewRedisSource(client redisSubscriber, channel string) *RedisSource {
	return &RedisSource{client: client, channel: channel}
}

func (s *RedisSource) Listen(ctx context.Context, handle Handler) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	// Wait for the subscription confirmation so connection errors surface here.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}

	log := logger.Named("changefeed").With(zap.String("source", "redis"), zap.String("channel", s.channel))
	log.Info("listening for row changes")

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("redis subscription closed")
			}
			deliver(log, []byte(msg.Payload), handle)
		}
	}
}
