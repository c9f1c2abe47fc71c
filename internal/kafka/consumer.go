package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/lvdashuaibi/pollhub/config"
	"github.com/lvdashuaibi/pollhub/internal/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Consumer struct {
	reader *kafka.Reader
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger
}

type MessageHandler func(event *model.VoteEvent) error

func NewConsumer(logger *zap.Logger) (*Consumer, error) {
	ctx, cancel := context.WithCancel(context.Background())

	// 消费者组模式，分区分配交给broker协调
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  config.AppConfig.Kafka.Brokers,
		Topic:    config.AppConfig.Kafka.Topic,
		GroupID:  config.AppConfig.Kafka.GroupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	return &Consumer{
		reader: reader,
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}, nil
}

// StartConsuming 开始消费投票事件
func (c *Consumer) StartConsuming(handler MessageHandler) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.consumeMessages(handler)
	}()
	c.logger.Info("Kafka消费者已启动", zap.String("topic", config.AppConfig.Kafka.Topic))
}

func (c *Consumer) consumeMessages(handler MessageHandler) {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			m, err := c.reader.ReadMessage(c.ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				c.logger.Warn("读取消息失败", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}

			var event model.VoteEvent
			if err := json.Unmarshal(m.Value, &event); err != nil {
				c.logger.Warn("解析投票事件失败", zap.Error(err))
				continue
			}

			if err := handler(&event); err != nil {
				c.logger.Warn("处理投票事件失败",
					zap.Int64("poll_id", event.PollID),
					zap.Error(err))
			}
		}
	}
}

// Stop 停止消费并关闭reader
func (c *Consumer) Stop() error {
	c.cancel()
	c.wg.Wait()
	return c.reader.Close()
}
