package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/lvdashuaibi/pollhub/config"
	"github.com/lvdashuaibi/pollhub/internal/model"
	"github.com/segmentio/kafka-go"
)

type Producer struct {
	writer *kafka.Writer
}

func NewProducer() (*Producer, error) {
	// 使用Hash分区器，同一个Poll的投票事件进入同一分区，保证消费顺序
	writer := &kafka.Writer{
		Addr:     kafka.TCP(config.AppConfig.Kafka.Brokers...),
		Topic:    config.AppConfig.Kafka.Topic,
		Balancer: &kafka.Hash{},
	}

	return &Producer{writer: writer}, nil
}

// SendVoteEvent 发送投票事件到Kafka，poll_id作为分区key
func (p *Producer) SendVoteEvent(ctx context.Context, event *model.VoteEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化投票事件失败: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(event.PollID, 10)),
		Value: data,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("发送投票事件失败: %w", err)
	}
	return nil
}

// Close 关闭Kafka生产者
func (p *Producer) Close() error {
	return p.writer.Close()
}
