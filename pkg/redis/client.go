package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config はRedis接続設定
type Config struct {
	Host         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Client はルート定義を保存するRedisクライアントのラッパー
type Client struct {
	client *redis.Client
}

// NewClient は新しいRedisクライアントを作成し、接続を確認する
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Host,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{client: client}, nil
}

// HGetAll はハッシュの全フィールドを取得する
// キーが存在しない場合は空のマップを返す
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read hash %s: %w", key, err)
	}
	return fields, nil
}

// HGet はハッシュの1フィールドを取得する
// フィールドが存在しない場合は ok が false になる
func (c *Client) HGet(ctx context.Context, key, field string) (string, bool, error) {
	val, err := c.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read field %s of hash %s: %w", field, key, err)
	}
	return val, true, nil
}

// HSet はハッシュのフィールドに値を設定する
func (c *Client) HSet(ctx context.Context, key, field, value string) error {
	if err := c.client.HSet(ctx, key, field, value).Err(); err != nil {
		return fmt.Errorf("failed to write field %s of hash %s: %w", field, key, err)
	}
	return nil
}

// HDel はハッシュのフィールドを削除し、削除できたかどうかを返す
func (c *Client) HDel(ctx context.Context, key, field string) (bool, error) {
	n, err := c.client.HDel(ctx, key, field).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete field %s of hash %s: %w", field, key, err)
	}
	return n > 0, nil
}

// Publish はチャネルにメッセージを送信する
func (c *Client) Publish(ctx context.Context, channel, message string) error {
	if err := c.client.Publish(ctx, channel, message).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe はチャネルを購読し、メッセージを受け取るたびに fn を呼び出す
// ctx がキャンセルされるまでブロックする
func (c *Client) Subscribe(ctx context.Context, channel string, fn func(payload string)) error {
	sub := c.client.Subscribe(ctx, channel)
	defer sub.Close()

	// 購読が確立するまで待つ
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			fn(msg.Payload)
		}
	}
}

// Ping はRedis接続の健全性を確認する
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close はRedis接続を閉じる
func (c *Client) Close() error {
	return c.client.Close()
}
