package database

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"stututor-go/pkg/log"
)

var RDB *redis.Client

// OpenRedis 创建 Redis 客户端并检查连通性。
func OpenRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return client, nil
}

// InitRedis 初始化全局 Redis 客户端，失败时退出进程。
func InitRedis(addr, password string, db int) {
	client, err := OpenRedis(context.Background(), addr, password, db)
	if err != nil {
		log.Fatal("failed to connect to redis", err)
	}
	RDB = client
	log.Info("Redis client connected successfully")
}
