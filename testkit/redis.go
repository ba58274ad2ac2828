package testkit

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/ceyewan/coord/clog"
	"github.com/ceyewan/coord/connector"
)

const redisImage = "redis:7-alpine"

// NewMiniRedis 启动进程内的 miniredis 并返回已连接的连接器
//
// 两者都会在测试结束时关闭。miniredis 的 TTL 不随真实时间流逝，
// 需要时用 FastForward 推进。
func NewMiniRedis(t *testing.T) (*miniredis.Miniredis, connector.RedisConnector) {
	t.Helper()
	mr := miniredis.RunT(t)

	conn, err := connector.NewRedis(&connector.RedisConfig{
		Name: "miniredis",
		Addr: mr.Addr(),
	}, connector.WithLogger(clog.Discard()))
	if err != nil {
		t.Fatalf("failed to create redis connector: %v", err)
	}
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("failed to connect to miniredis: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return mr, conn
}

// GetRedisConfig 返回真实 Redis 的测试配置
//
// 设置了 COORD_TEST_REDIS_ADDR 时直接使用，否则通过 testcontainers
// 启动一个临时的 Redis 容器。
func GetRedisConfig(t *testing.T) *connector.RedisConfig {
	t.Helper()
	addr := os.Getenv("COORD_TEST_REDIS_ADDR")
	if addr == "" {
		addr = runRedisContainer(t)
	}
	return &connector.RedisConfig{
		Name:         "test-redis",
		Addr:         addr,
		DB:           1, // 使用 DB 1 避免与默认的 DB 0 冲突
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func runRedisContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	container, err := tcredis.Run(ctx, redisImage)
	if err != nil {
		t.Skipf("redis container not available: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("failed to get redis port: %v", err)
	}
	return fmt.Sprintf("%s:%s", host, port.Port())
}

// GetRedisConnector 获取连接到真实 Redis 的连接器
func GetRedisConnector(t *testing.T) connector.RedisConnector {
	t.Helper()
	conn, err := connector.NewRedis(GetRedisConfig(t), connector.WithLogger(NewLogger()))
	if err != nil {
		t.Fatalf("failed to create redis connector: %v", err)
	}
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

// FlushRedis 清空 Redis 数据库（慎用！）
func FlushRedis(t *testing.T, client *redis.Client) {
	t.Helper()
	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("failed to flush redis: %v", err)
	}
}
