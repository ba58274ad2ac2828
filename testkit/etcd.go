package testkit

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	tcetcd "github.com/testcontainers/testcontainers-go/modules/etcd"

	"github.com/ceyewan/coord/connector"
)

const etcdImage = "quay.io/coreos/etcd:v3.5.9"

// GetEtcdConfig 返回 Etcd 测试配置
//
// 设置了 COORD_TEST_ETCD_ENDPOINTS（逗号分隔）时直接使用，
// 否则通过 testcontainers 启动一个临时的 Etcd 容器。
func GetEtcdConfig(t *testing.T) *connector.EtcdConfig {
	t.Helper()
	if v := os.Getenv("COORD_TEST_ETCD_ENDPOINTS"); v != "" {
		return &connector.EtcdConfig{
			Name:        "test-etcd",
			Endpoints:   strings.Split(v, ","),
			DialTimeout: 5 * time.Second,
		}
	}

	ctx := context.Background()
	container, err := tcetcd.Run(ctx, etcdImage)
	if err != nil {
		t.Skipf("etcd container not available: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get etcd host: %v", err)
	}
	port, err := container.MappedPort(ctx, "2379")
	if err != nil {
		t.Fatalf("failed to get etcd port: %v", err)
	}
	return &connector.EtcdConfig{
		Name:        "test-etcd",
		Endpoints:   []string{fmt.Sprintf("%s:%s", host, port.Port())},
		DialTimeout: 5 * time.Second,
	}
}

// GetEtcdConnector 获取已连接的 Etcd 连接器
func GetEtcdConnector(t *testing.T) connector.EtcdConnector {
	t.Helper()
	conn, err := connector.NewEtcd(GetEtcdConfig(t), connector.WithLogger(NewLogger()))
	if err != nil {
		t.Fatalf("failed to create etcd connector: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("failed to connect to etcd: %v", err)
	}
	return conn
}
