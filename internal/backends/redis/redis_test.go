package redis

import (
	"context"
	"entitled/internal/backends/backendtest"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

// TestRedisStores needs a disposable Redis at TEST_REDIS_ADDR, e.g. localhost:46379.
func TestRedisStores(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	cli := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	if err := cli.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	defer cli.Close()
	suite.Run(t, &backendtest.StoreSuite{
		Grants: NewGrantStore(cli),
		Promos: NewPromoStore(cli),
	})
}
