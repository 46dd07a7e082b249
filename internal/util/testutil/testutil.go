package testutil

import (
	"crypto/rand"
	"fmt"
	mathrand "math/rand"
	"os"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hookdeck/hostnode/internal/logging"
	internalredis "github.com/hookdeck/hostnode/internal/redis"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"
)

func CheckIntegrationTest(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
}

func Race(t *testing.T) {
	if os.Getenv("TESTRACE") != "1" {
		t.Skip("skipping race test")
	}
}

// CreateTestRedisConfig starts a miniredis server for the duration of the test.
func CreateTestRedisConfig(t *testing.T) *internalredis.RedisConfig {
	mr := miniredis.RunT(t)

	port, _ := strconv.Atoi(mr.Port())

	return &internalredis.RedisConfig{
		Host: mr.Host(),
		Port: port,
	}
}

func CreateTestRedisClient(t *testing.T) internalredis.Client {
	client, _ := CreateTestRedis(t)
	return client
}

// CreateTestRedis returns a client together with the miniredis server backing
// it, so tests can inspect keys or simulate outages.
func CreateTestRedis(t *testing.T) (internalredis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		client.Close()
	})
	return client, mr
}

func CreateTestLogger(t *testing.T) *logging.Logger {
	return logging.FromZap(zaptest.NewLogger(t))
}

func RandomString(length int) string {
	b := make([]byte, length+2)
	rand.Read(b)
	return fmt.Sprintf("%x", b)[2 : length+2]
}

func RandomPortNumber() int {
	return 10000 + mathrand.Intn(50000)
}
