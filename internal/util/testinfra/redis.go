package testinfra

import (
	"context"
	"fmt"
	"log"
	"sync"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go/modules/redis"
)

var (
	redisOnce   sync.Once
	redisDBMu   sync.Mutex
	redisDBUsed = make(map[int]bool)
)

const maxRedisDBs = 16

// NewRedisClient allocates a Redis database (0-15) for the test and returns a
// client bound to it. The database is flushed on cleanup.
func NewRedisClient(t *testing.T) *goredis.Client {
	addr := EnsureRedis()
	db := allocateDB()

	client := goredis.NewClient(&goredis.Options{
		Addr: addr,
		DB:   db,
	})

	t.Cleanup(func() {
		if err := client.FlushDB(context.Background()).Err(); err != nil {
			log.Printf("failed to flush Redis DB %d: %s", db, err)
		}
		client.Close()
		releaseDB(db)
	})

	return client
}

func allocateDB() int {
	redisDBMu.Lock()
	defer redisDBMu.Unlock()

	for i := 0; i < maxRedisDBs; i++ {
		if !redisDBUsed[i] {
			redisDBUsed[i] = true
			return i
		}
	}
	panic(fmt.Sprintf("no available databases (max %d)", maxRedisDBs))
}

func releaseDB(db int) {
	redisDBMu.Lock()
	defer redisDBMu.Unlock()
	delete(redisDBUsed, db)
}

func EnsureRedis() string {
	cfg := ReadConfig()
	if cfg.RedisURL == "" {
		redisOnce.Do(func() {
			startRedisTestContainer(cfg)
		})
	}
	return cfg.RedisURL
}

func startRedisTestContainer(cfg *Config) {
	ctx := context.Background()

	redisContainer, err := redis.Run(ctx, "redis:7-alpine")
	if err != nil {
		panic(err)
	}

	endpoint, err := redisContainer.PortEndpoint(ctx, "6379/tcp", "")
	if err != nil {
		panic(err)
	}
	log.Printf("Redis running at %s", endpoint)
	cfg.RedisURL = endpoint
	cfg.cleanupFns = append(cfg.cleanupFns, func() {
		if err := redisContainer.Terminate(ctx); err != nil {
			log.Printf("failed to terminate container: %s", err)
		}
	})
}
