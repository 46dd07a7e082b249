package testinfra

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/hookdeck/hostnode/internal/util/testutil"
	"github.com/spf13/viper"
)

var (
	suiteCounter int64
	suiteCleanup sync.Once
	cfgSync      sync.Once
	cfg          *Config
)

// Config points integration tests at externally managed infrastructure.
// Empty URLs make the helpers start a testcontainer instead.
type Config struct {
	TestInfra   bool
	RedisURL    string
	PostgresURL string
	RabbitMQURL string
	cleanupFns  []func()
}

func initConfig() {
	v := viper.New()
	v.AutomaticEnv()

	configFile := os.Getenv("TEST_CONFIG_FILE")
	if configFile == "" {
		configFile = ".env.test"
	}

	if projectRoot, err := findProjectRoot(configFile); err == nil {
		v.SetConfigFile(filepath.Join(projectRoot, configFile))
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			panic(err)
		}
	}

	cfg = &Config{TestInfra: v.GetBool("TESTINFRA")}
	if !cfg.TestInfra {
		return
	}

	rabbitmqURL := v.GetString("TEST_RABBITMQ_URL")
	if rabbitmqURL != "" && !strings.Contains(rabbitmqURL, "amqp://") {
		rabbitmqURL = "amqp://guest:guest@" + rabbitmqURL
	}
	cfg.RedisURL = v.GetString("TEST_REDIS_URL")
	cfg.PostgresURL = v.GetString("TEST_POSTGRES_URL")
	cfg.RabbitMQURL = rabbitmqURL
}

func ReadConfig() *Config {
	cfgSync.Do(initConfig)
	return cfg
}

// Start marks the beginning of an integration suite. The returned func tears
// down every container once the last suite finishes.
func Start(t *testing.T) func() {
	testutil.CheckIntegrationTest(t)
	atomic.AddInt64(&suiteCounter, 1)
	return func() {
		if atomic.AddInt64(&suiteCounter, -1) == 0 {
			suiteCleanup.Do(func() {
				if cfg != nil {
					for _, fn := range cfg.cleanupFns {
						if fn != nil {
							fn()
						}
					}
				}
			})
		}
	}
}

func findProjectRoot(marker string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return dir, nil
		}
		parentDir := filepath.Dir(dir)
		if parentDir == dir {
			break
		}
		dir = parentDir
	}

	return "", os.ErrNotExist
}
