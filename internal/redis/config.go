package redis

import (
	"fmt"
	"net"
	"strconv"
)

type RedisConfig struct {
	Host           string
	Port           int
	Password       string
	Database       int
	TLSEnabled     bool
	ClusterEnabled bool
}

func (c *RedisConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *RedisConfig) String() string {
	return fmt.Sprintf("redis://%s/%d", c.Addr(), c.Database)
}
