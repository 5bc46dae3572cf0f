package config

import (
	"time"

	"github.com/spf13/viper"
)

// Data groups the connection configuration of the backing stores.
type Data struct {
	Database *DBNode
	Redis    *Redis
	RabbitMQ *RabbitMQ
}

// DBNode represents a single database node configuration
type DBNode struct {
	Driver          string        `json:"driver" yaml:"driver"`
	Source          string        `json:"source" yaml:"source"`
	MaxIdleConn     int           `json:"max_idle_conn" yaml:"max_idle_conn"`
	MaxOpenConn     int           `json:"max_open_conn" yaml:"max_open_conn"`
	ConnMaxLifeTime time.Duration `json:"conn_max_life_time" yaml:"conn_max_life_time"`
}

// Redis redis config struct
type Redis struct {
	Addr         string        `json:"addr" yaml:"addr"`
	Username     string        `json:"username" yaml:"username"`
	Password     string        `json:"password" yaml:"password"`
	Db           int           `json:"db" yaml:"db"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
}

// RabbitMQ rabbitmq config struct
type RabbitMQ struct {
	URL               string
	Vhost             string
	ConnectionTimeout time.Duration
	HeartbeatInterval time.Duration
	PublishTimeout    time.Duration
}

func getDataConfig(v *viper.Viper) *Data {
	return &Data{
		Database: &DBNode{
			Driver:          getStringOrDefault(v, "data.database.driver", "mysql"),
			Source:          v.GetString("data.database.source"),
			MaxIdleConn:     v.GetInt("data.database.max_idle_conn"),
			MaxOpenConn:     v.GetInt("data.database.max_open_conn"),
			ConnMaxLifeTime: v.GetDuration("data.database.max_life_time"),
		},
		Redis: &Redis{
			Addr:         v.GetString("data.redis.addr"),
			Username:     v.GetString("data.redis.username"),
			Password:     v.GetString("data.redis.password"),
			Db:           v.GetInt("data.redis.db"),
			ReadTimeout:  v.GetDuration("data.redis.read_timeout"),
			WriteTimeout: v.GetDuration("data.redis.write_timeout"),
			DialTimeout:  v.GetDuration("data.redis.dial_timeout"),
		},
		RabbitMQ: &RabbitMQ{
			URL:               v.GetString("data.rabbitmq.url"),
			Vhost:             v.GetString("data.rabbitmq.vhost"),
			ConnectionTimeout: getDurationOrDefault(v, "data.rabbitmq.connection_timeout", 10*time.Second),
			HeartbeatInterval: getDurationOrDefault(v, "data.rabbitmq.heartbeat_interval", 10*time.Second),
			PublishTimeout:    getDurationOrDefault(v, "data.rabbitmq.publish_timeout", 30*time.Second),
		},
	}
}
