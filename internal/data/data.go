// Package data manages connections to the backing stores: the relational
// database, Redis, and RabbitMQ.
package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/ncobase/jobstream/internal/config"
)

// Data holds the shared connections of the service.
type Data struct {
	DB     *sql.DB
	Redis  *redis.Client
	Rabbit *amqp.Connection
}

// New opens all configured connections and verifies them.
func New(conf *config.Data) (*Data, error) {
	d := &Data{}

	db, err := newDB(conf.Database)
	if err != nil {
		return nil, err
	}
	d.DB = db

	rc, err := newRedisClient(conf.Redis)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Redis = rc

	conn, err := newRabbitMQConnection(conf.RabbitMQ)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Rabbit = conn

	return d, nil
}

func newDB(conf *config.DBNode) (*sql.DB, error) {
	if conf == nil || conf.Source == "" {
		return nil, errors.New("database configuration is nil or empty")
	}

	db, err := sql.Open(conf.Driver, conf.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if conf.MaxIdleConn > 0 {
		db.SetMaxIdleConns(conf.MaxIdleConn)
	}
	if conf.MaxOpenConn > 0 {
		db.SetMaxOpenConns(conf.MaxOpenConn)
	}
	if conf.ConnMaxLifeTime > 0 {
		db.SetConnMaxLifetime(conf.ConnMaxLifeTime)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

func newRedisClient(conf *config.Redis) (*redis.Client, error) {
	if conf == nil || conf.Addr == "" {
		return nil, errors.New("redis configuration is nil or empty")
	}

	rc := redis.NewClient(&redis.Options{
		Addr:         conf.Addr,
		Username:     conf.Username,
		Password:     conf.Password,
		DB:           conf.Db,
		ReadTimeout:  conf.ReadTimeout,
		WriteTimeout: conf.WriteTimeout,
		DialTimeout:  conf.DialTimeout,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), conf.DialTimeout)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connect error: %v", err)
	}

	return rc, nil
}

func newRabbitMQConnection(conf *config.RabbitMQ) (*amqp.Connection, error) {
	if conf == nil || conf.URL == "" {
		return nil, errors.New("rabbitmq configuration is nil or empty")
	}

	conn, err := amqp.DialConfig(conf.URL, amqp.Config{
		Vhost:     conf.Vhost,
		Heartbeat: conf.HeartbeatInterval,
		Dial:      amqp.DefaultDial(conf.ConnectionTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("rabbitmq connect error: %w", err)
	}

	return conn, nil
}

// Ping verifies the database and redis connections.
func (d *Data) Ping(ctx context.Context) error {
	if d.DB != nil {
		if err := d.DB.PingContext(ctx); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
	}
	if d.Rabbit != nil && d.Rabbit.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	return nil
}

// Close releases all connections, collecting any errors.
func (d *Data) Close() []error {
	var errs []error
	if d.Rabbit != nil && !d.Rabbit.IsClosed() {
		if err := d.Rabbit.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
