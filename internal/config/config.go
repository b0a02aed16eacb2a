package config

import "time"

type Config struct {
	Service     *ServiceConfig
	Redis       *RedisConfig
	Postgres    *PostgresConfig
	Twilio      *TwilioConfig
	Push        *PushConfig
	Call        *CallConfig
	Presence    *PresenceConfig
	Notifier    *NotifierConfig
	Logger      *LoggerConfig
	Tracer      *TracerConfig
	SecretToken string
}

type ServiceConfig struct {
	Name string
	Env  string
	Add  string
}

type RedisConfig struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
	PingTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

type TwilioConfig struct {
	SID       string
	Token     string
	VerifySID string
}

type PushConfig struct {
	Endpoint  string
	ServerKey string
	Timeout   time.Duration
}

type CallConfig struct {
	RingTimeout time.Duration
}

type PresenceConfig struct {
	MirrorTTL time.Duration
}

type NotifierConfig struct {
	Group string
}

type LoggerConfig struct {
	Level  string
	Format string
}

type TracerConfig struct {
	Address string
}
