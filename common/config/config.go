package config

import (
	"fmt"
	"net/url"
)

// DatabaseConfig postgres connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host" envconfig:"HOST" default:"localhost"`
	Port     int    `yaml:"port" envconfig:"PORT" default:"5432"`
	User     string `yaml:"user" envconfig:"USER" default:"postgres"`
	Password string `yaml:"password" envconfig:"PASSWORD" default:"postgres"`
	Database string `yaml:"database" envconfig:"NAME" default:"notify"`
	SSLMode  string `yaml:"sslmode" envconfig:"SSLMODE" default:"disable"`
	MaxConns int    `yaml:"max_conns" envconfig:"MAX_CONNS" default:"10"`
	MaxIdle  int    `yaml:"max_idle" envconfig:"MAX_IDLE" default:"2"`
}

// RedisConfig redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"ADDR" default:"localhost:6379"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	DB       int    `yaml:"db" envconfig:"DB" default:"0"`
}

// GetDSN returns the key/value DSN understood by lib/pq
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// GetURL returns the same connection as a postgres:// URL, the form pgx prefers
func (c *DatabaseConfig) GetURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}
