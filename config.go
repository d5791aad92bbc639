package ade

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/NoiseDigital/agent-development-environment/adk"
	"github.com/NoiseDigital/agent-development-environment/stores"
	"github.com/NoiseDigital/agent-development-environment/streaming"
)

// Config holds everything needed to build a Client.
type Config struct {
	Host   string
	Secure bool
	UserID string

	Endpoints []adk.Endpoint

	SwitchDelay    time.Duration
	ReconnectDelay time.Duration
	FlushInterval  time.Duration

	Store  stores.LinkStore
	Traces stores.TraceStore
	Sink   streaming.PlaybackSink
	Logger *log.Logger
}

// NewConfig creates a configuration with default values and no store.
func NewConfig() *Config {
	return &Config{
		Host:           streaming.DefaultHost(),
		SwitchDelay:    streaming.DefaultSwitchDelay,
		ReconnectDelay: streaming.DefaultReconnectDelay,
		FlushInterval:  streaming.DefaultFlushInterval,
	}
}

// WithHost sets the streaming backend host ("host:port" or a base URL)
func (c *Config) WithHost(host string) *Config {
	c.Host = host
	return c
}

// WithSecure selects wss:// for scheme-less hosts
func (c *Config) WithSecure(secure bool) *Config {
	c.Secure = secure
	return c
}

// WithUserID fixes the user id instead of using the remembered or a generated one
func (c *Config) WithUserID(userID string) *Config {
	c.UserID = userID
	return c
}

// WithEndpoint registers an agent server; the first one is the fallback
func (c *Config) WithEndpoint(name, url, description string) *Config {
	c.Endpoints = append(c.Endpoints, adk.Endpoint{Name: name, URL: url, Description: description})
	return c
}

// WithSwitchDelay sets the pause between closing and reopening on a mode switch
func (c *Config) WithSwitchDelay(d time.Duration) *Config {
	c.SwitchDelay = d
	return c
}

// WithReconnectDelay sets the constant delay before each reconnect attempt
func (c *Config) WithReconnectDelay(d time.Duration) *Config {
	c.ReconnectDelay = d
	return c
}

// WithFlushInterval sets the audio batching window
func (c *Config) WithFlushInterval(d time.Duration) *Config {
	c.FlushInterval = d
	return c
}

// WithStore sets the link store
func (c *Config) WithStore(store stores.LinkStore) *Config {
	c.Store = store
	return c
}

// WithSQLiteStore sets a SQLite store with the specified database path
func (c *Config) WithSQLiteStore(dbPath string) *Config {
	store, err := stores.NewSQLiteStoreSimple(dbPath)
	if err != nil {
		panic("Failed to create SQLite store: " + err.Error())
	}
	c.Store = store
	return c
}

// WithPostgresStore sets a PostgreSQL store with the specified connection parameters
func (c *Config) WithPostgresStore(host, user, password, dbname string, port int) *Config {
	store, err := stores.NewPostgresStoreDefault(host, user, password, dbname, port)
	if err != nil {
		panic("Failed to create PostgreSQL store: " + err.Error())
	}
	c.Store = store
	return c
}

// WithTraces records link state transitions in the configured store's database
func (c *Config) WithTraces() *Config {
	if c.Store == nil {
		panic("WithTraces requires a store")
	}
	traces, err := stores.NewGORMTraceStore(c.Store.DB())
	if err != nil {
		panic("Failed to create trace store: " + err.Error())
	}
	c.Traces = traces
	return c
}

// WithSink sets where agent audio is played
func (c *Config) WithSink(sink streaming.PlaybackSink) *Config {
	c.Sink = sink
	return c
}

// WithLogger sends every component's log to logger, keeping the component prefixes
func (c *Config) WithLogger(logger *log.Logger) *Config {
	c.Logger = logger
	return c
}

// LoadEnv loads .env files (when present) and builds a Config from the environment.
func LoadEnv(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	return FromEnv()
}

// FromEnv builds a Config from ADE_* environment variables.
//
//	ADE_HOST                 streaming host, default localhost:8000
//	ADE_SECURE               use wss:// for scheme-less hosts
//	ADE_USER_ID              fixed user id
//	ADE_AGENT_ENDPOINTS      name=url[,name=url...]
//	ADE_DB_TYPE              sqlite | postgres (no store when unset)
//	ADE_DB_CONNECTION        file path or DSN
//	ADE_SWITCH_DELAY_MS      mode switch pause
//	ADE_RECONNECT_DELAY_MS   reconnect delay
//	ADE_FLUSH_INTERVAL_MS    audio batching window
func FromEnv() (*Config, error) {
	c := NewConfig()

	if v := os.Getenv("ADE_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("ADE_SECURE"); v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid ADE_SECURE %q: %w", v, err)
		}
		c.Secure = secure
	}
	c.UserID = os.Getenv("ADE_USER_ID")

	if v := os.Getenv("ADE_AGENT_ENDPOINTS"); v != "" {
		endpoints, err := parseEndpoints(v)
		if err != nil {
			return nil, err
		}
		c.Endpoints = endpoints
	}

	for _, d := range []struct {
		env string
		dst *time.Duration
	}{
		{"ADE_SWITCH_DELAY_MS", &c.SwitchDelay},
		{"ADE_RECONNECT_DELAY_MS", &c.ReconnectDelay},
		{"ADE_FLUSH_INTERVAL_MS", &c.FlushInterval},
	} {
		v := os.Getenv(d.env)
		if v == "" {
			continue
		}
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid %s %q", d.env, v)
		}
		*d.dst = time.Duration(ms) * time.Millisecond
	}

	if dbType := os.Getenv("ADE_DB_TYPE"); dbType != "" {
		store, err := stores.NewStore(stores.NewStoreConfig(dbType, os.Getenv("ADE_DB_CONNECTION")))
		if err != nil {
			return nil, fmt.Errorf("failed to create store: %w", err)
		}
		c.Store = store
	}
	return c, nil
}

// parseEndpoints reads "name=url,name=url". A bare url is named after its position.
func parseEndpoints(v string) ([]adk.Endpoint, error) {
	var endpoints []adk.Endpoint
	for i, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, u, ok := strings.Cut(item, "=")
		if !ok {
			name, u = fmt.Sprintf("agent-%d", i+1), item
		}
		name, u = strings.TrimSpace(name), strings.TrimSpace(u)
		if name == "" || u == "" {
			return nil, fmt.Errorf("invalid ADE_AGENT_ENDPOINTS entry %q", item)
		}
		endpoints = append(endpoints, adk.Endpoint{Name: name, URL: u})
	}
	return endpoints, nil
}
