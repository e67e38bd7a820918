/*
 * MIT License
 *
 * Copyright (c) 2023 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package config

import (
	"fmt"
	"strconv"
	"strings"

	libval "github.com/go-playground/validator/v10"

	libtls "github.com/Megallm/ultrabalancer-sub000/certificates"
	libdur "github.com/Megallm/ultrabalancer-sub000/duration"
	liberr "github.com/Megallm/ultrabalancer-sub000/errors"
	liblog "github.com/Megallm/ultrabalancer-sub000/logger"
)

// BackendConfig is one configured upstream server.
type BackendConfig struct {
	Host     string `mapstructure:"host" json:"host" yaml:"host" toml:"host" validate:"required"`
	Port     int    `mapstructure:"port" json:"port" yaml:"port" toml:"port" validate:"required,min=1,max=65535"`
	Weight   int    `mapstructure:"weight" json:"weight" yaml:"weight" toml:"weight"`
	Role     string `mapstructure:"role" json:"role" yaml:"role" toml:"role" validate:"omitempty,oneof=primary replica backup generic"`
	Protocol string `mapstructure:"protocol" json:"protocol" yaml:"protocol" toml:"protocol" validate:"omitempty,oneof=postgres mysql redis"`
	MaxConns int    `mapstructure:"max_conns" json:"max_conns" yaml:"max_conns" toml:"max_conns"`
}

// ParseBackendFlag parses the repeatable -b HOST:PORT[@WEIGHT] flag
// value into a BackendConfig.
func ParseBackendFlag(s string) (BackendConfig, error) {
	weight := 1
	if at := strings.LastIndexByte(s, '@'); at >= 0 {
		w, err := strconv.Atoi(s[at+1:])
		if err != nil || w <= 0 {
			return BackendConfig{}, fmt.Errorf("config: invalid backend weight in %q", s)
		}
		weight = w
		s = s[:at]
	}
	colon := strings.LastIndexByte(s, ':')
	if colon <= 0 || colon == len(s)-1 {
		return BackendConfig{}, fmt.Errorf("config: backend %q is not HOST:PORT[@WEIGHT]", s)
	}
	port, err := strconv.Atoi(s[colon+1:])
	if err != nil || port <= 0 || port > 65535 {
		return BackendConfig{}, fmt.Errorf("config: invalid backend port in %q", s)
	}
	return BackendConfig{Host: s[:colon], Port: port, Weight: weight}, nil
}

// HealthConfig mirrors the health checker's cadence and thresholds.
type HealthConfig struct {
	Disabled      bool          `mapstructure:"disabled" json:"disabled" yaml:"disabled" toml:"disabled"`
	Kind          string        `mapstructure:"kind" json:"kind" yaml:"kind" toml:"kind" validate:"omitempty,oneof=tcp http https mysql postgres redis"`
	Interval      libdur.Duration `mapstructure:"interval" json:"interval" yaml:"interval" toml:"interval"`
	FastInterval  libdur.Duration `mapstructure:"fast_interval" json:"fast_interval" yaml:"fast_interval" toml:"fast_interval"`
	DownInterval  libdur.Duration `mapstructure:"down_interval" json:"down_interval" yaml:"down_interval" toml:"down_interval"`
	Timeout       libdur.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout" toml:"timeout"`
	Rise          int           `mapstructure:"rise" json:"rise" yaml:"rise" toml:"rise"`
	Fall          int           `mapstructure:"fall" json:"fall" yaml:"fall" toml:"fall"`
	HTTPPath      string        `mapstructure:"http_path" json:"http_path" yaml:"http_path" toml:"http_path"`
	ExpectStatus  []int         `mapstructure:"expect_status" json:"expect_status" yaml:"expect_status" toml:"expect_status"`
	TLSSkipVerify bool          `mapstructure:"tls_skip_verify" json:"tls_skip_verify" yaml:"tls_skip_verify" toml:"tls_skip_verify"`
	TLS           *libtls.Config `mapstructure:"tls" json:"tls" yaml:"tls" toml:"tls"`
}

// RateLimitConfig is the per-route token bucket setting.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled" json:"enabled" yaml:"enabled" toml:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" json:"requests_per_second" yaml:"requests_per_second" toml:"requests_per_second" validate:"omitempty,gt=0"`
	BurstSize         float64 `mapstructure:"burst_size" json:"burst_size" yaml:"burst_size" toml:"burst_size" validate:"omitempty,gt=0"`
}

// RouteTargetConfig is one weighted backend reference inside a route.
type RouteTargetConfig struct {
	Backend string `mapstructure:"backend" json:"backend" yaml:"backend" toml:"backend" validate:"required"`
	Weight  int    `mapstructure:"weight" json:"weight" yaml:"weight" toml:"weight"`
}

// RouteConfig is one L7 route-table rule.
type RouteConfig struct {
	Name       string              `mapstructure:"name" json:"name" yaml:"name" toml:"name" validate:"required"`
	Priority   int                 `mapstructure:"priority" json:"priority" yaml:"priority" toml:"priority"`
	Host       string              `mapstructure:"host" json:"host" yaml:"host" toml:"host"`
	PathPrefix string              `mapstructure:"path_prefix" json:"path_prefix" yaml:"path_prefix" toml:"path_prefix"`
	Headers    map[string]string   `mapstructure:"headers" json:"headers" yaml:"headers" toml:"headers"`
	Targets    []RouteTargetConfig `mapstructure:"targets" json:"targets" yaml:"targets" toml:"targets" validate:"required,min=1,dive"`

	BreakerThreshold int           `mapstructure:"breaker_threshold" json:"breaker_threshold" yaml:"breaker_threshold" toml:"breaker_threshold"`
	BreakerReset     libdur.Duration `mapstructure:"breaker_reset" json:"breaker_reset" yaml:"breaker_reset" toml:"breaker_reset"`
}

// DBProxyConfig controls the DB-aware routing mode.
type DBProxyConfig struct {
	Enabled         bool          `mapstructure:"enabled" json:"enabled" yaml:"enabled" toml:"enabled"`
	Listen          string        `mapstructure:"listen" json:"listen" yaml:"listen" toml:"listen" validate:"required_if=Enabled true"`
	MaxSessions     int           `mapstructure:"max_sessions" json:"max_sessions" yaml:"max_sessions" toml:"max_sessions"`
	MaxConns        int           `mapstructure:"max_conns" json:"max_conns" yaml:"max_conns" toml:"max_conns"`
	IdleTimeout     libdur.Duration `mapstructure:"idle_timeout" json:"idle_timeout" yaml:"idle_timeout" toml:"idle_timeout"`
	MaxLifetime     libdur.Duration `mapstructure:"max_lifetime" json:"max_lifetime" yaml:"max_lifetime" toml:"max_lifetime"`
	LagThresholdMS  int64         `mapstructure:"lag_threshold_ms" json:"lag_threshold_ms" yaml:"lag_threshold_ms" toml:"lag_threshold_ms"`
	TLS             *libtls.Config  `mapstructure:"tls" json:"tls" yaml:"tls" toml:"tls"`
	StatsDSN        string        `mapstructure:"stats_dsn" json:"stats_dsn" yaml:"stats_dsn" toml:"stats_dsn"`
	StatsDSNDriver  string        `mapstructure:"stats_dsn_driver" json:"stats_dsn_driver" yaml:"stats_dsn_driver" toml:"stats_dsn_driver" validate:"omitempty,oneof=mysql psql"`
}

// ClusterConfig bootstraps the optional replicated backend-health view.
type ClusterConfig struct {
	Enabled bool     `mapstructure:"enabled" json:"enabled" yaml:"enabled" toml:"enabled"`
	NodeID  uint64   `mapstructure:"node_id" json:"node_id" yaml:"node_id" toml:"node_id"`
	Listen  string   `mapstructure:"listen" json:"listen" yaml:"listen" toml:"listen"`
	Join    []string `mapstructure:"join" json:"join" yaml:"join" toml:"join"`
}

// ProxyConfig is the whole process configuration.
type ProxyConfig struct {
	Listen     string          `mapstructure:"listen" json:"listen" yaml:"listen" toml:"listen" validate:"required"`
	Algorithm  string          `mapstructure:"algorithm" json:"algorithm" yaml:"algorithm" toml:"algorithm"`
	Workers    int             `mapstructure:"workers" json:"workers" yaml:"workers" toml:"workers" validate:"omitempty,min=1"`
	ProxyProto bool            `mapstructure:"proxy_protocol" json:"proxy_protocol" yaml:"proxy_protocol" toml:"proxy_protocol"`
	Backends   []BackendConfig `mapstructure:"backends" json:"backends" yaml:"backends" toml:"backends" validate:"required,min=1,dive"`
	Health     HealthConfig    `mapstructure:"health" json:"health" yaml:"health" toml:"health"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit" json:"rate_limit" yaml:"rate_limit" toml:"rate_limit"`
	Routes     []RouteConfig   `mapstructure:"routes" json:"routes" yaml:"routes" toml:"routes" validate:"omitempty,dive"`
	DBProxy    DBProxyConfig   `mapstructure:"db_proxy" json:"db_proxy" yaml:"db_proxy" toml:"db_proxy"`
	Cluster    ClusterConfig   `mapstructure:"cluster" json:"cluster" yaml:"cluster" toml:"cluster"`
	StatsAddr  string          `mapstructure:"stats_listen" json:"stats_listen" yaml:"stats_listen" toml:"stats_listen"`
	StatsTLS   *libtls.Config  `mapstructure:"stats_tls" json:"stats_tls" yaml:"stats_tls" toml:"stats_tls"`
	StickyTTL  libdur.Duration `mapstructure:"sticky_ttl" json:"sticky_ttl" yaml:"sticky_ttl" toml:"sticky_ttl"`
	StickySize int             `mapstructure:"sticky_size" json:"sticky_size" yaml:"sticky_size" toml:"sticky_size"`
	Log        liblog.Options  `mapstructure:"log" json:"log" yaml:"log" toml:"log"`
}

// Validate checks the struct against its validation tags, collecting
// every violation into one coded error.
func (c *ProxyConfig) Validate() liberr.Error {
	var e = liberr.ErrCodeConfigInvalid.Error(nil)

	if err := libval.New().Struct(c); err != nil {
		if er, ok := err.(*libval.InvalidValidationError); ok {
			e.Add(er)
		}
		for _, er := range err.(libval.ValidationErrors) {
			//nolint #goerr113
			e.Add(fmt.Errorf("config field '%s' is not validated by constraint '%s'", er.Namespace(), er.ActualTag()))
		}
	}

	if !e.HasParent() {
		e = nil
	}

	return e
}
