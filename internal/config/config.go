package config

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
)

type Config struct {
	// TCP Address optionally specifies the TCP address for the server to listen on,
	// in the form "host:port". If empty, and no other network protocol is used, ":1883" is used.
	TCP struct {
		Address string `json:"address"`
	} `json:"tcp"`

	// TLS Address optionally specifies an address for the server to listen on for TLS connections,
	// in the form "host:port". If empty, TLS is not used.
	TLS struct {
		Address string `json:"address"`
		keyPair
	} `json:"tls"`

	// WS Address optionally specifies an address for the server to listen on for Websocket connections,
	// in the form "host:port". If empty, Websocket is not used.
	WS struct {
		Address     string `json:"address"`
		CheckOrigin bool   `json:"check_origin"`
	} `json:"ws"`

	// WSS Address optionally specifies an address for the server to listen on for Secure Websocket connections,
	// in the form "host:port". If empty, Secure Websocket is not used.
	WSS struct {
		Address     string `json:"address"`
		CheckOrigin bool   `json:"check_origin"`
		keyPair
	} `json:"wss"`

	// Log configures optional log output file as well as the log level setting.
	Log struct {
		File  string `json:"file"`
		Level string `json:"level"`
	} `json:"log"`

	// Metrics optionally exposes Prometheus metrics over HTTP at Address + Path.
	Metrics struct {
		Address string `json:"address"`
		Path    string `json:"path"` // default "/metrics"
	} `json:"metrics"`

	// Store optionally journals the wills of abruptly closed connections to disk.
	Store struct {
		Dir string `json:"dir"`
	} `json:"store"`

	// RateLimit optionally limits new connections per remote IP.
	// Disabled if PerSecond is not positive.
	RateLimit struct {
		PerSecond float64 `json:"per_second"`
		Burst     int     `json:"burst"` // default 1
	} `json:"rate_limit"`

	// Auth optionally restricts CONNECT to registered users (and guests if allowed)
	// and listed Topic Filters to the clients allowed to subscribe to them.
	// If not enabled, all clients and subscriptions are allowed.
	Auth struct {
		Enabled       bool                `json:"enabled"`
		AllowGuests   bool                `json:"allow_guests"`
		Users         []User              `json:"users"`
		Subscriptions map[string][]string `json:"subscriptions"` // topic filter -> client ids
	} `json:"auth"`

	// Time in s a new connection has to send CONNECT. Default 10s.
	ConnectTimeout int64 `json:"connect_timeout"`

	// Highest QoS granted to subscriptions. Default 2.
	MaxQoS *uint8 `json:"max_qos"`

	// Largest Remaining Length accepted from clients.
	// Default 0 is the protocol maximum of 256 MB.
	MaxPacketSize uint32 `json:"max_packet_size"`
}

type User struct {
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type keyPair struct {
	Cert string `json:"cert"`
	Key  string `json:"key"`
}

func (c *Config) LoadFromFile(fPath string) error {
	f, err := os.Open(fPath)
	if err != nil {
		return errors.New("error opening config file: " + err.Error())
	}

	defer f.Close()

	if err = json.NewDecoder(f).Decode(&c); err != nil {
		return errors.New("error reading config file: " + err.Error())
	}

	return c.Validate()
}

// Validate checks c and fills in defaults.
func (c *Config) Validate() error {
	if c.TCP.Address == "" && c.TLS.Address == "" && c.WS.Address == "" && c.WSS.Address == "" {
		c.TCP.Address = ":1883" // default to basic TCP only server if nothing specified.
	}

	if c.TCP.Address != "" {
		if !strings.Contains(c.TCP.Address, ":") {
			c.TCP.Address += ":1883" // if just ip/host or nothing specified
		}
	}

	if c.TLS.Address != "" {
		if c.TLS.Cert == "" || c.TLS.Key == "" {
			return errors.New("invalid TLS certificate and/or private key file path setup")
		}

		if !strings.Contains(c.TLS.Address, ":") {
			c.TLS.Address += ":8883"
		}
	}

	if c.WS.Address != "" {
		if !strings.Contains(c.WS.Address, ":") {
			c.WS.Address += ":80"
		}
	}

	if c.WSS.Address != "" {
		if c.WSS.Cert == "" || c.WSS.Key == "" {
			return errors.New("invalid TLS certificate and/or private key file path setup for Websocket Secure")
		}

		if !strings.Contains(c.WSS.Address, ":") {
			c.WSS.Address += ":443"
		}
	}

	if c.Metrics.Address != "" && c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.RateLimit.PerSecond > 0 && c.RateLimit.Burst < 1 {
		c.RateLimit.Burst = 1
	}

	if c.ConnectTimeout < 0 {
		return errors.New("connect_timeout must not be negative")
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10
	}

	if c.MaxQoS == nil {
		q := uint8(2)
		c.MaxQoS = &q
	} else if *c.MaxQoS > 2 {
		return errors.New("max_qos must be 0, 1 or 2")
	}

	for _, u := range c.Auth.Users {
		if u.ClientID == "" {
			return errors.New("auth user without client_id")
		}
	}

	if c.MaxPacketSize > 268435455 {
		return errors.New("max_packet_size larger than 268435455")
	}

	return nil
}
