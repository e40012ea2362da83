package config

import "time"

type Monitoring struct {
	Port             int
	URLPrefix        string
	MetricEnabled    bool
	ProfilingEnabled bool
}

func (c *Monitoring) IsEnabled() bool { return c.MetricEnabled || c.ProfilingEnabled }

// Server points to the control server the agent keeps its
// persistent signaling connection to.
type Server struct {
	Address  string `fig:"address" default:"localhost:8000"`
	Secure   bool
	Endpoint string `fig:"endpoint" default:"/ws"`
}

type Transport struct {
	// fixed pause between reconnect attempts
	RetryDelay time.Duration `fig:"retrydelay" default:"5s"`
	// attempts before the transport gives up until the next explicit connect
	MaxRetries int `fig:"maxretries" default:"5"`
	Heartbeat  Heartbeat
}

type Heartbeat struct {
	Interval     time.Duration `fig:"interval" default:"25s"`
	InitialDelay time.Duration `fig:"initialdelay" default:"500ms"`
}

type Session struct {
	RequestTimeout time.Duration `fig:"requesttimeout" default:"30s"`
}

type Webrtc struct {
	IceServers []IceServer
	// pause before the single negotiation retry
	RetryDelay time.Duration `fig:"retrydelay" default:"750ms"`
}

type IceServer struct {
	Urls       string `json:"urls,omitempty"`
	Username   string `json:"username,omitempty"`
	Credential string `json:"credential,omitempty"`
}

type FileShare struct {
	// root of the shared directory tree; resolved paths never escape it
	Root string `fig:"root" default:"/"`
	// scratch space for in-flight archives, empty means os.TempDir
	TempDir string
}
