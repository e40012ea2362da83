package agent

import (
	"github.com/screenport/agent/pkg/config"
	"github.com/spf13/pflag"
)

type Config struct {
	Agent struct {
		DeviceID        string `fig:"deviceid"`
		RegistrationKey string `fig:"registrationkey"`
		Model           string
		OSVersion       string `fig:"osversion"`
		// directory for the keystore and scratch files
		StateDir string `fig:"statedir"`
		Debug    bool
	}
	Server     config.Server
	Transport  config.Transport
	Session    config.Session
	Webrtc     config.Webrtc
	FileShare  config.FileShare
	Monitoring config.Monitoring
}

// allows custom config path
var configPath string

func NewConfig() (*Config, error) {
	var conf Config
	if err := config.LoadConfig(&conf, configPath); err != nil {
		return nil, err
	}
	return &conf, nil
}

func (c *Config) WithFlags(fs *pflag.FlagSet) *Config {
	fs.StringVar(&c.Server.Address, "server", c.Server.Address, "Control server address (host:port)")
	fs.BoolVar(&c.Server.Secure, "secure", c.Server.Secure, "Use wss/https when talking to the server")
	fs.StringVar(&c.Agent.DeviceID, "device", c.Agent.DeviceID, "Device identifier")
	fs.BoolVar(&c.Agent.Debug, "debug", c.Agent.Debug, "Enable debug logging")
	fs.IntVar(&c.Monitoring.Port, "monitoring.port", c.Monitoring.Port, "Monitoring server port")
	fs.StringVarP(&configPath, "conf", "c", "", "Set custom configuration file path")
	return c
}
