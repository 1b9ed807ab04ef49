package config

import (
	"fmt"
	"strings"
)

type EnvVars struct {
	Port      string `mapstructure:"port"`
	AppName   string `mapstructure:"app_name"`
	Env       string `mapstructure:"env"`
	LogLevel  string `mapstructure:"log_level"`
	LogPretty bool   `mapstructure:"log_pretty"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.Port
	if port == "" {
		port = "8080"
	}
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	if e.Env == "" {
		return "DEV"
	}
	return strings.ToUpper(e.Env)
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}

func (e EnvVars) GetLogPretty() bool {
	return e.LogPretty
}
