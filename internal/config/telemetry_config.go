package config

type TelemetryConfig interface {
	GetOTELEnabled() bool
	GetOTELEndpoint() string
	GetOTELSampleRatio() float64
}

type Telemetry struct {
	Enable      bool    `mapstructure:"enable"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

var _ TelemetryConfig = Telemetry{}

func (t Telemetry) GetOTELEnabled() bool        { return t.Enable }
func (t Telemetry) GetOTELEndpoint() string     { return t.Endpoint }
func (t Telemetry) GetOTELSampleRatio() float64 { return t.SampleRatio }
