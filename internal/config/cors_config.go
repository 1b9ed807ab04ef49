package config

import "strings"

type Cors struct {
	Origins []string `mapstructure:"allowed_origins"`
	Methods string   `mapstructure:"allowed_methods"`
	Headers string   `mapstructure:"allowed_headers"`

	allowed AllowedOrigins
}

var _ CorsConfig = Cors{}

type AllowedOrigins map[string]struct{}
type nullValue = struct{}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	_, ok := a[origin]
	return ok
}

func (a AllowedOrigins) String() string {
	var origins []string
	for k := range a {
		origins = append(origins, k)
	}
	return strings.Join(origins, ", ")
}

func (c *Cors) normalise() {
	c.allowed = make(AllowedOrigins, len(c.Origins))
	for _, o := range c.Origins {
		if o = strings.TrimSpace(o); o != "" {
			c.allowed[o] = nullValue{}
		}
	}
}

func (c Cors) GetAllowedOrigins() AllowedOrigins {
	return c.allowed
}

func (c Cors) GetAllowedMethods() string {
	return c.Methods
}

func (c Cors) GetAllowedHeaders() string {
	return c.Headers
}
