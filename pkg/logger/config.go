package logger

// Config holds logger settings loaded from the environment
type Config struct {
	Level       string `env:"LOG_LEVEL" envDefault:"info"`
	Format      string `env:"LOG_FORMAT"`
	Environment string `env:"APP_ENV" envDefault:"development"`
	Service     string `env:"SERVICE_NAME" envDefault:"jobqueue"`
}

// Options translates the config into factory options. Explicit level and
// format settings win over the environment defaults.
func (c Config) Options() []Option {
	opts := []Option{WithEnvironment(c.Environment, c.Service)}
	if c.Level != "" {
		opts = append(opts, WithLevelName(c.Level))
	}
	switch Format(c.Format) {
	case FormatJSON:
		opts = append(opts, WithJSONFormatter())
	case FormatText:
		opts = append(opts, WithTextFormatter())
	}
	return opts
}
