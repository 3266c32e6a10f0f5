package config

import (
	"github.com/spf13/pflag"
)

// Flags holds the command-line overrides for the configuration bundle.
// Only flags the user actually set are applied, so an empty flag never
// clobbers a value loaded from the file.
type Flags struct {
	ConfigPath string

	set    *pflag.FlagSet
	values Config
}

// RegisterFlags adds every configuration flag to fs and returns the
// holder used to merge them with [Flags.Apply] after fs.Parse.
func RegisterFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{set: fs}
	fs.StringVar(&f.ConfigPath, "config", "", "path to config file (default: auto-discover)")
	fs.StringVar(&f.values.Web.URL, "web-url", "", "URL shown by the kiosk browser")
	fs.StringVar(&f.values.Web.Theme, "web-theme", "", "browser color theme: dark or light")
	fs.Float64Var(&f.values.Web.Zoom, "web-zoom", 0, "browser zoom level")
	fs.StringVar(&f.values.Web.Browser, "browser", "", "browser executable")
	fs.StringVar(&f.values.MQTT.URL, "mqtt-url", "", "MQTT broker URL (enables hardware integration)")
	fs.StringVar(&f.values.MQTT.User, "mqtt-user", "", "MQTT username")
	fs.StringVar(&f.values.MQTT.Password, "mqtt-password", "", "MQTT password")
	fs.StringVar(&f.values.MQTT.DiscoveryPrefix, "mqtt-discovery-prefix", "", "Home Assistant discovery prefix")
	fs.StringVar(&f.values.LogLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	fs.StringVar(&f.values.LogFormat, "log-format", "", "log format: text or json")
	return f
}

// Provided reports whether any configuration value was given on the
// command line (ignoring --config).
func (f *Flags) Provided() bool {
	provided := false
	f.set.Visit(func(fl *pflag.Flag) {
		if fl.Name != "config" {
			provided = true
		}
	})
	return provided
}

// Apply copies every flag that was explicitly set onto cfg.
func (f *Flags) Apply(cfg *Config) {
	overrides := map[string]func(){
		"web-url":               func() { cfg.Web.URL = f.values.Web.URL },
		"web-theme":             func() { cfg.Web.Theme = f.values.Web.Theme },
		"web-zoom":              func() { cfg.Web.Zoom = f.values.Web.Zoom },
		"browser":               func() { cfg.Web.Browser = f.values.Web.Browser },
		"mqtt-url":              func() { cfg.MQTT.URL = f.values.MQTT.URL },
		"mqtt-user":             func() { cfg.MQTT.User = f.values.MQTT.User },
		"mqtt-password":         func() { cfg.MQTT.Password = f.values.MQTT.Password },
		"mqtt-discovery-prefix": func() { cfg.MQTT.DiscoveryPrefix = f.values.MQTT.DiscoveryPrefix },
		"log-level":             func() { cfg.LogLevel = f.values.LogLevel },
		"log-format":            func() { cfg.LogFormat = f.values.LogFormat },
	}
	for name, apply := range overrides {
		if f.set.Changed(name) {
			apply()
		}
	}
	cfg.ApplyDefaults()
}
