package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/rxtech-lab/argo-batch/internal/types"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	EnvPolygonAPIKey    = "POLYGON_API_KEY"
	EnvBinanceAPIKey    = "BINANCE_API_KEY"
	EnvBinanceSecretKey = "BINANCE_SECRET_KEY"
	EnvDataDir          = "ARGO_BATCH_DATA_DIR"
)

// Load reads a YAML config file, applies environment overrides and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config %s", path)
	}

	return Parse(data)
}

// Parse decodes YAML bytes on top of Default, applies environment overrides and validates.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse config", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvPolygonAPIKey); v != "" {
		c.Broker.Polygon.APIKey = v
	}

	if v := os.Getenv(EnvBinanceAPIKey); v != "" {
		c.Broker.Binance.APIKey = v
	}

	if v := os.Getenv(EnvBinanceSecretKey); v != "" {
		c.Broker.Binance.SecretKey = v
	}

	if v := os.Getenv(EnvDataDir); v != "" {
		c.Storage.DataDir = v
	}

	if c.Broker.Paper.StateFile == "" {
		c.Broker.Paper.StateFile = filepath.Join(c.Storage.DataDir, "paper_account.json")
	}
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid config", err)
	}

	if _, err := time.LoadLocation(c.Venue.Timezone); err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "unknown timezone %q", c.Venue.Timezone)
	}

	if c.Broker.MarketData == "polygon" && c.Broker.Polygon.APIKey == "" {
		return errors.Newf(errors.ErrCodeMissingParameter, "polygon market data requires an API key (%s)", EnvPolygonAPIKey)
	}

	usesBinance := c.Broker.MarketData == "binance" || c.Broker.Trading == "binance"
	if usesBinance && (c.Broker.Binance.APIKey == "" || c.Broker.Binance.SecretKey == "") {
		return errors.Newf(errors.ErrCodeMissingParameter, "binance requires %s and %s", EnvBinanceAPIKey, EnvBinanceSecretKey)
	}

	if len(c.EnabledStrategies()) == 0 {
		return errors.New(errors.ErrCodeInvalidConfiguration, "at least one strategy must be enabled")
	}

	for regime, weights := range c.Ranking.RegimeCompatibility {
		for key, w := range weights {
			if w < 0 || w > 1 {
				return errors.Newf(errors.ErrCodeInvalidConfiguration,
					"regime_compatibility[%s][%s] = %.2f must be within [0, 1]", regime, key, w)
			}
		}
	}

	windowClose, _ := ParseClock(c.Entry.WindowClose)
	immediate, _ := ParseClock(c.Schedule.EntryImmediate)

	if !immediate.Before(windowClose) {
		return errors.Newf(errors.ErrCodeInvalidConfiguration,
			"entry_immediate %s must be before entry window close %s", c.Schedule.EntryImmediate, c.Entry.WindowClose)
	}

	return nil
}

// EnabledStrategies returns the names of enabled strategies.
func (c *Config) EnabledStrategies() []string {
	names := make([]string, 0, len(c.Strategies))

	for name, s := range c.Strategies {
		if s.Enabled {
			names = append(names, name)
		}
	}

	return names
}

// GroupOf returns the diversification group of a symbol, or "ungrouped".
func (c *Config) GroupOf(symbol string) string {
	for group, members := range c.Universe.Groups {
		for _, m := range members {
			if m == symbol {
				return group
			}
		}
	}

	return "ungrouped"
}

// SymbolGroups flattens Universe.Groups into symbol -> group.
func (c *Config) SymbolGroups() map[string]string {
	out := make(map[string]string)

	for group, members := range c.Universe.Groups {
		for _, m := range members {
			out[m] = group
		}
	}

	return out
}

// Group returns the entry group configured for a strategy.
func (s StrategyConfig) Group() types.EntryGroup {
	return types.EntryGroup(s.EntryGroup)
}

// Clock is a wall clock time of day in venue local time.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Clock{}, errors.Wrapf(errors.ErrCodeInvalidParameter, err, "invalid time of day %q", s)
	}

	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// MustClock parses a clock that Validate already accepted.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}

	return c
}

// Before reports whether c is strictly earlier in the day than other.
func (c Clock) Before(other Clock) bool {
	return c.Hour*60+c.Minute < other.Hour*60+other.Minute
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Schema returns the JSON schema of the config file.
func Schema() (string, error) {
	return ToJSONSchema(Config{}) //nolint:exhaustruct // empty config for schema generation
}

// ToJSONSchema converts a struct to a JSON schema
func ToJSONSchema[T any](t T) (string, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = true
	schema := r.Reflect(t)

	jsonSchemaBytes, err := json.Marshal(schema)
	if err != nil {
		return "", err
	}

	return string(jsonSchemaBytes), nil
}
