package config

import (
	"time"
)

// Config is the full runtime configuration of the batch engine.
type Config struct {
	Venue      VenueConfig               `yaml:"venue" json:"venue" jsonschema:"description=Trading venue timezone and calendar" validate:"required"`
	Schedule   ScheduleConfig            `yaml:"schedule" json:"schedule" jsonschema:"description=Daily stage trigger times in venue local time" validate:"required"`
	Universe   UniverseConfig            `yaml:"universe" json:"universe" jsonschema:"description=Symbols to scan and their diversification groups" validate:"required"`
	Scan       ScanConfig                `yaml:"scan" json:"scan" jsonschema:"description=Nightly scan settings"`
	Ranking    RankingConfig             `yaml:"ranking" json:"ranking" jsonschema:"description=Candidate scoring and selection"`
	GapFilter  GapFilterConfig           `yaml:"gap_filter" json:"gap_filter" jsonschema:"description=Pre-market gap filter"`
	Entry      EntryConfig               `yaml:"entry" json:"entry" jsonschema:"description=Entry window settings"`
	Exit       ExitConfig                `yaml:"exit" json:"exit" jsonschema:"description=Position monitor and exit settings"`
	Strategies map[string]StrategyConfig `yaml:"strategies" json:"strategies" jsonschema:"description=Per strategy parameters keyed by strategy name" validate:"required,min=1,dive"`
	Orders     OrderConfig               `yaml:"orders" json:"orders" jsonschema:"description=Order submission and fill settings"`
	Risk       RiskConfig                `yaml:"risk" json:"risk" jsonschema:"description=Portfolio risk limits"`
	Broker     BrokerConfig              `yaml:"broker" json:"broker" jsonschema:"description=Market data and trading providers"`
	Storage    StorageConfig             `yaml:"storage" json:"storage" jsonschema:"description=Artifact storage"`
	Server     ServerConfig              `yaml:"server" json:"server" jsonschema:"description=Metrics and status HTTP server"`
	Log        LogConfig                 `yaml:"log" json:"log" jsonschema:"description=Logging"`
}

type VenueConfig struct {
	Timezone    string   `yaml:"timezone" json:"timezone" jsonschema:"title=Timezone,description=IANA timezone of the venue,default=America/New_York" validate:"required"`
	MarketOpen  string   `yaml:"market_open" json:"market_open" jsonschema:"title=Market Open,description=Regular session open (HH:MM),default=09:30" validate:"required,datetime=15:04"`
	MarketClose string   `yaml:"market_close" json:"market_close" jsonschema:"title=Market Close,description=Regular session close (HH:MM),default=16:00" validate:"required,datetime=15:04"`
	Holidays    []string `yaml:"holidays" json:"holidays" jsonschema:"title=Holidays,description=Full-day market holidays (YYYY-MM-DD)" validate:"dive,datetime=2006-01-02"`
}

type ScheduleConfig struct {
	NightlyScan    string      `yaml:"nightly_scan" json:"nightly_scan" jsonschema:"description=Nightly scan trigger (HH:MM),default=20:00" validate:"required,datetime=15:04"`
	Premarket      string      `yaml:"premarket" json:"premarket" jsonschema:"description=Pre-market gap filter trigger (HH:MM),default=09:15" validate:"required,datetime=15:04"`
	MonitorStart   string      `yaml:"monitor_start" json:"monitor_start" jsonschema:"description=Position monitor reconciliation trigger (HH:MM),default=09:25" validate:"required,datetime=15:04"`
	EntryImmediate string      `yaml:"entry_immediate" json:"entry_immediate" jsonschema:"description=Immediate entry group trigger (HH:MM),default=09:31" validate:"required,datetime=15:04"`
	EntryConfirm   string      `yaml:"entry_confirm" json:"entry_confirm" jsonschema:"description=Confirmation entry group trigger (HH:MM),default=10:00" validate:"required,datetime=15:04"`
	EndOfDay       string      `yaml:"end_of_day" json:"end_of_day" jsonschema:"description=End of day snapshot trigger (HH:MM),default=16:10" validate:"required,datetime=15:04"`
	Retry          RetryConfig `yaml:"retry" json:"retry" jsonschema:"description=Per task retry policy"`
}

type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts" json:"max_attempts" jsonschema:"default=3" validate:"gte=1"`
	InitialInterval time.Duration `yaml:"initial_interval" json:"initial_interval" jsonschema:"description=Delay before the first retry"`
	MaxInterval     time.Duration `yaml:"max_interval" json:"max_interval" jsonschema:"description=Upper bound on the retry delay"`
}

type UniverseConfig struct {
	Symbols []string `yaml:"symbols" json:"symbols" jsonschema:"description=Symbols scanned every night" validate:"required,min=1,dive,required"`
	// Groups maps a diversification group (sector) to its member symbols.
	Groups    map[string][]string `yaml:"groups" json:"groups" jsonschema:"description=Diversification groups such as sectors"`
	Benchmark string              `yaml:"benchmark" json:"benchmark" jsonschema:"description=Symbol used for regime detection,default=SPY" validate:"required"`
}

type ScanConfig struct {
	HistoryDays       int           `yaml:"history_days" json:"history_days" jsonschema:"description=Calendar days of daily bars to fetch,default=300" validate:"gte=30"`
	MinHistory        int           `yaml:"min_history" json:"min_history" jsonschema:"description=Minimum bars required to evaluate a symbol,default=60" validate:"gte=1"`
	BatchSize         int           `yaml:"batch_size" json:"batch_size" jsonschema:"description=Symbols per provider request,default=50" validate:"gte=1"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second" jsonschema:"description=Provider request rate limit,default=5" validate:"gt=0"`
	Burst             int           `yaml:"burst" json:"burst" jsonschema:"default=1" validate:"gte=1"`
	Workers           int           `yaml:"workers" json:"workers" jsonschema:"description=Concurrent strategy evaluation workers,default=4" validate:"gte=1"`
	MaxAttempts       int           `yaml:"max_attempts" json:"max_attempts" jsonschema:"description=Whole scan attempts before falling back,default=3" validate:"gte=1"`
	RetryInterval     time.Duration `yaml:"retry_interval" json:"retry_interval" jsonschema:"description=Delay between scan attempts"`
}

type RankingWeights struct {
	Strength   float64 `yaml:"strength" json:"strength" jsonschema:"default=0.5" validate:"gte=0"`
	Volatility float64 `yaml:"volatility" json:"volatility" jsonschema:"default=0.2" validate:"gte=0"`
	Regime     float64 `yaml:"regime" json:"regime" jsonschema:"default=0.3" validate:"gte=0"`
	Volume     float64 `yaml:"volume" json:"volume" jsonschema:"default=0" validate:"gte=0"`
}

type RankingConfig struct {
	TopN        int            `yaml:"top_n" json:"top_n" jsonschema:"description=Maximum number of candidates,default=10" validate:"gte=1"`
	MaxPerGroup int            `yaml:"max_per_group" json:"max_per_group" jsonschema:"description=Maximum candidates per diversification group,default=2" validate:"gte=1"`
	Weights     RankingWeights `yaml:"weights" json:"weights"`
	// RegimeCompatibility maps regime -> "strategy:direction" -> weight in [0, 1].
	RegimeCompatibility map[string]map[string]float64 `yaml:"regime_compatibility" json:"regime_compatibility" jsonschema:"description=Regime to strategy:direction weight table"`
	DefaultRegimeWeight float64                       `yaml:"default_regime_weight" json:"default_regime_weight" jsonschema:"default=0.5" validate:"gte=0,lte=1"`
}

type GapFilterConfig struct {
	ThresholdPct float64 `yaml:"threshold_pct" json:"threshold_pct" jsonschema:"description=Maximum absolute gap in percent,default=3" validate:"gt=0"`
}

type EntryConfig struct {
	WindowClose string `yaml:"window_close" json:"window_close" jsonschema:"description=No new entries after this time (HH:MM),default=10:30" validate:"required,datetime=15:04"`
}

type ExitConfig struct {
	EmergencyLossPct float64       `yaml:"emergency_loss_pct" json:"emergency_loss_pct" jsonschema:"description=Unconditional exit when loss reaches this fraction,default=0.07" validate:"gt=0,lt=1"`
	PersistInterval  time.Duration `yaml:"persist_interval" json:"persist_interval" jsonschema:"description=How often dirty position state is flushed"`
	ReconnectMax     time.Duration `yaml:"reconnect_max" json:"reconnect_max" jsonschema:"description=Maximum delay between price stream reconnects"`
	RetryCooldown    time.Duration `yaml:"retry_cooldown" json:"retry_cooldown" jsonschema:"description=Wait after a rejected or unfilled exit before exiting again"`
}

type TrailingConfig struct {
	ActivationATR float64 `yaml:"activation_atr" json:"activation_atr" jsonschema:"description=Favorable move in ATRs that activates trailing" validate:"gt=0"`
	TrailATR      float64 `yaml:"trail_atr" json:"trail_atr" jsonschema:"description=Distance of the trailing stop from the extreme in ATRs" validate:"gt=0"`
}

type BreakevenConfig struct {
	ActivationATR float64 `yaml:"activation_atr" json:"activation_atr" jsonschema:"description=Favorable move in ATRs that moves the stop to entry" validate:"gt=0"`
}

type RegimeGuardConfig struct {
	Indicator string  `yaml:"indicator" json:"indicator" jsonschema:"description=Trend strength indicator key such as adx_14" validate:"required"`
	Absolute  float64 `yaml:"absolute" json:"absolute" jsonschema:"description=Minimum indicator value that counts as a regime shift"`
	Delta     float64 `yaml:"delta" json:"delta" jsonschema:"description=Minimum increase since entry"`
}

type StrategyConfig struct {
	Enabled          bool               `yaml:"enabled" json:"enabled"`
	EntryGroup       string             `yaml:"entry_group" json:"entry_group" jsonschema:"enum=immediate,enum=confirm" validate:"required,oneof=immediate confirm"`
	StopATRMult      float64            `yaml:"stop_atr_mult" json:"stop_atr_mult" validate:"gt=0"`
	TargetATRMult    float64            `yaml:"target_atr_mult" json:"target_atr_mult" validate:"gt=0"`
	MaxHoldDays      int                `yaml:"max_hold_days" json:"max_hold_days" validate:"gte=1"`
	AllocationWeight float64            `yaml:"allocation_weight" json:"allocation_weight" jsonschema:"description=Fraction of equity per position" validate:"gt=0,lte=1"`
	Trailing         *TrailingConfig    `yaml:"trailing" json:"trailing,omitempty" validate:"omitempty"`
	Breakeven        *BreakevenConfig   `yaml:"breakeven" json:"breakeven,omitempty" validate:"omitempty"`
	RegimeGuard      *RegimeGuardConfig `yaml:"regime_guard" json:"regime_guard,omitempty" validate:"omitempty"`
	Params           map[string]float64 `yaml:"params" json:"params,omitempty" jsonschema:"description=Strategy specific parameters"`
}

type OrderConfig struct {
	MaxAttempts     int           `yaml:"max_attempts" json:"max_attempts" jsonschema:"default=3" validate:"gte=1"`
	InitialBackoff  time.Duration `yaml:"initial_backoff" json:"initial_backoff"`
	MaxBackoff      time.Duration `yaml:"max_backoff" json:"max_backoff"`
	FillTimeout     time.Duration `yaml:"fill_timeout" json:"fill_timeout"`
	PollInterval    time.Duration `yaml:"poll_interval" json:"poll_interval"`
	BreakerFailures uint32        `yaml:"breaker_failures" json:"breaker_failures" jsonschema:"description=Consecutive broker failures that open the circuit,default=5" validate:"gte=1"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown" json:"breaker_cooldown"`
}

type RiskConfig struct {
	MaxPositions       int     `yaml:"max_positions" json:"max_positions" jsonschema:"default=10" validate:"gte=1"`
	MaxRiskPerTradePct float64 `yaml:"max_risk_per_trade_pct" json:"max_risk_per_trade_pct" jsonschema:"description=Fraction of equity risked per trade,default=0.01" validate:"gt=0,lt=1"`
	MaxTotalRiskPct    float64 `yaml:"max_total_risk_pct" json:"max_total_risk_pct" jsonschema:"description=Fraction of equity at risk across open positions,default=0.06" validate:"gt=0,lt=1"`
}

type PolygonConfig struct {
	APIKey string `yaml:"api_key" json:"api_key" jsonschema:"title=API Key,description=Polygon.io API key (or POLYGON_API_KEY)"`
}

type BinanceConfig struct {
	APIKey    string `yaml:"api_key" json:"api_key" jsonschema:"title=API Key,description=Binance API key (or BINANCE_API_KEY)"`
	SecretKey string `yaml:"secret_key" json:"secret_key" jsonschema:"title=Secret Key,description=Binance API secret key (or BINANCE_SECRET_KEY)"`
	BaseURL   string `yaml:"base_url" json:"base_url" jsonschema:"title=Base URL,description=Override the REST endpoint"`
	Testnet   bool   `yaml:"testnet" json:"testnet"`
	// QuoteAsset is appended to base assets when mapping balances to symbols.
	QuoteAsset string `yaml:"quote_asset" json:"quote_asset" jsonschema:"default=USDT"`
}

type PaperConfig struct {
	StartingCash float64 `yaml:"starting_cash" json:"starting_cash" jsonschema:"default=100000" validate:"gte=0"`
	SlippagePct  float64 `yaml:"slippage_pct" json:"slippage_pct" validate:"gte=0"`
	// DataPath is a parquet or csv file of daily bars used as the paper market data feed.
	DataPath     string        `yaml:"data_path" json:"data_path" jsonschema:"description=Parquet or CSV dataset of daily bars for paper market data"`
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
	// StateFile persists the paper account between runs. Defaults to {data_dir}/paper_account.json.
	StateFile string `yaml:"state_file" json:"state_file"`
}

type BrokerConfig struct {
	MarketData string        `yaml:"market_data" json:"market_data" jsonschema:"enum=polygon,enum=binance,enum=paper,default=polygon" validate:"required,oneof=polygon binance paper"`
	Trading    string        `yaml:"trading" json:"trading" jsonschema:"enum=binance,enum=paper,default=paper" validate:"required,oneof=binance paper"`
	Polygon    PolygonConfig `yaml:"polygon" json:"polygon"`
	Binance    BinanceConfig `yaml:"binance" json:"binance"`
	Paper      PaperConfig   `yaml:"paper" json:"paper"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir" json:"data_dir" jsonschema:"description=Root directory for artifacts,default=./data" validate:"required"`
}

type ServerConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr" jsonschema:"default=:9090" validate:"required_if=Enabled true"`
}

type LogConfig struct {
	Level       string `yaml:"level" json:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,default=info" validate:"omitempty,oneof=debug info warn error"`
	Development bool   `yaml:"development" json:"development"`
}

// Default returns a configuration with every optional field filled in.
// Load decodes the user's file on top of it.
func Default() Config {
	return Config{
		Venue: VenueConfig{
			Timezone:    "America/New_York",
			MarketOpen:  "09:30",
			MarketClose: "16:00",
			Holidays:    nil,
		},
		Schedule: ScheduleConfig{
			NightlyScan:    "20:00",
			Premarket:      "09:15",
			MonitorStart:   "09:25",
			EntryImmediate: "09:31",
			EntryConfirm:   "10:00",
			EndOfDay:       "16:10",
			Retry: RetryConfig{
				MaxAttempts:     3,
				InitialInterval: 30 * time.Second,
				MaxInterval:     5 * time.Minute,
			},
		},
		Universe: UniverseConfig{
			Symbols:   nil,
			Groups:    nil,
			Benchmark: "SPY",
		},
		Scan: ScanConfig{
			HistoryDays:       300,
			MinHistory:        60,
			BatchSize:         50,
			RequestsPerSecond: 5,
			Burst:             1,
			Workers:           4,
			MaxAttempts:       3,
			RetryInterval:     time.Minute,
		},
		Ranking: RankingConfig{
			TopN:        10,
			MaxPerGroup: 2,
			Weights: RankingWeights{
				Strength:   0.5,
				Volatility: 0.2,
				Regime:     0.3,
				Volume:     0,
			},
			RegimeCompatibility: nil,
			DefaultRegimeWeight: 0.5,
		},
		GapFilter: GapFilterConfig{ThresholdPct: 3},
		Entry:     EntryConfig{WindowClose: "10:30"},
		Exit: ExitConfig{
			EmergencyLossPct: 0.07,
			PersistInterval:  30 * time.Second,
			ReconnectMax:     time.Minute,
			RetryCooldown:    time.Minute,
		},
		Strategies: nil,
		Orders: OrderConfig{
			MaxAttempts:     3,
			InitialBackoff:  500 * time.Millisecond,
			MaxBackoff:      5 * time.Second,
			FillTimeout:     30 * time.Second,
			PollInterval:    time.Second,
			BreakerFailures: 5,
			BreakerCooldown: time.Minute,
		},
		Risk: RiskConfig{
			MaxPositions:       10,
			MaxRiskPerTradePct: 0.01,
			MaxTotalRiskPct:    0.06,
		},
		Broker: BrokerConfig{
			MarketData: "polygon",
			Trading:    "paper",
			Polygon:    PolygonConfig{APIKey: ""},
			Binance:    BinanceConfig{APIKey: "", SecretKey: "", BaseURL: "", Testnet: false, QuoteAsset: "USDT"},
			Paper:      PaperConfig{StartingCash: 100000, SlippagePct: 0, DataPath: "", PollInterval: 5 * time.Second, StateFile: ""},
		},
		Storage: StorageConfig{DataDir: "./data"},
		Server:  ServerConfig{Enabled: true, Addr: ":9090"},
		Log:     LogConfig{Level: "info", Development: false},
	}
}
