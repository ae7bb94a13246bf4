package config

import (
	"errors"
	"fmt"
	"marketnews/internal/domain"
	"marketnews/internal/source"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"
)

// Бэкенды хранилища.
const (
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Стратегии дедупликации.
const (
	// DedupAtomic - одна операция "вставить, если url нет".
	DedupAtomic = "atomic"
	// DedupCheck - отдельные проверка и вставка.
	DedupCheck = "check"
)

// ErrHelp возвращается Load, когда пользователь запросил справку.
var ErrHelp = errors.New("help requested")

// Config представляет основную конфигурацию сборщика.
// Собирается один раз при запуске и передается компонентам явно.
type Config struct {
	Store     StoreConfig
	NewsAPI   NewsAPIConfig
	Feeds     []string
	Logger    LoggerConfig
	Collector CollectorConfig
	Worker    WorkerConfig
	Server    ServerConfig
	// CheckOnly - только проверить конфигурацию и выйти.
	CheckOnly bool
	// Warnings - некритичные замечания Validate, которые стоит залогировать.
	Warnings []string
}

// StoreConfig содержит параметры хранилища market_news.
type StoreConfig struct {
	Backend     string
	SupabaseURL string
	SupabaseKey string
	DatabaseURL string
	SQLitePath  string
	Timeout     time.Duration
}

// NewsAPIConfig содержит ключ и адрес NewsAPI. Пустой ключ отключает источник.
type NewsAPIConfig struct {
	Key      string
	Endpoint string
}

// LoggerConfig содержит настройки системы логирования.
// Dir включает запись в файлы с ротацией; пустое значение - только stderr.
type LoggerConfig struct {
	Level     string
	Dir       string
	MaxSizeMB int
}

// CollectorConfig определяет поведение прогона.
type CollectorConfig struct {
	HTTPTimeout     time.Duration
	UserAgent       string
	DedupStrategy   string
	IsolateFailures bool
	RunTimeout      time.Duration
}

// WorkerConfig включает периодический режим, если задано cron-выражение.
type WorkerConfig struct {
	Schedule string
}

// ServerConfig - адрес HTTP API для периодического режима. Пустой адрес отключает API.
type ServerConfig struct {
	Address string
}

type options struct {
	SupabaseURL   string        `long:"supabase-url" env:"SUPABASE_URL" description:"Supabase project URL"`
	SupabaseKey   string        `long:"supabase-key" env:"SUPABASE_KEY" description:"Supabase API key"`
	NewsAPIKey    string        `long:"newsapi-key" env:"NEWSAPI_KEY" description:"NewsAPI key; NewsAPI is skipped when empty"`
	NewsAPIURL    string        `long:"newsapi-endpoint" env:"NEWSAPI_ENDPOINT" description:"NewsAPI top-headlines endpoint"`
	Backend       string        `long:"store" env:"STORE_BACKEND" choice:"supabase" choice:"postgres" choice:"sqlite" description:"Storage backend"`
	DatabaseURL   string        `long:"database-url" env:"DATABASE_URL" description:"PostgreSQL connection string for the postgres backend"`
	SQLitePath    string        `long:"sqlite-path" env:"SQLITE_PATH" description:"Database file for the sqlite backend"`
	StoreTimeout  time.Duration `long:"store-timeout" env:"STORE_TIMEOUT" description:"Timeout of one store call"`
	Feeds         []string      `long:"feed" env:"RSS_FEEDS" env-delim:"," description:"RSS/Atom feed URL (repeatable)"`
	FeedsFile     string        `long:"feeds-file" env:"FEEDS_FILE" description:"YAML file with a feeds list"`
	LogLevel      string        `long:"log-level" env:"LOG_LEVEL" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Log level"`
	LogDir        string        `long:"log-dir" env:"LOG_DIR" description:"Directory for rotated log files"`
	LogMaxSizeMB  int           `long:"log-max-size" env:"LOG_MAX_SIZE_MB" description:"Log file size before rotation, MB"`
	HTTPTimeout   time.Duration `long:"http-timeout" env:"HTTP_TIMEOUT" description:"Timeout of one feed or API request"`
	UserAgent     string        `long:"user-agent" env:"USER_AGENT" description:"User-Agent for outgoing requests"`
	Dedup         string        `long:"dedup" env:"DEDUP_STRATEGY" choice:"atomic" choice:"check" description:"Deduplication strategy"`
	Isolate       bool          `long:"isolate-failures" env:"ISOLATE_FAILURES" description:"Continue with the next feed or source after a fetch failure"`
	RunTimeout    time.Duration `long:"run-timeout" env:"RUN_TIMEOUT" description:"Upper bound of one collection pass"`
	Schedule      string        `long:"schedule" env:"SCHEDULE" description:"Cron expression; runs repeatedly instead of once"`
	ListenAddress string        `long:"listen" env:"LISTEN" description:"HTTP API address in scheduled mode, e.g. :8080"`
	CheckConfig   bool          `long:"check-config" description:"Validate configuration and exit"`
}

type feedsFile struct {
	Feeds []string `yaml:"feeds"`
}

// New создает новый экземпляр Config со значениями по умолчанию.
func New() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:    BackendSupabase,
			SQLitePath: "data/market_news.db",
			Timeout:    10 * time.Second,
		},
		NewsAPI: NewsAPIConfig{
			Endpoint: source.DefaultNewsAPIEndpoint,
		},
		Feeds: append([]string(nil), source.DefaultFeeds...),
		Logger: LoggerConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
		Collector: CollectorConfig{
			HTTPTimeout:   30 * time.Second,
			UserAgent:     "marketnews-collector/1.0",
			DedupStrategy: DedupAtomic,
			RunTimeout:    10 * time.Minute,
		},
	}
}

// Load читает конфигурацию из аргументов командной строки и переменных окружения.
// Флаг имеет приоритет над переменной, незаданные значения берутся из New.
// Список лент из FEEDS_FILE заменяет остальные.
func Load(args []string) (*Config, error) {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	parser.Name = "collector"
	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, ErrHelp
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	cfg := New()
	cfg.Store.Backend = orDefault(opts.Backend, cfg.Store.Backend)
	cfg.Store.SupabaseURL = strings.TrimSpace(opts.SupabaseURL)
	cfg.Store.SupabaseKey = strings.TrimSpace(opts.SupabaseKey)
	cfg.Store.DatabaseURL = strings.TrimSpace(opts.DatabaseURL)
	cfg.Store.SQLitePath = orDefault(opts.SQLitePath, cfg.Store.SQLitePath)
	cfg.Store.Timeout = orDefault(opts.StoreTimeout, cfg.Store.Timeout)
	cfg.NewsAPI.Key = strings.TrimSpace(opts.NewsAPIKey)
	cfg.NewsAPI.Endpoint = orDefault(opts.NewsAPIURL, cfg.NewsAPI.Endpoint)
	cfg.Logger.Level = orDefault(opts.LogLevel, cfg.Logger.Level)
	cfg.Logger.Dir = opts.LogDir
	cfg.Logger.MaxSizeMB = orDefault(opts.LogMaxSizeMB, cfg.Logger.MaxSizeMB)
	cfg.Collector.HTTPTimeout = orDefault(opts.HTTPTimeout, cfg.Collector.HTTPTimeout)
	cfg.Collector.UserAgent = orDefault(opts.UserAgent, cfg.Collector.UserAgent)
	cfg.Collector.DedupStrategy = orDefault(opts.Dedup, cfg.Collector.DedupStrategy)
	cfg.Collector.IsolateFailures = opts.Isolate
	cfg.Collector.RunTimeout = orDefault(opts.RunTimeout, cfg.Collector.RunTimeout)
	cfg.Worker.Schedule = strings.TrimSpace(opts.Schedule)
	cfg.Server.Address = opts.ListenAddress
	cfg.CheckOnly = opts.CheckConfig
	if feeds := cleanList(opts.Feeds); len(feeds) > 0 {
		cfg.Feeds = feeds
	}
	if opts.FeedsFile != "" {
		feeds, err := LoadFeeds(opts.FeedsFile)
		if err != nil {
			return nil, err
		}
		cfg.Feeds = feeds
	}
	return cfg, nil
}

// LoadFeeds читает список лент из YAML-файла вида `feeds: [url, ...]`.
func LoadFeeds(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feeds file %s: %w", path, err)
	}
	var ff feedsFile
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("failed to parse YAML from file %s: %w", path, err)
	}
	feeds := cleanList(ff.Feeds)
	if len(feeds) == 0 {
		return nil, &domain.ConfigurationError{Field: "FEEDS_FILE", Reason: "contains no feeds"}
	}
	return feeds, nil
}

// Validate проверяет обязательные параметры выбранного бэкенда.
// Возвращает *domain.ConfigurationError с описанием первой найденной проблемы.
// Шаблонный NEWSAPI_KEY не является ошибкой: ключ сбрасывается, и NewsAPI пропускается.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendSupabase:
		if err := required("SUPABASE_URL", c.Store.SupabaseURL); err != nil {
			return err
		}
		if u, err := url.ParseRequestURI(c.Store.SupabaseURL); err != nil || u.Host == "" {
			return &domain.ConfigurationError{Field: "SUPABASE_URL", Reason: "is not a valid URL"}
		}
		if err := required("SUPABASE_KEY", c.Store.SupabaseKey); err != nil {
			return err
		}
	case BackendPostgres:
		if err := required("DATABASE_URL", c.Store.DatabaseURL); err != nil {
			return err
		}
	case BackendSQLite:
		if err := required("SQLITE_PATH", c.Store.SQLitePath); err != nil {
			return err
		}
	default:
		return &domain.ConfigurationError{Field: "STORE_BACKEND", Reason: fmt.Sprintf("has unknown value %q", c.Store.Backend)}
	}
	if c.NewsAPI.Key != "" && isPlaceholder(c.NewsAPI.Key) {
		c.NewsAPI.Key = ""
		c.Warnings = append(c.Warnings, "NEWSAPI_KEY contains a template value, NewsAPI is disabled")
	}
	if len(c.Feeds) == 0 && c.NewsAPI.Key == "" {
		return &domain.ConfigurationError{Field: "RSS_FEEDS", Reason: "is empty and NEWSAPI_KEY is not set"}
	}
	for _, feed := range c.Feeds {
		if u, err := url.ParseRequestURI(feed); err != nil || u.Host == "" {
			return &domain.ConfigurationError{Field: "RSS_FEEDS", Reason: fmt.Sprintf("contains invalid url %q", feed)}
		}
	}
	if c.Collector.DedupStrategy != DedupAtomic && c.Collector.DedupStrategy != DedupCheck {
		return &domain.ConfigurationError{Field: "DEDUP_STRATEGY", Reason: fmt.Sprintf("has unknown value %q", c.Collector.DedupStrategy)}
	}
	if c.Server.Address != "" && c.Worker.Schedule == "" {
		return &domain.ConfigurationError{Field: "LISTEN", Reason: "requires SCHEDULE"}
	}
	return nil
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &domain.ConfigurationError{Field: field, Reason: "is not set"}
	}
	if isPlaceholder(value) {
		return &domain.ConfigurationError{Field: field, Reason: "contains a template value"}
	}
	return nil
}

// isPlaceholder распознает значения из шаблона окружения: your-supabase-key,
// https://your-project.supabase.co и подобные.
func isPlaceholder(value string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	return strings.HasPrefix(v, "your-") || strings.Contains(v, "://your-")
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func orDefault[T comparable](value, def T) T {
	var zero T
	if value == zero {
		return def
	}
	return value
}
