package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	HttpServerPort uint16   `env:"HTTP_SERVER_PORT" envDefault:"9000" validate:"min=1000,max=65535"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS"  envDefault:"http://localhost:3000" envSeparator:","`
	LogFormat      string   `env:"LOG_FORMAT"       envDefault:"console" validate:"oneof=console json"`

	// TotalTime is the race length in seconds.
	TotalTime int `env:"TOTAL_TIME" envDefault:"600" validate:"min=1"`

	WsReadLimit  int64         `env:"WS_READ_LIMIT"  envDefault:"65536" validate:"min=512"`
	WsPingPeriod time.Duration `env:"WS_PING_PERIOD" envDefault:"30s"`
	WsPongWait   time.Duration `env:"WS_PONG_WAIT"   envDefault:"40s"   validate:"gtfield=WsPingPeriod"`

	QuestionsSource string `env:"QUESTIONS_SOURCE" envDefault:"file" validate:"oneof=file postgres"`
	QuestionsFile   string `env:"QUESTIONS_FILE"   envDefault:"questions.json"`

	JudgePython  string        `env:"JUDGE_PYTHON"  envDefault:"python3"`
	JudgeTimeout time.Duration `env:"JUDGE_TIMEOUT" envDefault:"10s"`

	RedisEnabled bool   `env:"REDIS_ENABLED" envDefault:"false"`
	RedisHost    string `env:"REDIS_HOST"    envDefault:"localhost"`
	RedisPort    uint16 `env:"REDIS_PORT"    envDefault:"6379" validate:"min=1000,max=65535"`

	PostgresEnabled  bool   `env:"POSTGRES_ENABLED"  envDefault:"false"`
	PostgresHost     string `env:"POSTGRES_HOST"     envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT"     envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"     envDefault:"coderace"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"coderace"`
	PostgresDb       string `env:"POSTGRES_DB"       envDefault:"coderace"`

	RoomSyncInterval time.Duration `env:"ROOM_SYNC_INTERVAL" envDefault:"10s"`
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	if err = env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	if err = validator.New().Struct(cfg); err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}
