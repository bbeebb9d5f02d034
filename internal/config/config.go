package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	TelegramAPIToken string `env:"TOKEN,required"`
	Language         string `env:"LANG,default=fr"`
	LogLevel         int    `env:"LOG_LEVEL,default=4"`
	DotPath          string `env:"DOT_PATH,default=~/.damocles"`
	GatePath         string `env:"GATE_CONFIG,default=gate.yml"`
	HealthListenAddr string `env:"HEALTH_ADDR,default=:8080"`

	// Answer validation policy: "exact" demands the configured correct answer
	// and consumes the try budget, "any" accepts the first press.
	GatePolicy string `env:"GATE_POLICY,default=exact"`

	ChallengeTimeout time.Duration `env:"CHALLENGE_TIMEOUT,default=2m"`
	FloodCeiling     int           `env:"FLOOD_CEILING,default=20"`
	DispatchSpacing  time.Duration `env:"DISPATCH_SPACING,default=3s"`
}

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

func Load() (Config, error) {
	once.Do(func() {
		cfg := &Config{}
		envcfg := envconfig.Config{
			Lookuper: envconfig.PrefixLookuper("DMC_", envconfig.OsLookuper()),
			Target:   cfg,
		}
		if err := envconfig.ProcessWith(context.Background(), &envcfg); err != nil {
			globalErr = fmt.Errorf("process env config: %w", err)
			return
		}
		home, err := os.UserHomeDir()
		if err != nil {
			globalErr = fmt.Errorf("get user home directory: %w", err)
			return
		}
		cfg.DotPath = strings.Replace(cfg.DotPath, "~", home, 1)
		log.Traceln("loaded config")
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

func Get() Config {
	cfg, err := Load()
	if err != nil {
		log.WithField("error", err.Error()).Fatal("cant load config")
	}
	return cfg
}
