package mailer

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Servers []Server `yaml:"servers"`
	From    string   `yaml:"from"`
}

type Server struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Connections        int    `yaml:"connections"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
	AuthData           struct {
		Username string `yaml:"user"`
		Password string `yaml:"password"`
	} `yaml:"auth"`
	SendTimeout int `yaml:"sendTimeout"`
}

func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read smtp config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.UnmarshalStrict(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse smtp config %s: %w", path, err)
	}
	if len(cfg.Servers) == 0 {
		return Config{}, fmt.Errorf("smtp config %s: no servers defined", path)
	}
	if cfg.From == "" {
		return Config{}, fmt.Errorf("smtp config %s: from address is required", path)
	}

	return cfg, nil
}
