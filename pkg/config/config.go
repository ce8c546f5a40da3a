// Package config provides a reusable viper-backed loader for peacash node
// configuration files and environment variables.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/pea-chain/peacashd/pkg/utils"
)

// Config is the unified configuration for a peacash node. It mirrors the
// structure of the YAML files under cmd/config.
type Config struct {
	Network struct {
		ID              string   `mapstructure:"id" json:"id"`
		ListenMultiaddr string   `mapstructure:"listen_multiaddr" json:"listen_multiaddr"`
		MaxPeers        int      `mapstructure:"max_peers" json:"max_peers"`
		DiscoveryTag    string   `mapstructure:"discovery_tag" json:"discovery_tag"`
		BootstrapPeers  []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
	} `mapstructure:"network" json:"network"`

	HTTP struct {
		Enabled bool   `mapstructure:"enabled" json:"enabled"`
		Addr    string `mapstructure:"addr" json:"addr"`
	} `mapstructure:"http" json:"http"`

	Consensus struct {
		GenesisTime          int64  `mapstructure:"genesis_time" json:"genesis_time"`
		TrustForkAfterBlocks uint32 `mapstructure:"trust_fork_after_blocks" json:"trust_fork_after_blocks"`
	} `mapstructure:"consensus" json:"consensus"`

	Storage struct {
		DBPath string `mapstructure:"db_path" json:"db_path"`
		Temp   bool   `mapstructure:"temp" json:"temp"`
	} `mapstructure:"storage" json:"storage"`

	Wallet struct {
		Path string `mapstructure:"path" json:"path"`
		Temp bool   `mapstructure:"temp" json:"temp"`
	} `mapstructure:"wallet" json:"wallet"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // lets matching environment variables override keys

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the PEACASH_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("PEACASH_ENV", ""))
}
