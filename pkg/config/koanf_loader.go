package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/consul"
	"github.com/knadh/koanf/providers/etcd"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigType identifies a configuration source.
type ConfigType string

const (
	ConfigTypeFile      ConfigType = "file"
	ConfigTypeConsul    ConfigType = "consul"
	ConfigTypeEtcd      ConfigType = "etcd"
	ConfigTypeZookeeper ConfigType = "zookeeper"
)

// LoaderOptions selects where configuration comes from and whether to watch
// for changes.
type LoaderOptions struct {
	Type ConfigType

	// Path is the file path or the KV key, depending on Type.
	Path string

	Endpoints []string

	Watch bool

	OnChange func(*Config) error
}

// Loader loads, expands, strict-validates and unmarshals configuration.
type Loader struct {
	koanf    *koanf.Koanf
	options  LoaderOptions
	parser   *yaml.YAML
	stopChan chan struct{}
}

func NewLoader(opts LoaderOptions) (*Loader, error) {
	if opts.Type == "" {
		opts.Type = ConfigTypeFile
	}

	if opts.Path == "" {
		return nil, fmt.Errorf("config path is required")
	}

	if len(opts.Endpoints) == 0 {
		switch opts.Type {
		case ConfigTypeConsul:
			opts.Endpoints = []string{"localhost:8500"}
		case ConfigTypeEtcd:
			opts.Endpoints = []string{"localhost:2379"}
		case ConfigTypeZookeeper:
			opts.Endpoints = []string{"localhost:2181"}
		}
	}

	return &Loader{
		koanf:    koanf.New("."),
		options:  opts,
		parser:   yaml.Parser(),
		stopChan: make(chan struct{}),
	}, nil
}

// Load reads the source once and, when Watch is set, starts the reactive
// watch goroutine.
func (l *Loader) Load() (*Config, error) {
	var provider koanf.Provider

	switch l.options.Type {
	case ConfigTypeFile:
		provider = file.Provider(l.options.Path)

	case ConfigTypeConsul:
		consulConfig := api.DefaultConfig()
		consulConfig.Address = l.options.Endpoints[0]

		provider = consul.Provider(consul.Config{
			Cfg: consulConfig,
			Key: l.options.Path,
		})

	case ConfigTypeEtcd:
		provider = etcd.Provider(etcd.Config{
			Endpoints:   l.options.Endpoints,
			DialTimeout: 5 * time.Second,
			Key:         l.options.Path,
		})

	case ConfigTypeZookeeper:
		zkProvider, err := NewZookeeperProvider(l.options.Endpoints, l.options.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create zookeeper provider: %w", err)
		}
		provider = zkProvider

	default:
		return nil, fmt.Errorf("unsupported config type: %s", l.options.Type)
	}

	if err := l.koanf.Load(provider, l.parserFor()); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", l.options.Type, err)
	}

	if err := l.expandEnvVarsInKoanf(); err != nil {
		return nil, fmt.Errorf("failed to expand environment variables: %w", err)
	}

	cfg, err := l.unmarshalAndProcess()
	if err != nil {
		return nil, err
	}

	if l.options.Watch {
		go l.watch(provider)
	}

	return cfg, nil
}

// parserFor returns the YAML parser for byte-oriented providers; KV
// providers already deliver parsed maps.
func (l *Loader) parserFor() koanf.Parser {
	if l.options.Type == ConfigTypeFile || l.options.Type == ConfigTypeZookeeper {
		return l.parser
	}
	return nil
}

// Watcher is the optional reload interface koanf providers implement.
type Watcher interface {
	Watch(cb func(event interface{}, err error)) error
}

func (l *Loader) watch(provider koanf.Provider) {
	watcher, ok := provider.(Watcher)
	if !ok {
		slog.Warn("config provider does not support watching", "type", l.options.Type)
		return
	}

	slog.Info("config watcher started", "type", l.options.Type)

	err := watcher.Watch(func(event interface{}, err error) {
		select {
		case <-l.stopChan:
			slog.Info("config watcher stopped", "type", l.options.Type)
			return
		default:
		}

		if err != nil {
			slog.Warn("config watch error", "error", err)
			return
		}

		if err := l.koanf.Load(provider, l.parserFor()); err != nil {
			slog.Warn("failed to reload config", "error", err)
			return
		}

		if err := l.expandEnvVarsInKoanf(); err != nil {
			slog.Warn("failed to expand env vars in reloaded config", "error", err)
			return
		}

		newCfg, err := l.unmarshalAndProcess()
		if err != nil {
			slog.Warn("reloaded config processing failed", "error", err)
			return
		}

		if l.options.OnChange == nil {
			slog.Warn("config change detected but no OnChange callback is set")
			return
		}
		if err := l.options.OnChange(newCfg); err != nil {
			slog.Warn("config change callback failed", "error", err)
		} else {
			slog.Info("configuration reloaded", "type", l.options.Type)
		}
	})

	if err != nil {
		slog.Warn("config watch stopped with error", "error", err)
	}
}

func (l *Loader) unmarshalAndProcess() (*Config, error) {
	// Strict validation first: typos and unknown fields fail before any
	// defaults can paper over them.
	strictResult, err := ValidateConfigStructure(l.koanf)
	if err != nil {
		return nil, fmt.Errorf("strict validation check failed: %w", err)
	}

	if !strictResult.Valid() {
		return nil, fmt.Errorf("configuration has structural errors:\n%s", strictResult.FormatErrors())
	}

	cfg := &Config{}
	if err := l.koanf.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		Tag: "yaml",
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	processedCfg, err := Process(cfg)
	if err != nil {
		return nil, fmt.Errorf("config processing failed: %w", err)
	}

	return processedCfg, nil
}

func (l *Loader) expandEnvVarsInKoanf() error {
	rawMap := l.koanf.Raw()

	expandedMap := ExpandEnvVarsInData(rawMap)

	expandedMapData, ok := expandedMap.(map[string]interface{})
	if !ok {
		return fmt.Errorf("unexpected type after env var expansion")
	}

	newKoanf := koanf.New(".")
	if err := newKoanf.Load(confmap.Provider(expandedMapData, "."), nil); err != nil {
		return fmt.Errorf("failed to load expanded config: %w", err)
	}

	l.koanf = newKoanf

	return nil
}

// Stop ends the watch goroutine.
func (l *Loader) Stop() {
	close(l.stopChan)
}

// SetOnChange installs the reload callback.
func (l *Loader) SetOnChange(callback func(*Config) error) {
	l.options.OnChange = callback
}

// LoadConfig is the one-shot convenience entry point.
func LoadConfig(opts LoaderOptions) (*Config, error) {
	cfg, _, err := LoadConfigWithLoader(opts)
	return cfg, err
}

// LoadConfigWithLoader returns the loader too, for callers that watch.
func LoadConfigWithLoader(opts LoaderOptions) (*Config, *Loader, error) {
	loader, err := NewLoader(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create loader: %w", err)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, loader, nil
}

// ParseConfigType parses a CLI-supplied source type.
func ParseConfigType(s string) (ConfigType, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	switch s {
	case "file":
		return ConfigTypeFile, nil
	case "consul":
		return ConfigTypeConsul, nil
	case "etcd":
		return ConfigTypeEtcd, nil
	case "zookeeper", "zk":
		return ConfigTypeZookeeper, nil
	default:
		return "", fmt.Errorf("invalid config type: %s (valid types: file, consul, etcd, zookeeper)", s)
	}
}
