package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"github.com/a529987659852/openwbmqtt/src/openwb"
)

// ErrUnsupportedFormat is returned for files that are neither YAML nor INI
var ErrUnsupportedFormat = errors.New("unsupported config format")

// MQTTConfig holds optional broker settings, overridden by the environment
type MQTTConfig struct {
	Broker   string `yaml:"broker" ini:"broker"`
	Username string `yaml:"username" ini:"username"`
	Password string `yaml:"password" ini:"password"`
}

// DeviceConfig is one configured openWB device instance
type DeviceConfig struct {
	Root         string `yaml:"root" ini:"root"`
	Version      string `yaml:"version" ini:"version"`
	Type         string `yaml:"type" ini:"type"`
	ID           int    `yaml:"id" ini:"id"`
	ChargePoints int    `yaml:"chargepoints" ini:"chargepoints"`
}

// File represents the device-instance file
type File struct {
	MQTT    MQTTConfig     `yaml:"mqtt"`
	Devices []DeviceConfig `yaml:"devices"`
}

// Load reads a YAML (.yaml, .yml) or INI (.ini) device-instance file
func Load(logger *zap.Logger, path string) (*File, error) {
	logger.Debug("Loading device config", zap.String("path", path))

	var (
		file *File
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		file, err = loadYAML(path)
	case ".ini":
		file, err = loadINI(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("Device config loaded successfully",
		zap.String("path", path),
		zap.Int("devices", len(file.Devices)))
	return file, nil
}

func loadYAML(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read device config: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse device config: %w", err)
	}
	return &file, nil
}

const deviceSectionPrefix = "device."

func loadINI(path string) (*File, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read device config: %w", err)
	}

	var file File
	if cfg.HasSection("mqtt") {
		if err := cfg.Section("mqtt").MapTo(&file.MQTT); err != nil {
			return nil, fmt.Errorf("failed to parse mqtt section: %w", err)
		}
	}

	// Sections are kept in file order
	for _, section := range cfg.Sections() {
		if !strings.HasPrefix(section.Name(), deviceSectionPrefix) {
			continue
		}
		var dev DeviceConfig
		if err := section.MapTo(&dev); err != nil {
			return nil, fmt.Errorf("failed to parse section %s: %w", section.Name(), err)
		}
		file.Devices = append(file.Devices, dev)
	}
	return &file, nil
}

// Configs converts the file into openwb records; Build validates them
func (f *File) Configs() ([]openwb.Config, error) {
	out := make([]openwb.Config, 0, len(f.Devices))
	for i, d := range f.Devices {
		v, err := openwb.ParseVersion(d.Version)
		if err != nil {
			return nil, fmt.Errorf("device %d: %w", i+1, err)
		}
		out = append(out, openwb.Config{
			Root:         d.Root,
			Version:      v,
			Type:         openwb.DeviceType(d.Type),
			ID:           d.ID,
			ChargePoints: d.ChargePoints,
		})
	}
	return out, nil
}

// Roots returns the distinct configured root topics, defaulted and sorted
func (f *File) Roots() []string {
	seen := make(map[string]bool)
	var roots []string
	for _, d := range f.Devices {
		root := strings.TrimSuffix(strings.TrimSpace(d.Root), "/")
		if root == "" {
			root = openwb.DefaultRoot
		}
		if !seen[root] {
			seen[root] = true
			roots = append(roots, root)
		}
	}
	sort.Strings(roots)
	return roots
}
