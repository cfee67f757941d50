// Copyright (C) 2026 Droidbay Labs
// License: AGPL-3.0-only

// Package config loads emusess settings from ~/.emusess/config.yaml with
// EMUSESS_* environment overrides. Everything has a documented default so a
// missing config file is not an error.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/droidbay/emusess/internal/emu"
)

// Config is the user-facing configuration surface.
type Config struct {
	DataDir     string        `mapstructure:"data_dir"`
	SDKRoot     string        `mapstructure:"sdk_root"`
	BootTimeout time.Duration `mapstructure:"boot_timeout"`
	Tools       Tools         `mapstructure:"tools"`
	Defaults    Defaults      `mapstructure:"defaults"`
}

// Tools overrides individual external binaries; empty values keep the
// SDK-derived paths.
type Tools struct {
	Emulator   string `mapstructure:"emulator"`
	ADB        string `mapstructure:"adb"`
	AvdManager string `mapstructure:"avdmanager"`
	SdkManager string `mapstructure:"sdkmanager"`
	Aapt       string `mapstructure:"aapt"`
	MkSDCard   string `mapstructure:"mksdcard"`
	QemuImg    string `mapstructure:"qemu_img"`
}

// Defaults seeds launch configuration for sessions that do not override it.
type Defaults struct {
	AVDName       string `mapstructure:"avd_name"`
	SystemImage   string `mapstructure:"system_image"`
	DeviceProfile string `mapstructure:"device_profile"`
	GPU           string `mapstructure:"gpu"`
	MemoryMB      int    `mapstructure:"memory_mb"`
	Cores         int    `mapstructure:"cores"`
	SDCardMB      int    `mapstructure:"sdcard_mb"`
}

// Load reads config.yaml if present and applies env overrides.
func Load() (*Config, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(home, ".emusess"))

	v.SetEnvPrefix("EMUSESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, home)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, home string) {
	launch := emu.DefaultConfig()

	v.SetDefault("data_dir", filepath.Join(home, ".local", "share", "emusess"))
	v.SetDefault("sdk_root", "")
	v.SetDefault("boot_timeout", emu.DefaultBootTimeout)

	v.SetDefault("defaults.avd_name", launch.AVDName)
	v.SetDefault("defaults.system_image", launch.SystemImage)
	v.SetDefault("defaults.device_profile", launch.DeviceProfile)
	v.SetDefault("defaults.gpu", launch.GPU)
	v.SetDefault("defaults.memory_mb", launch.MemoryMB)
	v.SetDefault("defaults.cores", launch.Cores)
	v.SetDefault("defaults.sdcard_mb", launch.SDCardMB)
}

// Env materializes an emu.Env: toolchain discovery first, then config
// overrides on top.
func (c *Config) Env() emu.Env {
	env := emu.Detect()
	if c.DataDir != "" {
		env.DataDir = c.DataDir
	}
	if c.SDKRoot != "" {
		env.SDKRoot = c.SDKRoot
		env.Emulator = filepath.Join(c.SDKRoot, "emulator", "emulator")
		env.ADB = filepath.Join(c.SDKRoot, "platform-tools", "adb")
		env.AvdManager = filepath.Join(c.SDKRoot, "cmdline-tools", "latest", "bin", "avdmanager")
		env.SdkManager = filepath.Join(c.SDKRoot, "cmdline-tools", "latest", "bin", "sdkmanager")
		env.MkSDCard = filepath.Join(c.SDKRoot, "emulator", "mksdcard")
	}
	override := func(dst *string, val string) {
		if val != "" {
			*dst = val
		}
	}
	override(&env.Emulator, c.Tools.Emulator)
	override(&env.ADB, c.Tools.ADB)
	override(&env.AvdManager, c.Tools.AvdManager)
	override(&env.SdkManager, c.Tools.SdkManager)
	override(&env.Aapt, c.Tools.Aapt)
	override(&env.MkSDCard, c.Tools.MkSDCard)
	override(&env.QemuImg, c.Tools.QemuImg)
	return env
}

// LaunchConfig materializes the default emu.Config with the configured
// defaults applied.
func (c *Config) LaunchConfig() emu.Config {
	launch := emu.DefaultConfig()
	if c.Defaults.AVDName != "" {
		launch.AVDName = c.Defaults.AVDName
	}
	if c.Defaults.SystemImage != "" {
		launch.SystemImage = c.Defaults.SystemImage
	}
	if c.Defaults.DeviceProfile != "" {
		launch.DeviceProfile = c.Defaults.DeviceProfile
	}
	if c.Defaults.GPU != "" {
		launch.GPU = c.Defaults.GPU
	}
	if c.Defaults.MemoryMB > 0 {
		launch.MemoryMB = c.Defaults.MemoryMB
	}
	if c.Defaults.Cores > 0 {
		launch.Cores = c.Defaults.Cores
	}
	if c.Defaults.SDCardMB > 0 {
		launch.SDCardMB = c.Defaults.SDCardMB
	}
	return launch
}
