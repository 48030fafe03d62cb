package viper

import (
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	spfviper "github.com/spf13/viper"
)

// Config 封装 spf13/viper 实例，对外提供精简的 YAML/JSON 配置加载接口。
//
// 取值优先级由高到低：Set 设置的覆盖值、环境变量、配置文件、SetDefault 设置的默认值。
type Config struct {
	v *spfviper.Viper
}

// New 创建一个空的 Config。
// envPrefix 非空时启用环境变量绑定，例如前缀 DUALSER 下 key "log.level"
// 对应环境变量 DUALSER_LOG_LEVEL（"." 与 "-" 均替换为 "_"）。
func New(envPrefix string) *Config {
	v := spfviper.New()
	if envPrefix != "" {
		v.SetEnvPrefix(envPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		v.AutomaticEnv()
	}
	return &Config{
		v: v,
	}
}

func (c *Config) viper() *spfviper.Viper {
	if c.v == nil {
		c.v = spfviper.New()
	}
	return c.v
}

// LoadFile 将 YAML 或 JSON 配置文件加载到 Config 中。
// 文件类型通过扩展名（.yaml/.yml/.json）推断。
func (c *Config) LoadFile(path string) error {
	v := c.viper()
	v.SetConfigFile(path)

	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		v.SetConfigType("yaml")
	case ".json":
		v.SetConfigType("json")
	default:
		// 让 viper 自行推断类型，或在读取时返回清晰的错误信息。
	}

	return v.ReadInConfig()
}

// ConfigFile 返回已加载的配置文件路径，未加载时为空。
func (c *Config) ConfigFile() string {
	if c.v == nil {
		return ""
	}
	return c.v.ConfigFileUsed()
}

// SetDefault 设置 key 的默认值。
// 只有设置过默认值（或出现在配置文件中）的 key 才会在 Unmarshal 时读取环境变量。
func (c *Config) SetDefault(key string, value any) {
	c.viper().SetDefault(key, value)
}

// SetDefaults 批量设置默认值。
func (c *Config) SetDefaults(defaults map[string]any) {
	for key, value := range defaults {
		c.SetDefault(key, value)
	}
}

// Set 设置覆盖值，优先级高于配置文件与环境变量。
func (c *Config) Set(key string, value any) {
	c.viper().Set(key, value)
}

// BindFlag 将命令行参数绑定到 key，参数被显式设置时优先级高于环境变量与配置文件，
// 未设置时参数默认值只在其他来源都缺失时生效。
func (c *Config) BindFlag(key string, flag *pflag.Flag) error {
	return c.viper().BindPFlag(key, flag)
}

// IsSet 判断 key 是否在任一来源中被设置。
func (c *Config) IsSet(key string) bool {
	return c.viper().IsSet(key)
}

func (c *Config) GetString(key string) string {
	return c.viper().GetString(key)
}

func (c *Config) GetInt(key string) int {
	return c.viper().GetInt(key)
}

func (c *Config) GetBool(key string) bool {
	return c.viper().GetBool(key)
}

// Unmarshal 将完整配置反序列化到 dst。
// dst 应为结构体或 map 的指针。
func (c *Config) Unmarshal(dst any) error {
	return c.viper().Unmarshal(dst)
}

// UnmarshalKey 将指定 key 对应的子配置反序列化到 dst。
// 注意 UnmarshalKey 不会合并子 key 上的环境变量，需要环境变量生效时使用 Unmarshal。
// dst 应为结构体或 map 的指针。
func (c *Config) UnmarshalKey(key string, dst any) error {
	return c.viper().UnmarshalKey(key, dst)
}
