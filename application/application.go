// Package application 负责命令行工具的配置加载与日志初始化。
package application

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"

	zlog "github.com/lk2023060901/dualser/pkg/log"
	"github.com/lk2023060901/dualser/pkg/util/merr"
	zviper "github.com/lk2023060901/dualser/pkg/util/viper"
)

const (
	// EnvPrefix 为环境变量前缀，例如 DUALSER_LOG_LEVEL、DUALSER_SERIALIZER_VERSION。
	EnvPrefix = "DUALSER"
	// ConfigPathEnv 指定配置文件路径的环境变量。
	ConfigPathEnv = "DUALSER_CONFIG_FILE_PATH"
	// DefaultConfigPath 为默认配置文件路径，文件不存在时忽略。
	DefaultConfigPath = "./dualser.yaml"
)

// SerializerConfig 为编解码相关配置。
type SerializerConfig struct {
	// Version 为写入与读取时使用的格式版本号。
	Version int `mapstructure:"version"`
	// Capacity 为单条记录的编码暂存区大小，单位字节。
	Capacity int `mapstructure:"capacity"`
	// Layout 为记录的字段布局，例如 "u16,str,bool"。
	Layout string `mapstructure:"layout"`
	// Format 为值交换格式：json、cbor、msgpack 或 proto。
	Format string `mapstructure:"format"`
	// Framed 为 true 时二进制记录使用 4 字节长度前缀分帧，否则每行一条十六进制记录。
	Framed bool `mapstructure:"framed"`
	// MaxFrameSize 为单帧最大负载，单位字节。
	MaxFrameSize uint32 `mapstructure:"max-frame-size"`
	// Checked 为 true 时每个字段附带类型标记。
	Checked bool `mapstructure:"checked"`
	// Workers 为批量转码的协程数，非正时使用 GOMAXPROCS。
	Workers int `mapstructure:"workers"`
	// BatchSize 为单批次转码的记录数。
	BatchSize int `mapstructure:"batch-size"`
}

// Config 为完整配置。
type Config struct {
	Log        zlog.Config      `mapstructure:"log"`
	Serializer SerializerConfig `mapstructure:"serializer"`
}

var defaults = map[string]any{
	"log.level":                 "warn",
	"log.format":                "text",
	"log.stdout":                false,
	"log.stderr":                true,
	"log.file.rootpath":         "",
	"log.file.filename":         "",
	"serializer.version":        0,
	"serializer.capacity":       64 << 10,
	"serializer.layout":         "",
	"serializer.format":         "json",
	"serializer.framed":         false,
	"serializer.max-frame-size": 16 << 20,
	"serializer.checked":        false,
	"serializer.workers":        0,
	"serializer.batch-size":     256,
}

// Application 持有配置以及按名称创建的模块 Logger。
type Application struct {
	cfg     *zviper.Config
	conf    Config
	loggers map[string]*zlog.MLogger
}

func New() *Application {
	return &Application{}
}

// RegisterFlags 在 fs 上注册通用参数，参数值经 Init 绑定到对应配置项。
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "配置文件路径（yaml/json）")
	fs.String("log-level", "warn", "日志级别")
	fs.String("layout", "", "字段布局，例如 u16,str,bool")
	fs.Int("version", 0, "格式版本号")
	fs.String("format", "json", "值交换格式：json|cbor|msgpack|proto")
	fs.Bool("framed", false, "二进制记录使用 4 字节长度前缀分帧")
	fs.Bool("checked", false, "每个字段附带类型标记")
	fs.Int("workers", 0, "转码协程数，0 表示 GOMAXPROCS")
	fs.Int("capacity", 64<<10, "单条记录编码暂存区大小")
	fs.Uint32("max-frame-size", 16<<20, "单帧最大负载")
	fs.Int("batch-size", 256, "单批次记录数")
}

// flagKeys 为参数名到配置项的映射。
var flagKeys = map[string]string{
	"log-level":      "log.level",
	"layout":         "serializer.layout",
	"version":        "serializer.version",
	"format":         "serializer.format",
	"framed":         "serializer.framed",
	"checked":        "serializer.checked",
	"workers":        "serializer.workers",
	"capacity":       "serializer.capacity",
	"max-frame-size": "serializer.max-frame-size",
	"batch-size":     "serializer.batch-size",
}

// Init 加载配置并初始化日志。fs 为已解析的参数集合，可以为 nil。
//
// 配置文件路径优先级：
//  1. 默认：./dualser.yaml（不存在时忽略）
//  2. 环境变量：DUALSER_CONFIG_FILE_PATH
//  3. 命令行：--config <path>
//
// 配置项取值优先级：显式设置的参数 > 环境变量 DUALSER_* > 配置文件 > 默认值。
func (a *Application) Init(fs *pflag.FlagSet) error {
	var configFlag string
	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Changed {
			configFlag = f.Value.String()
			if configFlag == "" {
				return merr.WrapErrParameterInvalidMsg("empty value for --config")
			}
		}
	}

	cfg, err := a.loadConfig(configFlag)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := cfg.BindFlag(key, f); err != nil {
					return errors.Wrapf(err, "bind flag %q", name)
				}
			}
		}
	}

	if err := cfg.Unmarshal(&a.conf); err != nil {
		return errors.Wrap(err, "unmarshal config")
	}
	return a.initLogging()
}

// Config 返回解析后的配置。
func (a *Application) Config() *Config {
	return &a.conf
}

// Raw 返回底层配置对象。
func (a *Application) Raw() *zviper.Config {
	return a.cfg
}

// Logger 返回配置中 logging 段定义的模块 Logger，名称未知时退回全局 Logger。
func (a *Application) Logger(name string) *zlog.MLogger {
	if lg, ok := a.loggers[name]; ok && lg != nil {
		return lg
	}
	return zlog.With(zlog.FieldModule(name))
}

func (a *Application) loadConfig(configFlag string) (*zviper.Config, error) {
	configPath, explicit := resolveConfigPath(configFlag)

	cfg := zviper.New(EnvPrefix)
	cfg.SetDefaults(defaults)

	if !explicit {
		if _, err := os.Stat(configPath); err != nil {
			return cfg, nil
		}
	}
	if err := cfg.LoadFile(configPath); err != nil {
		return nil, errors.Wrapf(err, "failed to load config file %q", configPath)
	}
	return cfg, nil
}

func resolveConfigPath(configFlag string) (string, bool) {
	if configFlag != "" {
		return configFlag, true
	}
	if envPath := strings.TrimSpace(os.Getenv(ConfigPathEnv)); envPath != "" {
		return envPath, true
	}
	return DefaultConfigPath, false
}

// initLogging 初始化全局 Logger 以及 logging 段中的模块 Logger。
//
// 示例：
//
//	logging:
//	  transcode:
//	    level: debug
//	    stderr: true
//	    file:
//	      rootpath: ./logs
//	      filename: transcode.log
func (a *Application) initLogging() error {
	logger, props, err := zlog.InitLogger(&a.conf.Log)
	if err != nil {
		return errors.Wrap(err, "init global logger")
	}
	zlog.ReplaceGlobals(logger, props)

	raw := make(map[string]zlog.Config)
	if err := a.cfg.UnmarshalKey("logging", &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	a.loggers = make(map[string]*zlog.MLogger, len(raw))
	for name, lc := range raw {
		cfgCopy := lc
		if cfgCopy.Level == "" {
			cfgCopy.Level = a.conf.Log.Level
		}
		logger, _, err := zlog.InitLogger(&cfgCopy)
		if err != nil {
			return errors.Wrapf(err, "init module logger %q", name)
		}
		a.loggers[name] = &zlog.MLogger{Logger: logger.With(zlog.FieldModule(name))}
	}
	return nil
}
