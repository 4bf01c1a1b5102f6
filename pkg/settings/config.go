package settings

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// consts
const (
	Name = "Parlor"
)

// Config ...
type Config struct {
	Name    string `ignored:"true"`
	Version string `ignored:"true"`
	Develop bool   `envconfig:"DEVELOP"`

	HTTPListen string `envconfig:"HTTP_LISTEN" default:":5001"`
	RedisURI   string `envconfig:"redis_uri" default:"redis://localhost:6379/1"`
	PresetFile string `envconfig:"preset_file"` // agents 描述文件 (yaml)

	UserName          string `envconfig:"User_Name" default:"You"`
	CharDelay         int64  `envconfig:"Char_Delay" default:"5"`           // 打字效果: 每个字符的毫秒数
	CodeAdvancesClock bool   `envconfig:"Code_Advances_Clock" default:"false"` // 代码块是否计入打字时间

	HistoryLifetime  time.Duration `envconfig:"History_Lifetime" default:"24h"`
	HistoryMaxLength int64         `envconfig:"History_MaxLength" default:"500"`
	PartialLifetime  time.Duration `envconfig:"Partial_Lifetime" default:"10m"`

	InvokeTimeout time.Duration `envconfig:"Invoke_Timeout" default:"30s"`
	InvokeRate    string        `envconfig:"Invoke_Rate" default:"30-M"` // ulule/limiter 格式
}

var (
	// Current 当前配置
	Current = new(Config)
)

func init() {
	if err := envconfig.Process(Name, Current); err != nil {
		log.Printf("envconfig process fail: %s", err)
	}

	Current.Name = Name
	Current.Version = version
}

// Usage 打印配置帮助
func Usage() error {
	log.Printf("ver: %s", Current.Version)
	return envconfig.Usage(Current.Name, Current)
}

// InDevelop ...
func InDevelop() bool {
	return Current.Develop
}
