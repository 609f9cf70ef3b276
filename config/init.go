package config

import (
	"database/sql"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/url"
	"os"
	"path"

	log "github.com/sirupsen/logrus"
)

type SchedulerConfig struct {
	SampleIntervalSec  int     `json:"sample_interval"`
	HighWatermark      float64 `json:"high_watermark"`
	QueueCeiling       int     `json:"queue_ceiling"`
	MaxConcurrency     int     `json:"max_concurrency"`
	DrainTimeoutSec    int     `json:"drain_timeout"`
	TaskTimeoutSec     int     `json:"task_timeout"`
	ProgressBufferSize int     `json:"progress_buffer_size"`
}

type ModelServiceConfig struct {
	Url        string `json:"url"`
	Token      string `json:"token"`
	Streaming  bool   `json:"streaming"`
	TimeoutSec int    `json:"timeout"`
}

type HttpConfig struct {
	Proxy string `json:"proxy"`
}

type ObjectStorage struct {
	Provider     string `json:"provider"`
	Url          string `json:"url"`
	User         string `json:"user"`
	Password     string `json:"password"`
	Bucket       string `json:"bucket"`
	RequireProxy bool   `json:"require_proxy"`
}

type LogFormat struct {
	Json     bool   `json:"json"`
	JsonPath string `json:"path"`
}

var defaultSchedulerConfig = SchedulerConfig{
	SampleIntervalSec:  3,
	HighWatermark:      0.85,
	QueueCeiling:       100,
	MaxConcurrency:     10,
	DrainTimeoutSec:    30,
	TaskTimeoutSec:     60,
	ProgressBufferSize: 16,
}

type PromptbenchConfig struct {
	ProjectHome     string              `json:"project_home"`
	DBConf          *MySQLConfig        `json:"db"`
	SchedulerConfig *SchedulerConfig    `json:"scheduler"`
	ModelService    *ModelServiceConfig `json:"model_service"`
	HttpConfig      *HttpConfig         `json:"http_config"`
	ObjectStorage   *ObjectStorage      `json:"object_storage"`
	LogFormat       *LogFormat          `json:"log_format"`

	// below are configs generated from above values
	DevMode         bool
	Context         string
	HTTPClient      *http.Client
	HTTPProxyClient *http.Client
	DBC             *sql.DB
	DBEndpoint      string
}

func loadContext() string {
	return os.Getenv("env")
}

func (pc *PromptbenchConfig) makeHTTPClients() {
	pc.HTTPClient = &http.Client{}
	if pc.HttpConfig == nil || pc.HttpConfig.Proxy == "" {
		return
	}
	proxyUrl, err := url.Parse(pc.HttpConfig.Proxy)
	if err != nil {
		log.Fatal(err)
	}
	rt := &http.Transport{
		Proxy: http.ProxyURL(proxyUrl),
	}
	pc.HTTPProxyClient = &http.Client{Transport: rt}
}

func applyJsonLogging() {
	log.SetFormatter(&log.JSONFormatter{})
	err := os.MkdirAll(SC.LogFormat.JsonPath, os.ModePerm)
	if err != nil {
		log.Fatal(err)
	}
	file, err := os.OpenFile(path.Join(SC.LogFormat.JsonPath, "promptbench.json"),
		os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to log to file. %v", err)
	}
	log.SetOutput(file)
}

func setupLogging() {
	log.SetOutput(os.Stdout)
	log.SetReportCaller(true)
	if SC.LogFormat != nil && SC.LogFormat.Json {
		applyJsonLogging()
	}
}

func loadConfig() *PromptbenchConfig {
	pc := new(PromptbenchConfig)
	f, err := os.Open("/config.json")
	if err != nil {
		// tests and dev tooling run without a config file
		log.Warn("Cannot find config file, using defaults")
		pc.SchedulerConfig = &defaultSchedulerConfig
		pc.Context = loadContext()
		pc.DevMode = true
		pc.makeHTTPClients()
		return pc
	}
	raw, err := ioutil.ReadAll(f)
	if err != nil {
		log.Fatalf("Cannot read json file %v", err)
	}
	if err := json.Unmarshal(raw, pc); err != nil {
		log.Fatalf("Cannot unmarshal json %v", err)
	}
	pc.Context = loadContext()
	pc.DevMode = pc.Context == "local"
	pc.makeHTTPClients()
	if pc.SchedulerConfig == nil {
		pc.SchedulerConfig = &defaultSchedulerConfig
	}
	applySchedulerDefaults(pc.SchedulerConfig)
	return pc
}

func applySchedulerDefaults(sc *SchedulerConfig) {
	if sc.SampleIntervalSec == 0 {
		sc.SampleIntervalSec = defaultSchedulerConfig.SampleIntervalSec
	}
	if sc.HighWatermark == 0 {
		sc.HighWatermark = defaultSchedulerConfig.HighWatermark
	}
	if sc.QueueCeiling == 0 {
		sc.QueueCeiling = defaultSchedulerConfig.QueueCeiling
	}
	if sc.MaxConcurrency == 0 {
		sc.MaxConcurrency = defaultSchedulerConfig.MaxConcurrency
	}
	if sc.DrainTimeoutSec == 0 {
		sc.DrainTimeoutSec = defaultSchedulerConfig.DrainTimeoutSec
	}
	if sc.TaskTimeoutSec == 0 {
		sc.TaskTimeoutSec = defaultSchedulerConfig.TaskTimeoutSec
	}
	if sc.ProgressBufferSize == 0 {
		sc.ProgressBufferSize = defaultSchedulerConfig.ProgressBufferSize
	}
}

var SC *PromptbenchConfig

func init() {
	pc := loadConfig()
	SC = pc
	setupLogging()
	if pc.DBConf != nil {
		pc.DBC = createMySQLClient(pc.DBConf)
		pc.DBEndpoint = pc.DBConf.Endpoint
	}
}
