package config

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
)

type Config struct {
	Bucket     string        `yaml:"bucket"`
	App        App           `yaml:"app"`
	DB         *sql.DB       `yaml:"db"`
	Queue      *RabbitMQ     `yaml:"rabbitmq"`
	Storage    *minio.Client `yaml:"storage"`
	Server     Server        `yaml:"server"`
	Pipeline   Pipeline      `yaml:"pipeline"`
	Speech     Speech        `yaml:"speech"`
	Summarizer Summarizer    `yaml:"summarizer"`
	Auth       Auth          `yaml:"auth"`
}

type App struct {
	Environment string `yaml:"environment"`
	Host        string `yaml:"host"`
	Protocol    string `yaml:"protocol"`
}

type Server struct {
	HttpPort string `yaml:"http_port"`
	Workers  int    `yaml:"workers"`
}

type RabbitMQ struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	User string `json:"user"`
	Pass string `json:"pass"`
	Kind string `json:"kind"`
}

type Pipeline struct {
	Version            string        `yaml:"version"`
	WorkDir            string        `yaml:"work_dir"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	TranscribeDeadline time.Duration `yaml:"transcribe_deadline"`
	RetryBase          time.Duration `yaml:"retry_base"`
	MaxAttempts        int           `yaml:"max_attempts"`
}

type Speech struct {
	// UseMock swaps in the in-memory recognizer for local development.
	UseMock         bool   `yaml:"use_mock"`
	LanguageCode    string `yaml:"language_code"`
	MaxSpeakers     int    `yaml:"max_speakers"`
	SampleRateHertz int    `yaml:"sample_rate_hertz"`
	Model           string `yaml:"model"`
	CredentialsFile string `yaml:"credentials_file"`
}

type Summarizer struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

type Auth struct {
	TokenSecret     string        `yaml:"token_secret"`
	STSEndpoint     string        `yaml:"sts_endpoint"`
	SessionDuration time.Duration `yaml:"session_duration"`
}

func Load(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", viper.GetString("postgresql_host"))
	if err != nil {
		return nil, err
	}

	rabbitmq := &RabbitMQ{
		Host: viper.GetString("rabbitmq_host"),
		Port: viper.GetInt("rabbitmq_port"),
		User: viper.GetString("rabbitmq_user"),
		Pass: viper.GetString("rabbitmq_pass"),
		Kind: viper.GetString("rabbitmq_kind"),
	}

	minioClient, err := minio.New(viper.GetString("minio.url"), &minio.Options{
		Creds:  credentials.NewStaticV4(viper.GetString("minio.access_id"), viper.GetString("minio.secret_access_key"), ""),
		Secure: viper.GetBool("minio.secure"),
	})
	if err != nil {
		return nil, err
	}

	return &Config{
		Bucket: viper.GetString("minio.bucket"),
		App: App{
			Environment: viper.GetString("app.environment"),
			Host:        viper.GetString("app.host"),
			Protocol:    viper.GetString("app.protocol"),
		},
		Server: Server{
			HttpPort: viper.GetString("server.port"),
			Workers:  viper.GetInt("server.workers"),
		},
		Pipeline: Pipeline{
			Version:            viper.GetString("pipeline.version"),
			WorkDir:            viper.GetString("pipeline.work_dir"),
			PollInterval:       viper.GetDuration("pipeline.poll_interval"),
			TranscribeDeadline: viper.GetDuration("pipeline.transcribe_deadline"),
			RetryBase:          viper.GetDuration("pipeline.retry_base"),
			MaxAttempts:        viper.GetInt("pipeline.max_attempts"),
		},
		Speech: Speech{
			UseMock:         viper.GetBool("speech.use_mock"),
			LanguageCode:    viper.GetString("speech.language_code"),
			MaxSpeakers:     viper.GetInt("speech.max_speakers"),
			SampleRateHertz: viper.GetInt("speech.sample_rate_hertz"),
			Model:           viper.GetString("speech.model"),
			CredentialsFile: viper.GetString("speech.credentials_file"),
		},
		Summarizer: Summarizer{
			BaseURL:   viper.GetString("summarizer.base_url"),
			APIKey:    viper.GetString("summarizer.api_key"),
			Model:     viper.GetString("summarizer.model"),
			MaxTokens: viper.GetInt("summarizer.max_tokens"),
		},
		Auth: Auth{
			TokenSecret:     viper.GetString("auth.token_secret"),
			STSEndpoint:     viper.GetString("auth.sts_endpoint"),
			SessionDuration: viper.GetDuration("auth.session_duration"),
		},
		DB:      db,
		Queue:   rabbitmq,
		Storage: minioClient,
	}, nil
}
