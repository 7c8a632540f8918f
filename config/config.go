package config

import (
	"crypto/tls"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"
)

// Viper config file (populated from cmd)
var ViperConfigFile string = ""

// BuildInfo (populated from cmd)
var Build BuildInfo

type AConfig struct {
	// Version/build
	Build BuildInfo

	// From config.yaml
	ConfigFile

	// Command context
	Context context.Context

	// Afero VFS
	AppFs *Fs

	// Source of ConfigFile, kept for message bundles
	viper *viper.Viper
}

// Creates a new config with provided context override
func (orig AConfig) WithContext(ctx context.Context) *AConfig {
	var newCfg = orig
	newCfg.Context = ctx
	return &newCfg
}

type ConfigFile struct {
	// Campaign being sent
	CampaignID string

	// Campaign backend
	Server ServerConfig

	// Delivery
	SMTP   SMTPConfig
	DryRun bool

	// Sender policy checks
	SPF SPFConfig

	// Message settings (exported in message bundles)
	Mailer MailerConfig

	// Attachment-modifying plugins
	Plugins []PluginConfig

	// Signing
	DKIM map[string]interface{}

	// Delivery
	SendRate float32
	Workers  int

	// URL completion
	RefreshFrequency time.Duration

	// Control API
	Control ControlConfig
}

type ServerConfig struct {
	URL       string
	APIToken  string
	SecretID  string
	Addresses []ServerAddress
}

type ServerAddress struct {
	Host string
	Port int
	SSL  bool
}

// UsesSSL is true when any of the server addresses is TLS-enabled
func (s ServerConfig) UsesSSL() bool {
	for _, a := range s.Addresses {
		if a.SSL {
			return true
		}
	}
	return false
}

type SMTPConfig struct {
	URL  string
	User string
	Pass string
	TLS  *TLSConfig
	SSH  SSHConfig
}

type SSHConfig struct {
	Enable         bool
	Server         string
	User           string
	Pass           string
	KeyFile        string
	KnownHostsFile string

	// Skip host key verification when no known hosts file is set
	InsecureIgnoreHostKey bool
}

type TLSConfig struct {
	InsecureSkipVerify bool
	MinVersion         string
}

func (t TLSConfig) GetMinVersion() (uint16, error) {
	switch t.MinVersion {
	case "":
		// Not set, so let the tls package decide
		return 0, nil
	case "1.0":
		return tls.VersionTLS10, nil
	case "1.1":
		return tls.VersionTLS11, nil
	case "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, errors.New("Invalid TLS version")
	}
}

type SPFConfig struct {
	CheckLevel   int
	CheckTimeout time.Duration
}

type PluginConfig struct {
	Title    string
	Patterns []string
}

type ControlConfig struct {
	Port              uint
	Auth              string
	ContinueOnWarning bool
}

// Message settings, keyed like the "mailer." section of config.yaml
type MailerConfig struct {
	WebserverURL       string `mapstructure:"webserver_url"`
	Subject            string `mapstructure:"subject"`
	HTMLFile           string `mapstructure:"html_file"`
	AttachmentFile     string `mapstructure:"attachment_file"`
	CompanyName        string `mapstructure:"company_name"`
	MessageType        string `mapstructure:"message_type"`
	TargetType         string `mapstructure:"target_type"`
	TargetField        string `mapstructure:"target_field"`
	TargetFile         string `mapstructure:"target_file"`
	TargetName         string `mapstructure:"target_name"`
	TargetEmailAddress string `mapstructure:"target_email_address"`
	RecipientEmailTo   string `mapstructure:"recipient_email_to"`
	RecipientEmailCC   string `mapstructure:"recipient_email_cc"`
	SourceEmail        string `mapstructure:"source_email"`
	SourceEmailSMTP    string `mapstructure:"source_email_smtp"`
	SourceEmailAlias   string `mapstructure:"source_email_alias"`
	ReplyToEmail       string `mapstructure:"reply_to_email"`
	Importance         string `mapstructure:"importance"`
	Sensitivity        string `mapstructure:"sensitivity"`

	MessageUID     MessageUIDConfig     `mapstructure:"message_uid"`
	CalendarInvite CalendarInviteConfig `mapstructure:"calendar_invite"`
}

type MessageUIDConfig struct {
	Length  int         `mapstructure:"length"`
	Charset CharsetFlag `mapstructure:"charset"`
}

type CharsetFlag struct {
	Digits bool `mapstructure:"digits"`
	Lower  bool `mapstructure:"lower"`
	Upper  bool `mapstructure:"upper"`
}

// Any is true when at least one character class is enabled
func (c CharsetFlag) Any() bool {
	return c.Digits || c.Lower || c.Upper
}

type CalendarInviteConfig struct {
	Summary     string `mapstructure:"summary"`
	Location    string `mapstructure:"location"`
	Date        string `mapstructure:"date"`
	StartHour   int    `mapstructure:"start_hour"`
	StartMinute int    `mapstructure:"start_minute"`
	Duration    int    `mapstructure:"duration"`
	AllDay      bool   `mapstructure:"all_day"`
	RequestRSVP bool   `mapstructure:"request_rsvp"`
}

// Initial blank config
type BuildInfo struct {
	Version   string
	BuildDate string
}

func (i BuildInfo) String() string {
	return fmt.Sprintf("v%s %s/%s (%s)", i.Version, runtime.GOOS, runtime.GOARCH, i.BuildDate)
}

// Standard configuration with Viper operating
// on OS FS based at current working directory
func LoadConfig(ctx context.Context) (*AConfig, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	fs := afero.NewBasePathFs(afero.NewOsFs(), wd)
	return LoadConfigFs(ctx, fs)
}

// Standard configuration for specified afero FS
// The project is assumed to be in afero.Fs root
func LoadConfigFs(ctx context.Context, fs afero.Fs) (*AConfig, error) {
	cfg := &AConfig{Build: Build, Context: ctx, AppFs: &Fs{Fs: fs}}
	cfg.AppFs.Config = cfg

	cfg.viper = newViperConfig(cfg.AppFs)
	if err := cfg.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Fprintln(os.Stderr, err.Error())
		} else {
			return nil, err
		}
	}

	return cfg, cfg.reload()
}

// Re-read ConfigFile from viper after its keys were changed
func (c *AConfig) reload() error {
	return c.viper.Unmarshal(&c.ConfigFile)
}

// Initialize configuration with Viper
func newViperConfig(fs afero.Fs) *viper.Viper {
	v := viper.New()

	// Initialize with real or virtual FS
	if fs != nil {
		v.SetFs(fs)
	}

	// From --config
	if ViperConfigFile != "" {
		v.SetConfigFile(ViperConfigFile)
	}

	// Tie configuration to ENV
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("lure")
	v.AutomaticEnv()

	// Defaults (General)
	v.SetDefault("campaignID", "")
	v.SetDefault("dryRun", false)
	v.SetDefault("refreshFrequency", 5*time.Minute)

	// Defaults (Campaign backend)
	v.SetDefault("server.url", "")
	v.SetDefault("server.apiToken", "")
	v.SetDefault("server.secretID", "")

	// Defaults (SMTP/SSH)
	v.SetDefault("smtp.url", "")
	v.SetDefault("smtp.user", "")
	v.SetDefault("smtp.pass", "")
	v.SetDefault("smtp.tls.InsecureSkipVerify", false)
	v.SetDefault("smtp.tls.MinVersion", "1.2")
	v.SetDefault("smtp.ssh.enable", false)
	v.SetDefault("smtp.ssh.server", "")
	v.SetDefault("smtp.ssh.user", "")
	v.SetDefault("smtp.ssh.pass", "")
	v.SetDefault("smtp.ssh.keyFile", "")
	v.SetDefault("smtp.ssh.knownHostsFile", "")
	v.SetDefault("smtp.ssh.insecureIgnoreHostKey", false)

	// Defaults (SPF)
	v.SetDefault("spf.checkLevel", 0)
	v.SetDefault("spf.checkTimeout", 10*time.Second)

	// Delivery workers/rate
	v.SetDefault("sendRate", 1)
	v.SetDefault("workers", 1)

	// Control API
	v.BindEnv("control.port", "PORT")
	v.SetDefault("control.port", 8080)
	v.SetDefault("control.auth", "")
	v.SetDefault("control.continueOnWarning", false)

	// Message settings
	for k, val := range mailerDefaults {
		v.SetDefault(MessagePrefix+k, val)
	}

	// Prepare for project's config.*
	v.SetConfigName("config")
	v.AddConfigPath("/")

	// 🐍
	return v
}

// Every known message setting with its typed default
var mailerDefaults = map[string]any{
	"webserver_url":        "",
	"subject":              "",
	"html_file":            "",
	"attachment_file":      "",
	"company_name":         "",
	"message_type":         "email",
	"target_type":          "file",
	"target_field":         "to",
	"target_file":          "",
	"target_name":          "",
	"target_email_address": "",
	"recipient_email_to":   "",
	"recipient_email_cc":   "",
	"source_email":         "",
	"source_email_smtp":    "",
	"source_email_alias":   "",
	"reply_to_email":       "",
	"importance":           "Normal",
	"sensitivity":          "Normal",

	"message_uid.length":         16,
	"message_uid.charset.digits": true,
	"message_uid.charset.lower":  true,
	"message_uid.charset.upper":  true,

	"calendar_invite.summary":      "",
	"calendar_invite.location":     "",
	"calendar_invite.date":         "",
	"calendar_invite.start_hour":   9,
	"calendar_invite.start_minute": 0,
	"calendar_invite.duration":     60,
	"calendar_invite.all_day":      false,
	"calendar_invite.request_rsvp": false,
}
