package config

import (
	_ "embed"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

var (
	//go:embed default/config.yaml
	defaultConfigData []byte
)

const (
	ConfigurationName = "config.yaml"
	AppName           = "pipesh"
)

// ErrDisabled is returned when opening a file the configuration turned off.
var ErrDisabled = errors.New("disabled in configuration")

type Configuration struct {
	configFs         afero.Fs
	configurationDir string

	// Prompt is the prompt template.
	Prompt string `json:"prompt"`
	// Color is one of always, auto or never.
	Color       string   `json:"color" validate:"oneof=always auto never"`
	ExitKeyword string   `json:"exit_keyword" validate:"required,word"`
	Builtins    []string `json:"builtins" validate:"unique,dive,oneof=ls rm cd"`

	HistoryFile string `json:"history_file" validate:"omitempty,filename"`
	AppLog      string `json:"app_log" validate:"omitempty,filename"`
	EventLog    string `json:"event_log" validate:"omitempty,filename"`

	ReportStatus bool `json:"report_status"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})
	// A word is something the tokenizer returns as a single token.
	if err := validate.RegisterValidation("word", func(fl validator.FieldLevel) bool {
		return !strings.ContainsAny(fl.Field().String(), " \t\n\"'\\")
	}); err != nil {
		return err
	}
	// Files live directly in the configuration directory.
	if err := validate.RegisterValidation("filename", func(fl validator.FieldLevel) bool {
		name := fl.Field().String()
		return name != "." && name != ".." && !strings.ContainsRune(name, filepath.Separator)
	}); err != nil {
		return err
	}

	return validate.Struct(c)
}

// BuiltinEnabled reports whether the named built-in should run in the shell.
func (c *Configuration) BuiltinEnabled(name string) bool {
	for _, b := range c.Builtins {
		if b == name {
			return true
		}
	}
	return false
}

// Dir is the configuration directory.
func (c *Configuration) Dir() string {
	return c.configurationDir
}

func (c *Configuration) fs() afero.Fs {
	if c.configFs == nil {
		c.configFs = afero.NewBasePathFs(afero.NewOsFs(), c.configurationDir)
	}
	return c.configFs
}

func (c *Configuration) openAppend(name string) (afero.File, error) {
	if name == "" {
		return nil, ErrDisabled
	}
	if err := c.fs().MkdirAll("/", 0700); err != nil {
		return nil, err
	}
	return c.fs().OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

// OpenAppLog opens the application log in an append only state.
func (c *Configuration) OpenAppLog() (afero.File, error) {
	return c.openAppend(c.AppLog)
}

// OpenEventLog opens the event log in an append only state.
func (c *Configuration) OpenEventLog() (afero.File, error) {
	return c.openAppend(c.EventLog)
}

// ReadEventLog opens the event log for reading.
func (c *Configuration) ReadEventLog() (afero.File, error) {
	if c.EventLog == "" {
		return nil, ErrDisabled
	}
	return c.fs().OpenFile(c.EventLog, os.O_RDONLY, 0600)
}

// HistoryPath is the path of the line editor history, empty if disabled.
func (c *Configuration) HistoryPath() string {
	if c.HistoryFile == "" || c.configurationDir == "" {
		return ""
	}
	return filepath.Join(c.configurationDir, c.HistoryFile)
}

func defaultConfig() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}

// Default returns the built-in configuration rooted at dir.
func Default(dir string) *Configuration {
	out := defaultConfig()
	if filepath.Base(dir) == ConfigurationName {
		dir = filepath.Dir(dir)
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	out.configurationDir = dir
	return out
}

// DefaultDir is the configuration directory used when none is given.
func DefaultDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, AppName)
	}
	return "." + AppName
}
