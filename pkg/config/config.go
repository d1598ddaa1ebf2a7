// Package config resolves catchat settings from flags, environment and the
// optional config file, all of which are merged by viper.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-go-golems/catchat/pkg/chatclient"
	"github.com/go-go-golems/catchat/pkg/session"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	AppName = "catchat"
	// EnvPrefix is prepended to every key looked up in the environment,
	// e.g. CATCHAT_BASE_URL.
	EnvPrefix = "CATCHAT"

	DefaultBaseURL = "http://localhost:8080"
)

// Viper keys. They double as persistent flag names.
const (
	KeyBaseURL        = "base-url"
	KeySessionStore   = "session-store"
	KeySessionPath    = "session-path"
	KeyConversationID = "conversation-id"
	KeyTimeout        = "timeout"
	KeyPollInterval   = "poll-interval"
	KeyNoMarkdown     = "no-markdown"
	KeyLogLevel       = "log-level"
	KeyLogFile        = "log-file"
)

type Settings struct {
	BaseURL      string
	SessionStore session.StoreKind
	SessionPath  string
	// ConversationID overrides the stored id for one invocation.
	ConversationID string
	Timeout        time.Duration
	PollInterval   time.Duration
	NoMarkdown     bool
	LogLevel       string
	LogFile        string
}

// Dir is the per-user configuration directory of catchat.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve user config dir")
	}
	return filepath.Join(base, AppName), nil
}

// DefaultLogFile is where the chat UI logs when no log file is configured,
// so log lines do not end up on the alternate screen.
func DefaultLogFile() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve user cache dir")
	}
	return filepath.Join(base, AppName, AppName+".log"), nil
}

// FromViper reads and validates the settings.
func FromViper(v *viper.Viper) (*Settings, error) {
	kind, err := session.ParseStoreKind(v.GetString(KeySessionStore))
	if err != nil {
		return nil, err
	}
	s := &Settings{
		BaseURL:        strings.TrimSpace(v.GetString(KeyBaseURL)),
		SessionStore:   kind,
		SessionPath:    strings.TrimSpace(v.GetString(KeySessionPath)),
		ConversationID: strings.TrimSpace(v.GetString(KeyConversationID)),
		Timeout:        v.GetDuration(KeyTimeout),
		PollInterval:   v.GetDuration(KeyPollInterval),
		NoMarkdown:     v.GetBool(KeyNoMarkdown),
		LogLevel:       v.GetString(KeyLogLevel),
		LogFile:        v.GetString(KeyLogFile),
	}
	if s.BaseURL == "" {
		s.BaseURL = DefaultBaseURL
	}
	if s.SessionPath == "" && s.SessionStore != session.StoreMemory {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		s.SessionPath = session.DefaultPath(s.SessionStore, dir)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) Validate() error {
	if _, err := chatclient.ParseBaseURL(s.BaseURL); err != nil {
		return errors.Wrap(err, "invalid "+KeyBaseURL)
	}
	if s.Timeout < 0 {
		return errors.Errorf("invalid %s: %s is negative", KeyTimeout, s.Timeout)
	}
	if s.PollInterval < 0 {
		return errors.Errorf("invalid %s: %s is negative", KeyPollInterval, s.PollInterval)
	}
	if s.PollInterval > 0 && s.PollInterval < time.Second {
		return errors.Errorf("invalid %s: %s is below one second", KeyPollInterval, s.PollInterval)
	}
	return nil
}

// NewClient builds the chat service client described by the settings.
func (s *Settings) NewClient() (*chatclient.Client, error) {
	return chatclient.New(s.BaseURL, chatclient.WithTimeout(s.Timeout))
}

// OpenSession opens the configured store and wraps it in a Session. The
// caller closes the returned store.
func (s *Settings) OpenSession() (*session.Session, session.Store, error) {
	store, err := session.OpenStore(s.SessionStore, s.SessionPath)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open session store")
	}
	var opts []session.Option
	if s.ConversationID != "" {
		opts = append(opts, session.WithFixedID(s.ConversationID))
	}
	return session.New(store, opts...), store, nil
}
