// Package config loads, validates and persists the twtxt configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment overrides. A double underscore
// separates levels: TWTXT_TWTXT__LIMIT_TIMELINE=5.
const EnvPrefix = "TWTXT_"

const followingKey = "following"

var nickPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Error is a configuration problem. Commands cannot proceed past one.
type Error struct {
	Path    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := "config"
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrNotFound is wrapped by Load when the config file does not exist.
var ErrNotFound = errors.New("config file not found")

// Config is the resolved configuration.
type Config struct {
	Twtxt     Settings          `koanf:"twtxt"`
	Following map[string]string `koanf:"following" validate:"dive,keys,nick,endkeys,required,url"`
}

// Settings holds the options of the twtxt section.
type Settings struct {
	Nick             string        `koanf:"nick" validate:"omitempty,nick"`
	TwtFile          string        `koanf:"twtfile"`
	TwtURL           string        `koanf:"twturl" validate:"omitempty,url"`
	CheckFollowing   bool          `koanf:"check_following"`
	UsePager         bool          `koanf:"use_pager"`
	UseCache         bool          `koanf:"use_cache"`
	Porcelain        bool          `koanf:"porcelain"`
	DiscloseIdentity bool          `koanf:"disclose_identity"`
	EmbedNames       bool          `koanf:"embed_names"`
	RewriteRedirects bool          `koanf:"rewrite_redirects"`
	CharacterLimit   int           `koanf:"character_limit" validate:"gte=0"`
	LimitTimeline    int           `koanf:"limit_timeline" validate:"gte=0"`
	UpdateInterval   time.Duration `koanf:"timeline_update_interval" validate:"gte=0"`
	Timeout          time.Duration `koanf:"timeout" validate:"gt=0"`
	Sorting          string        `koanf:"sorting" validate:"oneof=ascending descending"`
	UseAbsTime       bool          `koanf:"use_abs_time"`
	TimeFormat       string        `koanf:"time_format"`
	Since            string        `koanf:"since"`
	Until            string        `koanf:"until"`
	PreTweetHook     string        `koanf:"pre_tweet_hook"`
	PostTweetHook    string        `koanf:"post_tweet_hook"`
	CacheFile        string        `koanf:"cache_file"`
}

// defaults are applied beneath the config file and never persisted.
var defaults = map[string]any{
	"twtxt.twtfile":                  "~/twtxt.txt",
	"twtxt.check_following":          true,
	"twtxt.use_pager":                false,
	"twtxt.use_cache":                true,
	"twtxt.porcelain":                false,
	"twtxt.disclose_identity":        false,
	"twtxt.embed_names":              true,
	"twtxt.rewrite_redirects":        true,
	"twtxt.character_limit":          0,
	"twtxt.limit_timeline":           20,
	"twtxt.timeline_update_interval": "10s",
	"twtxt.timeout":                  "5s",
	"twtxt.sorting":                  "descending",
	"twtxt.use_abs_time":             false,
	"twtxt.time_format":              "2006-01-02 15:04",
}

// DefaultPath returns $XDG_CONFIG_HOME/twtxt/config.yaml, falling back to
// ~/.config/twtxt/config.yaml.
func DefaultPath() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", &Error{Message: "cannot locate home directory", Cause: err}
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "twtxt", "config.yaml"), nil
}

// Store owns the config document. Reads see defaults, the file and
// environment overrides merged; writes go to the file document only.
type Store struct {
	path string
	doc  *koanf.Koanf
	cfg  *Config
}

// Load reads the config file at path. A missing file is an error wrapping
// ErrNotFound.
func Load(path string) (*Store, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, &Error{Path: path, Message: "no config file, create one with 'twtxt config' or 'twtxt follow'", Cause: ErrNotFound}
	}
	return Open(path)
}

// Open reads the config file at path, starting from an empty document if it
// does not exist yet.
func Open(path string) (*Store, error) {
	doc := koanf.New(".")
	if _, err := os.Stat(path); err == nil {
		if err := doc.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, &Error{Path: path, Message: "failed to parse", Cause: err}
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, &Error{Path: path, Message: "failed to read", Cause: err}
	}

	s := &Store{path: path, doc: doc}
	if err := s.resolve(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the config file path.
func (s *Store) Path() string {
	return s.path
}

// Config returns the resolved configuration.
func (s *Store) Config() *Config {
	return s.cfg
}

// Following returns a copy of the follow list.
func (s *Store) Following() map[string]string {
	out := make(map[string]string, len(s.cfg.Following))
	for nick, url := range s.cfg.Following {
		out[nick] = url
	}
	return out
}

// Follow adds or updates nick in the follow list.
func (s *Store) Follow(nick, url string) error {
	if !nickPattern.MatchString(nick) {
		return &Error{Path: s.path, Message: fmt.Sprintf("invalid nick %q: use letters, digits, '-' and '_'", nick)}
	}
	return s.set(followingKey+"."+nick, url)
}

// Unfollow removes nick from the follow list. It reports whether nick was
// followed.
func (s *Store) Unfollow(nick string) (bool, error) {
	if _, ok := s.cfg.Following[nick]; !ok {
		return false, nil
	}
	s.doc.Delete(followingKey + "." + nick)
	return true, s.resolve()
}

// SetFollowing points nick at url. It implements domain.FollowStore; nick is
// already known to be valid.
func (s *Store) SetFollowing(nick, url string) {
	_ = s.doc.Set(followingKey+"."+nick, url)
	if s.cfg.Following == nil {
		s.cfg.Following = make(map[string]string)
	}
	s.cfg.Following[nick] = url
}

// Get returns the resolved value of key, e.g. "twtxt.nick".
func (s *Store) Get(key string) (string, bool) {
	k, err := s.merged()
	if err != nil || !k.Exists(key) {
		return "", false
	}
	return fmt.Sprint(k.Get(key)), true
}

// Set stores value under key in the document. Booleans and integers are
// stored typed.
func (s *Store) Set(key, value string) error {
	if strings.TrimSpace(key) == "" {
		return &Error{Path: s.path, Message: "empty key"}
	}
	return s.set(key, typed(value))
}

// Unset removes key from the document. It reports whether key was set.
func (s *Store) Unset(key string) (bool, error) {
	if !s.doc.Exists(key) {
		return false, nil
	}
	s.doc.Delete(key)
	return true, s.resolve()
}

// Keys returns every key set in the document, sorted.
func (s *Store) Keys() []string {
	keys := s.doc.Keys()
	sort.Strings(keys)
	return keys
}

// Save writes the document to the config file atomically.
func (s *Store) Save() error {
	data, err := s.doc.Marshal(yaml.Parser())
	if err != nil {
		return &Error{Path: s.path, Message: "failed to encode", Cause: err}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return &Error{Path: s.path, Message: "failed to create directory", Cause: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".config-*.yaml")
	if err != nil {
		return &Error{Path: s.path, Message: "failed to write", Cause: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &Error{Path: s.path, Message: "failed to write", Cause: err}
	}
	if err := tmp.Close(); err != nil {
		return &Error{Path: s.path, Message: "failed to write", Cause: err}
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return &Error{Path: s.path, Message: "failed to replace", Cause: err}
	}
	return nil
}

func (s *Store) set(key string, value any) error {
	prev := s.doc.Get(key)
	existed := s.doc.Exists(key)

	if err := s.doc.Set(key, value); err != nil {
		return &Error{Path: s.path, Message: fmt.Sprintf("failed to set %s", key), Cause: err}
	}
	if err := s.resolve(); err != nil {
		// Roll back so the store stays valid.
		if existed {
			_ = s.doc.Set(key, prev)
		} else {
			s.doc.Delete(key)
		}
		_ = s.resolve()
		return err
	}
	return nil
}

// merged layers defaults, the document and the environment.
func (s *Store) merged() (*koanf.Koanf, error) {
	k := koanf.New(".")
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}
	if err := k.Merge(s.doc); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}
	return k, nil
}

func (s *Store) resolve() error {
	k, err := s.merged()
	if err != nil {
		return &Error{Path: s.path, Message: "failed to merge", Cause: err}
	}

	var cfg Config
	err = k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				secondsHook(),
				mapstructure.StringToTimeDurationHookFunc(),
			),
			Result:           &cfg,
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return &Error{Path: s.path, Message: "failed to decode", Cause: err}
	}
	cfg.Twtxt.TwtFile = expandHome(cfg.Twtxt.TwtFile)
	cfg.Twtxt.CacheFile = expandHome(cfg.Twtxt.CacheFile)

	if err := cfg.Validate(); err != nil {
		return &Error{Path: s.path, Message: "invalid configuration", Cause: err}
	}
	s.cfg = &cfg
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("nick", func(fl validator.FieldLevel) bool {
		return nickPattern.MatchString(fl.Field().String())
	})
	return v
}

// Validate checks option values and the follow list.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// envKey maps TWTXT_TWTXT__USE_PAGER to twtxt.use_pager.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func typed(value string) any {
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	return value
}

// secondsHook reads bare numbers given for a duration as seconds, so
// "timeout: 30" means 30s rather than 30ns.
func secondsHook() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(_ reflect.Type, to reflect.Type, data any) (any, error) {
		if to != durationType {
			return data, nil
		}
		switch v := data.(type) {
		case int:
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		case uint64:
			return time.Duration(v) * time.Second, nil
		case float64:
			return time.Duration(v * float64(time.Second)), nil
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return time.Duration(n) * time.Second, nil
			}
		}
		return data, nil
	}
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
