package store

import (
	"os"

	"github.com/gcoo-labs/pinch/internal/storage"
	"github.com/gcoo-labs/pinch/internal/telemetry"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultPersistName is the storage key used when Config.Name is empty
	DefaultPersistName = "app-store"
	// DefaultDevtoolsName labels devtools output when Config.Name is empty
	DefaultDevtoolsName = "AppStore"
	// DefaultHistoryLimit bounds the devtools transition history
	DefaultHistoryLimit = 50

	// EnvProduction disables devtools
	EnvProduction = "production"
)

// defaultStorage backs persisted stores built without WithStorage. It is
// shared by the whole process, so a store rebuilt under the same name
// hydrates from what the previous instance wrote.
var defaultStorage storage.Store = storage.NewMemory()

// Config selects the optional behaviors of a store. The zero value has
// devtools on and everything else off.
type Config struct {
	// Name keys the persisted snapshot and labels devtools output. Two
	// stores left unnamed share the same snapshot.
	Name            string
	Persist         bool
	DisableDevtools bool
	Subscribe       bool
}

// DefaultConfig returns the zero config: devtools on, everything else off
func DefaultConfig() Config {
	return Config{}
}

func (c Config) persistName() string {
	if c.Name != "" {
		return c.Name
	}
	return DefaultPersistName
}

func (c Config) devtoolsName() string {
	if c.Name != "" {
		return c.Name
	}
	return DefaultDevtoolsName
}

type options[T any] struct {
	storage      storage.Store
	env          string
	partialize   func(T) any
	historyLimit int
	log          *logrus.Entry
}

// Option tunes the middlewares chosen by Config
type Option[T any] func(*options[T])

// WithStorage sets where persisted snapshots live. The default is a
// memory store shared by every store in the process.
func WithStorage[T any](s storage.Store) Option[T] {
	return func(o *options[T]) { o.storage = s }
}

// WithEnvironment overrides $ENVIRONMENT when deciding whether devtools
// are active
func WithEnvironment[T any](env string) Option[T] {
	return func(o *options[T]) { o.env = env }
}

// WithPartialize selects the part of the state that is persisted. The
// result must be JSON-encodable and decode back onto T.
func WithPartialize[T any](fn func(T) any) Option[T] {
	return func(o *options[T]) { o.partialize = fn }
}

// WithHistoryLimit bounds the devtools transition history
func WithHistoryLimit[T any](n int) Option[T] {
	return func(o *options[T]) { o.historyLimit = n }
}

// WithLogger replaces the default logger
func WithLogger[T any](log *logrus.Entry) Option[T] {
	return func(o *options[T]) { o.log = log }
}

func buildOptions[T any](opts []Option[T]) *options[T] {
	o := &options[T]{
		env:          os.Getenv("ENVIRONMENT"),
		historyLimit: DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.storage == nil {
		o.storage = defaultStorage
	}
	if o.partialize == nil {
		o.partialize = func(s T) any { return s }
	}
	if o.log == nil {
		o.log = telemetry.WithFields(logrus.Fields{"component": "store"})
	}
	if o.historyLimit <= 0 {
		o.historyLimit = DefaultHistoryLimit
	}
	return o
}
