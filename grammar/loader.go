package grammar

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"go.uber.org/zap"
)

var ErrRuntimeUnavailable = errors.New("parsing runtime unavailable")

// LoadFunc loads a single grammar.
type LoadFunc func() (*sitter.Language, error)

type Option func(*Loader)

// WithRegistry replaces the builtin grammar registry.
func WithRegistry(registry map[string]LoadFunc) Option {
	return func(l *Loader) {
		l.registry = registry
	}
}

// WithLanguages restricts loading to the named grammars. An empty list keeps
// every registered grammar.
func WithLanguages(languages ...string) Option {
	return func(l *Loader) {
		l.allow = languages
	}
}

// WithRuntimeCheck overrides the probe used to validate the parsing runtime.
func WithRuntimeCheck(check func() error) Option {
	return func(l *Loader) {
		l.runtimeCheck = check
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(l *Loader) {
		l.log = log
	}
}

// Loader owns the parsing runtime and the table of loaded grammars. The table
// is written once inside Initialize and only read afterwards.
type Loader struct {
	registry     map[string]LoadFunc
	allow        []string
	runtimeCheck func() error
	log          *zap.Logger

	once      sync.Once
	ready     bool
	languages map[string]*sitter.Language
}

func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		registry:     Builtin(),
		runtimeCheck: probeRuntime,
		log:          zap.L(),
		languages:    make(map[string]*sitter.Language),
	}

	for _, opt := range opts {
		opt(l)
	}

	l.log = l.log.With(
		zap.String("component", "grammar_loader"),
	)

	return l
}

// Initialize sets up the parsing runtime and loads every registered grammar.
// Concurrent callers block on the first attempt and all observe its outcome.
func (l *Loader) Initialize(ctx context.Context) bool {
	l.once.Do(func() {
		l.ready = l.initialize(ctx)
	})

	return l.ready
}

func (l *Loader) initialize(ctx context.Context) bool {
	log := l.log.With(
		zap.String("action", "initialize"),
	)

	if err := safeCall(l.runtimeCheck); err != nil {
		log.Error("parsing runtime unavailable", zap.Error(err))
		return false
	}

	names := make([]string, 0, len(l.registry))
	for name := range l.registry {
		if len(l.allow) > 0 && !slices.Contains(l.allow, name) {
			continue
		}

		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if ctx.Err() != nil {
			log.Warn("initialization interrupted", zap.Error(ctx.Err()))
			break
		}

		log := log.With(
			zap.String("language", name),
		)

		lang, err := load(l.registry[name])
		if err != nil {
			log.Warn("grammar unavailable", zap.Error(err))
			continue
		}

		l.languages[name] = lang
		log.Debug("grammar loaded")
	}

	log.Info("parsing runtime ready", zap.Int("grammars", len(l.languages)))
	return true
}

// CanParse reports whether the named grammar loaded successfully.
func (l *Loader) CanParse(language string) bool {
	if !l.Initialize(context.Background()) {
		return false
	}

	_, ok := l.languages[language]
	return ok
}

// Languages returns the names of the loaded grammars.
func (l *Loader) Languages() []string {
	if !l.Initialize(context.Background()) {
		return nil
	}

	names := make([]string, 0, len(l.languages))
	for name := range l.languages {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Parse builds a syntax tree for code. It returns a nil tree and nil error
// when the runtime or the grammar is unavailable. The caller owns the tree.
func (l *Loader) Parse(ctx context.Context, code []byte, language string) (*sitter.Tree, error) {
	if !l.Initialize(ctx) {
		return nil, nil
	}

	lang, ok := l.languages[language]
	if !ok {
		return nil, nil
	}

	parser := sitter.NewParser()
	defer parser.Close()

	parser.SetLanguage(lang)

	return parser.ParseCtx(ctx, nil, code)
}

func load(fn LoadFunc) (lang *sitter.Language, err error) {
	if fn == nil {
		return nil, errors.New("no loader registered")
	}

	defer func() {
		if r := recover(); r != nil {
			lang = nil
			err = fmt.Errorf("grammar load panicked: %v", r)
		}
	}()

	lang, err = fn()
	if err != nil {
		return nil, err
	}

	if lang == nil {
		return nil, errors.New("grammar loader returned nil")
	}

	return lang, nil
}

func safeCall(fn func() error) (err error) {
	if fn == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrRuntimeUnavailable, r)
		}
	}()

	return fn()
}

func probeRuntime() error {
	parser := sitter.NewParser()
	if parser == nil {
		return ErrRuntimeUnavailable
	}

	parser.Close()
	return nil
}
