package tasks

import (
	"context"
	"reflect"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/vinayprograms/taskrunner/affinity"
	rerrors "github.com/vinayprograms/taskrunner/errors"
)

// Handler executes one task type.
type Handler interface {
	Handle(ctx context.Context, cache *affinity.Cache, task *Task) (string, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, cache *affinity.Cache, task *Task) (string, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, cache *affinity.Cache, task *Task) (string, error) {
	return f(ctx, cache, task)
}

// Registry maps task types to handlers. Registering a type again replaces
// the earlier handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register stores h under taskType.
func (r *Registry) Register(taskType string, h Handler) error {
	if taskType == "" {
		return rerrors.InvalidInput("register handler: task type is empty")
	}
	if h == nil {
		return rerrors.InvalidInput("register handler: nil handler",
			rerrors.WithMetadata("task_type", taskType))
	}
	r.mu.Lock()
	r.handlers[taskType] = h
	r.mu.Unlock()
	return nil
}

// RegisterFunc stores fn under the snake_case form of its function name and
// returns that name.
func (r *Registry) RegisterFunc(fn HandlerFunc) (string, error) {
	name, err := FuncName(fn)
	if err != nil {
		return "", err
	}
	return name, r.Register(name, fn)
}

// Lookup returns the handler for taskType, or an ErrCodeUnknownTask error.
func (r *Registry) Lookup(taskType string) (Handler, error) {
	r.mu.RLock()
	h, ok := r.handlers[taskType]
	r.mu.RUnlock()
	if !ok {
		return nil, rerrors.UnknownTask(taskType)
	}
	return h, nil
}

// Names returns the registered task types, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var anonymousFunc = regexp.MustCompile(`^func\d+$`)

// FuncName derives a task type from fn's declared name.
// Anonymous functions and closures have no usable name.
func FuncName(fn interface{}) (string, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return "", rerrors.InvalidInput("derive task type: not a function")
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return "", rerrors.InvalidInput("derive task type: unknown function")
	}

	full := f.Name()
	name := full[strings.LastIndex(full, ".")+1:]
	name = strings.TrimSuffix(name, "-fm")
	if name == "" || anonymousFunc.MatchString(name) {
		return "", rerrors.InvalidInput("derive task type: anonymous function " + full)
	}
	return snakeCase(name), nil
}

// snakeCase converts sampleTask1 to sample_task_1.
func snakeCase(s string) string {
	var b strings.Builder
	var prev rune
	for i, r := range s {
		switch {
		case i > 0 && unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
			b.WriteByte('_')
		case i > 0 && unicode.IsDigit(r) && unicode.IsLetter(prev):
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
		prev = r
	}
	return b.String()
}
