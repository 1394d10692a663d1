package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/shopbot/core/logger"
)

// Command is a slash command with its menu metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly commands pass the admin filter and appear only in the
	// admin chat menu.
	AdminOnly bool
	Hidden    bool
	// Aliases are extra names, with or without the leading slash.
	Aliases []string
}

// Registry maps slash commands and callback keys to handlers. It is filled
// while wiring and read concurrently once the bot runs.
type Registry struct {
	mu        sync.RWMutex
	commands  map[string]Command
	aliases   map[string]string
	callbacks map[string]tele.HandlerFunc
	notFound  tele.HandlerFunc
	fallback  tele.HandlerFunc
}

// NewRegistry returns an empty registry. Unknown callback keys are logged
// and otherwise ignored until SetCallbackNotFound says differently.
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]Command),
		aliases:   make(map[string]string),
		callbacks: make(map[string]tele.HandlerFunc),
		notFound: func(c tele.Context) error {
			logger.Debug(context.Background(), "tg.wire", "callback.unknown",
				slog.String("data", logger.SanitizeLimit(c.Callback().Data, 64)),
			)
			return nil
		},
	}
}

func slashed(name string) string {
	if strings.HasPrefix(name, "/") {
		return name
	}
	return "/" + name
}

// RegisterCommand adds cmd under name, which must start with a slash.
func (r *Registry) RegisterCommand(name string, cmd Command) error {
	switch {
	case cmd.Handler == nil || cmd.Description == "":
		return r.reject("register.command.skip", name, "command %s needs a handler and a description", name)
	case !strings.HasPrefix(name, "/") || len(name) < 2:
		return r.reject("register.command.skip", name, "command %q must start with '/'", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.taken(name) {
		return r.reject("register.command.duplicate", name, "command %s already registered", name)
	}
	for _, a := range cmd.Aliases {
		if a = slashed(a); r.taken(a) || a == name {
			return r.reject("register.command.duplicate", a, "alias %s of %s already registered", a, name)
		}
	}
	r.commands[name] = cmd
	for _, a := range cmd.Aliases {
		r.aliases[slashed(a)] = name
	}
	return nil
}

func (r *Registry) taken(name string) bool {
	_, cmd := r.commands[name]
	_, alias := r.aliases[name]
	return cmd || alias
}

func (r *Registry) reject(event, name, format string, args ...any) error {
	logger.Warn(context.Background(), "tg.wire", event, slog.String("name", name))
	return fmt.Errorf("telegram: "+format, args...)
}

// LookupCommand resolves the first word of text to a registered command.
// Arguments, a missing slash and a trailing @botname are tolerated.
func (r *Registry) LookupCommand(text string) (string, Command, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", Command{}, false
	}
	name, _, _ := strings.Cut(fields[0], "@")
	name = slashed(name)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if target, ok := r.aliases[name]; ok {
		name = target
	}
	cmd, ok := r.commands[name]
	if !ok {
		return "", Command{}, false
	}
	return name, cmd, true
}

// Commands returns a copy of the registered commands keyed by name.
func (r *Registry) Commands() map[string]Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.commands)
}

// Menu lists the commands shown in the Telegram command menu, sorted by
// name. Admin menus include AdminOnly commands; hidden ones never show.
func (r *Registry) Menu(admin bool) []tele.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var list []tele.Command
	for name, cmd := range r.commands {
		if cmd.Hidden || (cmd.AdminOnly && !admin) {
			continue
		}
		list = append(list, tele.Command{Text: strings.TrimPrefix(name, "/"), Description: cmd.Description})
	}
	slices.SortFunc(list, func(a, b tele.Command) int { return strings.Compare(a.Text, b.Text) })
	return list
}

// RegisterCallback binds the unique part of inline button data to handler.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if key == "" || handler == nil {
		return r.reject("register.callback.skip", key, "callback %q needs a key and a handler", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.callbacks[key]; exists {
		return r.reject("register.callback.duplicate", key, "callback already registered: %s", key)
	}
	r.callbacks[key] = handler
	return nil
}

// GetCallback returns the handler bound to key.
func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns the registered keys, sorted.
func (r *Registry) ListCallbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.callbacks))
}

// SetCallbackNotFound replaces the handler for unknown callback keys.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.notFound = h
	r.mu.Unlock()
}

// CallbackNotFound returns the handler for unknown callback keys.
func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.notFound
}

// SetTextFallback sets the handler for text that matches no command.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) {
	r.mu.Lock()
	r.fallback = h
	r.mu.Unlock()
}

// TextFallback returns the handler for text that matches no command.
func (r *Registry) TextFallback() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback
}

// InitBotCommands publishes the public command menu and, when adminID is
// set, a fuller menu scoped to the admin chat.
func InitBotCommands(bot *tele.Bot, reg *Registry, adminID int64) {
	err := bot.SetCommands(reg.Menu(false))
	if adminID != 0 {
		scope := tele.CommandScope{Type: tele.CommandScopeChat, ChatID: adminID}
		err = errors.Join(err, bot.SetCommands(reg.Menu(true), scope))
	}
	if err != nil {
		logger.Error(context.Background(), "tg.wire", "register.commands.set_failed",
			slog.String("err", err.Error()),
		)
	}
}
