// Package prefs persists small user preferences and notifies watchers
// when they change.
package prefs

import (
	"context"
	"errors"
	"log"

	"github.com/example/storefront-client/internal/infrastructure/storage"
)

const (
	localeKey     = "locale"
	defaultLocale = "en"
)

var ErrBadLocale = errors.New("prefs: locale must be a tag like \"en\" or \"en-US\"")

// Prefs reads and writes user preferences through a change-notifying
// store, so watchers learn about updates without polling.
type Prefs struct {
	store *storage.Notifier
}

func New(store *storage.Notifier) *Prefs {
	return &Prefs{store: store}
}

// Locale returns the persisted locale tag, or "en" when none is set.
func (p *Prefs) Locale(ctx context.Context) string {
	var locale string
	if err := storage.GetJSON(ctx, p.store, localeKey, &locale); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("[Prefs] Failed to read locale, using default: %v", err)
		}
		return defaultLocale
	}
	if locale == "" {
		return defaultLocale
	}
	return locale
}

// SetLocale persists a new locale tag ("en", "ja", "en-US", ...).
func (p *Prefs) SetLocale(ctx context.Context, locale string) error {
	if !validLocale(locale) {
		return ErrBadLocale
	}
	return storage.SetJSON(ctx, p.store, localeKey, locale)
}

// WatchLocale delivers the current locale after every change. The
// returned cancel func releases the subscription and closes the channel.
func (p *Prefs) WatchLocale(ctx context.Context) (<-chan string, func()) {
	events, cancelSub := p.store.Subscribe(localeKey)
	out := make(chan string, 1)

	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				select {
				case out <- p.Locale(ctx):
				case <-done:
					return
				}
			}
		}
	}()

	var once bool
	return out, func() {
		if !once {
			once = true
			cancelSub()
			close(done)
		}
	}
}

// validLocale accepts BCP 47-shaped tags of the form ll or ll-RR.
func validLocale(locale string) bool {
	switch len(locale) {
	case 2:
		return isAlphaLower(locale)
	case 5:
		return isAlphaLower(locale[:2]) && locale[2] == '-' && isAlphaUpper(locale[3:])
	default:
		return false
	}
}

func isAlphaLower(s string) bool {
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

func isAlphaUpper(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
