// Package translate formats user visible text for the user's locale.
package translate

import (
	"log"
	"sync"

	"github.com/jeandeaual/go-locale"

	"golang.org/x/text/message"
)

// DEFAULT_LOCALE is used when the host reports no locale.
const DEFAULT_LOCALE = "en-US"

var (
	once    sync.Once
	printer *message.Printer
)

// Locales returns the host locales, most preferred first.
func Locales() (locales []string) {
	locales, err := locale.GetLocales()
	if err != nil {
		log.Printf("rv32i: locale: %v", err)
	}

	if len(locales) == 0 {
		locales = []string{DEFAULT_LOCALE}
	}

	return
}

func get() *message.Printer {
	once.Do(func() {
		printer = message.NewPrinter(message.MatchLanguage(Locales()...))
	})
	return printer
}

// From an en-US Sprintf() format, translate to string.
func From(key message.Reference, args ...any) string {
	return get().Sprintf(key, args...)
}
