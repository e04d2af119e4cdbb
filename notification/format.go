package notification

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Formatter renders amounts for message bodies in one locale.
type Formatter struct {
	printer *message.Printer
}

// NewFormatter builds a formatter for a BCP 47 tag. Unknown tags fall back to English.
func NewFormatter(tag string) *Formatter {
	lang, err := language.Parse(tag)
	if err != nil {
		lang = language.English
	}
	return &Formatter{printer: message.NewPrinter(lang)}
}

// Amount groups digits the way the locale expects.
func (f *Formatter) Amount(v int64) string {
	if f == nil {
		return NewFormatter("en").Amount(v)
	}
	return f.printer.Sprintf("%d", v)
}
