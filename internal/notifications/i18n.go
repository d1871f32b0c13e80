package notifications

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

//go:embed locales/*.json
var localeFS embed.FS

// Translator renders notification templates from the embedded locale files.
type Translator struct {
	bundle        *i18n.Bundle
	defaultLocale string
}

// NewTranslator loads every locale file. defaultLocale is used when a
// payload carries none.
func NewTranslator(defaultLocale string) (*Translator, error) {
	if defaultLocale == "" {
		defaultLocale = "en"
	}
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("notifications: read locales: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("notifications: read %s: %w", e.Name(), err)
		}
		if _, err := bundle.ParseMessageFileBytes(data, e.Name()); err != nil {
			return nil, fmt.Errorf("notifications: parse %s: %w", e.Name(), err)
		}
	}
	return &Translator{bundle: bundle, defaultLocale: defaultLocale}, nil
}

// Render returns the localised title and body of key. Unknown keys fall
// back to the key itself so a delivery is never lost to a missing string.
func (t *Translator) Render(locale, key string, params map[string]string) (string, string) {
	if locale == "" {
		locale = t.defaultLocale
	}
	localizer := i18n.NewLocalizer(t.bundle, locale, t.defaultLocale)
	data := make(map[string]any, len(params))
	for k, v := range params {
		data[k] = v
	}
	title, err := localizer.Localize(&i18n.LocalizeConfig{MessageID: key + ".title", TemplateData: data})
	if err != nil {
		title = key
	}
	body, err := localizer.Localize(&i18n.LocalizeConfig{MessageID: key + ".body", TemplateData: data})
	if err != nil {
		body = ""
	}
	return title, body
}

// FormatAmount renders a money amount with the locale's grouping and two
// fraction digits, e.g. 1,250.00 for en and 1.250,00 for id.
func FormatAmount(locale string, amount decimal.Decimal) string {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	p := message.NewPrinter(tag)
	return p.Sprint(number.Decimal(amount.Round(2).InexactFloat64(), number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}
