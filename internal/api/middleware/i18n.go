package middleware

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// Schlüssel im gin.Context
const (
	LanguageKey   = "language"
	TranslatorKey = "translator"
)

// Translator hält die Übersetzungsfunktionalität
type Translator struct {
	bundle      *i18n.Bundle
	defaultLang string
	supported   []language.Tag
	matcher     language.Matcher
	localizers  map[string]*i18n.Localizer
}

// NewTranslator lädt die eingebetteten Übersetzungen
func NewTranslator(defaultLanguage string) (*Translator, error) {
	if defaultLanguage == "" {
		defaultLanguage = "en"
	}
	defTag, err := language.Parse(defaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("invalid default language %q: %w", defaultLanguage, err)
	}

	bundle := i18n.NewBundle(defTag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	files, err := fs.Glob(localeFS, "locales/*.json")
	if err != nil {
		return nil, err
	}

	t := &Translator{
		bundle:     bundle,
		localizers: make(map[string]*i18n.Localizer),
	}
	for _, file := range files {
		if _, err := bundle.LoadMessageFileFS(localeFS, file); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
		// Sprachcode aus dem Dateinamen (z.B. "de.json" -> "de")
		code := strings.TrimSuffix(path.Base(file), ".json")
		t.localizers[code] = i18n.NewLocalizer(bundle, code)
		t.supported = append(t.supported, language.Make(code))
	}

	base, _ := defTag.Base()
	t.defaultLang = base.String()
	if _, ok := t.localizers[t.defaultLang]; !ok {
		return nil, fmt.Errorf("no translations for default language %q", t.defaultLang)
	}
	// Standardsprache zuerst, damit der Matcher auf sie zurückfällt
	t.supported = append([]language.Tag{language.Make(t.defaultLang)}, t.supported...)
	t.matcher = language.NewMatcher(t.supported)
	return t, nil
}

// Languages liefert die unterstützten Sprachcodes
func (t *Translator) Languages() []string {
	out := make([]string, 0, len(t.localizers))
	for code := range t.localizers {
		out = append(out, code)
	}
	return out
}

// Supports prüft, ob für lang Übersetzungen existieren
func (t *Translator) Supports(lang string) bool {
	_, ok := t.localizers[lang]
	return ok
}

// Match wählt die beste Sprache für einen Accept-Language-Header
func (t *Translator) Match(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return t.defaultLang
	}
	_, idx, conf := t.matcher.Match(tags...)
	if conf == language.No {
		return t.defaultLang
	}
	base, _ := t.supported[idx].Base()
	return base.String()
}

// Translate übersetzt id; unbekannte Schlüssel werden unverändert zurückgegeben
func (t *Translator) Translate(lang, id string) string {
	loc, ok := t.localizers[lang]
	if !ok {
		loc = t.localizers[t.defaultLang]
	}
	msg, err := loc.Localize(&i18n.LocalizeConfig{MessageID: id})
	if err != nil {
		log.Debugf("Missing translation %q for %s: %v", id, lang, err)
		return id
	}
	return msg
}

// I18n erstellt eine Middleware für die Internationalisierung.
// Reihenfolge: ?lang=, Session, Accept-Language, Standardsprache.
func I18n(translator *Translator) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		lang := c.Query("lang")

		if lang != "" && translator.Supports(lang) {
			session.Set(LanguageKey, lang)
			if err := session.Save(); err != nil {
				log.Debugf("Failed to persist language preference: %v", err)
			}
		} else if stored, ok := session.Get(LanguageKey).(string); ok && translator.Supports(stored) {
			lang = stored
		} else {
			lang = translator.Match(c.GetHeader("Accept-Language"))
		}

		c.Set(LanguageKey, lang)
		c.Set(TranslatorKey, translator)
		c.Next()
	}
}

// T übersetzt id in die Sprache der Anfrage
func T(c *gin.Context, id string) string {
	tr, ok := c.Get(TranslatorKey)
	if !ok {
		return id
	}
	return tr.(*Translator).Translate(c.GetString(LanguageKey), id)
}
