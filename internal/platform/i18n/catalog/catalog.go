// Package catalog loads the embedded message catalogs used for user-facing
// notices and exposes them through x/text printers.
package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	textcatalog "golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"
)

// BaseLocale is the canonical source locale and the fallback for lookups.
const BaseLocale = "en-US"

type catalogFile struct {
	Locale    string            `yaml:"locale"`
	Namespace string            `yaml:"namespace"`
	Messages  map[string]string `yaml:"messages"`
}

// Bundle holds every loaded locale.
type Bundle struct {
	messages map[string]map[string]string
	tags     []language.Tag
	matcher  language.Matcher
	builder  *textcatalog.Builder
}

//go:embed locales/*/*.yaml
var embeddedFS embed.FS

var defaultBundle = mustLoadEmbedded()

// Default returns the process-wide embedded bundle.
func Default() *Bundle {
	return defaultBundle
}

// LoadEmbedded loads the catalogs compiled into this package.
func LoadEmbedded() (*Bundle, error) {
	return LoadFromFS(embeddedFS)
}

// LoadFromFS loads locales/<locale>/<namespace>.yaml files from fsys.
func LoadFromFS(fsys fs.FS) (*Bundle, error) {
	paths, err := fs.Glob(fsys, "locales/*/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locale catalogs: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no catalog files found")
	}
	sort.Strings(paths)

	b := &Bundle{messages: map[string]map[string]string{}}
	for _, path := range paths {
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		var file catalogFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", path, err)
		}
		if err := b.add(path, file); err != nil {
			return nil, err
		}
	}
	if _, ok := b.messages[BaseLocale]; !ok {
		return nil, fmt.Errorf("base locale %s is not defined in catalogs", BaseLocale)
	}
	if err := b.build(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bundle) add(path string, file catalogFile) error {
	parts := strings.Split(path, "/")
	dirLocale := parts[len(parts)-2]
	fileNamespace := strings.TrimSuffix(parts[len(parts)-1], ".yaml")

	locale := strings.TrimSpace(file.Locale)
	if locale != dirLocale {
		return fmt.Errorf("catalog %s: locale %q must match path locale %q", path, locale, dirLocale)
	}
	namespace := strings.TrimSpace(file.Namespace)
	if namespace != fileNamespace {
		return fmt.Errorf("catalog %s: namespace %q must match filename namespace %q", path, namespace, fileNamespace)
	}
	if len(file.Messages) == 0 {
		return fmt.Errorf("catalog %s: messages map is required", path)
	}

	messages, ok := b.messages[locale]
	if !ok {
		messages = map[string]string{}
		b.messages[locale] = messages
	}
	for key, value := range file.Messages {
		key = strings.TrimSpace(key)
		if !strings.HasPrefix(key, namespace+".") {
			return fmt.Errorf("catalog %s: key %q must start with %q", path, key, namespace+".")
		}
		if _, exists := messages[key]; exists {
			return fmt.Errorf("catalog %s: duplicate key %q in locale %q", path, key, locale)
		}
		messages[key] = value
	}
	return nil
}

func (b *Bundle) build() error {
	base := language.MustParse(BaseLocale)
	b.builder = textcatalog.NewBuilder(textcatalog.Fallback(base))
	b.tags = []language.Tag{base}

	for _, locale := range b.Locales() {
		tag, err := language.Parse(locale)
		if err != nil {
			return fmt.Errorf("parse locale tag %q: %w", locale, err)
		}
		if tag != base {
			b.tags = append(b.tags, tag)
		}
		for key, value := range b.messages[locale] {
			if err := b.builder.SetString(tag, key, value); err != nil {
				return fmt.Errorf("register %s %q: %w", locale, key, err)
			}
		}
	}
	b.matcher = language.NewMatcher(b.tags)
	return nil
}

// Locales returns the loaded locale identifiers, sorted.
func (b *Bundle) Locales() []string {
	out := make([]string, 0, len(b.messages))
	for locale := range b.messages {
		out = append(out, locale)
	}
	sort.Strings(out)
	return out
}

// Message returns the text of key in locale, falling back to BaseLocale.
func (b *Bundle) Message(locale, key string) (string, bool) {
	if v, ok := b.messages[strings.TrimSpace(locale)][key]; ok {
		return v, true
	}
	v, ok := b.messages[BaseLocale][key]
	return v, ok
}

// Printer returns a printer for the closest loaded match of locale. An empty
// or unknown locale yields BaseLocale.
func (b *Bundle) Printer(locale string) *message.Printer {
	tag := b.tags[0]
	if locale = strings.TrimSpace(locale); locale != "" {
		if requested, err := language.Parse(locale); err == nil {
			_, idx, confidence := b.matcher.Match(requested)
			if confidence != language.No {
				tag = b.tags[idx]
			}
		}
	}
	return message.NewPrinter(tag, message.Catalog(b.builder))
}

func mustLoadEmbedded() *Bundle {
	b, err := LoadEmbedded()
	if err != nil {
		panic(fmt.Sprintf("load embedded catalogs: %v", err))
	}
	return b
}
