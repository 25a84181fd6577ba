// Package i18n resolves localized reply templates from YAML catalogs.
package i18n

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Translator resolves localized strings using dot-separated keys. Missing
// keys resolve to the key itself so a thin catalog never blanks a reply.
type Translator interface {
	T(key string) string
	Lang() string
}

// Catalog holds every loaded language.
type Catalog struct {
	entries     map[string]map[string]string
	defaultLang string
}

// LoadDir reads every YAML file in dir and merges them into one catalog.
// Each file maps a language code to a nested tree of templates; nested keys
// flatten to dot-separated paths.
func LoadDir(dir, defaultLang string) (*Catalog, error) {
	if defaultLang == "" {
		defaultLang = "es"
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("i18n: read dir %s: %w", dir, err)
	}

	entries := make(map[string]map[string]string)
	for _, file := range files {
		if file.IsDir() || !isYAML(file.Name()) {
			continue
		}

		if err := mergeFile(filepath.Join(dir, file.Name()), entries); err != nil {
			return nil, err
		}
	}

	if entries[defaultLang] == nil {
		return nil, fmt.Errorf("i18n: default language %q missing in %s", defaultLang, dir)
	}

	return &Catalog{entries: entries, defaultLang: defaultLang}, nil
}

// Translator returns a translator for lang, falling back to the default
// language for unknown codes and missing keys.
func (c *Catalog) Translator(lang string) Translator {
	if c == nil {
		return translator{}
	}

	norm := strings.ToLower(strings.TrimSpace(lang))
	if norm == "" || c.entries[norm] == nil {
		norm = c.defaultLang
	}

	return translator{lang: norm, fallback: c.defaultLang, entries: c.entries}
}

// Languages lists the loaded language codes.
func (c *Catalog) Languages() []string {
	if c == nil {
		return nil
	}

	langs := make([]string, 0, len(c.entries))
	for lang := range c.entries {
		langs = append(langs, lang)
	}

	return langs
}

// Null returns a translator with no catalog; every lookup echoes its key.
func Null() Translator {
	return translator{}
}

type translator struct {
	lang     string
	fallback string
	entries  map[string]map[string]string
}

func (t translator) Lang() string {
	return t.lang
}

func (t translator) T(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}

	if v := t.lookup(t.lang, key); v != "" {
		return v
	}
	if v := t.lookup(t.fallback, key); v != "" {
		return v
	}

	return key
}

func (t translator) lookup(lang, key string) string {
	if lang == "" || t.entries == nil {
		return ""
	}

	return t.entries[lang][key]
}

func isYAML(name string) bool {
	name = strings.ToLower(name)
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

func mergeFile(path string, into map[string]map[string]string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("i18n: read %s: %w", path, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("i18n: parse %s: %w", path, err)
	}

	for lang, tree := range raw {
		code := strings.ToLower(strings.TrimSpace(lang))
		if code == "" {
			continue
		}

		flat := make(map[string]string)
		flatten("", tree, flat)
		if len(flat) == 0 {
			continue
		}

		if into[code] == nil {
			into[code] = make(map[string]string)
		}
		for k, v := range flat {
			into[code][k] = v
		}
	}

	return nil
}

func flatten(prefix string, node any, out map[string]string) {
	switch v := node.(type) {
	case string:
		if prefix != "" {
			out[prefix] = v
		}
	case map[string]any:
		for k, child := range v {
			flatten(joinKey(prefix, k), child, out)
		}
	case map[any]any:
		for k, child := range v {
			flatten(joinKey(prefix, fmt.Sprint(k)), child, out)
		}
	}
}

func joinKey(prefix, key string) string {
	key = strings.TrimSpace(key)
	if prefix == "" {
		return key
	}

	return prefix + "." + key
}
