package catalog

import (
	"testing"
	"testing/fstest"
)

func TestLoadEmbeddedHasExpectedLocales(t *testing.T) {
	bundle, err := LoadEmbedded()
	if err != nil {
		t.Fatalf("load embedded catalogs: %v", err)
	}
	locales := bundle.Locales()
	if len(locales) != 2 || locales[0] != BaseLocale || locales[1] != "pt-BR" {
		t.Fatalf("locales = %v, want [en-US pt-BR]", locales)
	}
	for _, locale := range locales {
		if _, ok := bundle.Message(locale, "notifications.deleted"); !ok {
			t.Fatalf("%s is missing notifications.deleted", locale)
		}
	}
}

func TestPrinterMatchesLocale(t *testing.T) {
	t.Parallel()

	tests := []struct {
		locale string
		want   string
	}{
		{locale: "", want: "Notification deleted"},
		{locale: "en-US", want: "Notification deleted"},
		{locale: "pt-BR", want: "Notificação excluída"},
		{locale: "pt", want: "Notificação excluída"},
		{locale: "fr-FR", want: "Notification deleted"},
		{locale: "not a locale", want: "Notification deleted"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.locale, func(t *testing.T) {
			t.Parallel()
			if got := Default().Printer(tc.locale).Sprintf("notifications.deleted"); got != tc.want {
				t.Fatalf("Sprintf = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMessageFallsBackToBaseLocale(t *testing.T) {
	bundle, err := LoadFromFS(fstest.MapFS{
		"locales/en-US/core.yaml": {Data: []byte("locale: en-US\nnamespace: core\nmessages:\n  core.hello: \"Hello\"\n  core.bye: \"Bye\"\n")},
		"locales/pt-BR/core.yaml": {Data: []byte("locale: pt-BR\nnamespace: core\nmessages:\n  core.hello: \"Olá\"\n")},
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got, _ := bundle.Message("pt-BR", "core.hello"); got != "Olá" {
		t.Fatalf("pt-BR hello = %q", got)
	}
	if got, ok := bundle.Message("pt-BR", "core.bye"); !ok || got != "Bye" {
		t.Fatalf("pt-BR bye = %q, %v, want base fallback", got, ok)
	}
	if _, ok := bundle.Message("pt-BR", "core.missing"); ok {
		t.Fatal("missing key reported as found")
	}
}

func TestLoadFromFSRejectsInvalidCatalogs(t *testing.T) {
	tests := []struct {
		name string
		fs   fstest.MapFS
	}{
		{
			name: "no files",
			fs:   fstest.MapFS{},
		},
		{
			name: "key outside namespace",
			fs: fstest.MapFS{
				"locales/en-US/web.yaml": {Data: []byte("locale: en-US\nnamespace: web\nmessages:\n  core.bad: \"nope\"\n")},
			},
		},
		{
			name: "locale does not match directory",
			fs: fstest.MapFS{
				"locales/en-US/web.yaml": {Data: []byte("locale: pt-BR\nnamespace: web\nmessages:\n  web.a: \"a\"\n")},
			},
		},
		{
			name: "missing base locale",
			fs: fstest.MapFS{
				"locales/pt-BR/web.yaml": {Data: []byte("locale: pt-BR\nnamespace: web\nmessages:\n  web.a: \"a\"\n")},
			},
		},
		{
			name: "malformed yaml",
			fs: fstest.MapFS{
				"locales/en-US/web.yaml": {Data: []byte("locale: [en-US\n")},
			},
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadFromFS(tc.fs); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
