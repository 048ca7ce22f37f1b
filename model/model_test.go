package model

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestConfigMetadataRoundTrip(t *testing.T) {
	want := DefaultConfig(12)
	want.KeepProb = 0.75

	got, err := ConfigFromMetadata(want.Metadata())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Config mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigFromMetadataDefaults(t *testing.T) {
	got, err := ConfigFromMetadata(map[string]string{"vae.hidden_size": "4"})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(DefaultConfig(4), got); diff != "" {
		t.Errorf("Config mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigFromMetadataErrors(t *testing.T) {
	cases := map[string]map[string]string{
		"ohne hidden size": {},
		"hidden size":      {"vae.hidden_size": "zehn"},
		"keep prob":        {"vae.hidden_size": "4", "vae.keep_prob": "x"},
		"norm scale":       {"vae.hidden_size": "4", "vae.norm.scale": "vielleicht"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ConfigFromMetadata(kv); err == nil {
				t.Error("Fehler erwartet")
			}
		})
	}
}

func TestRegisterTwicePanics(t *testing.T) {
	Register("test-arch", nil)
	defer delete(models, "test-arch")

	defer func() {
		if recover() == nil {
			t.Error("doppelte Registrierung sollte paniken")
		}
	}()
	Register("test-arch", nil)
}
