package main

import (
	"strings"
	"testing"
)

func TestNewRootCmdSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	want := map[string]bool{
		"synth": false,
		"mel":   false,
		"model": false,
		"serve": false,
	}

	for _, sub := range cmd.Commands() {
		name := sub.Name()
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}

	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestRootCmdRegistersConfigFlag(t *testing.T) {
	cmd := NewRootCmd()

	if cmd.PersistentFlags().Lookup("config") == nil {
		t.Fatal("--config flag not registered")
	}

	if cmd.PersistentFlags().Lookup("paths-model-path") == nil {
		t.Fatal("--paths-model-path flag not registered")
	}
}

func TestReadSynthText(t *testing.T) {
	got, err := readSynthText("direct text", strings.NewReader("ignored"))
	if err != nil || got != "direct text" {
		t.Fatalf("readSynthText(flag) = %q, %v", got, err)
	}

	got, err = readSynthText("", strings.NewReader("  piped text \n"))
	if err != nil || got != "piped text" {
		t.Fatalf("readSynthText(stdin) = %q, %v", got, err)
	}

	if _, err := readSynthText("", strings.NewReader("   ")); err == nil {
		t.Fatal("blank stdin accepted")
	}
}
