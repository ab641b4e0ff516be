package main

import (
	"bytes"
	"strings"
	"testing"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestLanguagesCommandListsCatalogue(t *testing.T) {
	out, err := runCommand(t, "languages")
	if err != nil {
		t.Fatalf("languages: %v", err)
	}
	for _, want := range []string{"en", "zh-CN", "Chinese (Traditional)", "Vietnamese"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "subtrans") {
		t.Fatalf("unexpected version output: %s", out)
	}
}

func TestSubmitRequiresLanguageFlag(t *testing.T) {
	_, err := runCommand(t, "submit", "video.mp4")
	if err == nil {
		t.Fatal("expected missing required flag error")
	}
}

func TestSplitLanguages(t *testing.T) {
	got := splitLanguages([]string{"fr, ja", "de", ""})
	if len(got) != 3 || got[0] != "fr" || got[1] != "ja" || got[2] != "de" {
		t.Fatalf("unexpected split: %v", got)
	}
}
