package skills

import "testing"

func TestParseManifest_Valid(t *testing.T) {
	data := []byte(`name: github-pr
version: 1.2.0
description: opens pull requests
entry: bin/run
commands:
  - name: open
    description: open a PR
permissions:
  - network
  - fs:read
hooks:
  session:ended: onSessionEnded
`)
	m, err := ParseManifest(data)
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	if m.Name != "github-pr" || m.Version != "1.2.0" {
		t.Fatalf("unexpected manifest: %+v", m)
	}
	if len(m.Commands) != 1 || m.Commands[0].Name != "open" {
		t.Fatalf("expected one 'open' command, got %+v", m.Commands)
	}
	if _, ok := m.Hooks["session:ended"]; !ok {
		t.Fatalf("expected session:ended hook, got %+v", m.Hooks)
	}
}

func TestParseManifest_RejectsUppercaseName(t *testing.T) {
	data := []byte(`name: GitHub-PR
version: 1.0.0
entry: run
commands: [{name: open}]
permissions: [network]
`)
	if _, err := ParseManifest(data); err == nil {
		t.Fatal("expected rejection of non-kebab name")
	}
}

func TestParseManifest_RejectsNonSemverVersion(t *testing.T) {
	data := []byte(`name: github-pr
version: v1
entry: run
commands: [{name: open}]
permissions: [network]
`)
	if _, err := ParseManifest(data); err == nil {
		t.Fatal("expected rejection of non-semver version")
	}
}

func TestParseManifest_RejectsEmptyCommands(t *testing.T) {
	data := []byte(`name: github-pr
version: 1.0.0
entry: run
commands: []
permissions: [network]
`)
	if _, err := ParseManifest(data); err == nil {
		t.Fatal("expected rejection of zero commands")
	}
}

func TestParseManifest_RejectsEmptyPermissions(t *testing.T) {
	data := []byte(`name: github-pr
version: 1.0.0
entry: run
commands: [{name: open}]
permissions: []
`)
	if _, err := ParseManifest(data); err == nil {
		t.Fatal("expected rejection of zero permissions")
	}
}

func TestParseManifest_RejectsUnknownPermissionTag(t *testing.T) {
	data := []byte(`name: github-pr
version: 1.0.0
entry: run
commands: [{name: open}]
permissions: [tools.web_search]
`)
	if _, err := ParseManifest(data); err == nil {
		t.Fatal("expected rejection of unknown permission tag")
	}
}
