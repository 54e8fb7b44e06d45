package main

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		full := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("Failed to create dir for %s: %v", name, err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	return dir
}

func TestRunUsage(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  string
		wantErr  string
	}{
		{name: "No arguments", args: []string{}, wantCode: 1, wantErr: "Usage: fhcache"},
		{name: "Help flag", args: []string{"--help"}, wantCode: 0, wantOut: "COMMANDS:"},
		{name: "Help command", args: []string{"help"}, wantCode: 0, wantOut: "--compare-engines"},
		{name: "Unknown flag", args: []string{"--bogus"}, wantCode: 1, wantErr: "unknown flag"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, errOut bytes.Buffer
			code := run(tt.args, &out, &errOut)
			if code != tt.wantCode {
				t.Errorf("run() = %d, want %d (stderr: %s)", code, tt.wantCode, errOut.String())
			}
			if tt.wantOut != "" && !strings.Contains(out.String(), tt.wantOut) {
				t.Errorf("stdout missing %q:\n%s", tt.wantOut, out.String())
			}
			if tt.wantErr != "" && !strings.Contains(errOut.String(), tt.wantErr) {
				t.Errorf("stderr missing %q:\n%s", tt.wantErr, errOut.String())
			}
		})
	}
}

func TestRunHash(t *testing.T) {
	dir := writeTree(t, map[string]string{"a.txt": "hello\n"})
	target := filepath.Join(dir, "a.txt")

	var out, errOut bytes.Buffer
	if code := run([]string{"--root", dir, "hash", target}, &out, &errOut); code != 0 {
		t.Fatalf("hash failed with code %d: %s", code, errOut.String())
	}

	sum := sha1.Sum([]byte("hello\n"))
	want := hex.EncodeToString(sum[:]) + "  " + target + "\n"
	if out.String() != want {
		t.Errorf("Expected %q, got %q", want, out.String())
	}
}

func TestRunHashAlgorithmFlag(t *testing.T) {
	dir := writeTree(t, map[string]string{"a.txt": "hello\n"})

	var out, errOut bytes.Buffer
	if code := run([]string{"--root", dir, "--algorithm", "sha256", "hash", filepath.Join(dir, "a.txt")}, &out, &errOut); code != 0 {
		t.Fatalf("hash failed with code %d: %s", code, errOut.String())
	}
	digest := strings.Fields(out.String())[0]
	if len(digest) != 64 {
		t.Errorf("Expected a sha256 hex digest, got %q", digest)
	}

	out.Reset()
	errOut.Reset()
	if code := run([]string{"--root", dir, "--algorithm", "md5", "hash", filepath.Join(dir, "a.txt")}, &out, &errOut); code != 1 {
		t.Errorf("Expected failure for unsupported algorithm, got code %d", code)
	}
}

func TestRunSize(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"src/a.txt": "12345",
		"src/b.txt": "123",
	})

	var out, errOut bytes.Buffer
	src := filepath.Join(dir, "src")
	if code := run([]string{"--root", dir, "size", src}, &out, &errOut); code != 0 {
		t.Fatalf("size failed with code %d: %s", code, errOut.String())
	}
	if want := "8\t" + src + "\n"; out.String() != want {
		t.Errorf("Expected %q, got %q", want, out.String())
	}
}

func TestRunVerify(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"src/a.txt": "a",
		"src/b.txt": "b",
	})

	var out, errOut bytes.Buffer
	if code := run([]string{"--root", dir, "verify", filepath.Join(dir, "src")}, &out, &errOut); code != 0 {
		t.Fatalf("verify failed with code %d: %s\n%s", code, errOut.String(), out.String())
	}
	if !strings.Contains(out.String(), "0 mismatches") {
		t.Errorf("Expected no mismatches, got:\n%s", out.String())
	}
}

func TestRunDump(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"src/a.txt": "a",
		"src/b.txt": "b",
	})
	dumpPath := filepath.Join(t.TempDir(), "cache.tsv")

	var out, errOut bytes.Buffer
	if code := run([]string{"--root", dir, "dump", dumpPath, filepath.Join(dir, "src")}, &out, &errOut); code != 0 {
		t.Fatalf("dump failed with code %d: %s", code, errOut.String())
	}

	data, err := os.ReadFile(dumpPath)
	if err != nil {
		t.Fatalf("Failed to read dump: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected 3 dump lines, got %d:\n%s", len(lines), data)
	}
	for i, prefix := range []string{"src\tDIRECTORY\t", "src/a.txt\tFILE\t", "src/b.txt\tFILE\t"} {
		if !strings.HasPrefix(lines[i], prefix) {
			t.Errorf("Line %d: expected prefix %q, got %q", i, prefix, lines[i])
		}
	}
}

func TestRunCompareEngines(t *testing.T) {
	dir := writeTree(t, map[string]string{"src/a.txt": "a"})

	var out, errOut bytes.Buffer
	if code := run([]string{"--root", dir, "--compare-engines", "hash", filepath.Join(dir, "src")}, &out, &errOut); code != 0 {
		t.Fatalf("hash failed with code %d: %s", code, errOut.String())
	}
	if strings.Contains(errOut.String(), "engine discrepancy") {
		t.Errorf("Engines disagreed on a static tree:\n%s", errOut.String())
	}
}

func TestParseTarget(t *testing.T) {
	archive, member, ok := parseTarget("lib/x.jar!/com/A.class")
	if !ok || archive != "lib/x.jar" || member != "com/A.class" {
		t.Errorf("parseTarget = (%q, %q, %t)", archive, member, ok)
	}
	if _, _, ok := parseTarget("lib/x.jar"); ok {
		t.Error("Plain path parsed as archive member")
	}
}
