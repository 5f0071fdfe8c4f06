package challenge

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failOn  string
}

func newMemStore() *memStore { return &memStore{objects: make(map[string][]byte)} }

func (m *memStore) Put(_ context.Context, key string, body io.Reader, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != "" && strings.Contains(key, m.failOn) {
		return "", errors.New("forced upload failure")
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.objects[key] = b
	return "mem://" + key, nil
}

func writeBundle(t *testing.T, dir, name string, files map[string]string) {
	t.Helper()
	bundle := filepath.Join(dir, name)
	if err := os.MkdirAll(bundle, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for fname, content := range files {
		if err := os.WriteFile(filepath.Join(bundle, fname), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", fname, err)
		}
	}
}

func TestProvisionPublishesArtifactsOnly(t *testing.T) {
	dir := t.TempDir()
	writeBundle(t, dir, "shroomish", map[string]string{
		"flag.txt":  "FLAG{spore}\n",
		"chall.py":  "print('challenge')",
		"helper.py": "# given to players",
		"solve.py":  "print('never expose')",
	})
	store := newMemStore()
	p := NewProvider(dir, store)

	ch, err := p.Provision(context.Background(), "match-1")
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if ch.Name != "shroomish" {
		t.Fatalf("unexpected bundle %q", ch.Name)
	}
	if ch.Answer != "FLAG{spore}" {
		t.Fatalf("answer not trimmed: %q", ch.Answer)
	}
	if len(ch.Artifacts) != 2 {
		t.Fatalf("expected 2 artifacts, got %d: %+v", len(ch.Artifacts), ch.Artifacts)
	}
	// Ordered list, answer and solver excluded.
	if ch.Artifacts[0].DisplayName != "chall.py" || ch.Artifacts[1].DisplayName != "helper.py" {
		t.Fatalf("wrong artifact set: %+v", ch.Artifacts)
	}
	for _, a := range ch.Artifacts {
		want := "mem://matches/match-1/" + a.DisplayName
		if a.Locator != want {
			t.Fatalf("locator %q, want %q", a.Locator, want)
		}
	}
	for key := range store.objects {
		if strings.Contains(key, "flag") || strings.Contains(key, "solve") {
			t.Fatalf("secret file published: %s", key)
		}
	}
}

func TestProvisionEmptyPool(t *testing.T) {
	p := NewProvider(t.TempDir(), newMemStore())
	if _, err := p.Provision(context.Background(), "match-1"); !errors.Is(err, ErrNoChallenges) {
		t.Fatalf("expected ErrNoChallenges, got %v", err)
	}
}

func TestProvisionMissingAnswerFile(t *testing.T) {
	dir := t.TempDir()
	writeBundle(t, dir, "broken", map[string]string{"chall.py": "x"})
	p := NewProvider(dir, newMemStore())
	if _, err := p.Provision(context.Background(), "match-1"); !errors.Is(err, ErrProvisioningFailed) {
		t.Fatalf("expected ErrProvisioningFailed, got %v", err)
	}
}

func TestProvisionUploadFailureFailsWholeSelection(t *testing.T) {
	dir := t.TempDir()
	writeBundle(t, dir, "shroomish", map[string]string{
		"flag.txt": "FLAG{spore}",
		"chall.py": "x",
	})
	store := newMemStore()
	store.failOn = "chall.py"
	p := NewProvider(dir, store)
	if _, err := p.Provision(context.Background(), "match-1"); !errors.Is(err, ErrProvisioningFailed) {
		t.Fatalf("expected ErrProvisioningFailed, got %v", err)
	}
}

func TestExcluded(t *testing.T) {
	cases := map[string]bool{
		"flag.txt":   true,
		"solve.py":   true,
		"Solve.PY":   true,
		"solver.go":  true,
		"chall.py":   false,
		"LoakOne.py": false,
	}
	for name, want := range cases {
		if got := excluded(name); got != want {
			t.Fatalf("excluded(%q)=%v want %v", name, got, want)
		}
	}
}
