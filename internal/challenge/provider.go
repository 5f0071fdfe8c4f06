package challenge

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/chronopad/hacking-saga-app/internal/match"
	"github.com/chronopad/hacking-saga-app/internal/obslog"
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

var (
	ErrNoChallenges       = staticErr("no challenge bundles available")
	ErrProvisioningFailed = staticErr("challenge provisioning failed")
)

// answerFileName holds the flag inside a bundle directory. It is never
// published as an artifact, and neither is any solver file.
const answerFileName = "flag.txt"

// Provider selects a random challenge bundle from a local pool directory and
// publishes its artifacts to the object store under a match-scoped prefix.
// A bundle is one subdirectory: flag.txt (the answer), optional solve*
// reference files, and the artifact files handed to both participants.
type Provider struct {
	dir   string
	store ObjectStore
}

func NewProvider(dir string, store ObjectStore) *Provider {
	return &Provider{dir: dir, store: store}
}

// Provision implements match.ChallengeProvider. Any failure, from a missing
// answer file to a single artifact upload error, fails the whole selection so
// the caller never starts a half-provisioned match.
func (p *Provider) Provision(ctx context.Context, matchID string) (*match.Challenge, error) {
	bundles, err := p.listBundles()
	if err != nil {
		return nil, fmt.Errorf("%w: list pool: %s", ErrProvisioningFailed, err)
	}
	if len(bundles) == 0 {
		return nil, ErrNoChallenges
	}
	name := bundles[randIndex(len(bundles))]
	bundleDir := filepath.Join(p.dir, name)

	raw, err := os.ReadFile(filepath.Join(bundleDir, answerFileName))
	if err != nil {
		return nil, fmt.Errorf("%w: read answer for %s: %s", ErrProvisioningFailed, name, err)
	}
	answer := strings.TrimSpace(string(raw))
	if answer == "" {
		return nil, fmt.Errorf("%w: empty answer in %s", ErrProvisioningFailed, name)
	}

	entries, err := os.ReadDir(bundleDir)
	if err != nil {
		return nil, fmt.Errorf("%w: read bundle %s: %s", ErrProvisioningFailed, name, err)
	}
	var artifacts []match.Artifact
	for _, e := range entries {
		if !e.Type().IsRegular() || excluded(e.Name()) {
			continue
		}
		locator, perr := p.publish(ctx, matchID, bundleDir, e.Name())
		if perr != nil {
			return nil, fmt.Errorf("%w: publish %s/%s: %s", ErrProvisioningFailed, name, e.Name(), perr)
		}
		artifacts = append(artifacts, match.Artifact{DisplayName: e.Name(), Locator: locator})
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].DisplayName < artifacts[j].DisplayName })

	obslog.L().Info("challenge_provisioned",
		zap.String("match_id", matchID),
		zap.String("challenge", name),
		zap.Int("artifacts", len(artifacts)),
	)
	return &match.Challenge{Name: name, Answer: answer, Artifacts: artifacts}, nil
}

func (p *Provider) publish(ctx context.Context, matchID, bundleDir, fileName string) (string, error) {
	f, err := os.Open(filepath.Join(bundleDir, fileName))
	if err != nil {
		return "", err
	}
	defer f.Close()
	key := path.Join("matches", matchID, fileName)
	return p.store.Put(ctx, key, f, contentTypeFor(fileName))
}

func (p *Provider) listBundles() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// excluded reports whether a bundle file must never reach clients: the answer
// file and solver/reference files.
func excluded(name string) bool {
	if name == answerFileName {
		return true
	}
	return strings.HasPrefix(strings.ToLower(name), "solve")
}

func contentTypeFor(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

func randIndex(n int) int {
	if n <= 1 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}
