package objectstore

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"
)

// LocalStore keeps objects on the filesystem under a root directory. Signed
// URLs are relative links served by this process and authenticated with an
// HMAC over path and expiry; the signing key is generated at startup, so
// links do not survive a restart. Meant for development and tests.
type LocalStore struct {
	root   string
	ttl    time.Duration
	secret []byte
	now    func() time.Time
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore creates the root directory and a fresh signing key.
func NewLocalStore(cfg *config.LocalStoreConfig, ttl time.Duration) (*LocalStore, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fault.New(fault.PermanentBackend, component, "new_local", "create root dir", err)
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fault.New(fault.PermanentBackend, component, "new_local", "generate signing key", err)
	}
	return &LocalStore{root: cfg.Dir, ttl: ttl, secret: secret, now: time.Now}, nil
}

func (l *LocalStore) Put(_ context.Context, path string, data []byte, _ string) error {
	full, err := l.resolve("put", path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fault.New(fault.PermanentBackend, component, "put", "create object dir", err)
	}
	// Write-then-rename so readers never observe a partial object.
	tmp, err := os.CreateTemp(filepath.Dir(full), ".tmp-*")
	if err != nil {
		return fault.New(fault.PermanentBackend, component, "put", "create temp file", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fault.New(fault.PermanentBackend, component, "put", "write object", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fault.New(fault.PermanentBackend, component, "put", "close object", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return fault.New(fault.PermanentBackend, component, "put", "rename object", err)
	}
	return nil
}

func (l *LocalStore) Get(_ context.Context, path string) ([]byte, error) {
	full, err := l.resolve("get", path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return nil, notFound("get", path)
	}
	if err != nil {
		return nil, fault.New(fault.PermanentBackend, component, "get", "read object", err)
	}
	return data, nil
}

func (l *LocalStore) Exists(_ context.Context, path string) (bool, error) {
	full, err := l.resolve("exists", path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fault.New(fault.PermanentBackend, component, "exists", "stat object", err)
	}
	return true, nil
}

func (l *LocalStore) List(_ context.Context, prefix string) ([]string, error) {
	if prefix != "" {
		if _, err := l.resolve("list", strings.TrimSuffix(prefix, "/")); err != nil {
			return nil, err
		}
	}
	var out []string
	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) && !strings.HasPrefix(filepath.Base(key), ".tmp-") {
			out = append(out, key)
		}
		return nil
	})
	if err != nil {
		return nil, fault.New(fault.PermanentBackend, component, "list", "walk objects", err)
	}
	sort.Strings(out)
	return out, nil
}

func (l *LocalStore) SignedURL(_ context.Context, path string) (string, error) {
	if _, err := l.resolve("signed_url", path); err != nil {
		return "", err
	}
	exp := l.now().Add(l.ttl).Unix()
	sig := l.sign(path, exp)
	return fmt.Sprintf("/v1/objects/%s?exp=%d&sig=%s", pathEscape(path), exp, sig), nil
}

// VerifySignedPath authenticates the query parameters of a signed URL. The
// HTTP layer calls this before serving local objects.
func (l *LocalStore) VerifySignedPath(path, expStr, sig string) error {
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return fault.New(fault.Authorization, component, "verify_signed_path", "malformed expiry", nil)
	}
	if l.now().Unix() > exp {
		return fault.New(fault.Authorization, component, "verify_signed_path", "link expired", nil)
	}
	want := l.sign(path, exp)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return fault.New(fault.Authorization, component, "verify_signed_path", "bad signature", nil)
	}
	return nil
}

func (l *LocalStore) Close() error { return nil }

func (l *LocalStore) sign(path string, exp int64) string {
	mac := hmac.New(sha256.New, l.secret)
	fmt.Fprintf(mac, "%s\n%d", path, exp)
	return hex.EncodeToString(mac.Sum(nil))
}

// resolve maps an object path onto the filesystem and refuses anything that
// would escape the root.
func (l *LocalStore) resolve(op, path string) (string, error) {
	if path == "" || strings.HasPrefix(path, "/") {
		return "", fault.New(fault.Validation, component, op, "invalid object path '"+path+"'", nil)
	}
	full := filepath.Join(l.root, filepath.FromSlash(path))
	rel, err := filepath.Rel(l.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fault.New(fault.Validation, component, op, "object path escapes store root", nil)
	}
	return full, nil
}

func pathEscape(path string) string {
	segs := strings.Split(path, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
