package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causahq/causa/pkg/config"
)

func newLocal(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(&config.LocalStoreConfig{Dir: t.TempDir()}, 15*time.Minute)
	require.NoError(t, err)
	return s
}

func TestLocalPutGetExists(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	path := DraftPath("case-1", "Notificare reziliere", 1)
	require.NoError(t, s.Put(ctx, path, []byte("%PDF-1.4 test"), "application/pdf"))

	data, err := s.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 test", string(data))

	ok, err := s.Exists(ctx, path)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, DraftPath("case-1", "notificare-reziliere", 2))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, "cases/case-1/drafts/missing/rev-1.pdf")
	assert.Error(t, err)
}

func TestLocalPutReplaces(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	require.NoError(t, s.Put(ctx, "cases/c/attachments/a.txt", []byte("one"), "text/plain"))
	require.NoError(t, s.Put(ctx, "cases/c/attachments/a.txt", []byte("two"), "text/plain"))

	data, err := s.Get(ctx, "cases/c/attachments/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestLocalList(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Put(ctx, DraftPath("case-1", "notificare", i), []byte("x"), ""))
	}
	require.NoError(t, s.Put(ctx, DraftPath("case-2", "cerere", 1), []byte("x"), ""))
	require.NoError(t, s.Put(ctx, AttachmentPath("case-1", "contract.pdf"), []byte("x"), ""))

	paths, err := s.List(ctx, DraftPrefix("case-1"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"cases/case-1/drafts/notificare/rev-1.pdf",
		"cases/case-1/drafts/notificare/rev-2.pdf",
		"cases/case-1/drafts/notificare/rev-3.pdf",
	}, paths)

	paths, err = s.List(ctx, "cases/")
	require.NoError(t, err)
	assert.Len(t, paths, 5)
}

func TestLocalRejectsEscapingPaths(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	for _, p := range []string{"../outside", "/etc/passwd", ""} {
		err := s.Put(ctx, p, []byte("x"), "")
		assert.Error(t, err, "path %q", p)
	}
}

func TestLocalSignedURL(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	path := DraftPath("case-1", "notificare", 1)
	require.NoError(t, s.Put(ctx, path, []byte("x"), "application/pdf"))

	signed, err := s.SignedURL(ctx, path)
	require.NoError(t, err)
	u, err := url.Parse(signed)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u.Path, "/v1/objects/"), signed)

	exp := u.Query().Get("exp")
	sig := u.Query().Get("sig")
	require.NoError(t, s.VerifySignedPath(path, exp, sig))

	assert.Error(t, s.VerifySignedPath(path, exp, sig+"00"), "tampered signature")
	assert.Error(t, s.VerifySignedPath("cases/other/drafts/x/rev-1.pdf", exp, sig), "signature bound to path")

	s.now = func() time.Time { return time.Now().Add(16 * time.Minute) }
	assert.Error(t, s.VerifySignedPath(path, exp, sig), "expired link")
}

func TestDraftPathRoundTrip(t *testing.T) {
	path := DraftPath("case-9", "Notificare de Reziliere", 4)
	assert.Equal(t, "cases/case-9/drafts/notificare-de-reziliere/rev-4.pdf", path)

	caseID, name, rev, ok := ParseDraftPath(path)
	require.True(t, ok)
	assert.Equal(t, "case-9", caseID)
	assert.Equal(t, "notificare-de-reziliere", name)
	assert.Equal(t, 4, rev)

	for _, bad := range []string{
		"cases/case-9/attachments/contract.pdf",
		"cases/case-9/drafts/x/rev-0.pdf",
		"cases/case-9/drafts/x/rev-two.pdf",
		"other/case-9/drafts/x/rev-1.pdf",
		"cases/case-9/drafts/x/rev-1.docx",
	} {
		_, _, _, ok := ParseDraftPath(bad)
		assert.False(t, ok, "path %q", bad)
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"Notificare Reziliere":   "notificare-reziliere",
		"contract.pdf":           "contract.pdf",
		"  spaced  ":             "spaced",
		"../../etc/passwd":       "etcpasswd",
		"":                       "document",
		"Întâmpinare":            "ntmpinare",
		fmt.Sprintf("a%cb", 0x0): "ab",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeName(in), "input %q", in)
	}
}
