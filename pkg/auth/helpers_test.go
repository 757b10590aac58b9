package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"
)

const (
	testIssuerURL = "https://id.causa.example"
	testAudience  = "causa-api"
)

// testIssuer is a throwaway identity provider: an RSA key pair, a JWKS
// endpoint serving the public half, and a token mint signing with the
// private half.
type testIssuer struct {
	signKey jwk.Key
	jwksURL string
}

func newTestIssuer(t *testing.T) *testIssuer {
	t.Helper()

	private, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	signKey, err := jwk.FromRaw(private)
	require.NoError(t, err)
	require.NoError(t, signKey.Set(jwk.KeyIDKey, "test-key"))
	require.NoError(t, signKey.Set(jwk.AlgorithmKey, jwa.RS256))

	public, err := jwk.FromRaw(&private.PublicKey)
	require.NoError(t, err)
	require.NoError(t, public.Set(jwk.KeyIDKey, "test-key"))
	require.NoError(t, public.Set(jwk.AlgorithmKey, jwa.RS256))

	set := jwk.NewSet()
	require.NoError(t, set.AddKey(public))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(srv.Close)

	return &testIssuer{signKey: signKey, jwksURL: srv.URL + "/jwks.json"}
}

func (ti *testIssuer) validator(t *testing.T) *JWTValidator {
	t.Helper()
	v, err := NewJWTValidator(ti.jwksURL, testIssuerURL, testAudience)
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v
}

// token mints a signed token with sane defaults; mutators adjust claims for
// the negative cases.
func (ti *testIssuer) token(t *testing.T, mutate ...func(jwt.Token)) string {
	t.Helper()

	tok := jwt.New()
	require.NoError(t, tok.Set(jwt.IssuerKey, testIssuerURL))
	require.NoError(t, tok.Set(jwt.AudienceKey, testAudience))
	require.NoError(t, tok.Set(jwt.SubjectKey, "user-1"))
	require.NoError(t, tok.Set(jwt.IssuedAtKey, time.Now()))
	require.NoError(t, tok.Set(jwt.ExpirationKey, time.Now().Add(time.Hour)))
	for _, m := range mutate {
		m(tok)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, ti.signKey))
	require.NoError(t, err)
	return string(signed)
}
