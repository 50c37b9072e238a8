// Package session issues and reads the signed cookie that carries the
// logged-in user's id between requests.
//
// The cookie is client-held: nothing is stored server side, so a cookie stays
// valid until it expires or the secret that signed it is retired.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

const (
	CookieName    = "__session"
	DefaultMaxAge = 30 * 24 * time.Hour

	ephemeralSecretBytes = 32
)

// SecretMode selects where the signing secret comes from.
type SecretMode int

const (
	// SecretStatic signs with the configured secrets; at least one is required.
	SecretStatic SecretMode = iota
	// SecretEphemeral signs with a random secret generated at construction.
	// Every process restart invalidates all sessions.
	SecretEphemeral
)

func (m SecretMode) String() string {
	switch m {
	case SecretStatic:
		return "static"
	case SecretEphemeral:
		return "ephemeral"
	default:
		return "unknown"
	}
}

var (
	ErrNoSecret    = errors.New("session: no secret configured")
	ErrEmptyUserID = errors.New("session: empty user id")
	// ErrInvalid covers every unreadable cookie: bad signature, malformed
	// payload, unexpected algorithm, expired.
	ErrInvalid = errors.New("session: invalid")
)

// Options configures a Codec.
type Options struct {
	// Secrets are tried in order when reading; the first one signs new
	// cookies. Listing an old secret after a new one keeps existing sessions
	// alive during a rotation.
	Secrets []string
	Mode    SecretMode
	// Secure marks the cookie Secure. Enable it when serving over TLS.
	Secure bool
	// MaxAge defaults to DefaultMaxAge.
	MaxAge time.Duration
	// Encrypt seals the signed payload so the user id is not readable by the
	// client.
	Encrypt bool
	// Now defaults to time.Now.
	Now func() time.Time
}

type claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

type key struct {
	mac  []byte
	aead *sealer
}

// Codec is safe for concurrent use; its keys are fixed at construction.
type Codec struct {
	keys      []key
	mode      SecretMode
	secure    bool
	maxAge    time.Duration
	now       func() time.Time
	parser    *jwt.Parser
	encrypted bool
}

// New builds a Codec. SecretStatic requires at least one non-empty secret;
// SecretEphemeral must not be given any.
func New(opts Options) (*Codec, error) {
	var secrets []string
	for _, s := range opts.Secrets {
		if s = strings.TrimSpace(s); s != "" {
			secrets = append(secrets, s)
		}
	}

	switch opts.Mode {
	case SecretStatic:
		if len(secrets) == 0 {
			return nil, ErrNoSecret
		}
	case SecretEphemeral:
		if len(secrets) > 0 {
			return nil, oops.Code("SESSION_CONFIG_INVALID").Errorf("ephemeral mode generates its own secret, got %d configured", len(secrets))
		}
		s, err := randomSecret()
		if err != nil {
			return nil, err
		}
		secrets = []string{s}
	default:
		return nil, oops.Code("SESSION_CONFIG_INVALID").Errorf("unknown secret mode %d", opts.Mode)
	}

	c := &Codec{
		mode:      opts.Mode,
		secure:    opts.Secure,
		maxAge:    opts.MaxAge,
		now:       opts.Now,
		encrypted: opts.Encrypt,
	}
	if c.maxAge <= 0 {
		c.maxAge = DefaultMaxAge
	}
	if c.now == nil {
		c.now = time.Now
	}
	for _, s := range secrets {
		k := key{mac: []byte(s)}
		if opts.Encrypt {
			aead, err := newSealer(s)
			if err != nil {
				return nil, err
			}
			k.aead = aead
		}
		c.keys = append(c.keys, k)
	}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	)
	return c, nil
}

// Mode reports how the signing secret was obtained.
func (c *Codec) Mode() SecretMode { return c.mode }

// Ephemeral is true when sessions will not survive a restart.
func (c *Codec) Ephemeral() bool { return c.mode == SecretEphemeral }

// Encrypted reports whether cookie payloads are sealed.
func (c *Codec) Encrypted() bool { return c.encrypted }

// MaxAge is the lifetime of an issued session.
func (c *Codec) MaxAge() time.Duration { return c.maxAge }

// Issue returns a cookie asserting userID for MaxAge from now.
func (c *Codec) Issue(userID string) (*http.Cookie, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	now := c.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.maxAge)),
		},
	})
	k := c.keys[0]
	value, err := tok.SignedString(k.mac)
	if err != nil {
		return nil, oops.Code("SESSION_SIGN_FAILED").Wrap(err)
	}
	if k.aead != nil {
		if value, err = k.aead.seal(value); err != nil {
			return nil, oops.Code("SESSION_SEAL_FAILED").Wrap(err)
		}
	}
	ck := c.cookie(value)
	ck.MaxAge = int(c.maxAge / time.Second)
	return ck, nil
}

// Decode returns the user id carried by a cookie value, or ErrInvalid.
func (c *Codec) Decode(value string) (string, error) {
	if value == "" {
		return "", ErrInvalid
	}
	for _, k := range c.keys {
		raw := value
		if k.aead != nil {
			opened, err := k.aead.open(value)
			if err != nil {
				continue
			}
			raw = opened
		}
		var cl claims
		tok, err := c.parser.ParseWithClaims(raw, &cl, func(*jwt.Token) (any, error) {
			return k.mac, nil
		})
		if err != nil || !tok.Valid || cl.UserID == "" {
			continue
		}
		return cl.UserID, nil
	}
	return "", ErrInvalid
}

// Read parses a raw Cookie request header. A missing or unreadable session
// cookie yields ok == false; it is never an error.
func (c *Codec) Read(cookieHeader string) (userID string, ok bool) {
	if cookieHeader == "" {
		return "", false
	}
	r := &http.Request{Header: http.Header{"Cookie": []string{cookieHeader}}}
	return c.ReadRequest(r)
}

// ReadRequest is Read for an incoming request.
func (c *Codec) ReadRequest(r *http.Request) (userID string, ok bool) {
	ck, err := r.Cookie(CookieName)
	if err != nil {
		return "", false
	}
	userID, err = c.Decode(ck.Value)
	if err != nil {
		return "", false
	}
	return userID, true
}

// Destroy returns a cookie that makes the client drop its session.
func (c *Codec) Destroy() *http.Cookie {
	ck := c.cookie("")
	ck.MaxAge = -1
	ck.Expires = time.Unix(0, 0).UTC()
	return ck
}

func (c *Codec) cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func randomSecret() (string, error) {
	b := make([]byte, ephemeralSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("SESSION_SECRET_GENERATE_FAILED").
			With("requested_bytes", ephemeralSecretBytes).
			Wrap(err)
	}
	return hex.EncodeToString(b), nil
}

// GenerateSecret returns a random value suitable for SESSION_SECRET.
func GenerateSecret() (string, error) {
	return randomSecret()
}
