// internal/gate/preview.go
//
// Preview tokens: the bypass credential for maintenance, draft, and
// preview sites.
//
// Context
// -------
// Editors need to see a site before it goes live, or while the public sees
// the maintenance page.  A preview token is an HS256 JWT whose `tid` claim
// names the one tenant it unlocks.  It is minted by the admin endpoint
// (POST /_gate/preview/{id}) and presented on any request as
//
//   - the X-Preview-Token header,
//   - the preview_token query parameter, or
//   - the hostgate_preview cookie,
//
// checked in that order.
//
// Notes
// -----
//   - A token for tenant A never bypasses tenant B.
//   - An empty secret disables issuing and makes every token invalid.
//   - Oxford commas, two spaces after periods.
package gate

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	HeaderPreviewToken = "X-Preview-Token"
	QueryPreviewToken  = "preview_token"
	CookiePreviewToken = "hostgate_preview"

	DefaultPreviewTTL = time.Hour
	previewIssuer     = "hostgate"
)

var (
	ErrInvalidPreviewToken = errors.New("invalid preview token")
	ErrPreviewDisabled     = errors.New("preview tokens disabled")
)

type previewClaims struct {
	TenantID string `json:"tid"`
	jwt.RegisteredClaims
}

// Previewer issues and verifies preview tokens.
type Previewer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewPreviewer returns a Previewer signing with secret.  ttl <= 0 uses
// DefaultPreviewTTL.
func NewPreviewer(secret string, ttl time.Duration) *Previewer {
	if ttl <= 0 {
		ttl = DefaultPreviewTTL
	}
	return &Previewer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue mints a token for tenantID and returns it with its expiry.
func (p *Previewer) Issue(tenantID string) (string, time.Time, error) {
	if len(p.secret) == 0 {
		return "", time.Time{}, ErrPreviewDisabled
	}
	now := p.now()
	exp := now.Add(p.ttl)
	claims := previewClaims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    previewIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// Verify returns nil when token is valid, unexpired, and bound to tenantID.
func (p *Previewer) Verify(token, tenantID string) error {
	if len(p.secret) == 0 {
		return ErrPreviewDisabled
	}
	if token == "" || tenantID == "" {
		return ErrInvalidPreviewToken
	}
	parsed, err := jwt.ParseWithClaims(token, &previewClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidPreviewToken
		}
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(previewIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return ErrInvalidPreviewToken
	}
	claims, ok := parsed.Claims.(*previewClaims)
	if !ok || !parsed.Valid || claims.TenantID != tenantID {
		return ErrInvalidPreviewToken
	}
	return nil
}

// TokenFromRequest returns the raw preview credential on r, or "".
func TokenFromRequest(r *http.Request) string {
	if v := r.Header.Get(HeaderPreviewToken); v != "" {
		return v
	}
	if v := r.URL.Query().Get(QueryPreviewToken); v != "" {
		return v
	}
	if c, err := r.Cookie(CookiePreviewToken); err == nil {
		return c.Value
	}
	return ""
}
