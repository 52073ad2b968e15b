//
//  internal/requestinfo/requestinfo.go
//
//  Lightweight types and helpers that collect per-request metadata
//  (user-agent fingerprint, client IP + geolocation, host, and timestamp).
//  The gate middleware logs them next to every rejection, and
//  /_debug/whoami echoes them back.  These structs are inert: no pointers
//  to database handles or large buffers, so they are safe to log or
//  JSON-encode.
//
//  Dependencies
//  • github.com/avct/uasurfer           (UA parsing)
//  • github.com/oschwald/geoip2-golang  (MaxMind lookup, optional)
//

package requestinfo

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/avct/uasurfer"
	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"
)

//
//  -----------------------------
//  Struct definitions
//  -----------------------------
//

// UA holds the parsed user-agent properties.
type UA struct {
	Raw         string `json:"raw"`
	Browser     string `json:"browser"`    // "Chrome", "Firefox", "Safari", ...
	Version     string `json:"version"`    // "124.0.6367"
	OS          string `json:"os"`         // "macOS", "Windows", "Android", ...
	OSVersion   string `json:"os_version"` // "14.5", "11", "10.0"
	Device      string `json:"device"`     // "Desktop", "Phone", "Tablet", ...
	Platform    string `json:"platform"`   // "Mac", "Windows", "Linux", ...
	IsBot       bool   `json:"is_bot"`
	PrimaryLang string `json:"primary_lang"` // first Accept-Language tag
}

// Geo holds IP-based geolocation hints.  Best-effort; empty when no
// database is configured or it has no match.
type Geo struct {
	IP         net.IP `json:"ip"`
	CountryISO string `json:"country_iso,omitempty"`
	City       string `json:"city,omitempty"`
}

// RequestInfo is stored on the request context by Enricher.
type RequestInfo struct {
	UA        UA        `json:"ua"`
	Geo       Geo       `json:"geo"`
	Host      string    `json:"host"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
}

// Fields renders the info for a zap log line.
func (ri *RequestInfo) Fields() []zap.Field {
	if ri == nil {
		return nil
	}
	return []zap.Field{
		zap.Stringer("ip", ri.Geo.IP),
		zap.String("country", ri.Geo.CountryISO),
		zap.String("browser", ri.UA.Browser),
		zap.String("device", ri.UA.Device),
		zap.Bool("bot", ri.UA.IsBot),
	}
}

//
//  -----------------------------
//  Geo database
//  -----------------------------
//

// OpenGeo opens a GeoLite2-City database.  The reader is safe for
// concurrent reads; Close it on shutdown.
func OpenGeo(dbPath string) (*geoip2.Reader, error) {
	return geoip2.Open(dbPath)
}

//
//  -----------------------------
//  Public helper: FromContext
//  -----------------------------
//

type ctxKey struct{} // unexported, collision-proof

// WithInfo returns a copy of ctx carrying info.
func WithInfo(ctx context.Context, info *RequestInfo) context.Context {
	return context.WithValue(ctx, ctxKey{}, info)
}

// FromContext returns the pointer stored by Enricher, or nil.
func FromContext(ctx context.Context) *RequestInfo {
	v, _ := ctx.Value(ctxKey{}).(*RequestInfo)
	return v
}

//
//  -----------------------------
//  Internal helpers
//  -----------------------------
//

// parseUA converts a raw header into our UA struct using uasurfer.
func parseUA(uaHeader, acceptLang string) UA {
	u := uasurfer.Parse(uaHeader)

	osName := strings.TrimPrefix(u.OS.Name.String(), "OS")
	if osName == "MacOSX" {
		osName = "macOS"
	}

	return UA{
		Raw:         uaHeader,
		Browser:     strings.TrimPrefix(u.Browser.Name.String(), "Browser"),
		Version:     trimVersion(u.Browser.Version),
		OS:          osName,
		OSVersion:   trimVersion(u.OS.Version),
		Device:      deviceTypeToString(u.DeviceType),
		Platform:    strings.TrimPrefix(u.OS.Platform.String(), "Platform"),
		IsBot:       u.IsBot(),
		PrimaryLang: primaryLang(acceptLang),
	}
}

// trimVersion builds "major.minor.patch" and drops trailing ".0" parts.
func trimVersion(v uasurfer.Version) string {
	parts := []string{strconv.Itoa(v.Major), strconv.Itoa(v.Minor), strconv.Itoa(v.Patch)}
	for len(parts) > 1 && parts[len(parts)-1] == "0" {
		parts = parts[:len(parts)-1]
	}
	return strings.Join(parts, ".")
}

// deviceTypeToString maps uasurfer.DeviceType to a user-friendly string.
func deviceTypeToString(dt uasurfer.DeviceType) string {
	switch dt {
	case uasurfer.DeviceComputer:
		return "Desktop"
	case uasurfer.DevicePhone:
		return "Phone"
	case uasurfer.DeviceTablet:
		return "Tablet"
	case uasurfer.DeviceConsole:
		return "Console"
	case uasurfer.DeviceWearable:
		return "Wearable"
	case uasurfer.DeviceTV:
		return "TV"
	default:
		return "Unknown"
	}
}

// primaryLang extracts the first language tag before any ";q=" rule.
func primaryLang(al string) string {
	if al == "" {
		return ""
	}
	tag, _, _ := strings.Cut(al, ",")
	tag, _, _ = strings.Cut(tag, ";")
	return strings.ToLower(strings.TrimSpace(tag))
}

// lookupGeo returns best-effort Geo data.
func lookupGeo(r *geoip2.Reader, ip net.IP) Geo {
	if r == nil || ip == nil {
		return Geo{IP: ip}
	}
	rec, err := r.City(ip)
	if err != nil {
		return Geo{IP: ip}
	}
	return Geo{
		IP:         ip,
		CountryISO: rec.Country.IsoCode,
		City:       rec.City.Names["en"],
	}
}
