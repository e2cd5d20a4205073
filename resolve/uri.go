package resolve

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// DefaultScheme is the URI scheme accepted when none is configured.
const DefaultScheme = "archive"

// ErrInvalidURI is returned when a request URI does not have the
// <scheme>://<archive-path>#<inner-path> form.
var ErrInvalidURI = errors.New("resolve: invalid uri")

// URI addresses a path inside an archive on the host filesystem:
// <scheme>://<archive-filesystem-path>#<path-inside-archive>.
type URI struct {
	// Scheme is the URI scheme marker.
	Scheme string

	// Archive is the on-disk path of the archive file.
	Archive string

	// Fragment is the path inside the archive, as given (it may or may not
	// carry a leading slash; matching normalizes it).
	Fragment string
}

// ParseURI parses a request URI, requiring the given scheme.
func ParseURI(raw, scheme string) (URI, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return URI{}, fmt.Errorf("%w: %s: %v", ErrInvalidURI, raw, err)
	}
	if u.Scheme != scheme {
		return URI{}, fmt.Errorf("%w: %s: scheme %q, want %q", ErrInvalidURI, raw, u.Scheme, scheme)
	}

	// The archive path is the authority plus path: "archive://relative/p.zip"
	// parses the first component as host, "archive:///abs/p.zip" leaves it
	// empty. Both forms address an on-disk file.
	archive := u.Path
	if u.Host != "" {
		archive = u.Host + u.Path
	}
	if archive == "" {
		return URI{}, fmt.Errorf("%w: %s: empty archive path", ErrInvalidURI, raw)
	}

	return URI{Scheme: u.Scheme, Archive: archive, Fragment: u.Fragment}, nil
}

// String reassembles the URI.
func (u URI) String() string {
	var sb strings.Builder
	sb.WriteString(u.Scheme)
	sb.WriteString("://")
	sb.WriteString(u.Archive)
	if u.Fragment != "" {
		sb.WriteString("#")
		sb.WriteString(u.Fragment)
	}
	return sb.String()
}
