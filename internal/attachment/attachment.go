// Package attachment turns an image attachment URL into a local file the
// image explanation tool can read.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"os"
	"path"
	"strings"
	"syscall"
	"time"
)

// DefaultMaxBytes caps a single download.
const DefaultMaxBytes = 20 << 20

// DownloadFailureMessage is shown to the user when an attachment cannot be fetched.
const DownloadFailureMessage = "I couldn't download the attached image. Please try uploading it again."

// ErrDownloadFailure is returned when the attachment cannot be fetched.
var ErrDownloadFailure = errors.New("attachment: download failed")

// errBlockedAddress is returned by the restricted dialer for non-public IPs.
var errBlockedAddress = errors.New("attachment: destination address not allowed")

// maxRedirects matches net/http's default limit.
const maxRedirects = 10

// fetchTimeout bounds a whole download including redirects.
const fetchTimeout = 30 * time.Second

// Fetcher downloads attachments to a local directory.
type Fetcher struct {
	// Client is the HTTP client used for downloads. Defaults to a client
	// with a 30 second timeout.
	Client *http.Client
	// Dir is the directory downloads are written to. Defaults to os.TempDir().
	Dir string
	// MaxBytes caps the body size. Defaults to DefaultMaxBytes.
	MaxBytes int64
	// AllowedHosts, when non-empty, limits downloads to these hosts and their
	// subdomains. Redirects are checked too.
	AllowedHosts []string
}

// NewFetcher constructs an unrestricted Fetcher writing to dir. Use it where
// the URL comes from the operator, as in the CLI.
func NewFetcher(dir string) *Fetcher {
	f := &Fetcher{Dir: dir, MaxBytes: DefaultMaxBytes}
	f.Client = &http.Client{Timeout: fetchTimeout, CheckRedirect: f.checkRedirect}
	return f
}

// NewRestrictedFetcher constructs a Fetcher for URLs supplied by remote
// clients. It only connects to public unicast addresses, checked at dial time
// so redirects and DNS answers cannot reach loopback, private or link-local
// ranges. hosts is an optional allow-list.
func NewRestrictedFetcher(dir string, hosts []string) *Fetcher {
	f := &Fetcher{Dir: dir, MaxBytes: DefaultMaxBytes}
	for _, h := range hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			f.AllowedHosts = append(f.AllowedHosts, h)
		}
	}
	dialer := &net.Dialer{Timeout: 10 * time.Second, Control: publicOnly}
	f.Client = &http.Client{
		Timeout:       fetchTimeout,
		CheckRedirect: f.checkRedirect,
		Transport: &http.Transport{
			// No proxy: the dialer must see the real destination.
			Proxy:                 nil,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 15 * time.Second,
			MaxIdleConns:          4,
			IdleConnTimeout:       30 * time.Second,
		},
	}
	return f
}

// publicOnly is a net.Dialer Control hook rejecting every address that is
// not global unicast or is in a private range.
func publicOnly(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", errBlockedAddress, address)
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("%w: %s", errBlockedAddress, address)
	}
	if !PublicAddr(ip) {
		return fmt.Errorf("%w: %s", errBlockedAddress, ip)
	}
	return nil
}

// cgnat is the shared address space of RFC 6598.
var cgnat = netip.MustParsePrefix("100.64.0.0/10")

// PublicAddr reports whether ip is a routable public unicast address.
func PublicAddr(ip netip.Addr) bool {
	ip = ip.Unmap()
	return ip.IsGlobalUnicast() &&
		!ip.IsPrivate() &&
		!ip.IsLoopback() &&
		!ip.IsLinkLocalUnicast() &&
		!cgnat.Contains(ip)
}

// allowed checks the scheme and the host allow-list.
func (f *Fetcher) allowed(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported url %q", ErrDownloadFailure, u.Redacted())
	}
	if len(f.AllowedHosts) == 0 {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range f.AllowedHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return nil
		}
	}
	return fmt.Errorf("%w: host %q not allowed", ErrDownloadFailure, host)
}

func (f *Fetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("%w: too many redirects", ErrDownloadFailure)
	}
	return f.allowed(req.URL)
}

// Fetch downloads rawURL and returns the path of the written file. The file
// keeps the URL's extension so image decoders can sniff by name. The caller
// owns the file and should remove it when done.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: unsupported url %q", ErrDownloadFailure, rawURL)
	}
	if err := f.allowed(u); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailure, err)
	}

	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout, CheckRedirect: f.checkRedirect}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: HTTP %d", ErrDownloadFailure, resp.StatusCode)
	}

	return f.save(resp.Body, path.Ext(u.Path))
}

// Save writes r to a new file in the fetcher's directory and returns its
// path. Used for multipart uploads, which arrive as a stream.
func (f *Fetcher) Save(r io.Reader, ext string) (string, error) {
	return f.save(r, ext)
}

func (f *Fetcher) save(r io.Reader, ext string) (string, error) {
	maxBytes := f.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	dir := f.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("attachment: create dir: %w", err)
	}

	file, err := os.CreateTemp(dir, "attachment-*"+sanitizeExt(ext))
	if err != nil {
		return "", fmt.Errorf("attachment: create file: %w", err)
	}
	name := file.Name()

	n, err := io.Copy(file, io.LimitReader(r, maxBytes+1))
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("%w: %v", ErrDownloadFailure, err)
	}
	if n > maxBytes {
		_ = os.Remove(name)
		return "", fmt.Errorf("%w: attachment exceeds %d bytes", ErrDownloadFailure, maxBytes)
	}
	return name, nil
}

// sanitizeExt keeps short alphanumeric extensions and drops anything else.
func sanitizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if len(ext) < 2 || len(ext) > 6 || ext[0] != '.' {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
