package ingest

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/emigration-stats/internal/model"
	"github.com/sells-group/emigration-stats/internal/resilience"
)

// maxDownload caps a downloaded file.
const maxDownload = 64 << 20

// RemoteOptions configures remote downloads.
type RemoteOptions struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	HostRPS    float64 // per-host request rate; default 1
}

// Remote downloads source files over HTTP(S) and FTP with per-host rate
// limiting and retries on transient failures.
type Remote struct {
	client *http.Client
	opts   RemoteOptions
	retry  resilience.RetryConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRemote creates a Remote with the given options.
func NewRemote(opts RemoteOptions) *Remote {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "emigration-stats/1.0"
	}
	if opts.HostRPS <= 0 {
		opts.HostRPS = 1
	}
	return &Remote{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		retry:    resilience.DefaultRetryConfig().WithAttempts(opts.MaxRetries),
		limiters: make(map[string]*rate.Limiter),
	}
}

func (f *Remote) limiterFor(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(f.opts.HostRPS), 1)
		f.limiters[host] = lim
	}
	return lim
}

// Download opens rawURL. The caller must close the returned body.
func (f *Remote) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "remote: parse url")
	}
	switch u.Scheme {
	case "http", "https":
		return f.downloadHTTP(ctx, u)
	case "ftp":
		return f.downloadFTP(ctx, u)
	default:
		return nil, eris.Errorf("remote: unsupported scheme %q", u.Scheme)
	}
}

// Fetch downloads rawURL and parses it by the extension of its path.
func (f *Remote) Fetch(ctx context.Context, rawURL string, opts Options) ([]model.RawRecord, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "remote: parse url")
	}
	format, err := DetectFormat(u.Path)
	if err != nil {
		return nil, err
	}

	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	records, err := Read(ctx, io.LimitReader(body, maxDownload), format, opts)
	if err != nil {
		return nil, eris.Wrapf(err, "remote: parse %s", rawURL)
	}
	zap.L().Info("remote: fetched source",
		zap.String("url", rawURL),
		zap.String("format", string(format)),
		zap.Int("records", len(records)),
	)
	return records, nil
}

func (f *Remote) downloadHTTP(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	cfg := f.retry
	cfg.OnRetry = resilience.RetryLogger("http", u.Host)
	lim := f.limiterFor(u.Host)

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (io.ReadCloser, error) {
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "remote: rate limiter wait")
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, eris.Wrap(err, "remote: create request")
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, eris.Wrapf(err, "remote: get %s", u.Redacted())
		}
		if resp.StatusCode == http.StatusOK {
			return resp.Body, nil
		}
		_ = resp.Body.Close()
		statusErr := eris.Errorf("remote: unexpected status %d from %s", resp.StatusCode, u.Redacted())
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	})
}

// parseFTPURL extracts host (with port) and path from an FTP URL.
func parseFTPURL(u *url.URL) (host string, path string, err error) {
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	path = u.Path
	if path == "" || path == "/" {
		return "", "", eris.New("empty path in ftp url")
	}

	return host, path, nil
}

// ftpConnReader closes the FTP response and the connection together.
type ftpConnReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpConnReader) Read(p []byte) (int, error) {
	return r.resp.Read(p)
}

func (r *ftpConnReader) Close() error {
	respErr := r.resp.Close()
	quitErr := r.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "close ftp response")
	}
	if quitErr != nil {
		return eris.Wrap(quitErr, "quit ftp connection")
	}
	return nil
}

// downloadFTP logs in with the URL's credentials, or anonymously.
func (f *Remote) downloadFTP(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	host, path, err := parseFTPURL(u)
	if err != nil {
		return nil, err
	}
	user, pass := "anonymous", "anonymous@"
	if u.User != nil {
		user = u.User.Username()
		pass, _ = u.User.Password()
	}

	cfg := f.retry
	cfg.OnRetry = resilience.RetryLogger("ftp", host)
	lim := f.limiterFor(host)

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (io.ReadCloser, error) {
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "remote: rate limiter wait")
		}
		zap.L().Debug("ftp: connecting", zap.String("host", host), zap.String("path", path))

		conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
		if err != nil {
			return nil, eris.Wrap(err, "ftp dial")
		}
		if err := conn.Login(user, pass); err != nil {
			_ = conn.Quit()
			return nil, eris.Wrap(err, "ftp login")
		}
		resp, err := conn.Retr(path)
		if err != nil {
			_ = conn.Quit()
			return nil, eris.Wrap(err, "ftp retrieve")
		}
		return &ftpConnReader{resp: resp, conn: conn}, nil
	})
}
