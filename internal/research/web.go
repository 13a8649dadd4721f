package research

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"resume-pipeline/internal/llm"
	"resume-pipeline/internal/shared/telemetry"
)

const (
	defaultMinChars   = 400
	defaultMaxBytes   = 2 << 20
	defaultSummaryLen = 4000
	defaultUserAgent  = "resume-pipeline-research/1.0"
)

// WebResearcher fetches the company website and summarizes its main content.
type WebResearcher struct {
	HTTP *http.Client
	// MinChars is the least plain text a page must carry before it counts as sufficient.
	MinChars   int
	MaxBytes   int64
	SummaryLen int
	UserAgent  string

	conv *converter
	now  func() time.Time
}

// NewWebResearcher constructs a WebResearcher with the given request timeout.
func NewWebResearcher(timeout time.Duration) *WebResearcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &WebResearcher{HTTP: &http.Client{Timeout: timeout}}
}

// Research implements Researcher. Transport failures, timeouts and 5xx responses are returned
// as transient llm errors so the caller's backoff policy can retry them.
func (w *WebResearcher) Research(ctx context.Context, q Query) (Profile, error) {
	target := strings.TrimSpace(q.CompanyURL)
	if target == "" {
		return Profile{}, ErrInsufficient
	}
	if !strings.Contains(target, "://") {
		target = "https://" + target
	}
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Profile{}, fmt.Errorf("%w: invalid company url %q", ErrInsufficient, q.CompanyURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Profile{}, err
	}
	req.Header.Set("User-Agent", w.userAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := w.client().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Profile{}, ctx.Err()
		}
		return Profile{}, fmt.Errorf("%w: fetch %s: %w", classifyTransport(err), u.Host, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Profile{}, fmt.Errorf("%w: fetch %s: status %d", llm.ErrRateLimited, u.Host, resp.StatusCode)
	case resp.StatusCode >= 500:
		return Profile{}, fmt.Errorf("%w: fetch %s: status %d", llm.ErrServer, u.Host, resp.StatusCode)
	case resp.StatusCode >= 400:
		return Profile{}, fmt.Errorf("%w: fetch %s: status %d", ErrInsufficient, u.Host, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return Profile{}, fmt.Errorf("%w: unexpected content type %q", ErrInsufficient, ct)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, w.maxBytes()))
	if err != nil {
		return Profile{}, fmt.Errorf("%w: read %s: %w", llm.ErrServer, u.Host, err)
	}
	if w.conv == nil {
		w.conv = newConverter()
	}
	pg, err := w.conv.convert(raw)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: convert page: %w", ErrInsufficient, err)
	}

	text := plainText(pg.Markdown)
	minChars := w.MinChars
	if minChars <= 0 {
		minChars = defaultMinChars
	}
	if utf8.RuneCountInString(text) < minChars {
		telemetry.Info("research.web_insufficient", map[string]any{
			"application_id": q.ApplicationID,
			"host":           u.Host,
			"chars":          utf8.RuneCountInString(text),
		})
		return Profile{}, ErrInsufficient
	}

	summary := pg.Markdown
	if pg.Description != "" {
		summary = pg.Description + "\n\n" + summary
	}
	return Profile{
		CompanyName: q.CompanyName,
		URL:         u.String(),
		Title:       pg.Title,
		Summary:     truncateRunes(summary, w.summaryLen()),
		Source:      "web",
		FetchedAt:   w.clock(),
	}, nil
}

func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return llm.ErrTimeout
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return llm.ErrTimeout
	}
	return llm.ErrServer
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}

func (w *WebResearcher) client() *http.Client {
	if w.HTTP != nil {
		return w.HTTP
	}
	return http.DefaultClient
}

func (w *WebResearcher) userAgent() string {
	if w.UserAgent != "" {
		return w.UserAgent
	}
	return defaultUserAgent
}

func (w *WebResearcher) maxBytes() int64 {
	if w.MaxBytes > 0 {
		return w.MaxBytes
	}
	return defaultMaxBytes
}

func (w *WebResearcher) summaryLen() int {
	if w.SummaryLen > 0 {
		return w.SummaryLen
	}
	return defaultSummaryLen
}

func (w *WebResearcher) clock() time.Time {
	if w.now != nil {
		return w.now()
	}
	return time.Now().UTC()
}
