package netquality

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RunnerConfig configures an HTTP speed test.
type RunnerConfig struct {
	// BaseURL serves GET /__down?bytes=N and POST /__up, as
	// speed.cloudflare.com does.
	BaseURL       string
	PingCount     int
	DownloadBytes int64
	UploadBytes   int64
	HTTPClient    *http.Client
	Logger        *zap.Logger
}

// Runner measures latency and throughput against one HTTP endpoint.
type Runner struct {
	base       *url.URL
	pingCount  int
	downBytes  int64
	upBytes    int64
	httpClient *http.Client
	log        *zap.Logger
}

// NewRunner validates cfg and returns a runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	u, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid speed test url %q", cfg.BaseURL)
	}
	if cfg.PingCount <= 0 {
		cfg.PingCount = 10
	}
	if cfg.DownloadBytes <= 0 {
		cfg.DownloadBytes = 25 << 20
	}
	if cfg.UploadBytes <= 0 {
		cfg.UploadBytes = 10 << 20
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Runner{
		base:       u,
		pingCount:  cfg.PingCount,
		downBytes:  cfg.DownloadBytes,
		upBytes:    cfg.UploadBytes,
		httpClient: cfg.HTTPClient,
		log:        cfg.Logger.Named("speedtest"),
	}, nil
}

// Run performs server probe, ping, download and upload phases, reporting
// each through l. Failures after the test has started are reported to l and
// Run returns nil; a cancelled ctx is reported as an interruption.
func (r *Runner) Run(ctx context.Context, l Listener) error {
	runID := uuid.NewString()
	log := r.log.With(zap.String("run_id", runID))
	log.Info("network test starting", zap.String("server", r.base.Host))

	l.OnTestStarted()
	l.OnFindingBestServerStarted()
	if code, err := r.probe(ctx); err != nil {
		if ctx.Err() != nil {
			l.OnTestInterrupted(ctx.Err().Error())
			return nil
		}
		log.Warn("speed test server unreachable", zap.Error(err))
		l.OnFetchServerFailed(code)
		return nil
	}

	result := &Result{
		RunID:          runID,
		ServerDomain:   r.base.Host,
		ConnectionType: "HTTP",
	}

	l.OnPingStarted()
	ping, jitter, loss, err := r.measurePing(ctx)
	if err != nil {
		return r.fail(ctx, l, log, "ping", err)
	}
	result.Ping, result.Jitter, result.PacketLoss = ping, jitter, &loss
	l.OnPingFinished(ping, jitter)
	if loss > 0 {
		l.OnTestWarning(fmt.Sprintf("%.0f%% of ping probes failed", loss))
	}

	l.OnDownloadTestStarted()
	down, err := r.measureDownload(ctx, l.OnDownloadTestProgress)
	if err != nil {
		return r.fail(ctx, l, log, "download", err)
	}
	result.DownloadSpeed = down
	l.OnDownloadTestFinished(down)

	l.OnUploadTestStarted()
	up, err := r.measureUpload(ctx, l.OnUploadTestProgress)
	if err != nil {
		return r.fail(ctx, l, log, "upload", err)
	}
	result.UploadSpeed = up
	l.OnUploadTestFinished(up)

	l.OnTestFinished(result)
	log.Info("network test finished",
		zap.Float64("download_mbps", down),
		zap.Float64("upload_mbps", up),
		zap.Int("ping_ms", ping))
	return nil
}

func (r *Runner) fail(ctx context.Context, l Listener, log *zap.Logger, phase string, err error) error {
	if ctx.Err() != nil {
		l.OnTestInterrupted(ctx.Err().Error())
		return nil
	}
	log.Warn("network test failed", zap.String("phase", phase), zap.Error(err))
	l.OnTestFatalError(fmt.Sprintf("%s test failed: %v", phase, err))
	return nil
}

func (r *Runner) endpoint(path string, query url.Values) string {
	u := *r.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = query.Encode()
	return u.String()
}

// probe checks the server answers. The returned code is the HTTP status, or
// -1 for transport failures.
func (r *Runner) probe(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint("/__down", url.Values{"bytes": {"0"}}), nil)
	if err != nil {
		return -1, err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return -1, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// measurePing times pingCount empty downloads. Jitter is the mean absolute
// difference between consecutive samples; loss is the failed share in percent.
func (r *Runner) measurePing(ctx context.Context) (ping, jitter int, loss float64, err error) {
	var samples []time.Duration
	failed := 0
	for i := 0; i < r.pingCount; i++ {
		if ctx.Err() != nil {
			return 0, 0, 0, ctx.Err()
		}
		start := time.Now()
		if _, perr := r.probe(ctx); perr != nil {
			failed++
			continue
		}
		samples = append(samples, time.Since(start))
	}
	if len(samples) == 0 {
		return 0, 0, 100, errors.New("no ping probe succeeded")
	}

	var total time.Duration
	for _, s := range samples {
		total += s
	}
	mean := total / time.Duration(len(samples))

	var diff float64
	for i := 1; i < len(samples); i++ {
		diff += math.Abs(float64(samples[i] - samples[i-1]))
	}
	if len(samples) > 1 {
		diff /= float64(len(samples) - 1)
	}

	ping = int(math.Round(float64(mean) / float64(time.Millisecond)))
	jitter = int(math.Round(diff / float64(time.Millisecond)))
	loss = float64(failed) * 100 / float64(r.pingCount)
	return ping, jitter, loss, nil
}

type progressFunc func(progress int, instantSpeed, avgSpeed float64)

// meter converts byte counts into percent progress and Mbps, reporting at
// most once per percent step.
type meter struct {
	total    int64
	done     int64
	start    time.Time
	last     time.Time
	lastDone int64
	lastPct  int
	report   progressFunc
}

func newMeter(total int64, report progressFunc) *meter {
	now := time.Now()
	return &meter{total: total, start: now, last: now, lastPct: -1, report: report}
}

func (m *meter) add(n int) {
	m.done += int64(n)
	pct := int(m.done * 100 / m.total)
	if pct > 100 {
		pct = 100
	}
	if pct == m.lastPct {
		return
	}
	now := time.Now()
	instant := mbps(m.done-m.lastDone, now.Sub(m.last))
	m.report(pct, instant, m.avg())
	m.last, m.lastDone, m.lastPct = now, m.done, pct
}

func (m *meter) avg() float64 {
	return mbps(m.done, time.Since(m.start))
}

func mbps(bytes int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(bytes) * 8 / 1e6 / d.Seconds()
}

func (r *Runner) measureDownload(ctx context.Context, report progressFunc) (float64, error) {
	q := url.Values{"bytes": {strconv.FormatInt(r.downBytes, 10)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint("/__down", q), nil)
	if err != nil {
		return 0, err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("server returned %d", resp.StatusCode)
	}

	m := newMeter(r.downBytes, report)
	buf := make([]byte, 32<<10)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			m.add(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	if m.done == 0 {
		return 0, errors.New("empty download")
	}
	return m.avg(), nil
}

// countingReader yields size zero bytes and feeds the meter as it is consumed.
type countingReader struct {
	remaining int64
	m         *meter
}

func (c *countingReader) Read(p []byte) (int, error) {
	if c.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}
	for i := range p {
		p[i] = 0
	}
	c.remaining -= int64(len(p))
	c.m.add(len(p))
	return len(p), nil
}

func (r *Runner) measureUpload(ctx context.Context, report progressFunc) (float64, error) {
	m := newMeter(r.upBytes, report)
	body := &countingReader{remaining: r.upBytes, m: m}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint("/__up", nil), body)
	if err != nil {
		return 0, err
	}
	req.ContentLength = r.upBytes
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return m.avg(), nil
}
