// Package local is a self-contained cache engine: frames live in
// per-application directories under the configured cache root, and the
// application manifest is flushed explicitly as JSON. It implements the same
// contract a host-native cache engine would.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/hybridkit/ota-agent/internal/cacheng"
	"github.com/hybridkit/ota-agent/internal/config"
	"github.com/hybridkit/ota-agent/internal/pkg/filehash"
	"github.com/hybridkit/ota-agent/internal/pkg/fileops"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const manifestFile = "manifest.json"

type frameRecord struct {
	Version string            `json:"version"`
	Status  cacheng.Status    `json:"status"`
	Entries map[string]string `json:"entries"`
}

// appManifest is the engine's per-application state. Entries is the running
// application cache table: asset paths and alias indirections. A swap merges
// the frame's file entries in but never touches aliases; alias rewrites
// arrive through WriteEntry.
type appManifest struct {
	Running string                  `json:"running"`
	Ongoing string                  `json:"ongoing"`
	Status  cacheng.Status          `json:"status"`
	Frames  map[string]*frameRecord `json:"frames"`
	Entries map[string]string       `json:"entries"`
}

func newAppManifest() *appManifest {
	return &appManifest{
		Frames:  make(map[string]*frameRecord),
		Entries: make(map[string]string),
	}
}

type Engine struct {
	logger  *zap.Logger
	root    string
	workers int
	http    *fasthttp.Client
	timeout time.Duration

	mu   sync.Mutex
	apps map[string]*appManifest
	jobs map[string]context.CancelFunc
}

var _ cacheng.Engine = (*Engine)(nil)

func New(conf *config.Config, logger *zap.Logger) *Engine {
	return &Engine{
		logger:  logger,
		root:    conf.Cache.Root,
		workers: conf.Cache.Workers,
		http:    &fasthttp.Client{},
		timeout: conf.Update.RequestTimeout,
		apps:    make(map[string]*appManifest),
		jobs:    make(map[string]context.CancelFunc),
	}
}

func (e *Engine) appDir(key string) string {
	return filepath.Join(e.root, key)
}

func (e *Engine) frameDir(key, version string) string {
	return filepath.Join(e.appDir(key), "frames", version)
}

func (e *Engine) manifestPath(key string) string {
	return filepath.Join(e.appDir(key), manifestFile)
}

// app returns the in-memory manifest for key, loading it from disk once.
// Caller must hold e.mu.
func (e *Engine) app(key string) (*appManifest, error) {
	if m, ok := e.apps[key]; ok {
		return m, nil
	}

	m, err := e.readManifest(key)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = newAppManifest()
	}
	e.apps[key] = m
	return m, nil
}

func (e *Engine) readManifest(key string) (*appManifest, error) {
	buf, err := os.ReadFile(e.manifestPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read cache manifest")
	}
	m := newAppManifest()
	if err := sonic.Unmarshal(buf, m); err != nil {
		return nil, errors.Wrap(err, "decode cache manifest")
	}
	return m, nil
}

func (e *Engine) RunningVersion(key string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.app(key)
	if err != nil {
		return "", err
	}
	return m.Running, nil
}

// ManifestVersion reads the durable manifest fresh from disk, bypassing the
// in-memory state, so callers can detect an unflushed swap.
func (e *Engine) ManifestVersion(key string) (string, error) {
	m, err := e.readManifest(key)
	if err != nil || m == nil {
		return "", err
	}
	return m.Running, nil
}

func (e *Engine) Download(ctx context.Context, job cacheng.Job, onProgress func(completed int)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	e.jobs[job.ID] = cancel
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.jobs, job.ID)
		e.mu.Unlock()
	}()

	dir := e.frameDir(job.Key, job.Version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create frame directory")
	}

	e.logger.Info("frame download started",
		zap.String("job", job.ID),
		zap.String("version", job.Version),
		zap.Int("resources", len(job.Resources)),
	)

	var (
		completed int
		progMu    sync.Mutex
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, res := range job.Resources {
		i, res := i, res
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			body, err := e.fetch(job.BaseURL, res)
			if err != nil {
				return err
			}

			if sum := filehash.Sum(body); sum != res.Hash {
				return errors.Errorf("hash mismatch for %s: got %s want %s", res.Path, sum, res.Hash)
			}

			if err := e.writeResource(dir, job.ID, i, res.Path, body); err != nil {
				return err
			}

			progMu.Lock()
			completed++
			done := completed
			progMu.Unlock()

			if onProgress != nil {
				onProgress(done)
			}
			return nil
		})
	}

	return g.Wait()
}

func (e *Engine) fetch(baseURL string, res cacheng.Resource) ([]byte, error) {
	var (
		req  = fasthttp.AcquireRequest()
		resp = fasthttp.AcquireResponse()
	)
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	url := baseURL + "/" + strings.TrimLeft(res.Path, "/") + "?" + res.Hash
	req.SetRequestURI(url)
	req.Header.SetMethod(fiber.MethodGet)

	if err := e.http.DoTimeout(req, resp, e.timeout); err != nil {
		return nil, errors.Wrapf(err, "fetch %s", res.Path)
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return nil, errors.Errorf("fetch %s: unexpected status %d", res.Path, code)
	}

	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())
	return body, nil
}

// writeResource lands the body in a temp file first so a cancelled or failed
// transfer never leaves a half-written asset inside the frame.
func (e *Engine) writeResource(dir, jobID string, seq int, path string, body []byte) error {
	dst := filepath.Join(dir, filepath.FromSlash(strings.TrimLeft(path, "/")))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrap(err, "create resource directory")
	}

	tmpDir := filepath.Join(e.root, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return errors.Wrap(err, "create temp directory")
	}
	tmp := filepath.Join(tmpDir, fmt.Sprintf("%s-%d", jobID, seq))
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return errors.Wrap(err, "write temp resource")
	}

	if err := fileops.MoveFile(tmp, dst); err != nil {
		return errors.Wrapf(err, "move resource %s", path)
	}
	return nil
}

func (e *Engine) CancelDownload(jobID string) {
	e.mu.Lock()
	cancel, ok := e.jobs[jobID]
	e.mu.Unlock()

	if ok {
		cancel()
	}
}

func (e *Engine) RegisterFrame(frame cacheng.Frame) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.app(frame.Key)
	if err != nil {
		return err
	}

	if _, ok := m.Frames[frame.Version]; ok {
		return nil
	}

	entries := make(map[string]string, len(frame.Entries))
	for path, hash := range frame.Entries {
		entries[path] = hash
	}
	m.Frames[frame.Version] = &frameRecord{
		Version: frame.Version,
		Status:  cacheng.StatusRegistered,
		Entries: entries,
	}
	return nil
}

func (e *Engine) SetOngoing(key, version string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.app(key)
	if err != nil {
		return err
	}

	frame, ok := m.Frames[version]
	if !ok {
		return cacheng.ErrFrameNotFound
	}

	m.Ongoing = version
	m.Status = cacheng.StatusOngoingConfirmed
	frame.Status = cacheng.StatusOngoingConfirmed
	return nil
}

// SwapCache promotes the ongoing frame. File entries of the new frame are
// merged into the running cache table; alias entries keep their old targets
// until the adapter rewrites them.
func (e *Engine) SwapCache(key string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.app(key)
	if err != nil {
		return false, err
	}

	if m.Ongoing == "" {
		return false, nil
	}
	frame, ok := m.Frames[m.Ongoing]
	if !ok {
		return false, nil
	}

	for path, hash := range frame.Entries {
		m.Entries[path] = hash
	}
	m.Running = m.Ongoing
	m.Ongoing = ""
	m.Status = cacheng.StatusSwapped
	frame.Status = cacheng.StatusSwapped
	return true, nil
}

func (e *Engine) Revert(key, version string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.app(key)
	if err != nil {
		return err
	}

	frame, ok := m.Frames[version]
	if !ok {
		return cacheng.ErrFrameNotFound
	}

	for path, hash := range frame.Entries {
		m.Entries[path] = hash
	}
	m.Running = version
	m.Status = cacheng.StatusSwapped
	frame.Status = cacheng.StatusSwapped
	return nil
}

func (e *Engine) WriteEntry(key, alias, target string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.app(key)
	if err != nil {
		return err
	}
	m.Entries[alias] = target
	return nil
}

// WriteManifest flushes the in-memory manifest with fsync + rename so a
// crash mid-write cannot corrupt the previous durable state.
func (e *Engine) WriteManifest(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.app(key)
	if err != nil {
		return err
	}

	buf, err := sonic.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "encode cache manifest")
	}

	if err := os.MkdirAll(e.appDir(key), 0o755); err != nil {
		return errors.Wrap(err, "create app directory")
	}

	tmp := e.manifestPath(key) + ".tmp"
	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrap(err, "open manifest temp")
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return errors.Wrap(err, "write manifest temp")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrap(err, "sync manifest temp")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close manifest temp")
	}

	return errors.Wrap(os.Rename(tmp, e.manifestPath(key)), "rename manifest")
}
