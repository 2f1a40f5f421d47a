package diarysync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"diarysync/api"
	"diarysync/auth"
	"diarysync/cache"
	"diarysync/config"
	"diarysync/internal/metrics"
	"diarysync/model"
	"diarysync/repository"
	"diarysync/transfer"
)

// Files kept under Config.DataDir.
const (
	CredentialsFile = "credentials.json"
	CacheFile       = "cache.json"
	JournalFile     = "uploads.json"
)

// Client is the entry point: it owns the credential record, the cache, the
// upload engine and the repositories, all talking to one backend.
type Client struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *metrics.Metrics

	creds   *auth.FileStore
	cache   *cache.FileStore
	journal *transfer.Journal

	plain  *api.Client
	api    *api.Client
	engine *transfer.Engine

	videos       *repository.VideoRepository
	clips        *repository.ClipRepository
	compilations *repository.CompilationRepository
}

// Option configures a Client.
type Option func(*options)

type options struct {
	logger     zerolog.Logger
	registerer prometheus.Registerer
	transport  http.RoundTripper
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegisterer registers the client metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithTransport replaces the network transport used for API calls and uploads.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// New wires a client from cfg. Local state lives under cfg.DataDir, which is
// created when missing. Only one process may use a data dir at a time.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	c := &Client{cfg: cfg, logger: o.logger, metrics: metrics.New(o.registerer)}

	var err error
	c.creds, err = auth.NewFileStore(filepath.Join(cfg.DataDir, CredentialsFile), auth.WithLogger(o.logger))
	if err != nil {
		return nil, fmt.Errorf("open credentials: %w", err)
	}
	c.cache, err = cache.OpenFileStore(filepath.Join(cfg.DataDir, CacheFile), cache.WithLogger(o.logger))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("open cache: %w", err)
	}
	c.journal, err = transfer.OpenJournal(filepath.Join(cfg.DataDir, JournalFile))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("open upload journal: %w", err)
	}

	apiCfg := api.DefaultConfig()
	apiCfg.BaseURL = cfg.BaseURL
	apiCfg.Timeout = cfg.RequestTimeout
	apiCfg.UserAgent = cfg.UserAgent
	apiCfg.PageSize = cfg.PageSize
	apiCfg.RateLimitRPS = cfg.RateLimitRPS
	apiCfg.RateLimitBurst = cfg.RateLimitBurst
	apiCfg.CircuitBreaker.FailureThreshold = cfg.CircuitFailureThreshold
	apiCfg.CircuitBreaker.RecoveryTimeout = cfg.CircuitRecoveryTimeout

	base := o.transport
	if base == nil {
		base = api.NewHTTPTransport(apiCfg.Transport)
	}
	common := []api.Option{
		api.WithBaseTransport(base),
		api.WithLogger(o.logger),
		api.WithMetrics(c.metrics),
	}

	// The plain client carries no credentials; it performs login, register
	// and the token refresh the gateway depends on.
	c.plain = api.New(apiCfg, common...)
	gateway := auth.NewGateway(c.creds, c.plain.Auth(),
		auth.WithGatewayLogger(o.logger),
		auth.WithGatewayMetrics(c.metrics),
	)
	c.api = api.New(apiCfg, append(common,
		api.WithMiddleware(gateway.Wrap),
		api.WithRateLimiter(c.plain.RateLimiter()),
		api.WithCircuitBreaker(c.plain.CircuitBreaker()),
	)...)

	c.engine = transfer.NewEngine(transfer.Config{
		ChunkSize:      cfg.UploadChunkSize,
		MaxAttempts:    cfg.UploadMaxAttempts,
		InitialBackoff: cfg.UploadInitialBackoff,
		MaxBackoff:     cfg.UploadMaxBackoff,
		AttemptTimeout: cfg.UploadAttemptTimeout,
	},
		transfer.WithHTTPClient(&http.Client{Transport: base}),
		transfer.WithJournal(c.journal),
		transfer.WithLogger(o.logger),
		transfer.WithMetrics(c.metrics),
	)

	repoOpts := []repository.Option{
		repository.WithLogger(o.logger),
		repository.WithMetrics(c.metrics),
		repository.WithPollInterval(cfg.PollInterval),
		repository.WithPageSize(cfg.PageSize),
	}
	c.videos = repository.NewVideoRepository(c.api.Videos(), c.cache, repoOpts...)
	c.clips = repository.NewClipRepository(c.api.Clips(), c.cache, repoOpts...)
	c.compilations = repository.NewCompilationRepositoryWithURLCache(c.api.Compilations(), c.api.Storage(), c.cache,
		cfg.URLCacheSize, cfg.URLCacheTTL, repoOpts...)

	return c, nil
}

// Videos returns the video repository.
func (c *Client) Videos() *repository.VideoRepository { return c.videos }

// Clips returns the clip and calendar repository.
func (c *Client) Clips() *repository.ClipRepository { return c.clips }

// Compilations returns the compilation repository.
func (c *Client) Compilations() *repository.CompilationRepository { return c.compilations }

// Register creates an account and signs in.
func (c *Client) Register(ctx context.Context, req api.RegisterRequest) (*model.User, error) {
	resp, err := c.plain.Auth().Register(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.signIn(ctx, resp)
}

// Login signs in with email and password.
func (c *Client) Login(ctx context.Context, email, password string) (*model.User, error) {
	resp, err := c.plain.Auth().Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return c.signIn(ctx, resp)
}

func (c *Client) signIn(ctx context.Context, resp *api.AuthResponse) (*model.User, error) {
	if err := c.creds.Save(ctx, resp.Tokens()); err != nil {
		return nil, fmt.Errorf("save credentials: %w", err)
	}
	c.logger.Info().Str("user_id", resp.User.ID).Str("tier", string(resp.User.Tier)).Msg("signed in")
	return &resp.User, nil
}

// Logout ends the session. The server call is best effort; the credential and
// every cached entity are dropped regardless of its outcome.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.api.Auth().Logout(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("remote logout failed")
	}
	return errors.Join(c.creds.Clear(ctx), c.cache.Clear())
}

// IsLoggedIn reports whether an unexpired access token is stored.
func (c *Client) IsLoggedIn(ctx context.Context) (bool, error) {
	expired, err := c.creds.IsExpired(ctx)
	if err != nil {
		return false, err
	}
	return !expired, nil
}

// Me returns the signed-in user's profile.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	return c.api.Auth().Me(ctx)
}

// Quota returns the user's tier and limits.
func (c *Client) Quota(ctx context.Context) (*model.Quota, error) {
	return c.api.Auth().Quota(ctx)
}

// StartUpload registers the video of date and streams the file at path to the
// returned upload URL. The server is told the upload completed once every
// byte arrived. Canceling ctx cancels the transfer.
func (c *Client) StartUpload(ctx context.Context, date model.Date, path string) (*transfer.Upload, error) {
	src, err := transfer.NewFileSource(path)
	if err != nil {
		return nil, err
	}
	ticket, err := c.videos.InitiateUpload(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("initiate upload: %w", err)
	}
	c.logger.Debug().Str("video_id", ticket.VideoID).Str("date", date.String()).Msg("upload initiated")
	return c.enqueue(ctx, ticket.VideoID, ticket.UploadURL, src), nil
}

// ResumeUploads restarts every upload left unfinished by an earlier process.
// Tasks whose file is gone are dropped.
func (c *Client) ResumeUploads(ctx context.Context) ([]*transfer.Upload, error) {
	var uploads []*transfer.Upload
	var errs []error
	for _, task := range c.journal.Tasks() {
		if _, running := c.engine.Active(task.VideoID); running {
			continue
		}
		src, err := transfer.NewFileSource(task.SourcePath)
		if err != nil {
			c.logger.Warn().Err(err).Str("video_id", task.VideoID).Msg("dropping upload with missing source")
			errs = append(errs, c.journal.Remove(task.VideoID))
			continue
		}
		uploads = append(uploads, c.enqueue(ctx, task.VideoID, task.UploadURL, src))
	}
	return uploads, errors.Join(errs...)
}

func (c *Client) enqueue(ctx context.Context, videoID, uploadURL string, src transfer.Source) *transfer.Upload {
	return c.engine.Enqueue(ctx, transfer.Job{
		ID:         videoID,
		URL:        uploadURL,
		Source:     src,
		OnComplete: c.videos.CompleteUpload,
	})
}

// Online reports whether the backend looks reachable. It turns false once
// enough consecutive requests failed to connect and recovers with the first
// request that gets an answer.
func (c *Client) Online() bool {
	return c.api.Online()
}

// CancelUpload stops the upload of videoID and reports whether one was running.
func (c *Client) CancelUpload(videoID string) bool {
	return c.engine.Cancel(videoID)
}

// PendingUploads lists the uploads recorded but not yet finished.
func (c *Client) PendingUploads() []transfer.Task {
	return c.journal.Tasks()
}

// Preferences returns the stored preferences.
func (c *Client) Preferences(ctx context.Context) (auth.Preferences, error) {
	return c.creds.Preferences(ctx)
}

// SetDarkMode stores the dark mode preference.
func (c *Client) SetDarkMode(ctx context.Context, enabled bool) error {
	return c.creds.UpdatePreferences(ctx, func(p *auth.Preferences) { p.DarkMode = enabled })
}

// SetNotificationsEnabled stores the notification preference.
func (c *Client) SetNotificationsEnabled(ctx context.Context, enabled bool) error {
	return c.creds.UpdatePreferences(ctx, func(p *auth.Preferences) { p.NotificationsEnabled = enabled })
}

// SetWatermarkPosition stores the default watermark position for new
// compilations.
func (c *Client) SetWatermarkPosition(ctx context.Context, pos model.WatermarkPosition) error {
	return c.creds.UpdatePreferences(ctx, func(p *auth.Preferences) { p.WatermarkPosition = pos })
}

// RegisterDevice stores pushToken and registers it with the backend. The
// token stays stored when registration fails.
func (c *Client) RegisterDevice(ctx context.Context, pushToken string) error {
	if err := c.creds.UpdatePreferences(ctx, func(p *auth.Preferences) { p.PushToken = pushToken }); err != nil {
		return err
	}
	return c.api.Notifications().RegisterDevice(ctx, pushToken, api.DefaultPlatform)
}

// Close cancels running uploads and releases every local file.
func (c *Client) Close() error {
	var errs []error
	if c.engine != nil {
		errs = append(errs, c.engine.Close())
	}
	if c.journal != nil {
		errs = append(errs, c.journal.Close())
	}
	if c.cache != nil {
		errs = append(errs, c.cache.Close())
	}
	if c.creds != nil {
		errs = append(errs, c.creds.Close())
	}
	if c.api != nil {
		errs = append(errs, c.api.Close())
	}
	if c.plain != nil {
		errs = append(errs, c.plain.Close())
	}
	return errors.Join(errs...)
}
