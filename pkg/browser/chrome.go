package browser

import (
	"context"
	"errors"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ChromeLauncher starts a separate headless Chrome per session. Every
// session gets its own allocator and therefore its own temporary profile.
type ChromeLauncher struct {
	Headless     bool
	ExecPath     string
	WindowWidth  int
	WindowHeight int
	Logger       *zap.Logger
}

// Launch starts Chrome and waits until it accepts commands.
func (l *ChromeLauncher) Launch(ctx context.Context) (Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if l.WindowWidth > 0 && l.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(l.WindowWidth, l.WindowHeight))
	}
	if l.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.ExecPath))
	}
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// The browser outlives the launch ctx; Close ends it.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	bctx, bcancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Warnf),
	)

	s := &chromeSession{ctx: bctx, cancel: bcancel, allocCancel: allocCancel}
	if err := s.run(ctx, "launch"); err != nil {
		s.Close()
		var se *SessionError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, &SessionError{Op: "launch", Err: err}
	}
	return s, nil
}

type chromeSession struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	closeOnce   sync.Once
}

// run executes actions in the session's context, bounded by ctx's deadline.
// Errors after the browser context has died become SessionErrors.
func (s *chromeSession) run(ctx context.Context, op string, actions ...chromedp.Action) error {
	rctx := s.ctx
	if dl, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		rctx, cancel = context.WithDeadline(s.ctx, dl)
		defer cancel()
	}
	err := chromedp.Run(rctx, actions...)
	if err == nil {
		return nil
	}
	if s.ctx.Err() != nil {
		return &SessionError{Op: op, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || rctx.Err() != nil {
		return context.DeadlineExceeded
	}
	return err
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, "navigate", chromedp.Navigate(url))
}

func (s *chromeSession) Click(ctx context.Context, selector string) error {
	return s.run(ctx, "click", chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (s *chromeSession) Fill(ctx context.Context, selector, text string) error {
	return s.run(ctx, "fill",
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
}

func (s *chromeSession) WaitVisible(ctx context.Context, selector string) error {
	return s.run(ctx, "wait", chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (s *chromeSession) Text(ctx context.Context, selector string) (string, error) {
	var text string
	err := s.run(ctx, "text", chromedp.Text(selector, &text, chromedp.ByQuery, chromedp.NodeVisible))
	return text, err
}

func (s *chromeSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	// Quality 100 yields PNG.
	err := s.run(ctx, "screenshot", chromedp.FullScreenshot(&buf, 100))
	return buf, err
}

func (s *chromeSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = chromedp.Cancel(s.ctx)
		s.cancel()
		s.allocCancel()
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
