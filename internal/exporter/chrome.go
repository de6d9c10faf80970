package exporter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ChromeRenderer prints the HTML rendering through a shared headless Chrome.
type ChromeRenderer struct {
	html    HTMLRenderer
	timeout time.Duration
	logger  *zap.Logger

	startOnce   sync.Once
	startErr    error
	cancelAlloc context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
}

type ChromeConfig struct {
	Headless bool
	// ExecPath overrides chromedp's browser lookup.
	ExecPath string
	Timeout  time.Duration
}

func NewChromeRenderer(cfg ChromeConfig, logger *zap.Logger) *ChromeRenderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	opts := chromedp.DefaultExecAllocatorOptions[:]
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", true))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)
	return &ChromeRenderer{
		timeout:     cfg.Timeout,
		logger:      logger,
		cancelAlloc: cancelAlloc,
		browserCtx:  browserCtx,
		cancel:      cancel,
	}
}

// Close shuts the browser down.
func (r *ChromeRenderer) Close() {
	r.cancel()
	r.cancelAlloc()
}

func (r *ChromeRenderer) PDF(ctx context.Context, doc Document) ([]byte, error) {
	var out []byte
	err := r.run(ctx, doc, chromedp.ActionFunc(func(ctx context.Context) error {
		data, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
		if err != nil {
			return err
		}
		out = data
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	return out, nil
}

func (r *ChromeRenderer) PNG(ctx context.Context, doc Document) ([]byte, error) {
	var out []byte
	if err := r.run(ctx, doc, chromedp.FullScreenshot(&out, 100)); err != nil {
		return nil, fmt.Errorf("capture png: %w", err)
	}
	return out, nil
}

// run loads the document into a fresh tab and executes capture on it.
func (r *ChromeRenderer) run(ctx context.Context, doc Document, capture chromedp.Action) error {
	markup, err := r.html.Render(ctx, doc)
	if err != nil {
		return err
	}

	// The browser starts on first use; tabs share it.
	r.startOnce.Do(func() {
		r.startErr = chromedp.Run(r.browserCtx)
	})
	if r.startErr != nil {
		return fmt.Errorf("start chrome: %w", r.startErr)
	}
	tabCtx, cancelTab := chromedp.NewContext(r.browserCtx)
	defer cancelTab()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, r.timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTimeout)
	defer stop()

	started := time.Now()
	err = chromedp.Run(tabCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, string(markup)).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		capture,
	)
	r.logger.Debug("chrome render finished",
		zap.String("title", doc.Title),
		zap.Duration("elapsed", time.Since(started)),
		zap.Error(err),
	)
	return err
}
