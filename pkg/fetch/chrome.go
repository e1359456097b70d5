package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"price-compare/pkg/models"
)

// Chrome renders the page in a headless browser and returns the resulting
// document. A fresh browser is started per page.
type Chrome struct {
	Timeout time.Duration
	Options []chromedp.ExecAllocatorOption
}

func NewChrome(timeout time.Duration) *Chrome {
	return &Chrome{
		Timeout: timeout,
		Options: []chromedp.ExecAllocatorOption{
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.WindowSize(1920, 1080),
		},
	}
}

func (f *Chrome) Fetch(ctx context.Context, req Request) ([]byte, error) {
	target, err := req.Target()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid url %q: %w", models.ErrTransport, req.URL, err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:], f.Options...)
	if ua := req.Headers.Get("User-Agent"); ua != "" {
		opts = append(opts, chromedp.UserAgent(ua))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	runCtx, cancelRun := context.WithTimeout(browserCtx, f.Timeout)
	defer cancelRun()

	zap.L().Debug("navigating", zap.String("url", target))

	var html string
	err = chromedp.Run(runCtx,
		chromedp.Navigate(target),
		chromedp.WaitReady(`body`, chromedp.ByQuery),
		chromedp.OuterHTML(`html`, &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: chromedp %s: %w", models.ErrTransport, target, err)
	}
	return []byte(html), nil
}
