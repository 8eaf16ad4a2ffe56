// Package pdfutil prints HTML to PDF with headless Chrome and checks the
// produced files.
package pdfutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// PageSize is expressed in inches, the unit Chrome's print API uses.
type PageSize struct {
	WidthIn  float64
	HeightIn float64
}

var (
	// CertificatePage matches the 1058x748 CSS pixel certificate layout.
	CertificatePage = PageSize{WidthIn: 1058.0 / 96, HeightIn: 748.0 / 96}
	// A4 is used for the application form.
	A4 = PageSize{WidthIn: 8.27, HeightIn: 11.69}
)

// ChromePrinter owns one headless browser and opens a tab per print job.
type ChromePrinter struct {
	browserCtx context.Context
	cancel     context.CancelFunc
	timeout    time.Duration
	tabs       chan struct{}
	startOnce  sync.Once
	startErr   error
}

// NewChromePrinter prepares a printer. The browser starts lazily on the first
// Print call. execPath may be empty to let chromedp locate Chrome.
func NewChromePrinter(execPath string, timeout time.Duration, maxTabs int) *ChromePrinter {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.Flag("disable-gpu", true))
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	if maxTabs <= 0 {
		maxTabs = 1
	}
	return &ChromePrinter{
		browserCtx: browserCtx,
		cancel: func() {
			cancelBrowser()
			cancelAlloc()
		},
		timeout: timeout,
		tabs:    make(chan struct{}, maxTabs),
	}
}

// Print renders html into a PDF of the given size.
func (p *ChromePrinter) Print(ctx context.Context, html string, size PageSize) ([]byte, error) {
	p.startOnce.Do(func() {
		p.startErr = chromedp.Run(p.browserCtx)
	})
	if p.startErr != nil {
		return nil, fmt.Errorf("start chrome: %w", p.startErr)
	}

	select {
	case p.tabs <- struct{}{}:
		defer func() { <-p.tabs }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	tabCtx, cancelTab := chromedp.NewContext(p.browserCtx)
	defer cancelTab()
	if p.timeout > 0 {
		var cancelTimeout context.CancelFunc
		tabCtx, cancelTimeout = context.WithTimeout(tabCtx, p.timeout)
		defer cancelTimeout()
	}
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var out []byte
	err := chromedp.Run(tabCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPreferCSSPageSize(true).
				WithPaperWidth(size.WidthIn).
				WithPaperHeight(size.HeightIn).
				WithMarginTop(0).
				WithMarginBottom(0).
				WithMarginLeft(0).
				WithMarginRight(0).
				Do(ctx)
			if err != nil {
				return err
			}
			out = buf
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	return out, nil
}

// Close shuts the browser down.
func (p *ChromePrinter) Close() {
	p.cancel()
}
