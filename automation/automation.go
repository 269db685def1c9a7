// Package automation drives a headless Chromium through rod. It prints
// rendered invoice pages to PDF.
package automation

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

const defaultTimeout = 30 * time.Second

// PDFPrinter launches a fresh browser per print job, so nothing is shared
// between requests.
type PDFPrinter struct {
	bin     string
	timeout time.Duration
	log     *zap.Logger
}

// NewPDFPrinter uses the browser at bin, or lets rod find or download one
// when bin is empty.
func NewPDFPrinter(bin string, log *zap.Logger) *PDFPrinter {
	return &PDFPrinter{bin: bin, timeout: defaultTimeout, log: log}
}

// Print loads html into a blank page and returns the page printed as PDF.
func (p *PDFPrinter) Print(ctx context.Context, html []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	l := launcher.New().Headless(true).Leakless(false).Context(ctx)
	if p.bin != "" {
		l = l.Bin(p.bin)
	}
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	defer l.Cleanup()
	defer l.Kill()

	browser := rod.New().ControlURL(u).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	if err := page.SetDocumentContent(string(html)); err != nil {
		return nil, fmt.Errorf("failed to load invoice html: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("page did not finish loading: %w", err)
	}

	r, err := page.PDF(&proto.PagePrintToPDF{PrintBackground: true, PreferCSSPageSize: true})
	if err != nil {
		return nil, fmt.Errorf("failed to print pdf: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf stream: %w", err)
	}
	p.log.Debug("printed pdf", zap.Int("bytes", len(out)))
	return out, nil
}
