package dispatch

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"go.uber.org/zap"

	"vmdash.io/vmdash/internal/domain"
	"vmdash.io/vmdash/internal/notification"
	"vmdash.io/vmdash/internal/view"
)

// Browser opens a URL in a new browser context.
type Browser interface {
	Open(url string) error
}

// BrowserFunc adapts a function to Browser.
type BrowserFunc func(url string) error

func (f BrowserFunc) Open(url string) error { return f(url) }

// SystemBrowser opens URLs with the platform's default handler.
type SystemBrowser struct{}

func (SystemBrowser) Open(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// ConsoleFallback is the text shown when a web console cannot be opened.
func ConsoleFallback(result *domain.ConsoleResult) string {
	return fmt.Sprintf("Console URL: %s\n\n%s", result.URL, result.Instructions)
}

// OpenConsole requests a console session. A web console is opened in the
// browser, falling back to showing its URL and instructions; a native
// console was launched by the backend and only needs a notification.
func (d *Dispatcher) OpenConsole(ctx context.Context, vmName string, provider domain.ProviderID) error {
	done := view.Begin(d.loading)
	defer done()

	result, err := d.backend.Console(ctx, vmName, provider)
	if err != nil {
		return d.fail(ctx, failure{
			action:  string(domain.ActionConsole),
			prefix:  "Error opening console: ",
			generic: "Error opening console",
		}, err)
	}

	d.observe(string(domain.ActionConsole), OutcomeSucceeded)
	if result.Type != domain.ConsoleWeb {
		d.notifier.Notify(orDefault(result.Message, fmt.Sprintf("Console launched for VM '%s'", vmName)), notification.SeveritySuccess)
		return nil
	}

	d.notifier.Notify(fmt.Sprintf("Opening web console for VM '%s'", vmName), notification.SeverityInfo)
	if d.browser == nil {
		d.notifier.Notify(ConsoleFallback(result), notification.SeverityWarning)
		return nil
	}
	if err := d.browser.Open(result.URL); err != nil {
		d.log.Info("Browser unavailable, showing console URL", zap.Error(err))
		d.notifier.Notify(ConsoleFallback(result), notification.SeverityWarning)
	}
	return nil
}
