// Package browser opens URLs in the user's default web browser.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
)

// command returns the platform opener for url.
func command(ctx context.Context, url string) (*exec.Cmd, error) {
	switch runtime.GOOS {
	case "darwin":
		return exec.CommandContext(ctx, "open", url), nil
	case "windows":
		return exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", url), nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return exec.CommandContext(ctx, "xdg-open", url), nil
	default:
		return nil, errors.New("unsupported platform: " + runtime.GOOS)
	}
}

// Open launches the default browser at url and returns once the opener
// has started.
func Open(ctx context.Context, url string) error {
	cmd, err := command(ctx, url)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", cmd.Path, err)
	}
	go cmd.Wait()
	return nil
}
