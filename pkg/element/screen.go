package element

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// screenTool is a command-line screenshot utility. Its args place {path}
// where the output file goes.
type screenTool struct {
	name string
	args []string
}

// screenTools are tried in order; the first one found on PATH is used.
var screenTools = []screenTool{
	{name: "gnome-screenshot", args: []string{"-f", "{path}"}},
	{name: "scrot", args: []string{"-o", "{path}"}},
	{name: "screencapture", args: []string{"-x", "-t", "png", "-m", "{path}"}},
}

type screenElement struct {
	lookPath func(string) (string, error)
}

// Screen returns an Element that captures the primary display using the
// first available system tool (gnome-screenshot, scrot, or macOS
// screencapture).
func Screen() Element {
	return &screenElement{lookPath: exec.LookPath}
}

func (s *screenElement) CaptureScreenshot(ctx context.Context, path string) error {
	tool, err := s.pick()
	if err != nil {
		return &CaptureError{Path: path, Err: err}
	}

	args := make([]string, len(tool.args))
	for i, a := range tool.args {
		args[i] = strings.ReplaceAll(a, "{path}", path)
	}

	cmd := exec.CommandContext(ctx, tool.name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%s: %w: %s", tool.name, err, msg)
		} else {
			err = fmt.Errorf("%s: %w", tool.name, err)
		}
		return &CaptureError{Path: path, Err: err}
	}
	return nil
}

func (s *screenElement) pick() (screenTool, error) {
	for _, t := range screenTools {
		if _, err := s.lookPath(t.name); err == nil {
			return t, nil
		}
	}
	return screenTool{}, errors.New("no screenshot tool found (install gnome-screenshot or scrot)")
}
