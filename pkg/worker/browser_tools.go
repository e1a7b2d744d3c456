package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"github.com/okanya/webagentd/pkg/driver"
)

// Tool names exposed to the model.
const (
	ToolNavigate     = "browser_navigate"
	ToolExtractText  = "browser_extract_text"
	ToolClick        = "browser_click"
	ToolType         = "browser_type"
	ToolScreenshot   = "browser_screenshot"
	ToolTaskComplete = "task_complete"
)

// pageTimeout bounds individual page operations so a hung site cannot
// stall the whole tool loop.
const pageTimeout = 30 * time.Second

// RegisterBrowserTools registers the browser automation tool set bound
// to one session. Navigation targets are checked against the policy.
func RegisterBrowserTools(r *Registry, session *driver.Session, policy NavigationPolicy) error {
	tools := []ToolDefinition{
		{
			Name:        ToolNavigate,
			Description: "Navigate the browser to a URL and wait for the page to load.",
			Parameters: []ToolParameter{
				{Name: "url", Type: "string", Description: "Absolute URL to open", Required: true},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
				url, err := stringParam(params, "url")
				if err != nil {
					return "", err
				}
				if err := policy.CheckURL(url); err != nil {
					return "", err
				}

				page, err := session.Page(ctx)
				if err != nil {
					return "", err
				}
				page = page.Timeout(pageTimeout)

				if err := page.Navigate(url); err != nil {
					return "", fmt.Errorf("failed to navigate to %s: %w", url, err)
				}
				if err := page.WaitLoad(); err != nil {
					return "", fmt.Errorf("page load timeout: %w", err)
				}

				info, err := page.Info()
				if err != nil {
					return fmt.Sprintf("Navigated to %s", url), nil
				}
				return fmt.Sprintf("Navigated to %s (title: %q)", info.URL, info.Title), nil
			},
		},
		{
			Name:        ToolExtractText,
			Description: "Extract the visible text of the current page.",
			Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
				page, err := session.Page(ctx)
				if err != nil {
					return "", err
				}

				text, err := page.Timeout(pageTimeout).Eval(`() => document.body.innerText`)
				if err != nil {
					return "", fmt.Errorf("failed to extract text: %w", err)
				}
				return text.Value.String(), nil
			},
		},
		{
			Name:        ToolClick,
			Description: "Click the first element matching a CSS selector.",
			Parameters: []ToolParameter{
				{Name: "selector", Type: "string", Description: "CSS selector of the element", Required: true},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
				selector, err := stringParam(params, "selector")
				if err != nil {
					return "", err
				}

				page, err := session.Page(ctx)
				if err != nil {
					return "", err
				}
				page = page.Timeout(pageTimeout)

				elem, err := page.Element(selector)
				if err != nil {
					return "", fmt.Errorf("element not found: %s", selector)
				}
				if err := elem.Click(proto.InputMouseButtonLeft, 1); err != nil {
					return "", fmt.Errorf("failed to click element: %w", err)
				}
				return fmt.Sprintf("Clicked %s", selector), nil
			},
		},
		{
			Name:        ToolType,
			Description: "Type text into the first element matching a CSS selector.",
			Parameters: []ToolParameter{
				{Name: "selector", Type: "string", Description: "CSS selector of the input element", Required: true},
				{Name: "text", Type: "string", Description: "Text to type", Required: true},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
				selector, err := stringParam(params, "selector")
				if err != nil {
					return "", err
				}
				text, err := stringParam(params, "text")
				if err != nil {
					return "", err
				}

				page, err := session.Page(ctx)
				if err != nil {
					return "", err
				}
				page = page.Timeout(pageTimeout)

				elem, err := page.Element(selector)
				if err != nil {
					return "", fmt.Errorf("element not found: %s", selector)
				}
				if err := elem.Input(text); err != nil {
					return "", fmt.Errorf("failed to type into element: %w", err)
				}
				return fmt.Sprintf("Typed into %s", selector), nil
			},
		},
		{
			Name:        ToolScreenshot,
			Description: "Capture a screenshot of the current viewport and save it to disk.",
			Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
				page, err := session.Page(ctx)
				if err != nil {
					return "", err
				}

				data, err := page.Timeout(pageTimeout).Screenshot(false, nil)
				if err != nil {
					return "", fmt.Errorf("failed to capture screenshot: %w", err)
				}

				path, err := saveScreenshot(data)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Screenshot saved to %s (%d bytes)", path, len(data)), nil
			},
		},
		{
			Name:        ToolTaskComplete,
			Description: "Finish the task. Call this exactly once, with the final answer or outcome summary.",
			Parameters: []ToolParameter{
				{Name: "result", Type: "string", Description: "Final answer or outcome of the task", Required: true},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
				return stringParam(params, "result")
			},
		},
	}

	for _, def := range tools {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func stringParam(params map[string]interface{}, name string) (string, error) {
	value, ok := params[name].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("missing required parameter: %s", name)
	}
	return value, nil
}

func saveScreenshot(data []byte) (string, error) {
	dir := filepath.Join(os.TempDir(), "webagentd-screenshots")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create screenshot directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("shot-%s.png", uuid.NewString()[:8]))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save screenshot: %w", err)
	}
	return path, nil
}
