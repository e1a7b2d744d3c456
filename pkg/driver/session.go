package driver

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/okanya/webagentd/pkg/pool"
)

// Session is one incognito browser context on a Driver. Pages opened
// through it are invisible to other sessions on the same process, and
// disposing the context drops its cookies and storage along with every
// open page. It implements the pool's SessionHandle.
type Session struct {
	browser *rod.Browser
}

var _ pool.SessionHandle = (*Session)(nil)

// PageCount returns the number of pages currently open in this context.
// It is a single target enumeration over CDP.
func (s *Session) PageCount(ctx context.Context) (int, error) {
	targets, err := proto.TargetGetTargets{}.Call(s.browser.Context(ctx))
	if err != nil {
		return 0, fmt.Errorf("list targets: %w", err)
	}

	count := 0
	for _, info := range targets.TargetInfos {
		if info.Type == proto.TargetTargetInfoTypePage && info.BrowserContextID == s.browser.BrowserContextID {
			count++
		}
	}
	return count, nil
}

// OpenProbePage opens a blank page in the context and closes it again.
// Used as a liveness probe when the context has no pages to enumerate.
func (s *Session) OpenProbePage(ctx context.Context) error {
	page, err := s.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return fmt.Errorf("open probe page: %w", err)
	}
	if err := page.Close(); err != nil {
		return fmt.Errorf("close probe page: %w", err)
	}
	return nil
}

// Page returns a page of this context for task work, reattaching to an
// existing one when possible and opening a fresh one otherwise.
func (s *Session) Page(ctx context.Context) (*rod.Page, error) {
	b := s.browser.Context(ctx)

	targets, err := proto.TargetGetTargets{}.Call(b)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	for _, info := range targets.TargetInfos {
		if info.Type == proto.TargetTargetInfoTypePage && info.BrowserContextID == s.browser.BrowserContextID {
			page, err := b.PageFromTarget(info.TargetID)
			if err != nil {
				return nil, fmt.Errorf("attach to page: %w", err)
			}
			return page, nil
		}
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	return page, nil
}

// Close disposes the browser context. Disposing closes every page that
// belongs to it.
func (s *Session) Close(ctx context.Context) error {
	err := proto.TargetDisposeBrowserContext{
		BrowserContextID: s.browser.BrowserContextID,
	}.Call(s.browser.Context(ctx))
	if err != nil {
		return fmt.Errorf("dispose browser context: %w", err)
	}
	return nil
}
