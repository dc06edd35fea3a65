package session

import (
	"context"
	"time"
)

// Sel addresses an element on the page. CSS picks candidates, Text (case
// insensitive substring of the element's text) narrows them, and Scope limits
// the search to the ScopeIndex-th element matching Scope.
type Sel struct {
	CSS        string
	Text       string
	Scope      string
	ScopeIndex int
}

func byCSS(s string) Sel       { return Sel{CSS: s} }
func byText(tag, t string) Sel { return Sel{CSS: tag, Text: t} }

func inRow(row int, s Sel) Sel {
	s.Scope, s.ScopeIndex = licenseRowCSS, row
	return s
}

func sels(list ...string) []Sel {
	out := make([]Sel, len(list))
	for i, s := range list {
		out[i] = byCSS(s)
	}
	return out
}

// FileDownload is a transfer the browser finished.
type FileDownload struct {
	Path          string
	SuggestedName string
}

// Page is the slice of a browser tab the driver needs. All element lookups
// only consider visible elements.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)

	// Visible waits up to timeout for sel to be visible.
	Visible(ctx context.Context, sel Sel, timeout time.Duration) (bool, error)
	// Click dispatches a real mouse click on sel.
	Click(ctx context.Context, sel Sel) error
	// ForceClick dispatches mouse events at sel's box without waiting for it
	// to become interactable, so a covering overlay does not block it.
	ForceClick(ctx context.Context, sel Sel) error
	// ScriptClick calls el.click() from page script.
	ScriptClick(ctx context.Context, sel Sel) error
	Fill(ctx context.Context, sel Sel, value string) error
	PressEnter(ctx context.Context, sel Sel) error
	Attribute(ctx context.Context, sel Sel, name string) (string, error)
	// Contents returns the inner HTML of every element matching css.
	Contents(ctx context.Context, css string) ([]string, error)
	Eval(ctx context.Context, expr string, out any) error

	// ExpectDownload runs trigger and waits up to timeout for the transfer it
	// starts to complete.
	ExpectDownload(ctx context.Context, timeout time.Duration, trigger func(ctx context.Context) error) (*FileDownload, error)

	Snapshot(ctx context.Context) ([]byte, error)
	Restore(ctx context.Context, data []byte) error
	ClearSession(ctx context.Context) error
	Close() error
}

// Launcher starts a fresh browser for one job.
type Launcher interface {
	Open(ctx context.Context) (Page, error)
}
