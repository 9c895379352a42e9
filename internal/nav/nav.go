// Package nav drives the interactive session: it follows plugin://
// callback URLs through the sandbox, renders each directory, and keeps a
// back-stack so the user can walk out the way they came in.
package nav

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/hashicorp/go-hclog"

	"github.com/kodidev/kodidev/internal/sandbox"
)

// ErrQuit is returned by a Display when the user declines to pick an
// entry. The loop treats it as a request to leave.
var ErrQuit = errors.New("session ended")

// parentLabel is the synthetic first entry that walks back up the stack.
const parentLabel = ".."

// Invoker runs one callback URL and reports the resulting navigation
// state.
type Invoker interface {
	Execute(ctx context.Context, u *url.URL) (*sandbox.NavState, error)
}

// Display renders directories and playback items and collects the user's
// choice. Choose returns an index into items, or ErrQuit. Blocking calls
// take the session context so an interrupt unwinds them immediately.
type Display interface {
	Choose(ctx context.Context, items []sandbox.ListItem, state *sandbox.NavState) (int, error)
	Play(ctx context.Context, item sandbox.ListItem, playlist []sandbox.ListItem)
	Notify(text string)
}

// frame is one back-stack entry: the URL that produced a listing,
// together with the item the user followed to get there.
type frame struct {
	url  *url.URL
	item sandbox.ListItem
}

// Loop is the navigation session. Not safe for concurrent use.
type Loop struct {
	invoker Invoker
	display Display
	log     hclog.Logger

	stack     []frame
	preselect []int
}

// NewLoop builds a session. preselect, when non-empty, is consumed one
// index per listing in place of asking the user.
func NewLoop(invoker Invoker, display Display, log hclog.Logger, preselect []int) *Loop {
	return &Loop{
		invoker:   invoker,
		display:   display,
		log:       log.Named("nav"),
		preselect: preselect,
	}
}

// Run follows callback URLs starting at start until the user quits, the
// context is cancelled, or a failure occurs with nothing left to fall
// back to.
func (l *Loop) Run(ctx context.Context, start *url.URL) error {
	current := frame{url: start}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		state, err := l.invoker.Execute(ctx, current.url)
		if err != nil {
			current, err = l.handleFailed(ctx, current, err)
			if err != nil {
				return err
			}
			continue
		}

		current, err = l.process(ctx, current, state)
		if errors.Is(err, ErrQuit) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// process interprets one invocation's navigation state and decides the
// next URL to execute.
func (l *Loop) process(ctx context.Context, current frame, state *sandbox.NavState) (frame, error) {
	if state.Resolved != nil {
		calling := current.item
		if calling == nil {
			calling = state.CallingItem
		}
		l.display.Play(ctx, mergeResolved(state.Resolved, calling), state.Playlist)
		return l.pop(current)
	}

	items := state.ListItems
	hasParent := len(l.stack) > 0
	if hasParent {
		parent := sandbox.ListItem{"label": parentLabel}
		items = append([]sandbox.ListItem{parent}, items...)
	}

	if len(items) == 0 {
		l.display.Notify("directory is empty")
		return l.pop(current)
	}

	choice, err := l.choose(ctx, items, state)
	if err != nil {
		return frame{}, err
	}

	if hasParent && choice == 0 {
		popped, _ := l.pop(current)
		return popped, nil
	}

	selected := items[choice]
	target, err := url.Parse(selected.Path())
	if err != nil {
		return frame{}, fmt.Errorf("addon produced an invalid path %q: %w", selected.Path(), err)
	}

	next := frame{url: target, item: selected.Clone()}
	if state.UpdateListing {
		// The listing replaced itself; going back should skip it.
		return next, nil
	}
	l.stack = append(l.stack, current)
	return next, nil
}

func (l *Loop) choose(ctx context.Context, items []sandbox.ListItem, state *sandbox.NavState) (int, error) {
	if len(l.preselect) > 0 {
		choice := l.preselect[0]
		l.preselect = l.preselect[1:]
		if choice < 0 || choice >= len(items) {
			return 0, fmt.Errorf("preselected entry %d is out of range", choice)
		}
		l.log.Debug("using preselected entry", "index", choice, "label", items[choice].Label())
		return choice, nil
	}
	return l.display.Choose(ctx, items, state)
}

// handleFailed reports an invocation failure and backs out one level, or
// ends the session when the failure happened at the entry point.
func (l *Loop) handleFailed(ctx context.Context, current frame, cause error) (frame, error) {
	if ctx.Err() != nil {
		return frame{}, ctx.Err()
	}
	l.log.Debug("invocation failed", "url", current.url.String(), "error", cause)
	l.display.Notify(fmt.Sprintf("%s failed: %v", current.url.Host, cause))

	if len(l.stack) == 0 {
		return frame{}, cause
	}
	popped, _ := l.pop(current)
	return popped, nil
}

func (l *Loop) pop(current frame) (frame, error) {
	if len(l.stack) == 0 {
		return frame{}, ErrQuit
	}
	top := l.stack[len(l.stack)-1]
	l.stack = l.stack[:len(l.stack)-1]
	return top, nil
}

// mergeResolved overlays the resolved playback item onto the item the
// user selected, so metadata set at listing time survives resolution.
// Context menu entries belong to the listing and are dropped.
func mergeResolved(resolved, calling sandbox.ListItem) sandbox.ListItem {
	if calling == nil {
		return resolved.Clone()
	}
	merged := calling.Clone()
	delete(merged, "context")
	for k, v := range resolved.Clone() {
		merged[k] = v
	}
	return merged
}
