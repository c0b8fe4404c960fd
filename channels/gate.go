////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package channels

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// ActionKind is a destructive conversation action.
type ActionKind uint8

const (
	ActionLeave ActionKind = iota + 1
	ActionDelete
	ActionRename
)

// String returns a human-readable name for the ActionKind. Used for logging.
func (k ActionKind) String() string {
	switch k {
	case ActionLeave:
		return "leave"
	case ActionDelete:
		return "delete"
	case ActionRename:
		return "rename"
	default:
		return "INVALID ACTION " + strconv.Itoa(int(k))
	}
}

// PendingAction is a destructive action awaiting confirmation.
type PendingAction struct {
	ConversationURL string
	Kind            ActionKind
	NewName         string
}

// RowMode is how a conversation row responds to clicks.
type RowMode uint8

const (
	// RowOpenable rows open the conversation when clicked.
	RowOpenable RowMode = iota
	// RowConfirming rows show confirm and cancel controls instead.
	RowConfirming
)

// ClickKind identifies what a click landed on.
type ClickKind uint8

const (
	// ClickElsewhere is any click outside the conversation list controls.
	ClickElsewhere ClickKind = iota
	// ClickRow is a click on a conversation row.
	ClickRow
	// ClickMenu is a click on a row's action menu toggle.
	ClickMenu
	// ClickConfirm is a click on the confirm control of a pending action.
	ClickConfirm
	// ClickCancel is a click on the cancel control of a pending action.
	ClickCancel
)

// ClickTarget describes a click.
type ClickTarget struct {
	Kind            ClickKind
	ConversationURL string
}

// Gate holds at most one pending destructive action and executes it only
// after explicit confirmation.
type Gate struct {
	dir *Directory

	mux      sync.Mutex
	pending  *PendingAction
	inFlight bool
	menuURL  string
}

// NewGate creates a Gate that executes actions through dir.
func NewGate(dir *Directory) *Gate {
	return &Gate{dir: dir}
}

// RequestAction stages an action, replacing whatever was pending before.
// Rename and delete are only accepted for group conversations created by the
// current user.
func (g *Gate) RequestAction(url string, kind ActionKind,
	newName string) error {
	c, ok := g.dir.Get(url)
	if !ok {
		return errors.Wrap(ErrNotFound, url)
	}

	switch kind {
	case ActionLeave:
	case ActionRename:
		newName = strings.TrimSpace(newName)
		if newName == "" {
			return ErrInvalidName
		}
		fallthrough
	case ActionDelete:
		if !CanManage(c, g.dir.SelfID()) {
			return ErrNotCreator
		}
	default:
		return errors.Errorf("unknown action %s", kind)
	}

	g.mux.Lock()
	defer g.mux.Unlock()
	if g.pending != nil {
		jww.DEBUG.Printf("[GATE] Replacing pending %s of %s",
			g.pending.Kind, g.pending.ConversationURL)
	}
	g.pending = &PendingAction{
		ConversationURL: url, Kind: kind, NewName: newName}
	g.menuURL = ""
	jww.DEBUG.Printf("[GATE] Pending %s of %s", kind, url)
	return nil
}

// Pending returns the pending action, if any.
func (g *Gate) Pending() (PendingAction, bool) {
	g.mux.Lock()
	defer g.mux.Unlock()
	if g.pending == nil {
		return PendingAction{}, false
	}
	return *g.pending, true
}

// Confirm executes the pending action. The action is cleared whether or not
// the backend call succeeds; a failure is returned and never retried.
func (g *Gate) Confirm(ctx context.Context) error {
	g.mux.Lock()
	if g.inFlight {
		g.mux.Unlock()
		return ErrActionInFlight
	}
	action := g.pending
	if action == nil {
		g.mux.Unlock()
		return ErrNoPendingAction
	}
	g.inFlight = true
	g.mux.Unlock()

	err := g.execute(ctx, *action)

	g.mux.Lock()
	g.inFlight = false
	// A newer request made while executing stays pending.
	if g.pending == action {
		g.pending = nil
	}
	g.mux.Unlock()

	if err != nil {
		jww.ERROR.Printf("[GATE] %s of %s failed: %+v", action.Kind,
			action.ConversationURL, err)
		return err
	}
	jww.INFO.Printf("[GATE] %s of %s done", action.Kind,
		action.ConversationURL)
	return nil
}

// Cancel discards the pending action without contacting the backend.
func (g *Gate) Cancel() {
	g.mux.Lock()
	defer g.mux.Unlock()
	g.pending = nil
}

// RowMode returns how the row of the given conversation handles clicks.
func (g *Gate) RowMode(url string) RowMode {
	g.mux.Lock()
	defer g.mux.Unlock()
	if g.pending != nil && g.pending.ConversationURL == url {
		return RowConfirming
	}
	return RowOpenable
}

// MenuOpenFor returns the conversation whose action menu is open, or "".
func (g *Gate) MenuOpenFor() string {
	g.mux.Lock()
	defer g.mux.Unlock()
	return g.menuURL
}

// HandleClick updates the action menu for a click and returns true if the
// click should open the clicked conversation. Clicks on the confirm and
// cancel controls are left to Confirm and Cancel, and no click discards a
// pending action.
func (g *Gate) HandleClick(target ClickTarget) bool {
	g.mux.Lock()
	defer g.mux.Unlock()

	switch target.Kind {
	case ClickConfirm, ClickCancel:
		return false
	case ClickMenu:
		if g.menuURL == target.ConversationURL {
			g.menuURL = ""
		} else {
			g.menuURL = target.ConversationURL
		}
		return false
	case ClickRow:
		g.menuURL = ""
		return g.pending == nil ||
			g.pending.ConversationURL != target.ConversationURL
	default:
		g.menuURL = ""
		return false
	}
}

func (g *Gate) execute(ctx context.Context, a PendingAction) error {
	switch a.Kind {
	case ActionLeave:
		return g.dir.Leave(ctx, a.ConversationURL)
	case ActionDelete:
		return g.dir.Delete(ctx, a.ConversationURL)
	case ActionRename:
		return g.dir.Rename(ctx, a.ConversationURL, a.NewName)
	default:
		return errors.Errorf("unknown action %s", a.Kind)
	}
}
