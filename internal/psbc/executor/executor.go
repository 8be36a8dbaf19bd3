// Package executor implements C6: applies a batch of ResultCommands to a
// document's State Store, one transition per command, in declared order
// (spec §4.3). A failing composite child aborts and rolls back via
// history rather than leaving the document in a mixed state.
package executor

import (
	"fmt"

	"github.com/debrief/psbc/internal/psbc/command"
	"github.com/debrief/psbc/internal/psbc/errno"
	"github.com/debrief/psbc/internal/psbc/identity"
	"github.com/debrief/psbc/internal/psbc/state"
	"github.com/debrief/psbc/pkg/errorx"
	"github.com/debrief/psbc/pkg/logger"
)

const logModule = "executor"

// SideEffects receives the non-state-mutating commands (showText,
// showData, showImage, logMessage) as the Executor encounters them. The
// Bridge/UI layer supplies an implementation; the Executor itself has no
// opinion about how a message gets surfaced.
type SideEffects interface {
	ShowText(docID identity.DocID, payload command.ShowText)
	ShowData(docID identity.DocID, payload command.ShowData)
	ShowImage(docID identity.DocID, payload command.ShowImage)
	LogMessage(docID identity.DocID, payload command.LogMessage)
}

// NopSideEffects discards every side effect; useful in tests and for
// callers that only care about state mutation.
type NopSideEffects struct{}

func (NopSideEffects) ShowText(identity.DocID, command.ShowText)    {}
func (NopSideEffects) ShowData(identity.DocID, command.ShowData)    {}
func (NopSideEffects) ShowImage(identity.DocID, command.ShowImage)  {}
func (NopSideEffects) LogMessage(identity.DocID, command.LogMessage) {}

// Executor is C6.
type Executor struct {
	store *state.Store
	fx    SideEffects
}

// New constructs an Executor bound to store. fx may be nil, in which case
// NopSideEffects is used.
func New(store *state.Store, fx SideEffects) *Executor {
	if fx == nil {
		fx = NopSideEffects{}
	}
	return &Executor{store: store, fx: fx}
}

// Apply runs commands against docID in order, one State Store transition
// per command. If any command fails, already-applied state-mutating
// commands in this batch are rolled back via Undo (in reverse order)
// before returning the error, so a partially-applied batch never persists
// (spec §4.3 composite: "abort and roll back using history").
func (e *Executor) Apply(docID identity.DocID, commands []command.ResultCommand) error {
	applied := 0
	for i, c := range commands {
		if err := c.Validate(); err != nil {
			e.rollback(docID, applied)
			return errorx.New(errno.InvalidParameter, err.Error(), nil)
		}
		mutated, err := e.applyOne(docID, c)
		if err != nil {
			logger.WarnX(logModule, "command failed, rolling back batch", "doc_id", docID, "index", i, "kind", c.Kind, "error", err)
			e.rollback(docID, applied)
			return err
		}
		applied += mutated
	}
	return nil
}

// rollback undoes n state-mutating transitions this Apply call just made,
// restoring docID to its pre-batch state.
func (e *Executor) rollback(docID identity.DocID, n int) {
	for i := 0; i < n; i++ {
		if err := e.store.Undo(docID); err != nil {
			logger.ErrorX(logModule, "rollback undo failed", "doc_id", docID, "error", err)
			return
		}
	}
}

// applyOne dispatches a single command to the State Store or to fx,
// returning the number of state-mutating transitions it committed to
// history (0 or 1 for a plain command, 0..len(children) for a composite)
// so the caller's rollback count is exact regardless of Kind.
func (e *Executor) applyOne(docID identity.DocID, c command.ResultCommand) (int, error) {
	switch c.Kind {
	case command.KindAddFeatures:
		return mutated(e.store.AddFeatures(docID, c.AddFeatures))
	case command.KindUpdateFeatures:
		return mutated(e.store.UpdateFeatures(docID, c.UpdateFeatures))
	case command.KindDeleteFeatures:
		return mutated(e.store.DeleteFeatures(docID, c.DeleteFeatures))
	case command.KindSetFeatureCollection:
		return mutated(e.store.ReplaceCollection(docID, *c.SetFeatureCollection))
	case command.KindSetSelection:
		return mutated(e.store.Set(docID, state.SliceSelection, *c.SetSelection))
	case command.KindSetTime:
		return mutated(e.store.Set(docID, state.SliceTime, *c.SetTime))
	case command.KindSetViewport:
		return mutated(e.store.Set(docID, state.SliceViewport, *c.SetViewport))
	case command.KindShowText:
		e.fx.ShowText(docID, *c.ShowText)
		return 0, nil
	case command.KindShowData:
		e.fx.ShowData(docID, *c.ShowData)
		return 0, nil
	case command.KindShowImage:
		e.fx.ShowImage(docID, *c.ShowImage)
		return 0, nil
	case command.KindLogMessage:
		e.fx.LogMessage(docID, *c.LogMessage)
		return 0, nil
	case command.KindComposite:
		return e.applyComposite(docID, c.Composite)
	default:
		return 0, errorx.New(errno.InvalidParameter, fmt.Sprintf("unknown command kind %q", c.Kind), nil)
	}
}

// mutated turns a single State Store call's error into the (count, error)
// shape applyOne returns: one mutation on success, none on failure.
func mutated(err error) (int, error) {
	if err != nil {
		return 0, err
	}
	return 1, nil
}

// applyComposite applies children sequentially as one logical group; a
// failing child rolls back only the children applied so far within this
// composite (so on error it always reports 0 applied upward — those
// mutations are already undone), then propagates the error up to the
// enclosing Apply, which continues rolling back any earlier top-level
// commands in the batch using the exact count this composite applied.
func (e *Executor) applyComposite(docID identity.DocID, children []command.ResultCommand) (int, error) {
	applied := 0
	for i, child := range children {
		mutated, err := e.applyOne(docID, child)
		if err != nil {
			logger.WarnX(logModule, "composite child failed, rolling back group", "doc_id", docID, "index", i, "kind", child.Kind, "error", err)
			e.rollback(docID, applied)
			return 0, err
		}
		applied += mutated
	}
	return applied, nil
}
