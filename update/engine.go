// Copyright 2022 The Armored Witness OS authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package update

import (
	"fmt"

	"k8s.io/klog/v2"
)

// Config holds the long-lived, per-Engine settings that outlive any one
// Transaction: the optional magic marker and the optional
// hasher/signature-verifier pair used by the Appendix Verifier.
type Config struct {
	// Magic is the expected byte sequence near the tail of a written
	// image. A nil or empty Magic disables the magic check.
	Magic []byte
	// Hasher and Verifier, if both set, enable the signature check. Either
	// being nil disables it.
	Hasher   Hasher
	Verifier SignatureVerifier
}

// Engine is the update transaction engine: it owns the process-wide "an
// update is in progress" lock, drives the Idle/Writing/Verifying/
// Committing/Aborting state machine, accumulates bytes written, and on
// finalization invokes the Appendix Verifier and then the Boot Selector.
//
// An *Engine implements ByteSink directly via its Write method, so a
// downloader can hold a bare ByteSink reference without knowing about the
// rest of the engine's surface.
type Engine struct {
	lock  *Lock
	flash FlashTarget
	boot  BootSelector

	cfg Config
	tx  *transaction
}

// NewEngine returns an Engine sharing the process-wide DefaultLock, as is
// appropriate when there is exactly one Flash Target and Boot Selector
// singleton in the running process.
func NewEngine(flash FlashTarget, boot BootSelector) *Engine {
	return NewEngineWithLock(flash, boot, DefaultLock)
}

// NewEngineWithLock returns an Engine guarded by the given Lock. Tests
// construct isolated Engines this way so that one test's in-progress
// transaction cannot make another test's Begin spuriously return
// ErrBusy.
func NewEngineWithLock(flash FlashTarget, boot BootSelector, lock *Lock) *Engine {
	return &Engine{
		lock:  lock,
		flash: flash,
		boot:  boot,
	}
}

// IsUpdateRunning reports whether this Engine's lock is currently held.
// Like Lock.IsRunning, this is advisory only.
func (e *Engine) IsUpdateRunning() bool {
	return e.lock.IsRunning()
}

// InstallVerifier installs the Hasher/SignatureVerifier pair used by
// Finish to check the signature over the written image. It requires no
// active transaction.
func (e *Engine) InstallVerifier(h Hasher, v SignatureVerifier) error {
	if e.tx != nil {
		return ErrBusy
	}
	e.cfg.Hasher = h
	e.cfg.Verifier = v
	return nil
}

// SetMagic installs the magic marker expected near the tail of a written
// image. The bytes are copied; it requires no active transaction.
func (e *Engine) SetMagic(magic []byte) error {
	if e.tx != nil {
		return ErrBusy
	}
	m := make([]byte, len(magic))
	copy(m, magic)
	e.cfg.Magic = m
	return nil
}

// Begin starts a new update transaction. sizeHint may be SizeUnknown, in
// which case the Flash Target erases the entire slot. If slot is nil, the
// Flash Target's inactive slot is resolved and used.
//
// Begin acquires the process-wide lock; if another transaction (on this
// Engine or any other sharing the same Lock) is active, it returns
// ErrBusy without touching the Flash Target.
func (e *Engine) Begin(sizeHint int64, slot *Slot) error {
	if !e.lock.TryAcquire() {
		return ErrBusy
	}

	var s Slot
	if slot != nil {
		s = *slot
	} else {
		resolved, err := e.flash.ResolveInactiveSlot()
		if err != nil {
			klog.Errorf("update: failed to resolve inactive slot: %v", err)
			e.lock.Release()
			return ErrNoSlot
		}
		s = resolved
	}

	h, err := e.flash.OpenSession(s, sizeHint)
	if err != nil {
		klog.Errorf("update: OpenSession(%d, %d) failed: %v", s, sizeHint, err)
		e.lock.Release()
		return &FlashError{Op: "open_session", Code: err}
	}

	e.tx = &transaction{
		slot:   s,
		handle: h,
		state:  StateWriting,
	}
	klog.Infof("update: transaction started on slot %d (size hint %d)", s, sizeHint)
	return nil
}

// Write appends p to the active transaction's flash session, advancing
// bytesWritten by exactly len(p) on success. It satisfies ByteSink.
//
// On a Flash Target error, the driver's error is returned verbatim and
// the transaction remains in StateWriting: Write never auto-aborts, so
// that a caller may retry the same or a subsequent chunk.
//
// If no transaction is active, Write returns ErrNotRunning without
// touching the Flash Target.
func (e *Engine) Write(p []byte) error {
	tx := e.tx
	if tx == nil || tx.state != StateWriting {
		return ErrNotRunning
	}

	if err := e.flash.WriteSession(tx.handle, p); err != nil {
		return err
	}
	tx.bytesWritten += int64(len(p))
	return nil
}

// Finish closes the flash session, runs the Appendix Verifier over the
// completed image, and — only if verification passes — invokes the Boot
// Selector on the transaction's slot. Once the flash session is being
// closed, the process-wide lock is released on every exit path, whatever
// the outcome.
//
// Finish requires the transaction to be in StateWriting with at least one
// byte written. Otherwise it returns ErrNotRunning and leaves any active
// transaction, and the lock, as they were.
func (e *Engine) Finish() error {
	tx := e.tx
	if tx == nil || tx.state != StateWriting || tx.bytesWritten == 0 {
		return ErrNotRunning
	}

	tx.state = StateVerifying

	if err := e.flash.CloseSession(tx.handle); err != nil {
		klog.Errorf("update: CloseSession failed: %v", err)
		e.abortLocked(fmt.Sprintf("close session: %v", err))
		return &FlashError{Op: "close_session", Code: err}
	}

	verifyErr := verifyAppendix(e.flash, tx.slot, tx.bytesWritten, e.cfg)
	if verifyErr != nil {
		klog.Errorf("update: appendix verification failed on slot %d: %v", tx.slot, verifyErr)
		e.abortLocked("appendix verification failed")
		return verifyErr
	}

	tx.state = StateCommitting

	if err := e.boot.SetBoot(tx.slot); err != nil {
		klog.Errorf("update: SetBoot(%d) failed: %v", tx.slot, err)
		e.abortLocked(fmt.Sprintf("set boot: %v", err))
		return ErrBootSelectFailed
	}

	klog.Infof("update: committed, slot %d is now the boot target (%d bytes)", tx.slot, tx.bytesWritten)
	e.tx = nil
	e.lock.Release()
	return nil
}

// Abort cancels an in-progress transaction. The flash session is closed
// (errors are logged but non-fatal) and the lock is released; the Boot
// Selector is never invoked, so the device continues to boot whatever
// slot was previously active.
//
// Abort returns ErrNotRunning if no transaction is active.
func (e *Engine) Abort() error {
	tx := e.tx
	if tx == nil || (tx.state != StateWriting && tx.state != StateVerifying) {
		return ErrNotRunning
	}
	e.abortLocked("caller requested abort")
	return nil
}

// abortLocked transitions the active transaction through StateAborting to
// StateIdle, releasing the lock exactly once. It must only be called while
// e.tx is non-nil.
func (e *Engine) abortLocked(reason string) {
	tx := e.tx
	tx.state = StateAborting

	if err := e.flash.CloseSession(tx.handle); err != nil {
		klog.Warningf("update: abort: CloseSession(%d) on slot %d: %v (ignored)", tx.handle, tx.slot, err)
	}

	klog.Infof("update: transaction on slot %d aborted: %s", tx.slot, reason)
	e.tx = nil
	e.lock.Release()
}

// ActivateNextSlot atomically resolves the inactive slot and invokes the
// Boot Selector on it, without writing any new image — it flips to a
// pre-installed image the caller has already accepted responsibility for.
// It is a static operation: it does not require or create a transaction,
// but it still contends for the same Lock as Begin, so it fails with
// ErrBusy while any transaction is active.
func (e *Engine) ActivateNextSlot() error {
	if !e.lock.TryAcquire() {
		return ErrBusy
	}
	defer e.lock.Release()

	s, err := e.flash.ResolveInactiveSlot()
	if err != nil {
		klog.Errorf("update: ActivateNextSlot: failed to resolve inactive slot: %v", err)
		return ErrNoSlot
	}

	if err := e.boot.SetBoot(s); err != nil {
		klog.Errorf("update: ActivateNextSlot: SetBoot(%d) failed: %v", s, err)
		return ErrBootSelectFailed
	}

	klog.Infof("update: activated pre-installed image on slot %d", s)
	return nil
}

// BytesWritten returns the number of bytes accepted by the Flash Target
// in the active transaction, or zero if none is active.
func (e *Engine) BytesWritten() int64 {
	if e.tx == nil {
		return 0
	}
	return e.tx.bytesWritten
}

// CurrentState returns the active transaction's state, or StateIdle if
// none is active.
func (e *Engine) CurrentState() State {
	if e.tx == nil {
		return StateIdle
	}
	return e.tx.state
}
