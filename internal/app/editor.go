package app

import (
	"context"
	"errors"
	"log"
	"sync"

	"ceramicprofile/api/internal/profile"
)

type EditorPhase string

const (
	PhaseUninitialized EditorPhase = "uninitialized"
	PhaseLoaded        EditorPhase = "loaded"
	PhaseEmpty         EditorPhase = "empty"
	PhaseEditing       EditorPhase = "editing"
	PhaseSubmitting    EditorPhase = "submitting"
	PhaseSubmitted     EditorPhase = "submitted"
	PhaseSubmitFailed  EditorPhase = "submit_failed"
)

const (
	updatedMessage      = "Your profile is updated on Ceramic Network successfully."
	updateFailedMessage = "Sorry, your profile could not be updated.\n\nError Details:\n\n"
	loadedHint          = "Your profile is loaded from Ceramic Network. Try updating it below."
	noProfileMessage    = "You do not have a profile stream attached to your 3ID. Create a basic profile by setting a name below."
)

var allowedGenders = map[string]struct{}{
	"":       {},
	"Male":   {},
	"Female": {},
}

// ProfileForm holds the editable copy of the profile fields.
type ProfileForm struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Gender      string `json:"gender"`
	Location    string `json:"location"`
}

type EditorView struct {
	Form       ProfileForm `json:"form"`
	HasProfile bool        `json:"hasProfile"`
	Message    string      `json:"message"`
	Phase      EditorPhase `json:"phase"`
	Version    string      `json:"version"`
}

// ProfileEditor keeps a local form in sync with a basicProfile record. The form is
// overwritten from the record only when a snapshot with a new version arrives.
type ProfileEditor struct {
	record   *profile.Record
	notifier Notifier

	submitMu sync.Mutex

	mu         sync.Mutex
	form       ProfileForm
	synced     bool
	syncs      uint64
	version    string
	hasProfile bool
	remoteName string
	phase      EditorPhase
}

func NewProfileEditor(record *profile.Record, notifier Notifier) *ProfileEditor {
	return &ProfileEditor{
		record:   record,
		notifier: notifier,
		phase:    PhaseUninitialized,
	}
}

func (e *ProfileEditor) DID() string {
	return e.record.DID()
}

// Refresh loads the current record and applies it if its version changed.
// A load that finishes after a newer snapshot was applied is discarded.
func (e *ProfileEditor) Refresh(ctx context.Context) error {
	e.mu.Lock()
	syncs := e.syncs
	e.mu.Unlock()

	snapshot, err := e.record.Content(ctx)
	if err != nil {
		log.Printf("profile: load %s: %v", e.record.DID(), err)
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.syncs != syncs {
		return nil
	}
	e.syncLocked(snapshot)
	return nil
}

// Sync reports whether the snapshot replaced the form.
func (e *ProfileEditor) Sync(snapshot profile.Snapshot) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncLocked(snapshot)
}

func (e *ProfileEditor) syncLocked(snapshot profile.Snapshot) bool {
	if e.synced && snapshot.Version == e.version {
		return false
	}
	e.synced = true
	e.syncs++
	e.version = snapshot.Version
	e.hasProfile = snapshot.Exists()
	if e.hasProfile {
		e.form = ProfileForm{
			Name:        snapshot.Content[profile.FieldName],
			Description: snapshot.Content[profile.FieldDescription],
			Gender:      snapshot.Content[profile.FieldGender],
			Location:    snapshot.Content[profile.FieldHomeLocation],
		}
		e.remoteName = snapshot.Content[profile.FieldName]
	}
	if e.phase != PhaseSubmitting {
		if e.hasProfile {
			e.phase = PhaseLoaded
		} else {
			e.phase = PhaseEmpty
		}
	}
	return true
}

func (e *ProfileEditor) Form() ProfileForm {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.form
}

func (e *ProfileEditor) HasProfile() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasProfile
}

func (e *ProfileEditor) Phase() EditorPhase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Message greets the record's owner by the stored name, not the edited one.
func (e *ProfileEditor) Message() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.messageLocked()
}

func (e *ProfileEditor) messageLocked() string {
	if !e.hasProfile {
		return noProfileMessage
	}
	return "Hello " + e.remoteName + "!\n" + loadedHint
}

func (e *ProfileEditor) View() EditorView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EditorView{
		Form:       e.form,
		HasProfile: e.hasProfile,
		Message:    e.messageLocked(),
		Phase:      e.phase,
		Version:    e.version,
	}
}

func (e *ProfileEditor) SetName(value string) {
	e.edit(func(f *ProfileForm) { f.Name = value })
}

func (e *ProfileEditor) SetDescription(value string) {
	e.edit(func(f *ProfileForm) { f.Description = value })
}

func (e *ProfileEditor) SetGender(value string) error {
	if _, ok := allowedGenders[value]; !ok {
		return ErrInvalidGender
	}
	e.edit(func(f *ProfileForm) { f.Gender = value })
	return nil
}

func (e *ProfileEditor) SetLocation(value string) {
	e.edit(func(f *ProfileForm) { f.Location = value })
}

func (e *ProfileEditor) edit(apply func(*ProfileForm)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	apply(&e.form)
	if e.phase != PhaseSubmitting {
		e.phase = PhaseEditing
	}
}

// UpdateProfile merges all four form fields into the record. Submits are
// serialized; each one sends the form as it was when the submit started.
func (e *ProfileEditor) UpdateProfile(ctx context.Context) error {
	e.submitMu.Lock()
	defer e.submitMu.Unlock()

	e.mu.Lock()
	patch := profile.Content{
		profile.FieldName:         e.form.Name,
		profile.FieldDescription:  e.form.Description,
		profile.FieldGender:       e.form.Gender,
		profile.FieldHomeLocation: e.form.Location,
	}
	e.phase = PhaseSubmitting
	e.mu.Unlock()

	snapshot, err := e.record.Merge(ctx, patch)
	if err != nil {
		log.Printf("profile: merge %s: %v", e.record.DID(), err)
		e.mu.Lock()
		e.phase = PhaseSubmitFailed
		e.mu.Unlock()
		e.notify(Notification{Kind: NotifyUpdateFailed, Message: updateFailedMessage + failureDetail(err)})
		return err
	}

	e.mu.Lock()
	e.syncLocked(snapshot)
	e.syncs++
	e.phase = PhaseSubmitted
	e.mu.Unlock()
	e.notify(Notification{Kind: NotifyProfileUpdated, Message: updatedMessage})
	return nil
}

func (e *ProfileEditor) notify(n Notification) {
	if e.notifier != nil {
		e.notifier.Notify(n)
	}
}

func failureDetail(err error) string {
	var mergeErr *profile.MergeError
	if errors.As(err, &mergeErr) && mergeErr.Err.Message != "" {
		return mergeErr.Err.Message
	}
	return err.Error()
}
