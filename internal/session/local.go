package session

import (
	"context"

	"github.com/zombor/billnote/internal/auth"
	"github.com/zombor/billnote/internal/extraction"
	"github.com/zombor/billnote/internal/note"
)

// Local runs a session in-process for one user, without the HTTP API
type Local struct {
	Extraction *extraction.Client
	Notes      *note.Service
	Identity   auth.Identity
}

// Extract implements Extractor
func (l Local) Extract(ctx context.Context, req extraction.Request) (*extraction.Result, error) {
	return l.Extraction.Extract(ctx, l.Identity, req)
}

// Commit implements Committer
func (l Local) Commit(_ context.Context, req note.CommitRequest) (*note.NoteWithItems, error) {
	if !l.Identity.Valid() {
		return nil, auth.ErrUnauthorized
	}
	return l.Notes.Commit(l.Identity.UserID, req)
}
