package services

import (
	"context"

	"github.com/gabofunebre/backuper/models"
	"github.com/gabofunebre/backuper/storage"
	"github.com/gabofunebre/backuper/transfer"
)

type AuthorizeServiceInterface interface {
	Begin(ctx context.Context) (transfer.AuthSession, error)
	Status(sessionID string) (transfer.AuthSession, error)
	Complete(ctx context.Context, sessionID, code string) (string, error)
	Cancel(sessionID string)
}

// AuthorizeService runs the interactive drive authorization flow and
// sanity-checks the token the tool hands back.
type AuthorizeService struct {
	authorizer *transfer.Authorizer
}

func NewAuthorizeService(authorizer *transfer.Authorizer) *AuthorizeService {
	return &AuthorizeService{authorizer: authorizer}
}

func (as *AuthorizeService) Begin(ctx context.Context) (transfer.AuthSession, error) {
	return as.authorizer.Begin(ctx)
}

func (as *AuthorizeService) Status(sessionID string) (transfer.AuthSession, error) {
	if !as.authorizer.Pending(sessionID) {
		return transfer.AuthSession{}, models.NewError(models.ErrNotFound, "authorization session not found")
	}
	return transfer.AuthSession{ID: sessionID}, nil
}

// Complete submits the verification code and returns the resulting token
// JSON, rejected when the tool printed something that is not a token.
func (as *AuthorizeService) Complete(ctx context.Context, sessionID, code string) (string, error) {
	token, err := as.authorizer.Complete(ctx, sessionID, code)
	if err != nil {
		return "", err
	}
	if _, err := storage.ParseDriveToken(token); err != nil {
		return "", models.WrapError(models.ErrBackendUnavailable, "authorization produced an unusable token", err)
	}
	return token, nil
}

func (as *AuthorizeService) Cancel(sessionID string) {
	as.authorizer.Cancel(sessionID)
}
