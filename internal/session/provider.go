package session

import (
	"context"

	"github.com/nhle/dragonmail/internal/mailtm"
	"github.com/nhle/dragonmail/internal/model"
)

// Provider is the remote mailbox the manager drives. *mailtm.Session
// implements it.
type Provider interface {
	CreateAccount(ctx context.Context) (mailtm.Credentials, error)
	Authenticate(ctx context.Context, address, password string) (string, error)
	SetCredentials(address, password string)
	Token() string
	Messages(ctx context.Context) ([]model.Message, error)
	Message(ctx context.Context, id string) (*model.Message, error)
	Source(ctx context.Context, id string) ([]byte, error)
	Limits(ctx context.Context) model.APILimits
	DeleteAccount(ctx context.Context, address string) error
	Clear()
}

var _ Provider = (*mailtm.Session)(nil)
