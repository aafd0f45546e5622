package service

import (
	"context"
	"crypto/subtle"
	"errors"

	"go.uber.org/zap"

	"github.com/and161185/accountd/internal/errs"
	"github.com/and161185/accountd/internal/repository"
)

// ClientRecorder observes client credential checks.
type ClientRecorder interface {
	ClientAuthorization(ok bool)
}

// dummySecret has the length of a registered client secret.
var dummySecret = []byte("00000000000000000000000000000000")

type nopClient struct{}

func (nopClient) ClientAuthorization(bool) {}

// ContentAccess gates the content routes on a registered client credential pair.
type ContentAccess struct {
	clients repository.ClientRegistry
	log     *zap.Logger
	rec     ClientRecorder
}

// NewContentAccess constructs ContentAccess. log and rec may be nil.
func NewContentAccess(clients repository.ClientRegistry, log *zap.Logger, rec ClientRecorder) *ContentAccess {
	if log == nil {
		log = zap.NewNop()
	}
	if rec == nil {
		rec = nopClient{}
	}
	return &ContentAccess{clients: clients, log: log, rec: rec}
}

// Authorize reports whether clientSecret is the exact secret registered for clientID.
func (c *ContentAccess) Authorize(ctx context.Context, clientID, clientSecret string) bool {
	ok := c.authorize(ctx, clientID, clientSecret)
	c.rec.ClientAuthorization(ok)
	return ok
}

func (c *ContentAccess) authorize(ctx context.Context, clientID, clientSecret string) bool {
	if clientID == "" || clientSecret == "" {
		return false
	}

	pair, err := c.clients.Lookup(ctx, clientID)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			c.log.Warn("client registry lookup failed", zap.Error(err))
		}
		// keep the comparison cost of a known id
		subtle.ConstantTimeCompare(dummySecret, []byte(clientSecret))
		return false
	}
	return subtle.ConstantTimeCompare([]byte(pair.ClientSecret), []byte(clientSecret)) == 1
}
