// Package httpserver exposes the content routes, the username probe and operational
// endpoints over gin.
package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/accountd/internal/errs"
	"github.com/and161185/accountd/internal/storage"
)

// Client credential headers sent by consoles.
const (
	HeaderClientID     = "X-Nintendo-Client-ID"
	HeaderClientSecret = "X-Nintendo-Client-Secret"
)

// Authorizer checks a client credential pair.
type Authorizer interface {
	Authorize(ctx context.Context, clientID, clientSecret string) bool
}

// UsernameChecker reports whether a username is taken.
type UsernameChecker interface {
	ExistsByUsername(ctx context.Context, username string) (bool, error)
}

// Deps are the collaborators of Server. Metrics and Health are optional.
type Deps struct {
	Clients Authorizer
	People  UsernameChecker
	Content storage.Store
	Metrics http.Handler
	Health  func(ctx context.Context) error
	Log     *zap.Logger
}

// Server wires services into gin handlers.
type Server struct {
	d   Deps
	now func() time.Time
}

// New constructs the HTTP server handlers.
func New(d Deps) *Server {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Server{d: d, now: time.Now}
}

// Router builds a gin engine with middleware and all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(Recover(s.d.Log), RequestID(), Logging(s.d.Log))
	s.RegisterRoutes(r)
	return r
}

// RegisterRoutes attaches the routes to an existing engine.
func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)
	if s.d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.d.Metrics))
	}

	api := r.Group("/v1/api", vendorHeaders(s.now))
	{
		content := api.Group("/content", s.requireClient)
		content.GET("/time_zones/:region/:language", s.timeZones)
		content.GET("/agreements/:type/:region/:version", s.agreement)

		api.GET("/people/:username", s.probeUsername)
	}
}

func (s *Server) health(c *gin.Context) {
	if s.d.Health != nil {
		if err := s.d.Health(c.Request.Context()); err != nil {
			s.d.Log.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// requireClient rejects requests without a registered client credential pair.
// Legacy clients read the error document, so the status stays 200.
func (s *Server) requireClient(c *gin.Context) {
	id, secret := c.GetHeader(HeaderClientID), c.GetHeader(HeaderClientSecret)
	if !s.d.Clients.Authorize(c.Request.Context(), id, secret) {
		writeError(c, http.StatusOK, causeClientID, CodeBadClient, msgBadClient)
		return
	}
	c.Next()
}

func (s *Server) timeZones(c *gin.Context) {
	region, language := c.Param("region"), c.Param("language")
	key, err := storage.Key("timezones", region, language+".xml")
	if err != nil {
		writeError(c, http.StatusOK, "", CodeUnknown, msgUnknown)
		return
	}
	s.serve(c, key, func() {
		writeError(c, http.StatusOK, "", CodeUnknown, msgUnknown)
	})
}

func (s *Server) agreement(c *gin.Context) {
	kind, region, version := c.Param("type"), c.Param("region"), c.Param("version")
	notFound := func() {
		writeError(c, http.StatusOK, "", CodeAgreementNotFound, agreementNotFound(kind, region, version))
	}
	key, err := storage.Key("agreements", kind, region, version+".xml")
	if err != nil {
		notFound()
		return
	}
	s.serve(c, key, notFound)
}

func (s *Server) serve(c *gin.Context, key string, notFound func()) {
	rc, err := s.d.Content.Open(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			notFound()
			return
		}
		s.d.Log.Error("open content", zap.String("key", key), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "", CodeUnknown, msgUnknown)
		return
	}
	defer rc.Close()

	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		s.d.Log.Warn("stream content", zap.String("key", key), zap.Error(err))
	}
}

func (s *Server) probeUsername(c *gin.Context) {
	taken, err := s.d.People.ExistsByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		s.d.Log.Error("username probe", zap.Error(err))
		writeError(c, http.StatusInternalServerError, "", CodeUnknown, msgUnknown)
		return
	}
	if taken {
		writeError(c, http.StatusBadRequest, "", CodeAccountExists, msgAccountExists)
		return
	}
	c.Status(http.StatusOK)
}
