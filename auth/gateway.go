package auth

import (
	"context"
	"errors"

	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/internal/obs"
	"github.com/jrsteele09/go-session-auth/token"
	"github.com/jrsteele09/go-session-auth/users"
	"go.opentelemetry.io/otel/attribute"
)

// Gateway authenticates access tokens on protected routes. A token must both
// verify and belong to an identity that still exists.
type Gateway struct {
	codec      *token.Codec
	identities users.Repo
	metrics    *obs.Metrics
}

type GatewayOption func(*Gateway)

func WithGatewayMetrics(metrics *obs.Metrics) GatewayOption {
	return func(g *Gateway) {
		g.metrics = metrics
	}
}

func NewGateway(codec *token.Codec, identities users.Repo, options ...GatewayOption) (*Gateway, error) {
	if codec == nil {
		return nil, errors.New("[NewGateway] codec is required")
	}
	if identities == nil {
		return nil, errors.New("[NewGateway] identity repo is required")
	}
	g := &Gateway{codec: codec, identities: identities}
	for _, opt := range options {
		opt(g)
	}
	return g, nil
}

// Authenticate resolves raw to the identity it was issued for. Expired tokens
// yield ErrExpiredToken so callers can renew instead of signing in again.
func (g *Gateway) Authenticate(ctx context.Context, raw string) (users.Profile, error) {
	ctx, span := tracer.Start(ctx, "Gateway.Authenticate")
	defer span.End()

	profile, err := g.authenticate(ctx, raw)
	switch apperrors.KindOf(err) {
	case apperrors.KindExpired:
		g.metrics.Gateway(obs.ResultExpired)
	case apperrors.KindUnauthenticated:
		g.metrics.Gateway(obs.ResultRejected)
	default:
		if err != nil {
			g.metrics.Gateway(obs.ResultError)
		} else {
			g.metrics.Gateway(obs.ResultOK)
			span.SetAttributes(attribute.String("identity.id", profile.ID))
		}
	}
	return profile, err
}

func (g *Gateway) authenticate(ctx context.Context, raw string) (users.Profile, error) {
	if raw == "" {
		return users.Profile{}, apperrors.ErrMissingToken
	}

	claims, err := g.codec.Verify(token.KindAccess, raw)
	switch {
	case errors.Is(err, token.ErrExpired):
		return users.Profile{}, apperrors.ErrExpiredToken
	case errors.Is(err, token.ErrInvalidSignature):
		return users.Profile{}, apperrors.ErrInvalidToken
	case err != nil:
		return users.Profile{}, err
	}

	identity, err := g.identities.GetByID(ctx, claims.Subject)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return users.Profile{}, apperrors.ErrInvalidToken
	}
	if err != nil {
		return users.Profile{}, apperrors.Wrapf(err, "[Gateway Authenticate] load identity %s", claims.Subject)
	}
	return identity.Profile(), nil
}
