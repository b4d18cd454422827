package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7/pkg/credentials"

	"worker-pipeline/dto"
	"worker-pipeline/storage"
)

// Exchanger trades a verified identity token for temporary storage
// credentials via the object store's STS endpoint. The returned credentials
// carry the tenant's key prefix; the store's policy restricts access to it.
type Exchanger struct {
	stsEndpoint string
	duration    time.Duration
	secret      []byte
}

func NewExchanger(stsEndpoint string, duration time.Duration, secret []byte) *Exchanger {
	if duration == 0 {
		duration = time.Hour
	}
	return &Exchanger{stsEndpoint: stsEndpoint, duration: duration, secret: secret}
}

func (e *Exchanger) Exchange(ctx context.Context, req dto.CredentialExchangeRequest) (dto.CredentialExchangeResponse, error) {
	scope, err := ParseScope(req.IdToken, e.secret)
	if err != nil {
		return dto.CredentialExchangeResponse{}, err
	}

	sts, err := credentials.NewSTSWebIdentity(e.stsEndpoint, func() (*credentials.WebIdentityToken, error) {
		return &credentials.WebIdentityToken{
			Token:  req.IdToken,
			Expiry: int(e.duration.Seconds()),
		}, nil
	})
	if err != nil {
		return dto.CredentialExchangeResponse{}, fmt.Errorf("sts exchange setup failed: %w", err)
	}

	value, err := sts.Get()
	if err != nil {
		return dto.CredentialExchangeResponse{}, fmt.Errorf("sts exchange failed: %w", err)
	}

	return dto.CredentialExchangeResponse{
		AccessKeyId:     value.AccessKeyID,
		SecretAccessKey: value.SecretAccessKey,
		SessionToken:    value.SessionToken,
		Expiration:      time.Now().UTC().Add(e.duration),
		TenantId:        scope.TenantId,
		StoragePrefix:   storage.TenantPrefix(scope.TenantId),
	}, nil
}
