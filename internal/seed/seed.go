package seed

import (
	"context"
	"errors"

	accountdomain "github.com/smallbiznis/kiraya/internal/account/domain"
	"github.com/smallbiznis/kiraya/internal/config"
	"go.uber.org/zap"
)

// EnsureBootstrapAccount creates the configured first account with its owner
// and prints the owner's API key once. An existing account with the same slug
// is left alone.
func EnsureBootstrapAccount(ctx context.Context, svc accountdomain.Service, cfg config.BootstrapConfig, log *zap.Logger) (*accountdomain.CreateAccountResponse, error) {
	if cfg.AccountName == "" {
		return nil, nil
	}
	if svc == nil {
		return nil, errors.New("seed account service is required")
	}
	log = log.Named("seed")

	resp, err := svc.CreateAccount(ctx, accountdomain.CreateAccountRequest{
		Name:       cfg.AccountName,
		OwnerName:  cfg.OwnerName,
		OwnerEmail: cfg.OwnerEmail,
	})
	if errors.Is(err, accountdomain.ErrAccountExists) {
		log.Info("bootstrap account already present", zap.String("account", cfg.AccountName))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	log.Warn("bootstrap account created, store the owner API key now, it is not shown again",
		zap.String("account_id", resp.Account.ID.String()),
		zap.String("owner_email", resp.Owner.Email),
		zap.String("key_id", resp.APIKey.KeyID),
		zap.String("api_key", resp.APIKey.APIKey),
	)
	return resp, nil
}
