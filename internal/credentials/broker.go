package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/google/uuid"

	"github.com/opsgrade/opsgrade/internal/models"
)

// ErrAccessDenied marks a target whose cross-environment role is missing or
// whose trust policy rejects the engine. Terminal for that subject's run;
// never blocks other subjects.
var ErrAccessDenied = errors.New("access denied")

// AssumeRoleAPI is the slice of the STS client the broker uses.
type AssumeRoleAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// Broker exchanges an environment target for short-lived credentials scoped
// to the target's pre-provisioned assessment role. The confirmation secret is
// presented as the assume-role external id, so knowing a subject's role name
// alone is not enough to assume it.
type Broker struct {
	client          AssumeRoleAPI
	confirmationKey string
	sessionDuration time.Duration
}

type BrokerConfig struct {
	// ConfirmationSecret must match the external id in the target role's
	// trust policy.
	ConfirmationSecret string
	// SessionDuration bounds the vended credentials' lifetime. Defaults to
	// 15 minutes, the minimum STS allows.
	SessionDuration time.Duration
}

func NewBroker(client AssumeRoleAPI, cfg BrokerConfig) (*Broker, error) {
	if cfg.ConfirmationSecret == "" {
		return nil, fmt.Errorf("confirmation secret required")
	}
	if cfg.SessionDuration <= 0 {
		cfg.SessionDuration = 15 * time.Minute
	}
	return &Broker{
		client:          client,
		confirmationKey: cfg.ConfirmationSecret,
		sessionDuration: cfg.SessionDuration,
	}, nil
}

// NewBrokerFromEnv builds a Broker on a real STS client configured from the
// environment.
func NewBrokerFromEnv(ctx context.Context, cfg BrokerConfig) (*Broker, error) {
	awsCfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewBroker(sts.NewFromConfig(awsCfg), cfg)
}

// Vend assumes the target's assessment role and returns the temporary keys.
// Credentials are intentionally short-lived and must not be cached across
// runs. The confirmation secret is held only for the duration of this call
// and never logged.
func (b *Broker) Vend(ctx context.Context, target models.EnvironmentTarget) (models.Credentials, error) {
	out, err := b.client.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(target.RoleARN),
		RoleSessionName: aws.String("assessment-" + uuid.New().String()[:8]),
		ExternalId:      aws.String(b.confirmationKey),
		DurationSeconds: aws.Int32(int32(b.sessionDuration / time.Second)),
	})
	if err != nil {
		return models.Credentials{}, fmt.Errorf("%w: assume %s: %v", ErrAccessDenied, target.RoleARN, err)
	}
	c := out.Credentials
	if c == nil || c.AccessKeyId == nil || c.SecretAccessKey == nil {
		return models.Credentials{}, fmt.Errorf("%w: sts returned empty credentials for %s", ErrAccessDenied, target.RoleARN)
	}
	creds := models.Credentials{
		AccessKeyID:     *c.AccessKeyId,
		SecretAccessKey: *c.SecretAccessKey,
	}
	if c.SessionToken != nil {
		creds.SessionToken = *c.SessionToken
	}
	if c.Expiration != nil {
		creds.Expiration = *c.Expiration
	}
	return creds, nil
}
