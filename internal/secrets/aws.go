package secrets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used here
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, in *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	CreateSecret(ctx context.Context, in *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	DeleteSecret(ctx context.Context, in *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error)
}

// AWSSecretsManagerBackend reads secrets named "<userID>_<service>_pat"
type AWSSecretsManagerBackend struct {
	api       SecretsManagerAPI
	available bool
}

// NewAWSSecretsManagerBackend loads the default AWS credential chain. The
// backend reports itself unavailable when no credentials can be found.
func NewAWSSecretsManagerBackend(ctx context.Context, region string) (*AWSSecretsManagerBackend, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	credCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, credErr := cfg.Credentials.Retrieve(credCtx)

	return &AWSSecretsManagerBackend{
		api:       secretsmanager.NewFromConfig(cfg),
		available: credErr == nil && cfg.Region != "",
	}, nil
}

// NewAWSSecretsManagerBackendWithAPI wraps an existing client
func NewAWSSecretsManagerBackendWithAPI(api SecretsManagerAPI) *AWSSecretsManagerBackend {
	return &AWSSecretsManagerBackend{api: api, available: api != nil}
}

// AWSSecretID returns the secret id for (userID, service)
func AWSSecretID(userID, service string) string {
	return userID + "_" + service + "_pat"
}

func (a *AWSSecretsManagerBackend) Name() string { return "aws" }

func (a *AWSSecretsManagerBackend) Available() bool { return a != nil && a.available }

func (a *AWSSecretsManagerBackend) Get(ctx context.Context, userID, service string) (string, error) {
	out, err := a.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(AWSSecretID(userID, service)),
	})
	if err != nil {
		if isAWSNotFound(err) {
			return "", ErrSecretNotFound
		}
		return "", fmt.Errorf("GetSecretValue: %w", err)
	}
	value := aws.ToString(out.SecretString)
	if value == "" {
		return "", ErrSecretNotFound
	}
	return value, nil
}

func (a *AWSSecretsManagerBackend) Set(ctx context.Context, userID, service, value string) error {
	id := AWSSecretID(userID, service)
	_, err := a.api.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(id),
		SecretString: aws.String(value),
	})
	if err == nil {
		return nil
	}
	if !isAWSNotFound(err) {
		return fmt.Errorf("PutSecretValue: %w", err)
	}
	if _, err := a.api.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(id),
		SecretString: aws.String(value),
		Description:  aws.String(fmt.Sprintf("%s token for user %s", service, userID)),
	}); err != nil {
		return fmt.Errorf("CreateSecret: %w", err)
	}
	return nil
}

func (a *AWSSecretsManagerBackend) Delete(ctx context.Context, userID, service string) error {
	_, err := a.api.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:                   aws.String(AWSSecretID(userID, service)),
		ForceDeleteWithoutRecovery: aws.Bool(true),
	})
	if err != nil {
		if isAWSNotFound(err) {
			return ErrSecretNotFound
		}
		return fmt.Errorf("DeleteSecret: %w", err)
	}
	return nil
}

func isAWSNotFound(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ResourceNotFoundException"
}
