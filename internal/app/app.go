// Package app wires the intake service from environment settings for both
// the Lambda entrypoint and intakectl.
package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"commission-intake/internal/integrations/openai"
	"commission-intake/internal/integrations/paramstore"
	"commission-intake/internal/repository"
	"commission-intake/internal/usecase"
)

const (
	DefaultMaxMessageLength   = 1000
	DefaultContactPromptAfter = 6
)

// Config holds the settings the intake service is built from.
type Config struct {
	RecordsTable       string
	ParamPrefix        string
	MaxMessageLength   int
	ContactPromptAfter int
}

// FromEnv reads Config through getenv, usually os.Getenv.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		RecordsTable: strings.TrimSpace(getenv("RECORDS_TABLE")),
		ParamPrefix:  strings.TrimSpace(getenv("PARAM_PREFIX")),
	}
	var err error
	if cfg.MaxMessageLength, err = positiveInt(getenv, "MAX_MESSAGE_LENGTH", DefaultMaxMessageLength); err != nil {
		return Config{}, err
	}
	if cfg.ContactPromptAfter, err = positiveInt(getenv, "CONTACT_PROMPT_AFTER", DefaultContactPromptAfter); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate reports the first missing or out of range setting.
func (c Config) Validate() error {
	switch {
	case c.RecordsTable == "":
		return fmt.Errorf("RECORDS_TABLE is required")
	case c.ParamPrefix == "":
		return fmt.Errorf("PARAM_PREFIX is required")
	case c.MaxMessageLength <= 0:
		return fmt.Errorf("MAX_MESSAGE_LENGTH must be positive, got %d", c.MaxMessageLength)
	case c.ContactPromptAfter <= 0:
		return fmt.Errorf("CONTACT_PROMPT_AFTER must be positive, got %d", c.ContactPromptAfter)
	}
	return nil
}

func positiveInt(getenv func(string) string, key string, def int) (int, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}

// LoadAWS loads the default AWS SDK config.
func LoadAWS(ctx context.Context) (aws.Config, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	return awsCfg, nil
}

// NewRecords builds the DynamoDB records client for table.
func NewRecords(awsCfg aws.Config, table string) (*repository.Client, error) {
	return repository.New(awsdynamodb.NewFromConfig(awsCfg), table)
}

// NewIntakeService builds the SSM, DynamoDB and OpenAI clients and the
// service on top of them.
func NewIntakeService(awsCfg aws.Config, cfg Config) (*usecase.IntakeService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, fmt.Errorf("create SSM client: %w", err)
	}
	records, err := NewRecords(awsCfg, cfg.RecordsTable)
	if err != nil {
		return nil, fmt.Errorf("create records client: %w", err)
	}
	llm, err := openai.NewClient(ssmClient, cfg.ParamPrefix)
	if err != nil {
		return nil, fmt.Errorf("create OpenAI client: %w", err)
	}
	return usecase.NewIntakeService(ssmClient, llm, records, cfg.ParamPrefix, cfg.MaxMessageLength, cfg.ContactPromptAfter)
}
