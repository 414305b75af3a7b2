// Package emr implements the fleet collaborator interfaces on Amazon EMR.
package emr

// Config configures an EMR fleet client.
//
// Authentication follows the AWS SDK v2 default chain unless explicit
// credentials are provided; region resolution falls back to EC2 instance
// metadata and finally us-east-1 (see internal/awsconn).
type Config struct {
	// Region is the AWS region. Empty resolves via environment, profile,
	// then instance metadata.
	Region string

	// Profile is the shared-config profile name.
	Profile string

	// Endpoint is a custom endpoint URL for EMR-compatible test stubs
	// (moto, localstack). Leave empty for AWS.
	Endpoint string

	// AccessKeyID is an explicit access key. If set, SecretAccessKey must
	// also be set; explicit credentials take precedence over the chain.
	AccessKeyID string

	// SecretAccessKey is an explicit secret key. Required if AccessKeyID
	// is set.
	SecretAccessKey string
}

// ConfigError indicates invalid client configuration.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "emr config: " + e.Field + ": " + e.Message
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}
	return nil
}
