package aws

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ResolveProfile(t *testing.T) {
	t.Setenv("AWS_PROFILE", "")
	assert.Equal(t, "default", resolveProfile(""))

	t.Setenv("AWS_PROFILE", "multisig")
	assert.Equal(t, "multisig", resolveProfile(""))
	assert.Equal(t, "ops", resolveProfile("ops"))
}

func Test_LoadOptions(t *testing.T) {
	t.Setenv("AWS_PROFILE", "")

	apply := func(opts []func(*config.LoadOptions) error) config.LoadOptions {
		var lo config.LoadOptions
		for _, o := range opts {
			require.NoError(t, o(&lo))
		}
		return lo
	}

	lo := apply(Options{Region: "us-east-2"}.loadOptions(false))
	assert.Equal(t, "default", lo.SharedConfigProfile)
	assert.Equal(t, "us-east-2", lo.Region)

	lo = apply(Options{Profile: "ops"}.loadOptions(true))
	assert.Empty(t, lo.SharedConfigProfile)
	assert.Empty(t, lo.Region)
}
