package llm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ephram/relay/internal/config"
	"github.com/ephram/relay/internal/llm"
	"github.com/ephram/relay/pkg/api"

	_ "github.com/ephram/relay/internal/llm/cloud"
	_ "github.com/ephram/relay/internal/llm/selfhosted"
)

func TestTypesRegistered(t *testing.T) {
	assert.Equal(t, []string{config.TypeManagedCloud, config.TypeSelfHosted}, llm.Types())
}

func TestCreateSelfHosted(t *testing.T) {
	factory := llm.NewProviderFactory()

	p, err := factory.Create("local", config.BackendConfig{
		Type: config.TypeSelfHosted,
		URL:  "http://localhost:8000",
	})
	require.NoError(t, err)
	assert.Equal(t, "local", p.Name())
	assert.Equal(t, config.TypeSelfHosted, p.Type())
}

func TestCreateManagedCloud(t *testing.T) {
	factory := llm.NewProviderFactory()

	p, err := factory.Create("cloud", config.BackendConfig{
		Type:   config.TypeManagedCloud,
		APIKey: "csk-test",
	})
	require.NoError(t, err)
	assert.Equal(t, config.TypeManagedCloud, p.Type())
}

func TestCreateMissingType(t *testing.T) {
	factory := llm.NewProviderFactory()

	_, err := factory.Create("broken", config.BackendConfig{URL: "http://localhost:8000"})
	require.Error(t, err)

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, api.ErrConfig, apiErr.Kind)
	assert.Contains(t, apiErr.Message, `missing required field "type"`)
}

func TestCreateUnsupportedType(t *testing.T) {
	factory := llm.NewProviderFactory()

	_, err := factory.Create("broken", config.BackendConfig{Type: "mainframe"})
	require.Error(t, err)

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, api.ErrConfig, apiErr.Kind)
	assert.Contains(t, apiErr.Message, `unsupported backend type "mainframe"`)
	assert.Contains(t, apiErr.Message, config.TypeManagedCloud)
	assert.Contains(t, apiErr.Message, config.TypeSelfHosted)
}

func TestCreateDelegatesFieldValidation(t *testing.T) {
	factory := llm.NewProviderFactory()

	_, err := factory.Create("cloud", config.BackendConfig{Type: config.TypeManagedCloud})
	require.Error(t, err)

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, api.ErrConfig, apiErr.Kind)
	assert.Contains(t, apiErr.Message, "api_key")
}
