package policy

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "j***@example.com", MaskEmail("jane.doe@example.com"))
	assert.Equal(t, "[email_redacted]", MaskEmail("not-an-address"))
	assert.Equal(t, []string{"a***@x.io", "b***@y.io"}, MaskEmails([]string{"ann@x.io", "bob@y.io"}))
}

func TestMaskPIIJSONMasksCommonPatterns(t *testing.T) {
	payload := json.RawMessage(`{"email":"user@example.com","phone":"+1 415 555-0100","card":"4111 1111 1111 1234"}`)
	raw := string(MaskPIIJSON(payload))

	assert.NotContains(t, raw, "user@example.com")
	assert.NotContains(t, raw, "555-0100")
	assert.Contains(t, raw, "**** **** **** 1234")
}

func TestEnforceContentPolicyBlocksActiveContent(t *testing.T) {
	err := EnforceContentPolicy(json.RawMessage(`{"blocks":[{"text":"<script>alert(1)</script>"}]}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrContentPolicyViolation))

	var policyErr *PolicyViolationError
	require.True(t, errors.As(err, &policyErr))
	assert.Equal(t, "active_content", policyErr.Violations[0].Code)
}

func TestEnforceContentPolicyLimits(t *testing.T) {
	assert.NoError(t, EnforceContentPolicy(nil))
	assert.NoError(t, EnforceContentPolicy(json.RawMessage(`{"blocks":[{"text":"Revenue grew 4%"}]}`)))

	large, err := json.Marshal(map[string]string{"text": strings.Repeat("a", MaxContentFieldLength+1)})
	require.NoError(t, err)
	assert.Error(t, EnforceContentPolicy(large))

	assert.Error(t, EnforceContentPolicy(json.RawMessage(`{"blocks":`)))
}
