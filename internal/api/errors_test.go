package api

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus_401(t *testing.T) {
	err := classifyStatus(401, nil)
	assert.Equal(t, KindAuth, err.Kind)
	assert.Contains(t, err.Error(), "auth login")
}

func TestClassifyStatus_403(t *testing.T) {
	err := classifyStatus(403, []byte(`{"detail":"nope"}`))
	assert.Equal(t, KindAuth, err.Kind)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestClassifyStatus_404ExtractsDetail(t *testing.T) {
	err := classifyStatus(404, []byte(`{"detail":"model not found"}`))
	assert.Equal(t, KindServer, err.Kind)
	assert.Contains(t, err.Error(), "model not found")
}

func TestClassifyStatus_404NonJSONBody(t *testing.T) {
	err := classifyStatus(404, []byte("<html>not here</html>"))
	assert.Equal(t, KindServer, err.Kind)
	assert.Contains(t, err.Error(), "not found")
}

func TestClassifyStatus_5xxIncludesBody(t *testing.T) {
	err := classifyStatus(503, []byte("upstream exploded"))
	assert.Equal(t, KindServer, err.Kind)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "upstream exploded")
	assert.Contains(t, err.Error(), "try again")
}

func TestClassifyStatus_4xxExtractsMessage(t *testing.T) {
	err := classifyStatus(422, []byte(`{"message":"bad field"}`))
	assert.Equal(t, KindServer, err.Kind)
	assert.Contains(t, err.Error(), "bad field")
}

func TestExtractErrorMessage_RuleOrder(t *testing.T) {
	// detail beats message beats raw body beats fallback.
	assert.Equal(t, "d", extractErrorMessage([]byte(`{"detail":"d","message":"m"}`), "f"))
	assert.Equal(t, "m", extractErrorMessage([]byte(`{"message":"m"}`), "f"))
	assert.Equal(t, "raw", extractErrorMessage([]byte(`raw`), "f"))
	assert.Equal(t, "f", extractErrorMessage(nil, "f"))
}

func TestExtractErrorMessage_NonStringDetail(t *testing.T) {
	msg := extractErrorMessage([]byte(`{"detail":[{"loc":["body"],"msg":"required"}]}`), "f")
	assert.Contains(t, msg, "required")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("plain")))
	assert.Equal(t, 2, ExitCode(Usagef("bad args")))
	assert.Equal(t, 3, ExitCode(Authf("no token")))
	assert.Equal(t, 4, ExitCode(Networkf("refused")))
	assert.Equal(t, 5, ExitCode(Serverf("boom")))
}

func TestExitCode_WrappedError(t *testing.T) {
	err := fmt.Errorf("context: %w", Authf("expired"))
	assert.Equal(t, 3, ExitCode(err))
}

func TestErrorKindString(t *testing.T) {
	assert.Equal(t, "usage", KindUsage.String())
	assert.Equal(t, "auth", KindAuth.String())
	assert.Equal(t, "network", KindNetwork.String())
	assert.Equal(t, "server", KindServer.String())
	assert.Equal(t, "general", KindGeneral.String())
}
