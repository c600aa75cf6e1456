package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vedeploy/internal/orchestrator"
	"github.com/roach88/vedeploy/internal/unit"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("E_CONFIG", "failed to load config", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.Equal(t, "E_CONFIG", resp.Error.Code)
	assert.Equal(t, "failed to load config", resp.Error.Message)
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	details := map[string]string{"network": "sepolia", "step": "minter"}
	err := formatter.Error("CONSTRUCTION_FAILED", "could not deploy Minter", details)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("3 scenarios passed")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "3 scenarios passed")
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error("E_CONFIG", "failed to load config", nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E_CONFIG]")
	assert.Contains(t, buf.String(), "failed to load config")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	details := map[string]string{"network": "sepolia"}
	err := formatter.Error("E_CONFIG", "failed to load config", details)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E_CONFIG]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:  "text",
				Writer:  buf,
				Verbose: tt.verbose,
			}

			formatter.VerboseLog("Loading %s", "vedeploy.yaml")

			if tt.wantLog {
				assert.Contains(t, buf.String(), "Loading vedeploy.yaml")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestCLIResponse_JSON(t *testing.T) {
	resp := CLIResponse{
		Status: "ok",
		Data:   map[string]int{"units": 11},
	}

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded CLIResponse
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, "ok", decoded.Status)
}

func TestCLIError_JSON(t *testing.T) {
	cliErr := CLIError{
		Code:    "INVALID_INTENT",
		Message: "owner is not an address",
		Details: []string{"owner"},
	}

	data, err := json.Marshal(cliErr)
	require.NoError(t, err)

	var decoded CLIError
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, "INVALID_INTENT", decoded.Code)
	assert.Equal(t, "owner is not an address", decoded.Message)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("boom")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad")))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "bad", errors.New("cause")))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
	assert.Equal(t, "outer: bad: cause", wrapped.Error())
}

func TestDeployExitError(t *testing.T) {
	tests := []struct {
		code orchestrator.ErrorCode
		want int
	}{
		{orchestrator.ErrCodeInvalidIntent, ExitCommandError},
		{orchestrator.ErrCodeManifestCorrupt, ExitCommandError},
		{orchestrator.ErrCodeManifestNotFound, ExitCommandError},
		{orchestrator.ErrCodeConstructionFailed, ExitFailure},
		{orchestrator.ErrCodeManifestWriteFailed, ExitFailure},
		{orchestrator.ErrCodeJournalFailed, ExitFailure},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := deployExitError(&orchestrator.DeployError{Code: tt.code, Message: "x"})
			assert.Equal(t, tt.want, err.Code)
		})
	}

	assert.Equal(t, ExitFailure, deployExitError(errors.New("unclassified")).Code)
}

func testResult() *orchestrator.Result {
	return &orchestrator.Result{
		RunID:   "run-1",
		Network: "sepolia",
		Status:  orchestrator.StatusFailed,
		Steps: []orchestrator.StepResult{
			{Seq: 1, Step: "escrow", Role: unit.RoleVotingEscrowV1, Kind: "VotingEscrow", Address: "0xaaaa", Reused: true},
			{Seq: 2, Step: "mirror", Role: unit.RoleMirroredVotingEscrow, Kind: "MirroredVotingEscrow", Address: "0xbbbb"},
			{Seq: 3, Step: "gauge/usdc", Role: unit.RoleGauge, Kind: "LiquidityGaugeV4_1", Address: "0xcccc"},
		},
	}
}

func TestReportRunError_Text(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}
	err := &orchestrator.DeployError{Code: orchestrator.ErrCodeConstructionFailed, Message: "could not deploy Minter"}

	reportRunError(f, err, testResult())

	out := buf.String()
	assert.Contains(t, out, "Error [CONSTRUCTION_FAILED]")
	assert.Contains(t, out, "Run run-1 left 2 deployed unit(s) not recorded in the manifest")
	assert.Contains(t, out, "MirroredVotingEscrow")
	assert.Contains(t, out, "gauge/usdc")
	assert.NotContains(t, out, "0xaaaa", "reused units are not orphans")
}

func TestReportRunError_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	reportRunError(f, errors.New("disk on fire"), testResult())

	var resp struct {
		Status string `json:"status"`
		Error  struct {
			Code    string    `json:"code"`
			Message string    `json:"message"`
			Details RunOutput `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E_INTERNAL", resp.Error.Code)
	assert.Equal(t, "disk on fire", resp.Error.Message)
	require.NotNil(t, resp.Error.Details.Result)
	assert.Len(t, resp.Error.Details.Result.Steps, 3)
}

func TestReportRunError_NoResult(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}
	err := &orchestrator.DeployError{Code: orchestrator.ErrCodeInvalidIntent, Message: "owner is not an address"}

	reportRunError(f, err, nil)
	assert.Contains(t, buf.String(), "Error [INVALID_INTENT]")
	assert.NotContains(t, buf.String(), "not recorded")
}

func TestWriteSteps(t *testing.T) {
	buf := &bytes.Buffer{}
	writeSteps(buf, testResult().Steps)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[0]), "VotingEscrowV1")
	assert.Contains(t, string(lines[0]), "(reused)")
	assert.Contains(t, string(lines[2]), "gauge/usdc")
	assert.NotContains(t, string(lines[2]), "(reused)")
}
