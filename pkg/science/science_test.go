package science

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/actris-cloudnet/cloudnet-processing/pkg/types"
)

// writeScript creates an executable shell script standing in for the
// toolbox binary.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts require a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "toolbox")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestToolboxProcess(t *testing.T) {
	dir := t.TempDir()
	argPath := filepath.Join(dir, "arg")
	reqPath := filepath.Join(dir, "request.json")
	script := writeScript(t, fmt.Sprintf(
		"echo \"$1\" > %s\ncat > %s\necho '{\"uuid\":\"f1a2b3c4-0000-0000-0000-000000000000\",\"version\":\"2.5.1\"}'\n",
		argPath, reqPath))

	toolbox := NewToolbox(script, time.Minute)
	result, err := toolbox.Process(context.Background(), &ProcessRequest{
		Product:       "classification",
		Site:          "hyytiala",
		Date:          types.NewDate(2024, time.March, 1),
		InstrumentPID: "https://hdl.handle.net/123/mira",
		InputPaths:    []string{"/tmp/in/categorize.nc"},
		OutputPath:    "/tmp/out/product.nc",
	})
	require.NoError(t, err)
	assert.Equal(t, "f1a2b3c4-0000-0000-0000-000000000000", result.UUID)
	assert.Equal(t, "2.5.1", result.Version)

	arg, err := os.ReadFile(argPath)
	require.NoError(t, err)
	assert.Equal(t, "process\n", string(arg))

	raw, err := os.ReadFile(reqPath)
	require.NoError(t, err)
	var req map[string]any
	require.NoError(t, json.Unmarshal(raw, &req))
	assert.Equal(t, "classification", req["product"])
	assert.Equal(t, "hyytiala", req["site"])
	assert.Equal(t, "2024-03-01", req["date"])
	assert.Equal(t, "/tmp/out/product.nc", req["outputPath"])
	assert.Equal(t, []any{"/tmp/in/categorize.nc"}, req["inputPaths"])
}

func TestToolboxProcessMissingUUID(t *testing.T) {
	script := writeScript(t, "echo '{\"version\":\"2.5.1\"}'\n")

	toolbox := NewToolbox(script, time.Minute)
	_, err := toolbox.Process(context.Background(), &ProcessRequest{Product: "radar"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no uuid")
}

func TestToolboxPlot(t *testing.T) {
	script := writeScript(t,
		"echo '{\"images\":[{\"path\":\"/tmp/img/v.png\",\"variableId\":\"classification-target_classification\","+
			"\"dimensions\":{\"width\":1200,\"height\":700,\"marginTop\":20,\"marginRight\":50,\"marginBottom\":60,\"marginLeft\":80}}]}'\n")

	toolbox := NewToolbox(script, time.Minute)
	images, err := toolbox.Plot(context.Background(), &PlotRequest{
		ProductFilePath: "/tmp/out/product.nc",
		Product:         "classification",
		Variables:       []string{"classification-target_classification"},
		OutputDir:       "/tmp/img",
	})
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, "/tmp/img/v.png", images[0].Path)
	assert.Equal(t, "classification-target_classification", images[0].VariableID)
	assert.Equal(t, 1200, images[0].Dimensions.Width)
	assert.Equal(t, 60, images[0].Dimensions.MarginBottom)
}

func TestToolboxQC(t *testing.T) {
	script := writeScript(t,
		"echo '{\"timestamp\":\"2024-03-01T12:00:00Z\",\"qcVersion\":\"1.5.2\","+
			"\"tests\":[{\"testId\":\"TestUnits\",\"exceptions\":[{\"result\":\"warning\",\"message\":\"Bad units\"}]}]}'\n")

	toolbox := NewToolbox(script, time.Minute)
	report, err := toolbox.Run(context.Background(), &QCRequest{
		ProductFilePath: "/tmp/out/product.nc",
		Product:         "classification",
	})
	require.NoError(t, err)
	assert.Equal(t, "1.5.2", report.QcVersion)
	require.Len(t, report.Tests, 1)
	assert.Equal(t, "TestUnits", report.Tests[0].TestID)
	assert.Equal(t, types.ErrorLevelWarning, report.WorstErrorLevel())
}

func TestToolboxRawDataMissing(t *testing.T) {
	script := writeScript(t,
		"echo 'reading inputs' >&2\necho 'No raw data for 2024-03-01' >&2\nexit 3\n")

	toolbox := NewToolbox(script, time.Minute)
	_, err := toolbox.Process(context.Background(), &ProcessRequest{Product: "radar"})
	require.Error(t, err)
	assert.True(t, types.IsRawDataMissing(err))
	skip, ok := types.AsSkip(err)
	require.True(t, ok)
	assert.Equal(t, "No raw data for 2024-03-01", skip.Reason)
}

func TestToolboxMiscError(t *testing.T) {
	script := writeScript(t, "echo 'Inconsistent measurement date' >&2\nexit 4\n")

	toolbox := NewToolbox(script, time.Minute)
	_, err := toolbox.Run(context.Background(), &QCRequest{Product: "radar"})
	require.Error(t, err)
	skip, ok := types.AsSkip(err)
	require.True(t, ok)
	assert.Equal(t, types.SkipKindMisc, skip.Kind)
	assert.Equal(t, "Inconsistent measurement date", skip.Reason)
}

func TestToolboxSkipWithoutStderr(t *testing.T) {
	script := writeScript(t, "exit 3\n")

	toolbox := NewToolbox(script, time.Minute)
	_, err := toolbox.Process(context.Background(), &ProcessRequest{Product: "radar"})
	require.Error(t, err)
	require.True(t, types.IsRawDataMissing(err))
	assert.Contains(t, err.Error(), "exited with code 3")
}

func TestToolboxFatalExit(t *testing.T) {
	script := writeScript(t,
		"echo 'Traceback (most recent call last):' >&2\necho 'ValueError: boom' >&2\nexit 2\n")

	toolbox := NewToolbox(script, time.Minute)
	_, err := toolbox.Process(context.Background(), &ProcessRequest{Product: "radar"})
	require.Error(t, err)
	assert.False(t, types.IsSkip(err))
	assert.Contains(t, err.Error(), "exited with code 2")
	assert.Contains(t, err.Error(), "ValueError: boom")
}

func TestToolboxTimeout(t *testing.T) {
	script := writeScript(t, "sleep 5\n")

	toolbox := NewToolbox(script, 100*time.Millisecond)
	_, err := toolbox.Process(context.Background(), &ProcessRequest{Product: "radar"})
	require.Error(t, err)
	assert.False(t, types.IsSkip(err))
	assert.Contains(t, err.Error(), "timed out")
}

func TestToolboxMissingBinary(t *testing.T) {
	toolbox := NewToolbox(filepath.Join(t.TempDir(), "nope"), time.Minute)
	_, err := toolbox.Process(context.Background(), &ProcessRequest{Product: "radar"})
	require.Error(t, err)
	assert.False(t, types.IsSkip(err))
}

func TestEngineFuncAdapter(t *testing.T) {
	var got *ProcessRequest
	engine := EngineFunc(func(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
		got = req
		return &ProcessResult{UUID: "u", Version: "v"}, nil
	})

	result, err := engine.Process(context.Background(), &ProcessRequest{Product: "lidar"})
	require.NoError(t, err)
	assert.Equal(t, "u", result.UUID)
	assert.Equal(t, "lidar", got.Product)
}
