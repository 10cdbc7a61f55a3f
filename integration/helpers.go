//go:build integration

package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// binaryPath returns the path to the built datapipe binary, building it
// first when none is found.
func binaryPath(t *testing.T) string {
	t.Helper()
	paths := []string{
		"../datapipe",
		"./datapipe",
		filepath.Join(os.Getenv("GOPATH"), "bin", "datapipe"),
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			abs, _ := filepath.Abs(p)
			return abs
		}
	}

	t.Log("Binary not found, building...")
	cmd := exec.Command("go", "build", "-o", "../datapipe", "../cmd/datapipe")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build binary: %v\n%s", err, out)
	}

	abs, _ := filepath.Abs("../datapipe")
	return abs
}

// pipelineEnv returns a process environment that resolves to a valid
// dry-run configuration rooted under the test's temp dir. Go children
// resolve duplicate keys last-wins, so callers append their overrides.
func pipelineEnv(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	return append(os.Environ(),
		"TARGET=dev",
		"DRY_RUN_FLG=true",
		"SKIP_SQLMESH=",
		"DB_PATH="+filepath.Join(dir, "sqlMesh", "unosaa_data_pipeline.db"),
		"RUN_DB_PATH="+filepath.Join(dir, "runs.db"),
		"LOG_FORMAT=console",
		"AWS_ACCESS_KEY_ID=",
		"AWS_SECRET_ACCESS_KEY=",
		"AWS_SESSION_TOKEN=",
		"AWS_ROLE_ARN=",
		"S3_BUCKET_NAME=",
		"PUSHGATEWAY_URL=",
	)
}

// exitCode extracts the child's exit code, -1 when it did not run.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if exit, ok := err.(*exec.ExitError); ok {
		return exit.ExitCode()
	}
	return -1
}
