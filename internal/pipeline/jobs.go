package pipeline

import (
	"strconv"

	"github.com/unosaa/datapipe/internal/config"
	"github.com/unosaa/datapipe/internal/executor"
)

// appDir is where the ingestion package lives inside the container.
const appDir = "/app"

// IngestJob builds the Python ingestion invocation. extraEnv entries are
// handed to the child on top of the ambient environment.
func IngestJob(extraEnv []string) executor.Job {
	return executor.Job{
		Name: "ingest",
		Path: "python",
		Args: []string{"-m", "pipeline.ingest.run"},
		Dir:  appDir,
		Env:  extraEnv,
	}
}

// TransformJob builds the SQLMesh plan invocation for the configured
// target and gateway.
func TransformJob(cfg config.Config) executor.Job {
	return executor.Job{
		Name: "transform",
		Path: "sqlmesh",
		Args: []string{"--gateway", cfg.Gateway, "plan", cfg.Target, "--auto-apply", "--no-prompts"},
		Dir:  cfg.SQLMeshDir(),
	}
}

// UIJob builds the SQLMesh browser UI invocation.
func UIJob(cfg config.Config) executor.Job {
	return executor.Job{
		Name: "ui",
		Path: "sqlmesh",
		Args: []string{"ui", "--host", "0.0.0.0", "--port", strconv.Itoa(cfg.UIPort)},
		Dir:  cfg.SQLMeshDir(),
	}
}
