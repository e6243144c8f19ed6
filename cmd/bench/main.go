package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pessolato/randmicroservice/pkg/orchestration"
	"github.com/pessolato/randmicroservice/pkg/osutil"

	"github.com/moby/moby/client"
)

const (
	netName     = "rand-bench-network"
	clientRsrc  = "client"
	serverRsrc  = "server"
	imgTag      = ":latest"
	goBuildDest = "./build/bin/"
	pkgBasePath = "./cmd/"

	clientPkgPath     = pkgBasePath + clientRsrc + "/"
	clientGoBuildDest = goBuildDest + clientRsrc
	serverPkgPath     = pkgBasePath + serverRsrc + "/"
	serverGoBuildDest = goBuildDest + serverRsrc

	// serverListenAddr is handed to the server through the ADDRESS
	// variable; loopback would not be reachable from the clients.
	serverListenAddr = "0.0.0.0:8080"
)

// httpVersions holds one client container per protocol version.
var httpVersions = []int{1, 2}

func main() {
	resourcePrefix := ""
	numOfReqs := 10000
	concurrency := 8
	forceRebuild := false
	outputDir := "benchresults"

	osutil.ExitOnErr(
		osutil.Load(
			osutil.NewEnvVar("RESOURCE_PREFIX", &resourcePrefix, false),
			osutil.NewEnvVar("NUMBER_OF_REQUESTS", &numOfReqs, false),
			osutil.NewEnvVar("CONCURRENCY", &concurrency, false),
			osutil.NewEnvVar("FORCE_IMAGE_REBUILD", &forceRebuild, false),
			osutil.NewEnvVar("OUTPUT_DIRECTORY", &outputDir, false),
		))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	testRunTs := time.Now().Format("20060102150405")

	var clientBuildCtxBuf, serverBuildCtxBuf bytes.Buffer
	clientImgSpec := orchestration.Image{
		Tag:      resourcePrefix + clientRsrc + imgTag,
		Rebuild:  forceRebuild,
		BuildCtx: &clientBuildCtxBuf,
	}
	serverImgSpec := orchestration.Image{
		Tag:      resourcePrefix + serverRsrc + imgTag,
		Rebuild:  forceRebuild,
		BuildCtx: &serverBuildCtxBuf,
	}
	benchNetwork := orchestration.Network{
		Name: resourcePrefix + netName,
	}

	serverName := resourcePrefix + serverRsrc
	server := &orchestration.Container{
		Name:    serverName,
		Image:   serverImgSpec.Tag,
		Env:     []string{"ADDRESS=" + serverListenAddr},
		Network: &benchNetwork,
	}
	clients := make([]*orchestration.Container, len(httpVersions))
	containers := append([]*orchestration.Container{server}, clients...)

	orch, err := orchestration.NewDockerOrchestrator()
	osutil.ExitOnErr(err)

	osutil.ExitOnErr(
		orch.WithPreRunStep(
			orchestration.GoBuildStep(
				&orchestration.GoBuild{
					PkgPath:       clientPkgPath,
					Dest:          clientGoBuildDest,
					BuildCtxSpecs: buildCtxSpecs(clientGoBuildDest),
					ArtifactStore: &clientBuildCtxBuf,
				},
				&orchestration.GoBuild{
					PkgPath:       serverPkgPath,
					Dest:          serverGoBuildDest,
					BuildCtxSpecs: buildCtxSpecs(serverGoBuildDest),
					ArtifactStore: &serverBuildCtxBuf,
				},
			),
			orchestration.EnsureImageStep(&clientImgSpec, &serverImgSpec),
			orchestration.EnsureNetworkStep(&benchNetwork),
		).
			WithRunStep(
				// Client specs need the output directory of this run.
				func(ctx context.Context, _ *client.Client) error {
					outDir := filepath.Join(outputDir, testRunTs)
					if err := os.MkdirAll(outDir, os.ModePerm); err != nil {
						return fmt.Errorf("error to create logs dir: %w", err)
					}
					for i, v := range httpVersions {
						name := fmt.Sprintf("%s%s-http-%d", resourcePrefix, clientRsrc, v)
						logF, err := os.Create(filepath.Join(outDir, name+"-logs.jsonl"))
						if err != nil {
							return fmt.Errorf("error to create log file for %s container: %w", name, err)
						}
						clients[i] = &orchestration.Container{
							Name:  name,
							Image: clientImgSpec.Tag,
							Env: []string{
								fmt.Sprintf("TARGET_ENDPOINT_URI=http://%s:8080/", serverName),
								fmt.Sprintf("CLIENT_HTTP_VERSION=%d", v),
								fmt.Sprintf("NUMBER_OF_REQUESTS=%d", numOfReqs),
								fmt.Sprintf("CONCURRENCY=%d", concurrency),
							},
							Network: &benchNetwork,
							LogSink: logF,
						}
						containers[i+1] = clients[i]
					}
					return nil
				},
				orchestration.ContainerCreateStep(server),
				orchestration.ContainerStartStep(server),
				func(ctx context.Context, c *client.Client) error {
					return orchestration.ContainerCreateStep(clients...)(ctx, c)
				},
				func(ctx context.Context, c *client.Client) error {
					return orchestration.ContainerStartStep(clients...)(ctx, c)
				},
				// Logs are only followed for running containers; the stream
				// still replays everything written since start.
				func(ctx context.Context, c *client.Client) error {
					return orchestration.ContainerLogStep(os.Stderr, clients...)(ctx, c)
				},
				func(ctx context.Context, c *client.Client) error {
					return orchestration.ContainerWaitStep(os.Stderr, clients...)(ctx, c)
				},
			).
			WithPosRunStep(
				func(ctx context.Context, c *client.Client) error {
					return orchestration.ContainerStopStep(containers...)(ctx, c)
				},
				func(ctx context.Context, c *client.Client) error {
					return orchestration.ContainerRemoveStep(containers...)(ctx, c)
				},
				func(ctx context.Context, c *client.Client) error {
					return orchestration.EnsureContainerSinkCloseStep(containers...)(ctx, c)
				},
			).
			Run(ctx),
	)

	fmt.Printf("results written to %s\n", filepath.Join(outputDir, testRunTs))
}

func buildCtxSpecs(binPath string) []osutil.BuildCtxSpec {
	return []osutil.BuildCtxSpec{
		{FileName: "app", PathTo: binPath, Mode: 0555},
		{FileName: "Dockerfile", PathTo: "./build/Dockerfile", Mode: 0444},
	}
}
