// Package orchestration runs the random byte server and its sampling
// clients as Docker containers.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pessolato/randmicroservice/pkg/osutil"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/image"
	"github.com/moby/moby/api/types/network"
	"github.com/moby/moby/client"
)

// logDrainTimeout bounds how long cleanup waits for streamed logs.
var logDrainTimeout = 10 * time.Second

// ErrNotStarted is returned when logs are requested for a container
// that was not started; the daemon would not follow them.
var ErrNotStarted = errors.New("container not started")

type RunStep func(context.Context, *client.Client) error

type DockerOrchestrator struct {
	pre, run, pos []RunStep
	// c is the Docker SDK client used for all operations.
	c *client.Client
}

func NewDockerOrchestrator() (*DockerOrchestrator, error) {
	c, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return &DockerOrchestrator{c: c}, nil
}

// WithPreRunStep sets the pre-run steps.
//
// Failures during pre-run steps halt the process
// and do not execute any other phases of the orchestration.
func (o *DockerOrchestrator) WithPreRunStep(steps ...RunStep) *DockerOrchestrator {
	o.pre = append(o.pre, steps...)
	return o
}

// WithRunStep sets the run steps.
//
// Failures during run steps skip to the post-run part.
func (o *DockerOrchestrator) WithRunStep(steps ...RunStep) *DockerOrchestrator {
	o.run = append(o.run, steps...)
	return o
}

// WithPosRunStep sets the post-run steps.
//
// Every post-run step is executed; their failures are joined.
func (o *DockerOrchestrator) WithPosRunStep(steps ...RunStep) *DockerOrchestrator {
	o.pos = append(o.pos, steps...)
	return o
}

func (o *DockerOrchestrator) Run(ctx context.Context) error {
	defer o.c.Close()
	return runPhases(ctx, o.c, o.pre, o.run, o.pos)
}

func runPhases(ctx context.Context, c *client.Client, pre, run, pos []RunStep) error {
	for _, s := range pre {
		if err := s(ctx, c); err != nil {
			return fmt.Errorf("failed running pre run step: %w", err)
		}
	}

	var runErr error
	for _, s := range run {
		if err := s(ctx, c); err != nil {
			runErr = fmt.Errorf("failed running step: %w", err)
			break
		}
	}

	// Cleanup must not be skipped because the run was interrupted.
	cleanupCtx := context.WithoutCancel(ctx)
	for _, s := range pos {
		if err := s(cleanupCtx, c); err != nil {
			runErr = errors.Join(fmt.Errorf("failed running pos run step: %w", err), runErr)
		}
	}

	return runErr
}

// Container describes a container of the bench.
type Container struct {
	Name    string
	Image   string
	Env     []string
	Network *Network
	// LogSink receives the container stdout; stderr goes to the
	// step's error sink.
	LogSink io.WriteCloser
	// ID is usually used as a read-only field which
	// is populated when a create step is executed.
	ID string

	started bool
	// logIn is the log stream being copied to LogSink and logDone is
	// closed once the copy finished and LogSink was closed.
	logIn   io.ReadCloser
	logDone chan struct{}
}

func (s *Container) configs() (*container.Config, *network.NetworkingConfig) {
	cfg := &container.Config{
		Image: s.Image,
		Env:   s.Env,
	}
	netCfg := &network.NetworkingConfig{}
	if s.Network != nil {
		netCfg.EndpointsConfig = map[string]*network.EndpointSettings{
			s.Network.Name: {NetworkID: s.Network.ID},
		}
	}
	return cfg, netCfg
}

func ContainerCreateStep(specs ...*Container) RunStep {
	return func(ctx context.Context, c *client.Client) error {
		for _, s := range specs {
			cfg, netCfg := s.configs()
			resp, err := c.ContainerCreate(ctx, cfg, nil, netCfg, nil, s.Name)
			if err != nil {
				return fmt.Errorf("failed to create %s container: %w", s.Name, err)
			}
			s.ID = resp.ID
		}
		return nil
	}
}

func ContainerStartStep(specs ...*Container) RunStep {
	return func(ctx context.Context, c *client.Client) error {
		for _, s := range specs {
			if err := c.ContainerStart(ctx, s.ID, client.ContainerStartOptions{}); err != nil {
				return fmt.Errorf("failed to start %s container: %w", s.Name, err)
			}
			s.started = true
		}
		return nil
	}
}

// ContainerLogStep returns a RunStep that copies the container logs
// to the provided log sinks concurrently in the background.
//
// Only logs of Containers with a non-nil LogSink are copied. It must run
// after [ContainerStartStep], otherwise [ErrNotStarted] is returned.
func ContainerLogStep(errLogSink io.Writer, specs ...*Container) RunStep {
	return func(ctx context.Context, c *client.Client) error {
		for _, s := range specs {
			if s.LogSink == nil {
				continue
			}
			if !s.started {
				return fmt.Errorf("failed to get logs for %s container: %w", s.Name, ErrNotStarted)
			}

			in, err := c.ContainerLogs(ctx, s.ID,
				client.ContainerLogsOptions{
					ShowStdout: true,
					ShowStderr: true,
					Follow:     true,
				})
			if err != nil {
				return fmt.Errorf("failed to get logs for %s container: %w", s.Name, err)
			}

			s.logIn = in
			s.logDone = make(chan struct{})
			go func(cnt *Container) {
				defer close(cnt.logDone)
				_, err := stdcopy.StdCopy(cnt.LogSink, errLogSink, in)
				err = errors.Join(err, in.Close(), cnt.LogSink.Close())
				if err != nil {
					fmt.Fprintln(errLogSink, fmt.Errorf("failed to copy %s container logs or close sinks: %w", cnt.Name, err))
				}
			}(s)
		}

		return nil
	}
}

// ContainerWaitStep blocks until every container stopped running.
func ContainerWaitStep(errLogSink io.Writer, specs ...*Container) RunStep {
	return func(ctx context.Context, c *client.Client) error {
		var wg sync.WaitGroup
		for _, s := range specs {
			stsCh, errCh := c.ContainerWait(ctx, s.ID, container.WaitConditionNotRunning)
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				select {
				case err := <-errCh:
					if err != nil {
						fmt.Fprintln(errLogSink, fmt.Errorf("failed waiting for %s container: %w", name, err))
					}
				case sts := <-stsCh:
					if sts.StatusCode != 0 {
						fmt.Fprintf(errLogSink, "%s container exited with status %d\n", name, sts.StatusCode)
					}
				}
			}(s.Name)
		}

		wg.Wait()
		return nil
	}
}

// ContainerStopStep stops the containers that were created.
func ContainerStopStep(specs ...*Container) RunStep {
	return func(ctx context.Context, c *client.Client) error {
		var errs error
		for _, s := range created(specs) {
			if err := c.ContainerStop(ctx, s.ID, client.ContainerStopOptions{}); err != nil {
				errs = errors.Join(fmt.Errorf("failed to stop %s container: %w", s.Name, err), errs)
			}
		}
		return errs
	}
}

// ContainerRemoveStep removes the containers that were created.
func ContainerRemoveStep(specs ...*Container) RunStep {
	return func(ctx context.Context, c *client.Client) error {
		var errs error
		for _, s := range created(specs) {
			if err := c.ContainerRemove(ctx, s.ID, client.ContainerRemoveOptions{}); err != nil {
				errs = errors.Join(fmt.Errorf("failed to remove %s container: %w", s.Name, err), errs)
			}
		}
		return errs
	}
}

func created(specs []*Container) []*Container {
	var out []*Container
	for _, s := range specs {
		if s != nil && s.ID != "" {
			out = append(out, s)
		}
	}
	return out
}

// EnsureContainerSinkCloseStep closes log sinks of containers whose
// logs were never streamed and waits, up to logDrainTimeout in total, for
// the streamed ones to be flushed. Streams still running at the deadline
// are closed so their copy ends and closes its own sink.
func EnsureContainerSinkCloseStep(specs ...*Container) RunStep {
	return func(ctx context.Context, c *client.Client) error {
		ctx, cancel := context.WithTimeout(ctx, logDrainTimeout)
		defer cancel()

		for _, s := range specs {
			if s == nil || s.LogSink == nil {
				continue
			}
			if s.logDone == nil {
				s.LogSink.Close()
				continue
			}
			select {
			case <-s.logDone:
			case <-ctx.Done():
				s.logIn.Close()
			}
		}
		return nil
	}
}

type Network struct {
	// Name is the network name used for the network creation.
	Name string
	// ID is populated when the network is found or created.
	ID string
}

// EnsureNetworkStep creates the missing networks and fills the ID of
// every spec.
func EnsureNetworkStep(specs ...*Network) RunStep {
	return func(ctx context.Context, c *client.Client) error {
		if len(specs) < 1 {
			return nil
		}

		nets, err := c.NetworkList(ctx, client.NetworkListOptions{})
		if err != nil {
			return fmt.Errorf("failed listing networks: %w", err)
		}

		ids := networkIDs(nets)
		for _, s := range specs {
			if id, ok := ids[s.Name]; ok {
				s.ID = id
				continue
			}

			resp, err := c.NetworkCreate(ctx, s.Name, client.NetworkCreateOptions{})
			if err != nil {
				return fmt.Errorf("failed to create %s network: %w", s.Name, err)
			}

			s.ID = resp.ID
		}
		return nil
	}
}

type GoBuild struct {
	PkgPath, Dest string
	BuildCtxSpecs []osutil.BuildCtxSpec
	// ArtifactStore is used to store the context once the build is complete.
	ArtifactStore io.Writer
}

func GoBuildStep(specs ...*GoBuild) RunStep {
	return func(ctx context.Context, c *client.Client) error {
		for _, s := range specs {
			if err := osutil.BuildGo(ctx, s.Dest, s.PkgPath); err != nil {
				return fmt.Errorf("failed building %s package: %w", s.PkgPath, err)
			}

			r, err := osutil.BuildCtx(s.BuildCtxSpecs...)
			if err != nil {
				return fmt.Errorf("failed building artifacts for %s package: %w", s.PkgPath, err)
			}

			if _, err := io.Copy(s.ArtifactStore, r); err != nil {
				return fmt.Errorf("failed storing artifacts for %s package: %w", s.PkgPath, err)
			}
		}
		return nil
	}
}

type Image struct {
	Tag      string
	Rebuild  bool
	BuildCtx io.Reader
}

// EnsureImageStep builds the images that are missing or marked for rebuild.
func EnsureImageStep(specs ...*Image) RunStep {
	return func(ctx context.Context, c *client.Client) error {
		if len(specs) < 1 {
			return nil
		}

		res, err := c.ImageList(ctx, client.ImageListOptions{})
		if err != nil {
			return fmt.Errorf("failed listing images: %w", err)
		}

		tags := imageTagSet(res)
		for _, s := range specs {
			if _, ok := tags[s.Tag]; ok && !s.Rebuild {
				continue
			}
			resp, err := c.ImageBuild(ctx, s.BuildCtx, client.ImageBuildOptions{Tags: []string{s.Tag}, Remove: true})
			if err := osutil.DrainCloseErr(resp.Body, err); err != nil {
				return fmt.Errorf("failed building image %s: %w", s.Tag, err)
			}
		}

		return nil
	}
}

func imageTagSet(imgs []image.Summary) map[string]struct{} {
	tags := make(map[string]struct{})
	for _, i := range imgs {
		for _, t := range i.RepoTags {
			tags[t] = struct{}{}
		}
	}
	return tags
}

func networkIDs(nets []network.Summary) map[string]string {
	ids := make(map[string]string)
	for _, n := range nets {
		ids[n.Name] = n.ID
	}
	return ids
}
