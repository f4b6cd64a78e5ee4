// Command oxyvoxel runs the voxel renderer, either in a window or headless for a fixed number of
// frames.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine"
	"github.com/Carmen-Shannon/oxy-voxel/engine/camera"
	"github.com/Carmen-Shannon/oxy-voxel/engine/config"
	"github.com/Carmen-Shannon/oxy-voxel/engine/loader"
	"github.com/Carmen-Shannon/oxy-voxel/engine/profiler"
	"github.com/Carmen-Shannon/oxy-voxel/engine/remote"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/wgpu_backend"
	"github.com/Carmen-Shannon/oxy-voxel/engine/voxel"
	"github.com/Carmen-Shannon/oxy-voxel/engine/voxelization"
	"github.com/Carmen-Shannon/oxy-voxel/engine/window"
	"github.com/Carmen-Shannon/oxy-voxel/engine/world"
	"github.com/go-gl/mathgl/mgl32"
)

type options struct {
	configPath string
	headless   bool
	frames     int
	save       string
	remoteAddr string
	traceDB    string
	meshPath   string
	material   uint
}

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "oxyvoxel:", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("oxyvoxel", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "YAML configuration file")
	fs.BoolVar(&o.headless, "headless", false, "render without a window or GPU")
	fs.IntVar(&o.frames, "frames", 60, "frames to render in headless mode")
	fs.StringVar(&o.save, "save", "", "write a world snapshot to this path on exit")
	fs.StringVar(&o.remoteAddr, "remote", "", "loopback address of the remote control server (overrides the config)")
	fs.StringVar(&o.traceDB, "trace-db", "", "sqlite frame trace path (overrides the config)")
	fs.StringVar(&o.meshPath, "mesh", "", "glTF/GLB mesh voxelized at the world origin every frame")
	fs.UintVar(&o.material, "material", 1, "material index written by -mesh (1-254)")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.headless && o.frames <= 0 {
		return o, errors.New("-frames must be positive in headless mode")
	}
	if o.material == 0 || o.material > 254 {
		return o, errors.New("-material must be within 1-254")
	}
	return o, nil
}

func run(args []string, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	cfg := config.Default()
	if o.configPath != "" {
		if cfg, err = config.Load(o.configPath); err != nil {
			return err
		}
	}
	cfg.Remote.Addr = common.Coalesce(o.remoteAddr, cfg.Remote.Addr)
	cfg.Profiler.TraceDB = common.Coalesce(o.traceDB, cfg.Profiler.TraceDB)
	common.SetLogger(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.Level()})))

	size := common.Extent2D{Width: uint32(cfg.Window.Width), Height: uint32(cfg.Window.Height)}
	var (
		win window.Window
		r   renderer.Renderer
	)
	if o.headless {
		r = renderer.NewRenderer(renderer.NewHeadlessBackend(renderer.WithHostWorkers(cfg.Workers)),
			renderer.WithSurfaceSize(int(size.Width), int(size.Height)))
	} else {
		if win, err = window.NewWindow(window.WithTitle(cfg.Window.Title), window.WithSize(size)); err != nil {
			return err
		}
		defer win.Close()
		backend, err := wgpu_backend.New(win.SurfaceDescriptor(), false)
		if err != nil {
			return err
		}
		size = win.Size()
		r = renderer.NewRenderer(backend, renderer.WithSurfaceSize(int(size.Width), int(size.Height)))
	}
	defer r.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worldOptions := []world.WorldBuilderOption{
		world.WithSource(cfg.Source()),
		world.WithVoxelsPerMeter(cfg.World.VoxelsPerMeter),
		world.WithPhysicsBufferLength(cfg.Buffers.Physics),
		world.WithAnimationBufferLength(cfg.Buffers.Animation),
		world.WithSettings(cfg.Graph),
		world.WithWorkers(cfg.Workers),
	}
	// The server needs the world as its settings sink, so it is bound after the world exists.
	var server *remote.Server
	if cfg.Remote.Addr != "" {
		worldOptions = append(worldOptions, world.WithObserver(func(report world.FrameReport) {
			if server != nil {
				server.Publish(report)
			}
		}))
	}
	w, err := world.NewWorld(r, worldOptions...)
	if err != nil {
		return err
	}
	defer w.Close()

	if cfg.Remote.Addr != "" {
		server = remote.NewServer(w)
		go func() {
			if err := server.ListenAndServe(ctx, cfg.Remote.Addr); err != nil {
				common.Logger().Error("remote control stopped", "err", err)
			}
		}()
	}

	var instances []voxelization.Instance
	if o.meshPath != "" {
		mesh, err := loader.NewLoader(loader.BackendTypeGLTF).Load(o.meshPath)
		if err != nil {
			return err
		}
		instances = append(instances, voxelization.Instance{
			ID:        1,
			Mesh:      mesh,
			Transform: mgl32.Ident4(),
			Material:  voxelization.IndexedMaterial(uint8(o.material), voxel.FlagCollision),
		})
	}

	engineOptions := []engine.EngineBuilderOption{
		engine.WithRenderer(r),
		engine.WithWorld(w),
		engine.WithFrameSource(viewSource(newCamera(size), cfg, instances)),
		engine.WithRenderFrameLimit(cfg.Window.FrameLimit),
	}
	if win != nil {
		engineOptions = append(engineOptions, engine.WithWindow(win))
	}
	if cfg.Profiler.Enabled || cfg.Profiler.TraceDB != "" {
		var profilerOptions []profiler.ProfilerBuilderOption
		if cfg.Profiler.TraceDB != "" {
			profilerOptions = append(profilerOptions, profiler.WithTraceDB(cfg.Profiler.TraceDB))
		}
		p, err := profiler.NewProfiler(profilerOptions...)
		if err != nil {
			return err
		}
		defer p.Close()
		engineOptions = append(engineOptions, engine.WithProfiler(p))
	}
	eng := engine.NewEngine(engineOptions...)

	if o.headless {
		err = eng.RunFrames(o.frames)
	} else {
		err = eng.Run()
	}
	if err != nil {
		return err
	}

	if o.save != "" {
		return w.Store().Save(o.save)
	}
	return nil
}

func newCamera(size common.Extent2D) camera.Camera {
	aspect := float32(1)
	if !size.IsZero() {
		aspect = float32(size.Width) / float32(size.Height)
	}
	return camera.NewCamera(
		camera.WithProjection(camera.PerspectiveProjection(math.Pi/2, aspect, 0.1, 1000)),
		camera.WithController(camera.NewCameraController(
			camera.WithRadius(12),
			camera.WithAzimuth(0.8),
			camera.WithElevation(0.5),
			camera.WithOrbitTarget(mgl32.Vec3{0, 0, 0}),
		)),
	)
}

// viewSource renders one presented view through cam, following the viewport size.
// Every frame also voxelizes the given instances.
func viewSource(cam camera.Camera, cfg config.Config, instances []voxelization.Instance) engine.FrameSource {
	return func(_ float32, viewport common.Extent2D) world.FrameInput {
		if !viewport.IsZero() {
			cam.SetAspect(float32(viewport.Width) / float32(viewport.Height))
		}
		cam.Update()
		return world.FrameInput{
			Views: []world.ViewInput{{
				ID:             1,
				Transform:      cam.Transform(),
				Projection:     cam.ProjectionMatrix(),
				Viewport:       viewport,
				Trace:          cfg.Trace,
				HasAttachments: true,
				Present:        true,
			}},
			Voxelize: instances,
		}
	}
}
