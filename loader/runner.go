package loader

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"runtime"

	"github.com/carton-ml/carton/comms"
	"github.com/carton-ml/carton/discover"
	"github.com/carton-ml/carton/envconfig"
	"github.com/carton-ml/carton/mux"
	"github.com/carton-ml/carton/pack"
	"github.com/carton-ml/carton/packager"
	"github.com/carton-ml/carton/rpc"
	"github.com/carton-ml/carton/transport"
	"github.com/carton-ml/carton/vfs"
	"github.com/carton-ml/carton/vfsrpc"
)

// FileSystemStreamID is the well-known single stream id used for the one
// VFS served per runner session (§4.6 "Session": "a single multiplexed
// stream per served filesystem"). The runner side calls
// GetStreamForID(FileSystemStreamID) to attach to it.
const FileSystemStreamID uint64 = 0

// Platform is the host target triple used by both discovery and the
// packager index (§4.10 "Selection": "platform matches the host target
// triple").
func Platform() string {
	return runtime.GOOS + "-" + runtime.GOARCH
}

// SelectRunner implements §4.8 stage 6 together with §4.10/§4.11: scan
// the installed runner root, and if nothing matches, fall through to an
// index-driven install when one is configured.
func SelectRunner(info pack.RunnerInfo) (*discover.Candidate, error) {
	q := discover.Query{
		RunnerName:            info.Name,
		RunnerCompatVersion:   info.RunnerCompatVersion,
		FrameworkVersionRange: info.RequiredFrameworkVersion,
		Platform:              Platform(),
	}

	root := envconfig.RunnerDir()
	candidates, err := discover.Scan(root)
	if err != nil {
		return nil, fmt.Errorf("loader: scanning runner root %s: %w", root, err)
	}
	if c, err := discover.Select(candidates, q); err == nil {
		return c, nil
	}

	indexURL := envconfig.RunnerIndexURL()
	if indexURL == "" {
		return nil, fmt.Errorf("loader: no installed runner matches %+v and no runner index is configured", q)
	}
	infos, err := packager.FetchIndex(indexURL, http.DefaultClient)
	if err != nil {
		return nil, fmt.Errorf("loader: fetching runner index: %w", err)
	}
	dl, err := packager.SelectFromIndex(infos, q)
	if err != nil {
		return nil, err
	}
	if _, err := packager.Install(root, dl, packager.Options{HTTPClient: http.DefaultClient}); err != nil {
		return nil, fmt.Errorf("loader: installing runner %s: %w", dl.RunnerName, err)
	}
	candidates, err = discover.Scan(root)
	if err != nil {
		return nil, err
	}
	return discover.Select(candidates, q)
}

// Launch spawns the runner executable, establishes the comms bootstrap,
// serves fs read-only on the FileSystem channel, and returns an rpc.Client
// ready for Load (§4.8 stage 7).
//
// visibleDeviceEnvVar, when non-empty, is the environment variable the
// launched process expects to carry a GPU device UUID (e.g.
// "CUDA_VISIBLE_DEVICES"); the caller derives this from the runner's own
// declared framework, which Carton does not otherwise know about.
func Launch(candidate *discover.Candidate, fs vfs.FS, device rpc.Device, visibleDeviceEnvVar string) (*rpc.Client, func(), error) {
	boot, err := comms.NewBootstrap()
	if err != nil {
		return nil, nil, err
	}

	cmd := exec.Command(candidate.RunnerPath, "--uds-path", boot.SocketPath())
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	if device.Kind == rpc.DeviceGPU && device.DeviceUUID != "" && visibleDeviceEnvVar != "" {
		cmd.Env = append(cmd.Env, visibleDeviceEnvVar+"="+device.DeviceUUID)
	}
	if err := cmd.Start(); err != nil {
		boot.Close()
		return nil, nil, fmt.Errorf("loader: starting runner %s: %w", candidate.RunnerPath, err)
	}

	c, err := comms.Listen(boot.SocketPath())
	if err != nil {
		cmd.Process.Kill()
		boot.Close()
		return nil, nil, fmt.Errorf("loader: accepting runner connection: %w", err)
	}

	cleanup := func() {
		c.Close()
		boot.Close()
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		if err := cmd.Wait(); err != nil {
			slog.Debug("loader: runner process exited", "error", err)
		}
	}

	fsChan, err := c.GetChannel(comms.ChannelFileSystem)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	fsMux := mux.New[vfsrpc.Message](fsChan, true)
	vfsrpc.Serve(fsMux.GetStreamForID(FileSystemStreamID), fs, vfsrpc.Capabilities{Read: true, Seek: true})

	rpcChan, err := c.GetChannel(comms.ChannelRPC)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	rpcConn := transport.NewConn[rpc.Envelope, rpc.Envelope](rpcChan)
	client := rpc.NewClient(rpcConn)

	return client, cleanup, nil
}
