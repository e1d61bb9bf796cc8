package loader

import (
	"fmt"
	"net/http"

	"github.com/carton-ml/carton/pack"
	"github.com/carton-ml/carton/rpc"
)

// Model is a loaded carton with its runner launched and ready for
// inference (§4.8 stages 1-7 end to end).
type Model struct {
	Info           *pack.CartonInfo
	ManifestSHA256 string
	Client         *rpc.Client

	close func()
}

// Close tears down the runner process and its channels.
func (m *Model) Close() {
	if m.close != nil {
		m.close()
	}
}

// LoadOptions configures the full pipeline; InfoOnly stops once the
// overrides are applied (stage 5), before runner selection
// (§4.8 stage 6: "If the caller asked only for info, stop here").
type LoadOptions struct {
	HTTPClient          *http.Client
	Overrides           Overrides
	InfoOnly            bool
	Device              rpc.Device
	VisibleDeviceEnvVar string
	CartonManifestHash  string
}

// Load runs the full §4.8 pipeline for ref. When opts.InfoOnly is set, the
// returned Model has a nil Client and the caller is responsible for
// deciding there is nothing further to tear down.
func Load(ref string, opts LoadOptions) (*Model, error) {
	resolved, err := Open(ref, Options{HTTPClient: opts.HTTPClient})
	if err != nil {
		return nil, err
	}

	runnerInfo := opts.Overrides.Apply(resolved.Result.Info.Runner)
	resolved.Result.Info.Runner = runnerInfo

	if opts.InfoOnly {
		return &Model{Info: resolved.Result.Info, ManifestSHA256: resolved.Result.ManifestSHA256}, nil
	}

	candidate, err := SelectRunner(runnerInfo)
	if err != nil {
		return nil, err
	}

	client, cleanup, err := Launch(candidate, resolved.FS, opts.Device, opts.VisibleDeviceEnvVar)
	if err != nil {
		return nil, err
	}

	_, err = client.Load(&rpc.LoadRequest{
		RunnerName:               runnerInfo.Name,
		RequiredFrameworkVersion: runnerInfo.RequiredFrameworkVersion,
		RunnerCompatVersion:      runnerInfo.RunnerCompatVersion,
		RunnerOpts:               runnerInfo.Opts,
		VisibleDevice:            opts.Device,
		CartonManifestHash:       opts.CartonManifestHash,
	})
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("loader: runner load RPC: %w", err)
	}

	return &Model{
		Info:           resolved.Result.Info,
		ManifestSHA256: resolved.Result.ManifestSHA256,
		Client:         client,
		close:          cleanup,
	}, nil
}
