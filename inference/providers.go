package inference

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/nvr-ai/go-detect/config"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ExecutionProvider names an onnxruntime execution provider.
type ExecutionProvider string

const (
	// ProviderCPU is the default onnxruntime CPU provider.
	ProviderCPU ExecutionProvider = "cpu"
	// ProviderCUDA runs on NVIDIA GPUs.
	ProviderCUDA ExecutionProvider = "cuda"
	// ProviderCoreML runs on Apple hardware.
	ProviderCoreML ExecutionProvider = "coreml"
	// ProviderOpenVINO runs on Intel CPU/GPU/VPU devices.
	ProviderOpenVINO ExecutionProvider = "openvino"
)

// SharedLibPath returns the onnxruntime shared library for the current platform.
//
// Returns:
//   - string: The path to the shared library, relative to the working directory.
//   - error: An error if the platform has no known library.
func SharedLibPath() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if runtime.GOARCH == "amd64" {
			return "third_party/onnxruntime.dll", nil
		}
	case "darwin":
		if runtime.GOARCH == "arm64" {
			return "third_party/onnxruntime_arm64.dylib", nil
		}
		return "third_party/onnxruntime_amd64.dylib", nil
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "third_party/onnxruntime_arm64.so", nil
		}
		return "third_party/onnxruntime.so", nil
	}
	return "", errors.Errorf("no onnxruntime library for %s/%s", runtime.GOOS, runtime.GOARCH)
}

// newSessionOptions builds session options with the configured execution provider appended.
//
// Arguments:
//   - cfg: The onnxruntime settings.
//
// Returns:
//   - *ort.SessionOptions: Options the caller must Destroy.
//   - error: An error if the provider is unknown or cannot be enabled.
func newSessionOptions(cfg config.ONNXConfig) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "create session options")
	}

	if err := options.SetIntraOpNumThreads(cfg.Threads); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "set intra-op threads")
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "set graph optimization level")
	}

	if err := appendProvider(options, cfg); err != nil {
		options.Destroy()
		return nil, err
	}

	return options, nil
}

func appendProvider(options *ort.SessionOptions, cfg config.ONNXConfig) error {
	switch ExecutionProvider(strings.ToLower(cfg.Provider)) {
	case ProviderCPU, "":
		return nil
	case ProviderCUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return errors.Wrap(err, "create cuda options")
		}
		defer cuda.Destroy()
		deviceID := cfg.DeviceID
		if deviceID == "" {
			deviceID = "0"
		}
		if err := cuda.Update(map[string]string{"device_id": deviceID}); err != nil {
			return errors.Wrap(err, "update cuda options")
		}
		return errors.Wrap(options.AppendExecutionProviderCUDA(cuda), "enable cuda")
	case ProviderCoreML:
		return errors.Wrap(options.AppendExecutionProviderCoreML(0), "enable coreml")
	case ProviderOpenVINO:
		opts := map[string]string{"device_type": "CPU"}
		if cfg.DeviceID != "" {
			opts["device_id"] = cfg.DeviceID
		}
		if cfg.Threads > 0 {
			opts["num_of_threads"] = fmt.Sprintf("%d", cfg.Threads)
		}
		return errors.Wrap(options.AppendExecutionProviderOpenVINO(opts), "enable openvino")
	default:
		return errors.Errorf("unknown onnxruntime provider %q", cfg.Provider)
	}
}
