// Package inference - Model sessions and the tensors exchanged with them.
package inference

import (
	"context"
	"os"

	"github.com/nvr-ai/go-detect/config"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrUnsupportedBackend is returned when the configured backend has no implementation.
var ErrUnsupportedBackend = errors.New("unsupported backend")

// Session is a loaded model ready to execute. It is created once and only read afterwards.
type Session interface {
	// Run invokes the model once on a batch and returns boxes, scores, classes and count.
	Run(ctx context.Context, batch Batch) (*Outputs, error)
	// Close releases the runtime resources held by the session.
	Close() error
}

// Open loads the model artifact with the configured backend.
//
// The artifact is checked before the runtime is touched, so a missing or empty file fails
// without initializing anything.
//
// Arguments:
//   - cfg: The model configuration.
//   - log: Logger for load progress; nil uses the standard logger.
//
// Returns:
//   - Session: The opened session; the caller must Close it.
//   - error: An error if the artifact is missing, empty or cannot be loaded.
func Open(cfg config.ModelConfig, log logrus.FieldLogger) (Session, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	if err := checkArtifact(cfg.Path); err != nil {
		return nil, err
	}

	log = log.WithFields(logrus.Fields{"backend": cfg.Backend, "model": cfg.Path})
	log.Debug("loading model")

	var (
		session Session
		err     error
	)
	switch cfg.Backend {
	case config.BackendTensorFlow, "":
		session, err = NewTensorFlowSession(cfg)
	case config.BackendONNX:
		session, err = NewONNXSession(cfg)
	case config.BackendOpenCV:
		session, err = NewOpenCVSession(cfg)
	default:
		return nil, errors.Wrapf(ErrUnsupportedBackend, "%q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	log.Info("model loaded")
	return session, nil
}

func checkArtifact(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "model artifact %s", path)
	}
	if info.IsDir() {
		return errors.Errorf("model artifact %s is a directory", path)
	}
	if info.Size() == 0 {
		return errors.Errorf("model artifact %s is empty", path)
	}
	return nil
}
