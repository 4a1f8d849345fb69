// Package artifacts loads the shipped model artifacts from a model directory.
//
// A model directory holds four JSON files:
//
//	feature_columns.json  ordered list of feature column names
//	model_params.json     priors, tau, temperature, class_order, clip_ranges, strength_stats
//	scaler.json           {"mean": [...], "scale": [...]}
//	classifier.json       {"weights": [[...],[...],[...]], "bias": [...]}
//
// Each directory is read at most once per process; later calls share the
// immutable result.
package artifacts

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"github.com/butp-hub/destination-predictor/internal/domain/prediction"
	"github.com/butp-hub/destination-predictor/internal/domain/shared"
)

// Artifact file names inside a model directory.
const (
	FeatureColumnsFile = "feature_columns.json"
	ModelParamsFile    = "model_params.json"
	ScalerFile         = "scaler.json"
	ClassifierFile     = "classifier.json"
)

// Bundle is a loaded model and a content hash of its files.
type Bundle struct {
	Model   *prediction.Model
	Version string
	Dir     string
}

// Loader memoises model directories.
type Loader struct {
	group  singleflight.Group
	mu     sync.RWMutex
	loaded map[string]*Bundle
	logger *slog.Logger
}

// NewLoader creates a Loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		loaded: make(map[string]*Bundle),
		logger: logger.With("component", "artifacts"),
	}
}

// Load returns the bundle of dir, reading it on first use. Concurrent first
// calls share one read. Failed loads are not memoised.
func (l *Loader) Load(dir string) (*Bundle, error) {
	key := filepath.Clean(dir)

	l.mu.RLock()
	b, ok := l.loaded[key]
	l.mu.RUnlock()
	if ok {
		return b, nil
	}

	v, err, _ := l.group.Do(key, func() (any, error) {
		l.mu.RLock()
		b, ok := l.loaded[key]
		l.mu.RUnlock()
		if ok {
			return b, nil
		}

		b, err := readBundle(key)
		if err != nil {
			return nil, err
		}

		l.mu.Lock()
		l.loaded[key] = b
		l.mu.Unlock()

		l.logger.Info("model artifacts loaded",
			"dir", key,
			"version", b.Version,
			"features", len(b.Model.Columns()),
		)
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Bundle), nil
}

func readBundle(dir string) (*Bundle, error) {
	hash, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}

	read := func(name string, into any) error {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return shared.WrapError("artifacts", "Load", shared.ErrConfiguration,
					"model artifact file not found", fmt.Errorf("%s", filepath.Join(dir, name)))
			}
			return shared.WrapError("artifacts", "Load", shared.ErrConfiguration,
				"read model artifact", err)
		}
		if err := json.Unmarshal(data, into); err != nil {
			return shared.WrapError("artifacts", "Load", shared.ErrConfiguration,
				"model artifact file is malformed", fmt.Errorf("%s: %w", name, err))
		}
		hash.Write([]byte(name))
		hash.Write(data)
		return nil
	}

	var columns []string
	if err := read(FeatureColumnsFile, &columns); err != nil {
		return nil, err
	}
	params := prediction.DefaultParams()
	if err := read(ModelParamsFile, &params); err != nil {
		return nil, err
	}
	scaler := &prediction.StandardScaler{}
	if err := read(ScalerFile, scaler); err != nil {
		return nil, err
	}
	classifier := &prediction.SoftmaxClassifier{}
	if err := read(ClassifierFile, classifier); err != nil {
		return nil, err
	}

	if err := scaler.Validate(len(columns)); err != nil {
		return nil, err
	}
	if err := classifier.Validate(len(columns)); err != nil {
		return nil, err
	}
	model, err := prediction.NewModel(columns, scaler, classifier, params)
	if err != nil {
		return nil, err
	}

	return &Bundle{
		Model:   model,
		Version: hex.EncodeToString(hash.Sum(nil))[:16],
		Dir:     dir,
	}, nil
}
