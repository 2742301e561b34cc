package provider

import (
	"errors"
	"image"
	"io"
	"testing"

	"stress-detect-go/config"
	"stress-detect-go/internal/detector"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopCascade struct{}

func (nopCascade) DetectMultiScale(*image.Gray, detector.Params) ([]image.Rectangle, error) {
	return nil, nil
}

func withLoaders(t *testing.T, replacement map[string]Loader) {
	t.Helper()
	saved := loaders
	loaders = replacement
	t.Cleanup(func() { loaders = saved })
}

func ok() Loader {
	return func(config.DetectorConfig) (detector.Cascade, io.Closer, error) {
		return nopCascade{}, io.NopCloser(nil), nil
	}
}

func failing() Loader {
	return func(config.DetectorConfig) (detector.Cascade, io.Closer, error) {
		return nil, nil, errors.New("missing model")
	}
}

func TestNewCascadePrefersConfiguredBackend(t *testing.T) {
	withLoaders(t, map[string]Loader{BackendOpenCV: ok(), BackendPigo: ok()})

	_, _, name, err := NewCascade(config.DetectorConfig{Backend: BackendPigo})
	require.NoError(t, err)
	assert.Equal(t, BackendPigo, name)
}

func TestNewCascadeFallsBack(t *testing.T) {
	withLoaders(t, map[string]Loader{BackendOpenCV: failing(), BackendPigo: ok()})

	_, _, name, err := NewCascade(config.DetectorConfig{Backend: BackendOpenCV})
	require.NoError(t, err)
	assert.Equal(t, BackendPigo, name)
}

func TestNewCascadeAllFail(t *testing.T) {
	withLoaders(t, map[string]Loader{BackendOpenCV: failing(), BackendPigo: failing()})

	_, _, _, err := NewCascade(config.DetectorConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing model")
}

func TestNewLocatorUsesConfiguredLadder(t *testing.T) {
	withLoaders(t, map[string]Loader{BackendOpenCV: ok(), BackendPigo: ok()})

	loc, closer, err := NewLocator(config.DetectorConfig{
		Backend: BackendOpenCV,
		MinSize: 40,
		Ladder:  []config.LadderStep{{ScaleFactor: 1.3, MinNeighbors: 4}},
	})
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, 40, loc.MinSize())
	assert.Equal(t, detector.Ladder{{ScaleFactor: 1.3, MinNeighbors: 4}}, loc.Ladder())
}
