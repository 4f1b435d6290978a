package transcription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBundleConfig() BundleConfig {
	return BundleConfig{
		RecognitionModel: "large-v2",
		Device:           "cpu",
		ComputeType:      "int8",
		DefaultLanguage:  "en",
		DiarizationModel: "pyannote/speaker-diarization-3.1",
		DiarizationToken: "hf_token",
		LoadAttempts:     3,
		RetryDelay:       time.Millisecond,
	}
}

func TestNewModelBundle(t *testing.T) {
	loader := newFakeLoader()
	recorder := &fakeRecorder{}

	b, err := NewModelBundle(context.Background(), loader, testBundleConfig(), recorder, discardLogger())
	require.NoError(t, err)

	assert.NotNil(t, b.Recognizer())
	assert.True(t, b.DiarizationEnabled())
	d, ok := b.Diarizer()
	assert.True(t, ok)
	assert.NotNil(t, d)
	assert.Equal(t, []string{"en"}, b.AlignLanguages())
	assert.Equal(t, []string{KindRecognition, KindAlignment, KindDiarization}, recorder.kinds)

	for _, spec := range loader.specs {
		if spec.Kind == KindDiarization {
			assert.Equal(t, "hf_token", spec.AuthToken)
			assert.Equal(t, "pyannote/speaker-diarization-3.1", spec.Name)
		} else {
			assert.Empty(t, spec.AuthToken, "token only goes to the diarization load")
		}
	}
}

func TestNewModelBundleRecognizerFatal(t *testing.T) {
	loader := newFakeLoader()
	loader.recognizerErr = errors.New("connection refused")

	_, err := NewModelBundle(context.Background(), loader, testBundleConfig(), nil, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load recognition model large-v2")
}

func TestNewModelBundlePermanentErrorNotRetried(t *testing.T) {
	loader := newFakeLoader()
	loader.alignErr["en"] = permanentErr{}

	b, err := NewModelBundle(context.Background(), loader, testBundleConfig(), nil, discardLogger())
	require.NoError(t, err, "default aligner failure is not fatal")
	assert.Equal(t, 1, loader.alignCount("en"))
	assert.Empty(t, b.AlignLanguages())
}

func TestNewModelBundleRetriesTransientErrors(t *testing.T) {
	loader := newFakeLoader()
	loader.alignErr["en"] = errors.New("503")

	_, err := NewModelBundle(context.Background(), loader, testBundleConfig(), nil, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 3, loader.alignCount("en"))
}

func TestNewModelBundleDiarizationDegrades(t *testing.T) {
	t.Run("no token", func(t *testing.T) {
		loader := newFakeLoader()
		cfg := testBundleConfig()
		cfg.DiarizationToken = ""

		b, err := NewModelBundle(context.Background(), loader, cfg, nil, discardLogger())
		require.NoError(t, err)
		assert.False(t, b.DiarizationEnabled())
		assert.Zero(t, loader.diarLoads, "no load is attempted without a token")
	})

	t.Run("load fails", func(t *testing.T) {
		loader := newFakeLoader()
		loader.diarizerErr = permanentErr{}

		b, err := NewModelBundle(context.Background(), loader, testBundleConfig(), nil, discardLogger())
		require.NoError(t, err)
		assert.False(t, b.DiarizationEnabled())
		_, ok := b.Diarizer()
		assert.False(t, ok)
	})
}

func TestAlignerSingleLoadPerLanguage(t *testing.T) {
	loader := newFakeLoader()
	b, err := NewModelBundle(context.Background(), loader, testBundleConfig(), nil, discardLogger())
	require.NoError(t, err)
	loader.alignDelay = 50 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := b.Aligner(context.Background(), "de")
			assert.NoError(t, err)
			assert.NotNil(t, a)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, loader.alignCount("de"))
	assert.Equal(t, []string{"de", "en"}, b.AlignLanguages())

	_, err = b.Aligner(context.Background(), "de")
	require.NoError(t, err)
	assert.Equal(t, 1, loader.alignCount("de"), "cached aligner is reused")
}

func TestAlignerFailureNotCached(t *testing.T) {
	loader := newFakeLoader()
	cfg := testBundleConfig()
	cfg.LoadAttempts = 1
	b, err := NewModelBundle(context.Background(), loader, cfg, nil, discardLogger())
	require.NoError(t, err)

	loader.mu.Lock()
	loader.alignErr["xx"] = errors.New("unsupported language")
	loader.mu.Unlock()

	_, err = b.Aligner(context.Background(), "xx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"xx"`)

	loader.mu.Lock()
	delete(loader.alignErr, "xx")
	loader.mu.Unlock()

	a, err := b.Aligner(context.Background(), "xx")
	require.NoError(t, err)
	assert.NotNil(t, a)
	assert.Equal(t, 2, loader.alignCount("xx"))
}

func TestAlignerCallerCancellation(t *testing.T) {
	loader := newFakeLoader()
	b, err := NewModelBundle(context.Background(), loader, testBundleConfig(), nil, discardLogger())
	require.NoError(t, err)
	loader.alignDelay = 200 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = b.Aligner(ctx, "fr")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The shared load still completes for later callers.
	a, err := b.Aligner(context.Background(), "fr")
	require.NoError(t, err)
	assert.NotNil(t, a)
	assert.Equal(t, 1, loader.alignCount("fr"))
}
