package classify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/browser-orchestrator/internal/model"
)

func TestClassify_NetworkSubstring(t *testing.T) {
	ctx := Classify(errors.New("connection refused"), model.ApproachDOM, nil)
	require.Equal(t, model.CategoryNetwork, ctx.Category)
	assert.True(t, ctx.Retryable)
	assert.False(t, ctx.FallbackRecommended)
	assert.Equal(t, 0.1, ctx.ConfidenceImpact)
}

func TestClassify_NetworkCompoundTimeout(t *testing.T) {
	ctx := Classify(errors.New("network timeout while fetching resource"), model.ApproachAI, nil)
	require.Equal(t, model.CategoryNetwork, ctx.Category)
}

func TestClassify_ElementNotFoundRetryableOnlyForDOM(t *testing.T) {
	dom := Classify(errors.New("element not found: #submit"), model.ApproachDOM, nil)
	assert.True(t, dom.Retryable)

	ai := Classify(errors.New("element not found: #submit"), model.ApproachAI, nil)
	assert.False(t, ai.Retryable)
}

func TestClassify_BrowserNotRetryableForVision(t *testing.T) {
	vision := Classify(errors.New("chromedriver session crashed"), model.ApproachVision, nil)
	assert.False(t, vision.Retryable)

	dom := Classify(errors.New("chromedriver session crashed"), model.ApproachDOM, nil)
	assert.True(t, dom.Retryable)
}

func TestClassify_TimeoutFallbackOnlyForDOM(t *testing.T) {
	dom := Classify(errors.New("operation timed out"), model.ApproachDOM, nil)
	assert.True(t, dom.FallbackRecommended)

	vision := Classify(errors.New("operation timed out"), model.ApproachVision, nil)
	assert.False(t, vision.FallbackRecommended)
}

func TestClassify_PermissionDeniedTerminal(t *testing.T) {
	ctx := Classify(errors.New("request forbidden by CORS policy"), model.ApproachDOM, nil)
	require.Equal(t, model.CategoryPermissionDenied, ctx.Category)
	assert.False(t, ctx.Retryable)
	assert.False(t, ctx.FallbackRecommended)
}

func TestClassify_ConfigurationTerminal(t *testing.T) {
	ctx := Classify(errors.New("provider not configured"), model.ApproachAI, nil)
	require.Equal(t, model.CategoryConfiguration, ctx.Category)
	assert.False(t, ctx.Retryable)
	assert.True(t, ctx.FallbackRecommended)
}

func TestClassify_UnknownFallthrough(t *testing.T) {
	ctx := Classify(errors.New("something entirely unexpected happened"), model.ApproachDOM, nil)
	require.Equal(t, model.CategoryUnknown, ctx.Category)
	assert.True(t, ctx.Retryable)
	assert.True(t, ctx.FallbackRecommended)
	assert.Equal(t, 0.2, ctx.ConfidenceImpact)
}

func TestClassify_FirstMatchWins(t *testing.T) {
	// The message matches both page_load ("navigation") and timeout
	// ("timed out"); page_load comes earlier in the rule order, so it
	// wins.
	ctx := Classify(errors.New("navigation timed out after 30s"), model.ApproachDOM, nil)
	require.Equal(t, model.CategoryPageLoad, ctx.Category)
}

func TestClassify_NilErrorIsUnknown(t *testing.T) {
	ctx := Classify(nil, model.ApproachDOM, nil)
	assert.Equal(t, model.CategoryUnknown, ctx.Category)
	assert.Equal(t, "", ctx.Message)
}

func TestClassify_MetadataPassthrough(t *testing.T) {
	meta := map[string]any{"attempt": 2}
	ctx := Classify(errors.New("connection refused"), model.ApproachDOM, meta)
	assert.Equal(t, meta, ctx.Metadata)
}
