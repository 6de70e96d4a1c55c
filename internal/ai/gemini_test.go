package ai

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carpool/internal/modules/ride"
)

func TestCleanJSONString(t *testing.T) {
	tests := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```{\"a\":1}```":         `{"a":1}`,
		"  {\"a\":1}  ":           `{"a":1}`,
	}
	for in, want := range tests {
		assert.Equal(t, want, cleanJSONString(in))
	}
}

func TestDecodeIntentToQuery(t *testing.T) {
	intent, err := decodeIntent("```json\n" + `{"pickup":"Taipei","dropoff":"Hsinchu","date":"2026-10-16","max_price":200.5,"min_seats":2,"sort_by":"price"}` + "\n```")
	require.NoError(t, err)

	q, err := ride.ParseQuery(intent.Params(), 100)
	require.NoError(t, err)
	assert.Equal(t, "Taipei", q.Pickup)
	assert.Equal(t, "Hsinchu", q.Dropoff)
	require.NotNil(t, q.Date)
	assert.Equal(t, "2026-10-16", q.Date.Format("2006-01-02"))
	require.NotNil(t, q.MaxPrice)
	assert.Equal(t, "200.5", q.MaxPrice.String())
	assert.Equal(t, 2, q.MinSeats)
	assert.Equal(t, ride.SortPrice, q.SortBy)
}

func TestDecodeIntentEmptyObject(t *testing.T) {
	intent, err := decodeIntent(`{}`)
	require.NoError(t, err)
	assert.Equal(t, ride.SearchParams{}, intent.Params())
}

func TestDecodeIntentRejectsGarbage(t *testing.T) {
	_, err := decodeIntent("I could not understand that")
	assert.Error(t, err)
}

func TestSystemPromptCarriesCurrentDate(t *testing.T) {
	now := time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)
	assert.True(t, strings.Contains(buildSystemPrompt(now), "2026-10-14T09:30:00Z"))
}
