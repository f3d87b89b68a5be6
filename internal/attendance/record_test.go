package attendance

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classattend/internal/device"
)

func TestValidManualStatus(t *testing.T) {
	assert.True(t, ValidManualStatus(StatusPresent))
	assert.True(t, ValidManualStatus(StatusAbsent))
	assert.True(t, ValidManualStatus(StatusManualPresent))
	assert.False(t, ValidManualStatus(StatusRejected))
	assert.False(t, ValidManualStatus(Status("bogus")))
}

func TestRecordJSONOmitsEmptyComponents(t *testing.T) {
	raw, err := json.Marshal(Record{ID: "rec-1", Status: StatusPresent})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"components"`)

	raw, err = json.Marshal(Record{
		ID: "rec-2",
		Components: &device.Components{
			ScreenWidth: 1080, ScreenHeight: 2400,
			Timezone: "Africa/Lagos", Languages: []string{"en-NG"},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"components"`)
	assert.Contains(t, string(raw), `"Africa/Lagos"`)
}
