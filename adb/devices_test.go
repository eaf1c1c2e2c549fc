package adb

import (
	"testing"

	"devicegateway/models"

	"github.com/stretchr/testify/assert"
)

func TestParseDeviceList(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   []models.DeviceEntry
	}{
		{
			name:   "empty",
			output: "",
			want:   nil,
		},
		{
			name:   "host protocol format",
			output: "emulator-5554\tdevice\n127.0.0.1:5555\toffline\n",
			want: []models.DeviceEntry{
				{Serial: "emulator-5554", State: "device"},
				{Serial: "127.0.0.1:5555", State: "offline"},
			},
		},
		{
			name:   "cli format with header and daemon noise",
			output: "* daemon not running; starting now at tcp:5037\n* daemon started successfully\nList of devices attached\nR58M123ABC\tunauthorized\n\n",
			want: []models.DeviceEntry{
				{Serial: "R58M123ABC", State: "unauthorized"},
			},
		},
		{
			name:   "long format extra fields",
			output: "List of devices attached\nemulator-5556   device product:sdk model:Pixel_7 transport_id:1\n",
			want: []models.DeviceEntry{
				{Serial: "emulator-5556", State: "device"},
			},
		},
		{
			name:   "malformed line skipped",
			output: "lonely\nemulator-5554\tdevice\n",
			want: []models.DeviceEntry{
				{Serial: "emulator-5554", State: "device"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseDeviceList(tt.output))
		})
	}
}
