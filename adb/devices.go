package adb

import (
	"bufio"
	"context"
	"strings"

	"devicegateway/models"
)

// ListDevices returns every device the server knows about, in server order
func (c *Client) ListDevices(ctx context.Context) ([]models.DeviceEntry, error) {
	out, err := c.hostQuery(ctx, "host:devices")
	if err != nil {
		return nil, err
	}
	return parseDeviceList(out), nil
}

// parseDeviceList parses "<serial>\t<state>" lines. The header printed by
// the adb CLI ("List of devices attached") is skipped if present.
func parseDeviceList(output string) []models.DeviceEntry {
	var devices []models.DeviceEntry
	scanner := bufio.NewScanner(strings.NewReader(output))

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}

		devices = append(devices, models.DeviceEntry{
			Serial: parts[0],
			State:  parts[1],
		})
	}

	return devices
}
