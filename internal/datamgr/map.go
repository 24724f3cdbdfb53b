package datamgr

import (
	"bufio"
	"fmt"
	"io"
)

// ParseMapFile reads the sensor->room map file: one "room_id sensor_id"
// line per sensor. It returns a direct sensor_id -> room_id mapping —
// sensors in the map file are few and fixed at startup, so a plain map
// replaces a linked-list-plus-comparator lookup.
func ParseMapFile(r io.Reader) (map[uint16]uint16, error) {
	rooms := make(map[uint16]uint16)
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if text == "" {
			continue
		}
		var roomID, sensorID uint16
		if _, err := fmt.Sscanf(text, "%d %d", &roomID, &sensorID); err != nil {
			return nil, fmt.Errorf("datamgr: map file line %d: %w", line, err)
		}
		rooms[sensorID] = roomID
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("datamgr: reading map file: %w", err)
	}
	return rooms, nil
}
