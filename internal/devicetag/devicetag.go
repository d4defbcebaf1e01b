// Package devicetag assigns device tags to registered devices from a CSV
// of MAC address / tag pairs. The device inventory comes from the
// portal's /api/graphql endpoint; tag writes go through the v2 REST
// endpoint.
package devicetag

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	graphql "github.com/hasura/go-graphql-client"

	"github.com/mammoth-cyber/mammothctl/internal/ctxlog"
)

// pageSize is the device inventory page length requested per call.
const pageSize = 500

// Entry is one CSV row: a tag to assign to the device with that MAC.
type Entry struct {
	MAC string
	Tag string
}

// NormalizeMAC canonicalizes a MAC address to lowercase colon-separated
// octet pairs, accepting ":", "-", "." or no separator on input.
func NormalizeMAC(s string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ':', '-', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	cleaned = strings.ToLower(cleaned)

	if len(cleaned) != 12 {
		return "", fmt.Errorf("invalid MAC address %q", s)
	}
	for _, r := range cleaned {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return "", fmt.Errorf("invalid MAC address %q", s)
		}
	}

	pairs := make([]string, 0, 6)
	for i := 0; i < 12; i += 2 {
		pairs = append(pairs, cleaned[i:i+2])
	}
	return strings.Join(pairs, ":"), nil
}

// ReadCSV loads entries from a CSV file. The header row names the
// columns; "mac_address" or "mac" and "tag" or "device_tag" are
// accepted. Later rows repeating a MAC are dropped with a warning, the
// first occurrence wins.
func ReadCSV(ctx context.Context, path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return parseCSV(ctx, f)
}

func parseCSV(ctx context.Context, r io.Reader) ([]Entry, error) {
	logger := ctxlog.FromContext(ctx)

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	macCol, tagCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "mac_address", "mac":
			macCol = i
		case "tag", "device_tag":
			tagCol = i
		}
	}
	if macCol < 0 || tagCol < 0 {
		return nil, fmt.Errorf("csv header must name a mac_address and a tag column, got %v", header)
	}

	var entries []Entry
	seen := make(map[string]bool)
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		if macCol >= len(record) || tagCol >= len(record) {
			return nil, fmt.Errorf("csv line %d: too few columns", line)
		}

		mac, err := NormalizeMAC(record[macCol])
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		tag := strings.TrimSpace(record[tagCol])
		if tag == "" {
			return nil, fmt.Errorf("csv line %d: empty tag for %s", line, mac)
		}

		if seen[mac] {
			logger.Warn("duplicate MAC in csv, keeping first occurrence", "mac", mac, "line", line)
			continue
		}
		seen[mac] = true
		entries = append(entries, Entry{MAC: mac, Tag: tag})
	}
	return entries, nil
}

// Tag is the deviceTag object attached to a registered device.
type Tag struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Display is the tag's human-readable form: the display name, falling
// back to the id.
func (t *Tag) Display() string {
	if t == nil {
		return ""
	}
	if t.DisplayName != "" {
		return t.DisplayName
	}
	return t.ID
}

// UserDevice links a device to a user who signed in on it.
type UserDevice struct {
	User struct {
		ID string `json:"id"`
	} `json:"user"`
	LastLoginAt string `json:"lastLoginAt"`
}

// Device is a registered device as the inventory reports it. A device
// carries every MAC it was seen with; any one of them identifies it.
type Device struct {
	ID           string       `json:"id"`
	DeviceModel  string       `json:"deviceModel"`
	DeviceName   string       `json:"deviceName"`
	DeviceTag    *Tag         `json:"deviceTag"`
	MACAddresses []string     `json:"macAddresses"`
	UserDevices  []UserDevice `json:"userDevices"`
}

const devicesQuery = `
  query ListRegisteredDevices($payload: GetRegisteredDevicesPayloadDto, $limit: Int, $nextToken: String) {
    registeredDevices(payload: $payload, limit: $limit, nextToken: $nextToken) {
      list {
        id
        deviceModel
        deviceName
        deviceTag {
          id
          displayName
        }
        macAddresses
        userDevices {
          user { id }
          lastLoginAt
        }
      }
      nextToken
    }
  }
`

// Inventory reads the registered-device list over GraphQL.
type Inventory struct {
	gql *graphql.Client
}

// NewInventory builds an Inventory for the portal's /api/graphql
// endpoint, which wants both the Bearer header and the raw idToken.
func NewInventory(host, bearerToken, idToken string) *Inventory {
	httpc := &http.Client{Timeout: 30 * time.Second}
	client := graphql.NewClient(host+"/api/graphql", httpc).
		WithRequestModifier(func(r *http.Request) {
			r.Header.Set("Authorization", bearerToken)
			r.Header.Set("Idtoken", idToken)
		})
	return &Inventory{gql: client}
}

// Devices pages through the full device inventory. No payload filter is
// sent, so every registered device comes back.
func (inv *Inventory) Devices(ctx context.Context) ([]Device, error) {
	var all []Device
	var nextToken *string

	for {
		data, err := inv.gql.ExecRaw(ctx, devicesQuery, map[string]any{
			"limit":     pageSize,
			"nextToken": nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("list registered devices: %w", err)
		}

		var out struct {
			RegisteredDevices struct {
				List      []Device `json:"list"`
				NextToken *string  `json:"nextToken"`
			} `json:"registeredDevices"`
		}
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("decode registered devices: %w", err)
		}

		all = append(all, out.RegisteredDevices.List...)
		nextToken = out.RegisteredDevices.NextToken
		if nextToken == nil || *nextToken == "" {
			break
		}
	}
	return all, nil
}

// Action is the planned outcome for one CSV entry.
type Action string

const (
	ActionUpdate    Action = "will update"
	ActionNoChange  Action = "no change"
	ActionNotFound  Action = "not found"
	ActionDuplicate Action = "duplicate device"
)

// PlanRow pairs a CSV entry with the device it resolved to and the
// action the apply step will take.
type PlanRow struct {
	Entry  Entry
	Device *Device
	Action Action
}

// Plan matches CSV entries against the device inventory. Every MAC a
// device carries maps to it, so any of them identifies the device in
// the CSV. A MAC shared by distinct devices is never updated; the
// ambiguity has to be fixed in the portal first.
func Plan(entries []Entry, devices []Device) []PlanRow {
	byMAC := make(map[string]*Device)
	ambiguous := make(map[string]bool)
	for i := range devices {
		dev := &devices[i]
		for _, raw := range dev.MACAddresses {
			mac, err := NormalizeMAC(raw)
			if err != nil {
				continue
			}
			if prev, ok := byMAC[mac]; ok {
				if prev.ID != dev.ID {
					ambiguous[mac] = true
				}
				continue
			}
			byMAC[mac] = dev
		}
	}

	rows := make([]PlanRow, 0, len(entries))
	for _, e := range entries {
		row := PlanRow{Entry: e}
		dev := byMAC[e.MAC]
		switch {
		case ambiguous[e.MAC]:
			row.Action = ActionDuplicate
		case dev == nil:
			row.Action = ActionNotFound
		case dev.DeviceTag.Display() == e.Tag:
			row.Device = dev
			row.Action = ActionNoChange
		default:
			row.Device = dev
			row.Action = ActionUpdate
		}
		rows = append(rows, row)
	}
	return rows
}

// updater is the slice of the REST client the apply step needs.
type updater interface {
	UpdateRegisteredDevice(ctx context.Context, id, deviceTag string) error
}

// Apply carries out the "will update" rows of a plan and returns how
// many devices were updated.
func Apply(ctx context.Context, c updater, rows []PlanRow) (int, error) {
	logger := ctxlog.FromContext(ctx)

	updated := 0
	for _, row := range rows {
		if row.Action != ActionUpdate {
			continue
		}
		if err := c.UpdateRegisteredDevice(ctx, row.Device.ID, row.Entry.Tag); err != nil {
			return updated, fmt.Errorf("tag device %s (%s): %w", row.Device.ID, row.Entry.MAC, err)
		}
		logger.Info("device tagged", "mac", row.Entry.MAC, "tag", row.Entry.Tag)
		updated++
	}
	return updated, nil
}

// WritePlan renders a plan as an aligned table.
func WritePlan(w io.Writer, rows []PlanRow) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MAC\tNEW TAG\tCURRENT\tDEVICE\tACTION")
	for _, row := range rows {
		name, current := "-", "-"
		if row.Device != nil {
			if row.Device.DeviceName != "" {
				name = row.Device.DeviceName
			}
			if tag := row.Device.DeviceTag.Display(); tag != "" {
				current = tag
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", row.Entry.MAC, row.Entry.Tag, current, name, row.Action)
	}
	return tw.Flush()
}
