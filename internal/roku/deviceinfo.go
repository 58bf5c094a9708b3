package roku

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DeviceInfo is the subset of /query/device-info the remote shows.
type DeviceInfo struct {
	XMLName         xml.Name `xml:"device-info" json:"-"`
	UDN             string   `xml:"udn" json:"udn,omitempty"`
	SerialNumber    string   `xml:"serial-number" json:"serial_number,omitempty"`
	VendorName      string   `xml:"vendor-name" json:"vendor_name,omitempty"`
	ModelName       string   `xml:"model-name" json:"model_name,omitempty"`
	FriendlyName    string   `xml:"friendly-device-name" json:"friendly_name,omitempty"`
	UserDeviceName  string   `xml:"user-device-name" json:"user_device_name,omitempty"`
	SoftwareVersion string   `xml:"software-version" json:"software_version,omitempty"`
	PowerMode       string   `xml:"power-mode" json:"power_mode,omitempty"`
	IsTV            string   `xml:"is-tv" json:"is_tv,omitempty"`
}

// Name prefers the advertised friendly name over the user-assigned one.
func (d *DeviceInfo) Name() string {
	if d == nil {
		return ""
	}
	if name := strings.TrimSpace(d.FriendlyName); name != "" {
		return name
	}
	return strings.TrimSpace(d.UserDeviceName)
}

// DeviceInfo queries the Roku at address with the ordinary key timeout.
func (c *Client) DeviceInfo(ctx context.Context, address string) (*DeviceInfo, error) {
	target, err := endpoint(address, "query", "device-info")
	if err != nil {
		return nil, err
	}
	return c.fetchDeviceInfo(ctx, target, c.keyTimeout)
}

// DeviceInfoAt queries the device behind an SSDP LOCATION URL such as
// "http://192.168.1.20:8060/". Discovery calls it with a short timeout.
func (c *Client) DeviceInfoAt(ctx context.Context, location string, timeout time.Duration) (*DeviceInfo, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("empty location")
	}
	if timeout <= 0 {
		timeout = DefaultInfoTimeout
	}
	return c.fetchDeviceInfo(ctx, strings.TrimRight(location, "/")+"/query/device-info", timeout)
}

func (c *Client) fetchDeviceInfo(ctx context.Context, target string, timeout time.Duration) (*DeviceInfo, error) {
	resp, err := c.do(ctx, http.MethodGet, target, requestPolicy{attempts: 1, timeout: timeout})
	if err != nil {
		return nil, transportError(target, false, err)
	}
	defer resp.Body.Close()
	if !is2xx(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, statusError(target, resp)
	}

	info, err := parseDeviceInfo(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.logger.Debug("roku_device_info_parse_failed", slog.String("url", target), slog.String("error", err.Error()))
		return nil, err
	}
	return info, nil
}

func parseDeviceInfo(r io.Reader) (*DeviceInfo, error) {
	var info DeviceInfo
	dec := xml.NewDecoder(r)
	dec.Strict = false
	if err := dec.Decode(&info); err != nil {
		return nil, fmt.Errorf("decode device-info: %w", err)
	}
	info.FriendlyName = strings.TrimSpace(info.FriendlyName)
	info.ModelName = strings.TrimSpace(info.ModelName)
	return &info, nil
}
