// Package diagnostics reports what the host can do before the remote is
// started: whether a Fling SDK binding loads and whether any interface can
// carry SSDP multicast.
package diagnostics

import (
	"net"
	"os"
	"strings"

	"go2tv.app/uniremote/internal/adapters/fling"
)

var (
	probeSDK       = fling.Probe
	listInterfaces = net.Interfaces
	statFile       = os.Stat
)

type SDKStatus struct {
	Available  bool   `json:"available"`
	PluginPath string `json:"plugin_path,omitempty"`
	PluginFile bool   `json:"plugin_file_found"`
	Error      string `json:"error,omitempty"`
}

type InterfaceStatus struct {
	Name  string   `json:"name"`
	Addrs []string `json:"addrs,omitempty"`
}

type CapabilityReport struct {
	FireTVSDK          SDKStatus         `json:"firetv_sdk"`
	MulticastIfaces    []InterfaceStatus `json:"multicast_interfaces"`
	DiscoveryPossible  bool              `json:"discovery_possible"`
	FireTVControlReady bool              `json:"firetv_control_ready"`
}

// DetectCapabilities probes the Fling SDK the same way the Fire TV adapter
// does and lists interfaces that are up and multicast capable.
func DetectCapabilities(pluginPath string) CapabilityReport {
	sdk := detectSDK(strings.TrimSpace(pluginPath))
	ifaces := multicastInterfaces()
	return CapabilityReport{
		FireTVSDK:          sdk,
		MulticastIfaces:    ifaces,
		DiscoveryPossible:  len(ifaces) > 0,
		FireTVControlReady: sdk.Available && len(ifaces) > 0,
	}
}

func detectSDK(pluginPath string) SDKStatus {
	status := SDKStatus{PluginPath: pluginPath}
	if pluginPath != "" {
		if info, err := statFile(pluginPath); err == nil && !info.IsDir() {
			status.PluginFile = true
		}
	}
	if _, err := probeSDK(pluginPath); err != nil {
		status.Error = err.Error()
		return status
	}
	status.Available = true
	return status
}

func multicastInterfaces() []InterfaceStatus {
	out := []InterfaceStatus{}
	ifaces, err := listInterfaces()
	if err != nil {
		return out
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		status := InterfaceStatus{Name: iface.Name}
		if addrs, err := iface.Addrs(); err == nil {
			for _, addr := range addrs {
				if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil {
					status.Addrs = append(status.Addrs, ipnet.IP.String())
				}
			}
		}
		out = append(out, status)
	}
	return out
}
